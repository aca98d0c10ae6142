// Package bootstrap provides dependency initialization for mediabatch.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/spf13/afero"
	"golang.org/x/image/font"

	"github.com/maauso/mediabatch/internal/batch"
	"github.com/maauso/mediabatch/internal/config"
	"github.com/maauso/mediabatch/internal/dedup"
	"github.com/maauso/mediabatch/internal/imaging"
	"github.com/maauso/mediabatch/internal/media"
	"github.com/maauso/mediabatch/internal/pipeline"
	"github.com/maauso/mediabatch/internal/storage"
)

// Dependencies holds all initialized dependencies for the server and CLI.
type Dependencies struct {
	Pipeline     *pipeline.Pipeline
	BatchService *batch.Service
	Storage      storage.Storage
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	return newDependencies(afero.NewOsFs(), cfg, logger)
}

func newDependencies(fsys afero.Fs, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	variant, err := media.ParseVariant(cfg.Variant)
	if err != nil {
		return nil, fmt.Errorf("parse variant: %w", err)
	}

	store, err := initStorage(fsys, cfg, logger)
	if err != nil {
		return nil, err
	}

	// Video frames go through ffmpeg/ffprobe subprocesses
	codec := media.NewFFmpegCodec(cfg.FFmpegPath, cfg.FFprobePath,
		media.WithVideoCodec(cfg.VideoCodec, cfg.VideoTag),
		media.WithFallbackFPS(cfg.VideoFallbackFPS),
	)
	video := media.NewFrameProcessor(codec, logger, media.WithOpenRetries(cfg.ContainerOpenRetries))

	engine := imaging.NewEngine(fsys, logger, imaging.WithJPEGQuality(cfg.JPEGQuality))
	dd := dedup.New(fsys, logger, dedup.WithWorkers(cfg.Workers))

	p := pipeline.New(fsys, engine, video, dd, logger,
		pipeline.WithWorkers(cfg.Workers),
		pipeline.WithVariant(variant),
		pipeline.WithFace(loadFace(fsys, cfg.FontPath, logger)),
		pipeline.WithFontPath(cfg.FontPath),
		pipeline.WithReportUnsupported(cfg.ReportUnsupported),
	)

	svc := batch.NewService(batch.NewMemoryRepository(), p, store, logger)

	return &Dependencies{
		Pipeline:     p,
		BatchService: svc,
		Storage:      store,
	}, nil
}

// loadFace resolves FONT_PATH. A missing or broken font is logged and the
// built-in face is used.
func loadFace(fsys afero.Fs, path string, logger *slog.Logger) font.Face {
	face, err := imaging.ResolveFace(fsys, path, imaging.DefaultTextSize)
	if err != nil {
		logger.Warn("font not available, using built-in face",
			slog.String("font_path", path),
			slog.String("error", err.Error()),
		)
	}
	return face
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(fsys afero.Fs, cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(fsys, cfg.PublishDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(fsys, cfg.PublishDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("publish_dir", localStore.PublishDir()),
	)
	return localStore, nil
}
