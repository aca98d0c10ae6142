// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sethvargo/go-envconfig"
)

// Static errors for configuration validation.
var (
	// ErrInvalidVariant is returned when VARIANT is neither smartvision nor pixedit.
	ErrInvalidVariant = errors.New("config: VARIANT must be smartvision or pixedit")
	// ErrInvalidWorkers is returned when WORKERS is not positive.
	ErrInvalidWorkers = errors.New("config: WORKERS must be positive")
	// ErrInvalidJPEGQuality is returned when JPEG_QUALITY is outside 1..100.
	ErrInvalidJPEGQuality = errors.New("config: JPEG_QUALITY must be between 1 and 100")
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port           int      `env:"PORT, default=8080" json:"port"`
	AllowedOrigins []string `env:"ALLOWED_ORIGINS, default=*" json:"allowed_origins"`

	// Processing settings
	Variant           string `env:"VARIANT, default=smartvision" json:"variant"`
	Workers           int    `env:"WORKERS, default=1" json:"workers"`
	FontPath          string `env:"FONT_PATH" json:"font_path,omitempty"`
	JPEGQuality       int    `env:"JPEG_QUALITY, default=95" json:"jpeg_quality"`
	ReportUnsupported bool   `env:"REPORT_UNSUPPORTED, default=false" json:"report_unsupported"`

	// Video settings
	FFmpegPath           string  `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath          string  `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`
	VideoCodec           string  `env:"VIDEO_CODEC, default=mpeg4" json:"video_codec"`
	VideoTag             string  `env:"VIDEO_TAG, default=XVID" json:"video_tag"`
	VideoFallbackFPS     float64 `env:"VIDEO_FALLBACK_FPS, default=20" json:"video_fallback_fps"`
	ContainerOpenRetries int     `env:"CONTAINER_OPEN_RETRIES, default=1" json:"container_open_retries"`

	// Publication settings. PublishDir is where local publication copies
	// outputs; when S3 is configured the outputs are uploaded instead.
	PublishDir string `env:"PUBLISH_DIR" json:"publish_dir,omitempty"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Logging settings
	LogFormat string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel  string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// Load reads configuration from environment variables using go-envconfig
// and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}

	if err := envconfig.Process(context.Background(), cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the loaded values are usable.
func (c *Config) Validate() error {
	switch strings.ToLower(c.Variant) {
	case "smartvision", "pixedit":
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidVariant, c.Variant)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("%w: got %d", ErrInvalidWorkers, c.Workers)
	}
	if c.JPEGQuality < 1 || c.JPEGQuality > 100 {
		return fmt.Errorf("%w: got %d", ErrInvalidJPEGQuality, c.JPEGQuality)
	}
	return nil
}

// NewLogger creates a structured logger writing to stdout.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	return c.NewLoggerTo(os.Stdout)
}

// NewLoggerTo is NewLogger with an explicit destination.
func (c *Config) NewLoggerTo(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLogLevel(c.LogLevel)}

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, Variant: %s, Workers: %d, FontPath: %s, FFmpegPath: %s, FFprobePath: %s, VideoCodec: %s, S3Bucket: %s, S3Region: %s, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.Variant,
		c.Workers,
		c.FontPath,
		c.FFmpegPath,
		c.FFprobePath,
		c.VideoCodec,
		c.S3Bucket,
		c.S3Region,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
