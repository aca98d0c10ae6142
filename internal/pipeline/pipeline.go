// Package pipeline runs a batch of media files through classification,
// per-file processing and optional deduplication of the outputs.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"golang.org/x/image/font"
	"golang.org/x/sync/errgroup"

	"github.com/maauso/mediabatch/internal/dedup"
	"github.com/maauso/mediabatch/internal/imaging"
	"github.com/maauso/mediabatch/internal/media"
)

// FileError is a failure attached to one path.
type FileError struct {
	Path    string          `json:"path"`
	Kind    media.ErrorKind `json:"kind"`
	Message string          `json:"message"`
	Err     error           `json:"-"`
}

func newFileError(path string, err error) FileError {
	return FileError{Path: path, Kind: media.KindOf(err), Message: err.Error(), Err: err}
}

// Output describes one written file.
type Output struct {
	Source string     `json:"source"`
	Path   string     `json:"path"`
	Kind   media.Kind `json:"-"`
	Width  int        `json:"width,omitempty"`
	Height int        `json:"height,omitempty"`
	Frames int        `json:"frames,omitempty"`
	Bytes  int64      `json:"bytes,omitempty"`
	// Removed is set when dedup deleted this output.
	Removed bool `json:"removed,omitempty"`
}

// Result is the outcome of Run. All lists follow input order.
type Result struct {
	// Processed lists every output written, including outputs later
	// removed as duplicates.
	Processed          []string    `json:"processed"`
	DeletedAsDuplicate []string    `json:"deletedAsDuplicate"`
	Errors             []FileError `json:"errors"`
	// Skipped lists paths that were not dispatched: unsupported extensions
	// and videos when video processing is off.
	Skipped  []string    `json:"skipped"`
	Warnings []FileError `json:"warnings,omitempty"`
	Outputs  []Output    `json:"outputs"`
}

// Pipeline coordinates the image engine, the video processor and the
// deduplicator.
type Pipeline struct {
	fs                afero.Fs
	engine            *imaging.Engine
	video             *media.FrameProcessor
	dedup             *dedup.Deduplicator
	logger            *slog.Logger
	workers           int
	variant           media.Variant
	face              font.Face
	fontPath          string
	reportUnsupported bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithWorkers bounds how many files are processed concurrently.
func WithWorkers(n int) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithVariant sets the default output naming.
func WithVariant(v media.Variant) Option {
	return func(p *Pipeline) {
		if v != "" {
			p.variant = v
		}
	}
}

// WithFace injects the font used for overlays that name no font.
func WithFace(face font.Face) Option {
	return func(p *Pipeline) {
		if face != nil {
			p.face = face
		}
	}
}

// WithFontPath sets the font file used for overlays that name no font. It
// is loaded at the size each overlay asks for; the face from WithFace is the
// fallback when it cannot be loaded.
func WithFontPath(path string) Option {
	return func(p *Pipeline) {
		p.fontPath = path
	}
}

// WithReportUnsupported records unsupported paths as UnsupportedMediaError
// entries in addition to listing them as skipped.
func WithReportUnsupported(report bool) Option {
	return func(p *Pipeline) {
		p.reportUnsupported = report
	}
}

// New creates a Pipeline. The filesystem must be the one the engine and
// deduplicator operate on; it is used for font loading.
func New(fsys afero.Fs, engine *imaging.Engine, video *media.FrameProcessor, dd *dedup.Deduplicator, logger *slog.Logger, opts ...Option) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pipeline{
		fs:      fsys,
		engine:  engine,
		video:   video,
		dedup:   dd,
		logger:  logger,
		workers: 1,
		variant: media.VariantSmartVision,
		face:    imaging.DefaultFace(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

type task struct {
	index int
	file  media.File
}

type outcome struct {
	done   bool
	output Output
	err    error
}

// Run processes paths with cfg. A bad file never stops the batch: its
// failure is recorded in Errors and the remaining files continue. Dedup, when
// enabled, runs after every file has been processed and sees the outputs in
// input order.
//
// Cancellation is checked between files. On cancellation the files that
// finished are reported, files not started are omitted, dedup is skipped,
// and the context error is returned with the partial result.
func (p *Pipeline) Run(ctx context.Context, paths []string, cfg OperationConfig) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	start := time.Now()
	variant := cfg.Variant
	if variant == "" {
		variant = p.variant
	}

	res := Result{
		Processed:          []string{},
		DeletedAsDuplicate: []string{},
		Errors:             []FileError{},
		Skipped:            []string{},
		Outputs:            []Output{},
	}

	var overlay imaging.TextOverlay
	if variant == media.VariantPixEdit {
		var warn *FileError
		overlay, warn = p.resolveOverlay(cfg.TextOverlay)
		if warn != nil {
			res.Warnings = append(res.Warnings, *warn)
		}
	} else if ignored := cfg.editorOperations(); len(ignored) > 0 {
		p.logger.Warn("editor operations ignored for variant",
			slog.String("variant", string(variant)),
			slog.Any("operations", ignored),
		)
	}
	imgOpts := cfg.imageOptions(variant, overlay)
	frameOp := imaging.FrameTransform(imgOpts)

	// errs is indexed by input position so Errors keeps input order.
	errs := make([]*FileError, len(paths))
	var tasks []task
	for i, path := range paths {
		f := media.Classify(path)
		switch {
		case f.Kind == media.Unsupported:
			res.Skipped = append(res.Skipped, path)
			if p.reportUnsupported {
				fe := newFileError(path, media.NewError(media.KindUnsupportedMediaError, path, nil))
				errs[i] = &fe
			}
		case f.Kind == media.Video && !cfg.ProcessVideo:
			res.Skipped = append(res.Skipped, path)
		default:
			tasks = append(tasks, task{index: i, file: f})
		}
	}

	p.logger.Info("batch started",
		slog.Int("files", len(paths)),
		slog.Int("dispatched", len(tasks)),
		slog.Int("skipped", len(res.Skipped)),
		slog.String("variant", string(variant)),
		slog.Int("workers", p.workers),
	)

	outcomes := make([]outcome, len(tasks))
	var g errgroup.Group
	g.SetLimit(p.workers)
	for i, t := range tasks {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			dst := media.OutputPath(t.file.Path, variant)
			out, err := p.processOne(ctx, t.file, dst, imgOpts, frameOp)
			outcomes[i] = outcome{done: true, output: out, err: err}
			return nil
		})
	}
	_ = g.Wait()

	var images []string
	byPath := make(map[string]int)
	for i, t := range tasks {
		o := outcomes[i]
		if !o.done {
			continue
		}
		if o.err != nil {
			p.logger.Error("file failed",
				slog.String("path", t.file.Path),
				slog.String("kind", string(media.KindOf(o.err))),
				slog.String("error", o.err.Error()),
			)
			fe := newFileError(t.file.Path, o.err)
			errs[t.index] = &fe
			continue
		}
		res.Processed = append(res.Processed, o.output.Path)
		res.Outputs = append(res.Outputs, o.output)
		if t.file.Kind == media.Image {
			images = append(images, o.output.Path)
			byPath[o.output.Path] = len(res.Outputs) - 1
		}
	}

	for _, fe := range errs {
		if fe != nil {
			res.Errors = append(res.Errors, *fe)
		}
	}

	if err := ctx.Err(); err != nil {
		p.logger.Warn("batch cancelled",
			slog.Int("completed", len(res.Processed)+len(res.Errors)),
			slog.Int("dispatched", len(tasks)),
		)
		return res, err
	}

	if cfg.RemoveDuplicates && len(images) > 0 {
		dres, err := p.dedup.Dedupe(ctx, images)
		if err != nil {
			return res, err
		}
		for _, path := range dres.Removed {
			res.DeletedAsDuplicate = append(res.DeletedAsDuplicate, path)
			if i, ok := byPath[path]; ok {
				res.Outputs[i].Removed = true
			}
		}
		for _, s := range dres.Skipped {
			res.Warnings = append(res.Warnings, newFileError(s.Path, s.Err))
		}
	}

	var total int64
	for _, o := range res.Outputs {
		if !o.Removed {
			total += o.Bytes
		}
	}
	p.logger.Info("batch finished",
		slog.Int("processed", len(res.Processed)),
		slog.Int("errors", len(res.Errors)),
		slog.Int("duplicates_removed", len(res.DeletedAsDuplicate)),
		slog.String("output_size", humanize.Bytes(uint64(total))),
		slog.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func (p *Pipeline) processOne(ctx context.Context, f media.File, dst string, opts imaging.Options, frameOp media.FrameTransform) (Output, error) {
	switch f.Kind {
	case media.Image:
		out, err := p.engine.ProcessFile(ctx, f.Path, dst, opts)
		if err != nil {
			return Output{}, err
		}
		return Output{
			Source: f.Path,
			Path:   out.Path,
			Kind:   media.Image,
			Width:  out.Width,
			Height: out.Height,
			Bytes:  out.Bytes,
		}, nil
	case media.Video:
		frames, err := p.video.Transcode(ctx, f.Path, dst, frameOp)
		if err != nil {
			return Output{}, err
		}
		out := Output{Source: f.Path, Path: dst, Kind: media.Video, Frames: frames}
		if fi, err := p.fs.Stat(dst); err == nil {
			out.Bytes = fi.Size()
		}
		return out, nil
	default:
		return Output{}, media.NewError(media.KindUnsupportedMediaError, f.Path, errors.New("not dispatchable"))
	}
}

// resolveOverlay loads the overlay font once for the whole run, at the
// requested size. Without a font reference or a default font path the
// built-in face is used, and its size is fixed. A font that cannot be
// loaded falls back to the injected face and yields a warning.
func (p *Pipeline) resolveOverlay(t *TextOverlay) (imaging.TextOverlay, *FileError) {
	if t == nil || t.Content == "" {
		return imaging.TextOverlay{}, nil
	}
	overlay := imaging.TextOverlay{
		Content:  t.Content,
		Position: t.anchor(),
		Color:    t.color(),
		Face:     p.face,
	}
	ref := t.FontRef
	if ref == "" {
		ref = p.fontPath
	}
	if ref == "" {
		return overlay, nil
	}

	face, err := imaging.ResolveFace(p.fs, ref, t.size())
	if err != nil {
		p.logger.Warn("font not available, using fallback face",
			slog.String("font", ref),
			slog.String("error", err.Error()),
		)
		fe := newFileError(ref, media.NewError(media.KindFontResolutionError, ref, err))
		return overlay, &fe
	}
	overlay.Face = face
	return overlay, nil
}
