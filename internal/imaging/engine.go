package imaging

import (
	"context"
	"fmt"
	"image"
	"log/slog"

	"github.com/spf13/afero"

	"github.com/maauso/mediabatch/internal/media"
)

// Options selects the operations applied by Engine.Apply. Operations run in
// a fixed order: detail, resize, text overlay, brightness, contrast.
type Options struct {
	EnhanceDetail bool
	// Resize enables rescaling to Target. A zero Target keeps the current
	// size, so resizing "to original" is a no-op by construction.
	Resize bool
	Target Size
	// Halve resizes to half the current size and takes precedence over Target.
	Halve bool

	AdjustBrightness bool
	BrightnessFactor float64
	AdjustContrast   bool
	ContrastFactor   float64

	// Text is drawn when non-nil and non-empty.
	Text *TextOverlay
}

// IsIdentity reports whether Apply would return an unmodified copy.
func (o Options) IsIdentity() bool {
	return !o.EnhanceDetail &&
		(!o.Resize || (o.Target.IsZero() && !o.Halve)) &&
		!o.AdjustBrightness &&
		!o.AdjustContrast &&
		(o.Text == nil || o.Text.Content == "")
}

// Engine applies Options to images and persists the results.
type Engine struct {
	fs          afero.Fs
	logger      *slog.Logger
	jpegQuality int
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithJPEGQuality sets the quality used when the destination is a JPEG.
func WithJPEGQuality(q int) EngineOption {
	return func(e *Engine) {
		if q > 0 && q <= 100 {
			e.jpegQuality = q
		}
	}
}

// NewEngine creates an Engine reading and writing through fsys.
func NewEngine(fsys afero.Fs, logger *slog.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		fs:          fsys,
		logger:      logger,
		jpegQuality: 95,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Apply runs the enabled operations on img and returns a new buffer.
// img is never modified.
func (e *Engine) Apply(img *image.NRGBA, opts Options) (*image.NRGBA, error) {
	out := ToNRGBA(img)

	if opts.EnhanceDetail {
		out = EnhanceDetail(out)
	}

	if opts.Resize {
		target := opts.Target
		if opts.Halve {
			target = Half(out.Rect)
		}
		resized, err := Resize(out, target)
		if err != nil {
			return nil, err
		}
		out = resized
	}

	if opts.Text != nil && opts.Text.Content != "" {
		out = DrawText(out, *opts.Text)
	}

	if opts.AdjustBrightness {
		f := opts.BrightnessFactor
		if f == 0 {
			f = DefaultBrightnessFactor
		}
		out = AdjustBrightness(out, f)
	}

	if opts.AdjustContrast {
		f := opts.ContrastFactor
		if f == 0 {
			f = DefaultContrastFactor
		}
		out = AdjustContrast(out, f)
	}

	return out, nil
}

// FrameTransform returns the per-frame operator used for video: the detail
// filter when enabled, otherwise nil (frames pass through).
func FrameTransform(opts Options) media.FrameTransform {
	if !opts.EnhanceDetail {
		return nil
	}
	return EnhanceDetailRGBA
}

// Decode reads src, wrapping failures as a DecodeError.
func (e *Engine) Decode(src string) (*image.NRGBA, error) {
	img, err := Decode(e.fs, src)
	if err != nil {
		return nil, media.NewError(media.KindDecodeError, src, err)
	}
	return img, nil
}

// Encode writes img to dst, wrapping failures as an EncodeError.
func (e *Engine) Encode(dst string, img image.Image) error {
	if err := Encode(e.fs, dst, img, EncodeOptions{JPEGQuality: e.jpegQuality}); err != nil {
		return media.NewError(media.KindEncodeError, dst, err)
	}
	return nil
}

// Output describes a written image.
type Output struct {
	Path   string
	Width  int
	Height int
	Bytes  int64
}

// ProcessFile decodes src, applies opts and writes the result to dst.
func (e *Engine) ProcessFile(ctx context.Context, src, dst string, opts Options) (Output, error) {
	if err := ctx.Err(); err != nil {
		return Output{}, media.NewError(media.KindCancelled, src, err)
	}

	img, err := e.Decode(src)
	if err != nil {
		return Output{}, err
	}

	out, err := e.Apply(img, opts)
	if err != nil {
		return Output{}, media.NewError(media.KindInternalError, src, fmt.Errorf("apply: %w", err))
	}

	if err := e.Encode(dst, out); err != nil {
		return Output{}, err
	}

	result := Output{Path: dst, Width: out.Rect.Dx(), Height: out.Rect.Dy()}
	if fi, err := e.fs.Stat(dst); err == nil {
		result.Bytes = fi.Size()
	}

	e.logger.Debug("image processed",
		slog.String("src", src),
		slog.String("dst", dst),
		slog.Int("width", result.Width),
		slog.Int("height", result.Height),
	)
	return result, nil
}
