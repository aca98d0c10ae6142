package pipeline

import (
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/mediabatch/internal/imaging"
	"github.com/maauso/mediabatch/internal/media"
)

// ErrInvalidConfig is returned when an OperationConfig fails validation.
var ErrInvalidConfig = errors.New("invalid operation config")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Point is an overlay anchor in pixels from the top-left corner.
type Point struct {
	X int `json:"x" validate:"min=0"`
	Y int `json:"y" validate:"min=0"`
}

// RGB is an opaque overlay colour.
type RGB struct {
	R uint8 `json:"r"`
	G uint8 `json:"g"`
	B uint8 `json:"b"`
}

// TextOverlay describes a caption drawn on every processed image.
// Nil Position, Color and a zero Size select the editor defaults.
type TextOverlay struct {
	Content  string `json:"content" validate:"required,max=1024"`
	FontRef  string `json:"fontRef,omitempty"`
	Position *Point `json:"position,omitempty"`
	Color    *RGB   `json:"color,omitempty"`
	Size     int    `json:"size,omitempty" validate:"omitempty,min=1,max=512"`
}

func (t *TextOverlay) size() float64 {
	if t.Size == 0 {
		return imaging.DefaultTextSize
	}
	return float64(t.Size)
}

func (t *TextOverlay) anchor() image.Point {
	if t.Position == nil {
		return image.Pt(imaging.DefaultTextX, imaging.DefaultTextY)
	}
	return image.Pt(t.Position.X, t.Position.Y)
}

func (t *TextOverlay) color() color.NRGBA {
	if t.Color == nil {
		return imaging.DefaultTextColor
	}
	return color.NRGBA{R: t.Color.R, G: t.Color.G, B: t.Color.B, A: 255}
}

// OperationConfig selects the operations of one batch run. It is read-only
// for the duration of the run.
type OperationConfig struct {
	EnhanceDetail bool `json:"enhanceDetail"`
	// ResizeToOriginal enables the resize step. Without ResizeTarget or
	// HalveSize the target is the current size, so the step changes nothing.
	ResizeToOriginal bool         `json:"resizeToOriginal"`
	ResizeTarget     imaging.Size `json:"resizeTarget"`
	HalveSize        bool         `json:"halveSize"`
	RemoveDuplicates bool         `json:"removeDuplicates"`
	ProcessVideo     bool         `json:"processVideo"`

	AdjustBrightness bool    `json:"adjustBrightness"`
	BrightnessFactor float64 `json:"brightnessFactor,omitempty" validate:"omitempty,gt=0,lte=10"`
	AdjustContrast   bool    `json:"adjustContrast"`
	ContrastFactor   float64 `json:"contrastFactor,omitempty" validate:"omitempty,gt=0,lte=10"`

	TextOverlay *TextOverlay `json:"textOverlay,omitempty"`

	// Variant overrides the pipeline's default output naming.
	Variant media.Variant `json:"variant,omitempty" validate:"omitempty,oneof=smartvision pixedit"`
}

// Validate checks field ranges.
func (c OperationConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}

// editorOperations lists the requested operations that only the pixedit
// variant performs.
func (c OperationConfig) editorOperations() []string {
	var ops []string
	if c.HalveSize {
		ops = append(ops, "halveSize")
	}
	if c.AdjustBrightness {
		ops = append(ops, "adjustBrightness")
	}
	if c.AdjustContrast {
		ops = append(ops, "adjustContrast")
	}
	if c.TextOverlay != nil && c.TextOverlay.Content != "" {
		ops = append(ops, "textOverlay")
	}
	return ops
}

// imageOptions converts c into engine options for variant. Halving,
// brightness, contrast and text belong to pixedit and are left out for
// smartvision. overlay carries the resolved font and is used only when c
// asks for text.
func (c OperationConfig) imageOptions(variant media.Variant, overlay imaging.TextOverlay) imaging.Options {
	opts := imaging.Options{
		EnhanceDetail: c.EnhanceDetail,
		Resize:        c.ResizeToOriginal || !c.ResizeTarget.IsZero(),
		Target:        c.ResizeTarget,
	}
	if variant != media.VariantPixEdit {
		return opts
	}

	opts.Resize = opts.Resize || c.HalveSize
	opts.Halve = c.HalveSize
	opts.AdjustBrightness = c.AdjustBrightness
	opts.BrightnessFactor = c.BrightnessFactor
	opts.AdjustContrast = c.AdjustContrast
	opts.ContrastFactor = c.ContrastFactor
	if c.TextOverlay != nil && c.TextOverlay.Content != "" {
		opts.Text = &overlay
	}
	return opts
}
