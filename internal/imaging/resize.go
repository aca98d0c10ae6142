package imaging

import (
	"errors"
	"fmt"
	"image"

	"golang.org/x/image/draw"
)

// ErrInvalidSize is returned when a resize target is not positive.
var ErrInvalidSize = errors.New("invalid size: width and height must be positive")

// Size is a target raster size. The zero value means "keep the current size";
// otherwise both sides must be given.
type Size struct {
	Width  int `json:"width" validate:"required_with=Height,omitempty,min=1,max=16384"`
	Height int `json:"height" validate:"required_with=Width,omitempty,min=1,max=16384"`
}

// IsZero reports whether no explicit target was given.
func (s Size) IsZero() bool {
	return s.Width == 0 && s.Height == 0
}

// Half returns the size with both sides halved, never below one pixel.
func Half(b image.Rectangle) Size {
	return Size{Width: max(b.Dx()/2, 1), Height: max(b.Dy()/2, 1)}
}

// Resize rescales src to target with Catmull-Rom resampling. A zero target
// or one equal to the current size yields an unscaled copy.
func Resize(src *image.NRGBA, target Size) (*image.NRGBA, error) {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	if target.IsZero() || (target.Width == w && target.Height == h) {
		return ToNRGBA(src), nil
	}
	if target.Width <= 0 || target.Height <= 0 {
		return nil, fmt.Errorf("%w: width=%d, height=%d", ErrInvalidSize, target.Width, target.Height)
	}

	dst := image.NewNRGBA(image.Rect(0, 0, target.Width, target.Height))
	draw.CatmullRom.Scale(dst, dst.Rect, src, src.Rect, draw.Src, nil)
	return dst, nil
}
