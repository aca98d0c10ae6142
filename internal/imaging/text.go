package imaging

import (
	"fmt"
	"image"
	"image/color"

	"github.com/spf13/afero"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Overlay defaults of the editor.
const (
	DefaultTextSize = 40
	DefaultTextX    = 50
	DefaultTextY    = 50
)

// DefaultTextColor is opaque red.
var DefaultTextColor = color.NRGBA{R: 255, A: 255}

// DefaultFace is the built-in glyph set used when no font can be loaded.
func DefaultFace() font.Face {
	return basicfont.Face7x13
}

// ResolveFace loads the TrueType/OpenType font at ref and returns a face of
// the given size. An empty ref selects the built-in face without error.
// When ref cannot be loaded the built-in face is returned together with
// the error, so callers can log it and continue.
func ResolveFace(fsys afero.Fs, ref string, size float64) (font.Face, error) {
	if ref == "" {
		return DefaultFace(), nil
	}
	if size <= 0 {
		size = DefaultTextSize
	}

	data, err := afero.ReadFile(fsys, ref)
	if err != nil {
		return DefaultFace(), fmt.Errorf("read font: %w", err)
	}

	f, err := opentype.Parse(data)
	if err != nil {
		return DefaultFace(), fmt.Errorf("parse font: %w", err)
	}

	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return DefaultFace(), fmt.Errorf("create font face: %w", err)
	}
	return face, nil
}

// TextOverlay draws Content with its top-left corner at Position.
type TextOverlay struct {
	Content  string
	Position image.Point
	Color    color.NRGBA
	// Face is the resolved font; nil selects DefaultFace.
	Face font.Face
}

// DrawText returns a copy of src with overlay rendered on it.
func DrawText(src *image.NRGBA, overlay TextOverlay) *image.NRGBA {
	dst := ToNRGBA(src)
	if overlay.Content == "" {
		return dst
	}

	face := overlay.Face
	if face == nil {
		face = DefaultFace()
	}

	ascent := face.Metrics().Ascent
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(overlay.Color),
		Face: face,
		Dot:  fixed.Point26_6{X: fixed.I(overlay.Position.X), Y: fixed.I(overlay.Position.Y) + ascent},
	}
	d.DrawString(overlay.Content)
	return dst
}
