// Package imaging decodes, transforms and encodes single-frame images.
package imaging

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	"image/png"
	"io"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
)

// ErrUnsupportedFormat is returned when no encoder matches the destination extension.
var ErrUnsupportedFormat = errors.New("unsupported image format")

// Format is an image container format.
type Format string

const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatBMP  Format = "bmp"
	FormatTIFF Format = "tiff"
)

var formatsByExt = map[string]Format{
	".png":  FormatPNG,
	".jpg":  FormatJPEG,
	".jpeg": FormatJPEG,
	".bmp":  FormatBMP,
	".tiff": FormatTIFF,
	".tif":  FormatTIFF,
}

// FormatFromPath infers the format from the file extension.
func FormatFromPath(path string) (Format, error) {
	f, ok := formatsByExt[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
	return f, nil
}

// Decode reads path from fsys and returns its pixels as a fresh NRGBA buffer.
func Decode(fsys afero.Fs, path string) (*image.NRGBA, error) {
	f, err := fsys.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	return DecodeReader(f)
}

// DecodeReader decodes any registered format from r into a fresh NRGBA buffer.
func DecodeReader(r io.Reader) (*image.NRGBA, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return ToNRGBA(img), nil
}

// ToNRGBA returns a copy of img as an NRGBA buffer anchored at the origin.
func ToNRGBA(img image.Image) *image.NRGBA {
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

// EncodeOptions tunes lossy encoders.
type EncodeOptions struct {
	JPEGQuality int
}

// Encode writes img to path on fsys in the format implied by the extension.
// A partially written file is removed on failure.
func Encode(fsys afero.Fs, path string, img image.Image, opts EncodeOptions) error {
	format, err := FormatFromPath(path)
	if err != nil {
		return err
	}

	f, err := fsys.Create(path)
	if err != nil {
		return fmt.Errorf("create image: %w", err)
	}

	if err := EncodeWriter(f, img, format, opts); err != nil {
		_ = f.Close()
		_ = fsys.Remove(path)
		return err
	}

	if err := f.Close(); err != nil {
		_ = fsys.Remove(path)
		return fmt.Errorf("close image: %w", err)
	}
	return nil
}

// EncodeWriter encodes img to w in format.
func EncodeWriter(w io.Writer, img image.Image, format Format, opts EncodeOptions) error {
	var err error
	switch format {
	case FormatPNG:
		err = png.Encode(w, img)
	case FormatJPEG:
		q := opts.JPEGQuality
		if q <= 0 {
			q = jpeg.DefaultQuality
		}
		err = jpeg.Encode(w, img, &jpeg.Options{Quality: q})
	case FormatBMP:
		err = bmp.Encode(w, img)
	case FormatTIFF:
		err = tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return fmt.Errorf("encode %s: %w", format, err)
	}
	return nil
}
