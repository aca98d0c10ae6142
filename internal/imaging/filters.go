package imaging

import (
	"image"
	"image/draw"
)

// Default enhancement factors of the editor.
const (
	DefaultBrightnessFactor = 1.2
	DefaultContrastFactor   = 1.5
)

// detail kernel: centre 10, 4-neighbours -1, divided by 6.
const (
	detailCentre  = 10
	detailDivisor = 6
)

// EnhanceDetail applies the 3x3 detail kernel to every colour channel.
// Border pixels and alpha are copied unchanged. src is not modified.
func EnhanceDetail(src *image.NRGBA) *image.NRGBA {
	src = compact(src)
	dst := image.NewNRGBA(src.Rect)
	detail(dst.Pix, src.Pix, src.Rect.Dx(), src.Rect.Dy(), src.Stride)
	return dst
}

// EnhanceDetailRGBA is EnhanceDetail for decoded video frames.
func EnhanceDetailRGBA(src *image.RGBA) *image.RGBA {
	if src.Stride != 4*src.Rect.Dx() {
		c := image.NewRGBA(src.Rect)
		draw.Draw(c, c.Rect, src, src.Rect.Min, draw.Src)
		src = c
	}
	dst := image.NewRGBA(src.Rect)
	detail(dst.Pix, src.Pix, src.Rect.Dx(), src.Rect.Dy(), src.Stride)
	return dst
}

// detail convolves 4-byte-per-pixel buffers. dst must have the same stride as src.
func detail(dst, src []uint8, w, h, stride int) {
	copy(dst, src)
	if w < 3 || h < 3 {
		return
	}
	for y := 1; y < h-1; y++ {
		row := y * stride
		for x := 1; x < w-1; x++ {
			i := row + x*4
			for c := 0; c < 3; c++ {
				sum := detailCentre*int(src[i+c]) -
					int(src[i+c-4]) - int(src[i+c+4]) -
					int(src[i+c-stride]) - int(src[i+c+stride])
				dst[i+c] = clamp(roundDiv(sum, detailDivisor))
			}
		}
	}
}

// AdjustBrightness multiplies every colour channel by factor.
func AdjustBrightness(src *image.NRGBA, factor float64) *image.NRGBA {
	src = compact(src)
	dst := image.NewNRGBA(src.Rect)
	copy(dst.Pix, src.Pix)
	for i := 0; i < len(dst.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			dst.Pix[i+c] = clampFloat(float64(src.Pix[i+c]) * factor)
		}
	}
	return dst
}

// AdjustContrast scales every colour channel's distance from the image's
// mean luminance by factor.
func AdjustContrast(src *image.NRGBA, factor float64) *image.NRGBA {
	src = compact(src)
	mean := float64(MeanLuminance(src))
	dst := image.NewNRGBA(src.Rect)
	copy(dst.Pix, src.Pix)
	for i := 0; i < len(dst.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			dst.Pix[i+c] = clampFloat(mean + factor*(float64(src.Pix[i+c])-mean))
		}
	}
	return dst
}

// MeanLuminance returns the rounded mean ITU-R 601 luma of img.
func MeanLuminance(img *image.NRGBA) uint8 {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	if w == 0 || h == 0 {
		return 0
	}
	var total uint64
	for y := 0; y < h; y++ {
		row := y * img.Stride
		for x := 0; x < w; x++ {
			i := row + x*4
			total += uint64(luma(img.Pix[i], img.Pix[i+1], img.Pix[i+2]))
		}
	}
	n := uint64(w * h)
	return uint8((total + n/2) / n)
}

// luma is the fixed-point 299/587/114 weighting.
func luma(r, g, b uint8) uint8 {
	return uint8((uint32(r)*19595 + uint32(g)*38470 + uint32(b)*7471 + 0x8000) >> 16)
}

func roundDiv(n, d int) int {
	if n >= 0 {
		return (n + d/2) / d
	}
	return -((-n + d/2) / d)
}

func clamp(v int) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	default:
		return uint8(v)
	}
}

func clampFloat(v float64) uint8 {
	return clamp(int(v + 0.5))
}

// compact returns src itself when its rows are contiguous, otherwise a
// tightly packed copy.
func compact(src *image.NRGBA) *image.NRGBA {
	if src.Stride == 4*src.Rect.Dx() {
		return src
	}
	return ToNRGBA(src)
}
