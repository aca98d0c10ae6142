package media

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Variant selects the host application flavour. It decides the output
// name prefix and which operations are meaningful.
type Variant string

const (
	// VariantSmartVision is the batch processor: detail, resize, dedup, video.
	VariantSmartVision Variant = "smartvision"
	// VariantPixEdit is the editor: adds brightness, contrast and text overlay.
	VariantPixEdit Variant = "pixedit"
)

// ParseVariant converts s (case-insensitive) into a Variant.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(strings.ToLower(s)); v {
	case VariantSmartVision, VariantPixEdit:
		return v, nil
	case "":
		return VariantSmartVision, nil
	default:
		return "", fmt.Errorf("unknown variant %q", s)
	}
}

// Prefix returns the file name prefix used for outputs of this variant.
func (v Variant) Prefix() string {
	if v == VariantPixEdit {
		return "edited_"
	}
	return "processed_"
}

// OutputPath derives the destination for src: same directory, prefixed base name.
func OutputPath(src string, v Variant) string {
	return filepath.Join(filepath.Dir(src), v.Prefix()+filepath.Base(src))
}
