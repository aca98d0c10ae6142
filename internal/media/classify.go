package media

import (
	"path/filepath"
	"strings"
)

// Kind is the media modality of a file.
type Kind int

const (
	// Unsupported files are skipped by the pipeline.
	Unsupported Kind = iota
	// Image files are single-frame rasters.
	Image
	// Video files are multi-frame containers.
	Video
)

func (k Kind) String() string {
	switch k {
	case Image:
		return "image"
	case Video:
		return "video"
	default:
		return "unsupported"
	}
}

// Accepted extensions (lowercase, with leading dot).
var (
	imageExtensions = map[string]bool{
		".png":  true,
		".jpg":  true,
		".jpeg": true,
		".bmp":  true,
		".tiff": true,
	}
	videoExtensions = map[string]bool{
		".mp4": true,
		".avi": true,
		".mov": true,
	}
)

// File is a classified path. It is immutable after Classify returns it.
type File struct {
	Path string
	Kind Kind
}

// Classify tags path by its extension alone. The file is never opened.
func Classify(path string) File {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case imageExtensions[ext]:
		return File{Path: path, Kind: Image}
	case videoExtensions[ext]:
		return File{Path: path, Kind: Video}
	default:
		return File{Path: path, Kind: Unsupported}
	}
}

// IsImage reports whether path carries an accepted image extension.
func IsImage(path string) bool {
	return Classify(path).Kind == Image
}
