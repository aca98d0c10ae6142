package media

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a per-file failure.
type ErrorKind string

const (
	// KindDecodeError means the source could not be read or decoded.
	KindDecodeError ErrorKind = "DECODE_ERROR"
	// KindEncodeError means the destination could not be written.
	KindEncodeError ErrorKind = "ENCODE_ERROR"
	// KindFontResolutionError means the requested font could not be loaded.
	// It is recoverable: the built-in face is used instead.
	KindFontResolutionError ErrorKind = "FONT_RESOLUTION_ERROR"
	// KindContainerOpenError means a video source or destination could not be opened.
	KindContainerOpenError ErrorKind = "CONTAINER_OPEN_ERROR"
	// KindUnsupportedMediaError means the path has no accepted extension.
	KindUnsupportedMediaError ErrorKind = "UNSUPPORTED_MEDIA_ERROR"
	// KindCancelled means the batch was aborted before the file was handled.
	KindCancelled ErrorKind = "CANCELLED"
	// KindInternalError is used for failures that fit no other kind.
	KindInternalError ErrorKind = "INTERNAL_ERROR"
)

// Error is a per-file media error. It wraps the underlying cause so
// errors.Is and errors.As keep working through it.
type Error struct {
	Kind ErrorKind
	Path string
	Err  error
}

// NewError creates an Error of the given kind for path.
func NewError(kind ErrorKind, path string, err error) *Error {
	return &Error{Kind: kind, Path: path, Err: err}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Path)
	}
	return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the ErrorKind carried by err, or KindInternalError when err
// does not wrap an *Error.
func KindOf(err error) ErrorKind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindInternalError
}

// IsKind reports whether err wraps an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var me *Error
	return errors.As(err, &me) && me.Kind == kind
}

// FFmpegError represents an error from running ffmpeg or ffprobe, including the stderr output.
type FFmpegError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *FFmpegError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *FFmpegError) Unwrap() error {
	return e.Err
}
