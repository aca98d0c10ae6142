// Package media provides media classification, output naming and streaming
// video processing.
package media

import (
	"context"
	"image"
)

// StreamInfo describes the primary video stream of a container.
type StreamInfo struct {
	Width  int
	Height int
	FPS    float64
}

// FrameTransform maps one decoded frame to a new frame of the same size.
// Implementations must not retain the input.
type FrameTransform func(frame *image.RGBA) *image.RGBA

// FrameReader yields decoded frames sequentially.
type FrameReader interface {
	// ReadFrame returns the next frame, or io.EOF at a clean end of stream.
	ReadFrame() (*image.RGBA, error)
	// Close releases the decoder. It is safe to call before end of stream.
	Close() error
}

// FrameWriter accepts frames sequentially and muxes them into a container.
type FrameWriter interface {
	WriteFrame(frame *image.RGBA) error
	// Close flushes and finalizes the container.
	Close() error
}

// Codec opens containers for sequential frame access.
// Implementations should use ffmpeg or similar tools for demuxing and muxing.
type Codec interface {
	// OpenReader opens src for sequential reads and reports its stream geometry.
	OpenReader(ctx context.Context, src string) (FrameReader, StreamInfo, error)

	// OpenWriter opens dst for sequential writes using info for size and rate.
	OpenWriter(ctx context.Context, dst string, info StreamInfo) (FrameWriter, error)
}
