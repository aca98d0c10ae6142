// Package storage publishes processed outputs. It defines the Storage
// interface (port) and implementations backed by a local directory and S3.
package storage

import (
	"context"
	"io"
)

// Storage reads, removes and publishes processed outputs.
type Storage interface {
	// Open returns a reader for a processed output.
	// The caller is responsible for closing the returned ReadCloser.
	Open(ctx context.Context, path string) (io.ReadCloser, error)

	// Remove deletes the given outputs. It continues even if some files
	// fail to delete and returns the first error.
	Remove(ctx context.Context, paths []string) error

	// Publish stores data under key and returns the location it can be
	// fetched from.
	Publish(ctx context.Context, key string, data io.Reader) (url string, err error)
}
