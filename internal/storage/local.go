package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ErrInvalidKey is returned when a publication key is empty, absolute or
// escapes the publish directory.
var ErrInvalidKey = errors.New("invalid publication key")

// LocalStorage implements Storage on a filesystem. Published files are
// copied below a publish directory.
type LocalStorage struct {
	fs         afero.Fs
	publishDir string
}

// NewLocalStorage creates a LocalStorage on fsys.
// If publishDir is empty, a "mediabatch" directory under os.TempDir() is used.
// The directory is created if it doesn't exist.
func NewLocalStorage(fsys afero.Fs, publishDir string) (*LocalStorage, error) {
	if publishDir == "" {
		publishDir = filepath.Join(os.TempDir(), "mediabatch")
	}

	if err := fsys.MkdirAll(publishDir, 0o750); err != nil {
		return nil, fmt.Errorf("create publish directory: %w", err)
	}

	return &LocalStorage{fs: fsys, publishDir: publishDir}, nil
}

// PublishDir returns the publish directory path.
func (s *LocalStorage) PublishDir() string {
	return s.publishDir
}

// Open opens a processed output for reading.
func (s *LocalStorage) Open(ctx context.Context, p string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}

	f, err := s.fs.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open output: %w", err)
	}
	return f, nil
}

// Remove deletes the given outputs. Missing files are not an error.
func (s *LocalStorage) Remove(ctx context.Context, paths []string) error {
	var firstErr error
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("context cancelled: %w", err)
		}

		if err := s.fs.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			if firstErr == nil {
				firstErr = fmt.Errorf("remove output %s: %w", p, err)
			}
		}
	}
	return firstErr
}

// Publish copies data to publishDir/key and returns a file:// URL.
func (s *LocalStorage) Publish(ctx context.Context, key string, data io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context cancelled: %w", err)
	}
	if err := validateKey(key); err != nil {
		return "", err
	}

	dst := filepath.Join(s.publishDir, filepath.FromSlash(key))
	if err := s.fs.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return "", fmt.Errorf("create publish directory: %w", err)
	}

	f, err := s.fs.Create(dst)
	if err != nil {
		return "", fmt.Errorf("create published file: %w", err)
	}
	if _, err := io.Copy(f, data); err != nil {
		_ = f.Close()
		_ = s.fs.Remove(dst)
		return "", fmt.Errorf("write published file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = s.fs.Remove(dst)
		return "", fmt.Errorf("close published file: %w", err)
	}

	return "file://" + filepath.ToSlash(dst), nil
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	clean := path.Clean(key)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}
