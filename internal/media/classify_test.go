package media

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		path string
		want Kind
	}{
		{"/photos/a.png", Image},
		{"/photos/a.jpg", Image},
		{"/photos/a.jpeg", Image},
		{"/photos/a.bmp", Image},
		{"/photos/a.tiff", Image},
		{"/photos/UPPER.JPG", Image},
		{"/photos/Mixed.TiFf", Image},
		{"/videos/c.mp4", Video},
		{"/videos/c.avi", Video},
		{"/videos/c.MOV", Video},
		{"/docs/readme.txt", Unsupported},
		{"/photos/a.tif", Unsupported},
		{"/photos/a.webp", Unsupported},
		{"/photos/noext", Unsupported},
		{"/photos/png", Unsupported},
		{"/photos/.png.bak", Unsupported},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := Classify(tt.path)
			assert.Equal(t, tt.want, got.Kind)
			assert.Equal(t, tt.path, got.Path)
		})
	}
}

func TestClassify_DoesNotTouchFilesystem(t *testing.T) {
	f := Classify("/definitely/not/here/image.png")
	assert.Equal(t, Image, f.Kind)
}

func TestKind_String(t *testing.T) {
	assert.Equal(t, "image", Image.String())
	assert.Equal(t, "video", Video.String())
	assert.Equal(t, "unsupported", Unsupported.String())
}

func TestOutputPath(t *testing.T) {
	assert.Equal(t, "/data/in/processed_a.jpg", OutputPath("/data/in/a.jpg", VariantSmartVision))
	assert.Equal(t, "/data/in/edited_a.jpg", OutputPath("/data/in/a.jpg", VariantPixEdit))
	assert.Equal(t, "/data/in/processed_c.mp4", OutputPath("/data/in/c.mp4", ""))
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant("PixEdit")
	require.NoError(t, err)
	assert.Equal(t, VariantPixEdit, v)

	v, err = ParseVariant("")
	require.NoError(t, err)
	assert.Equal(t, VariantSmartVision, v)

	_, err = ParseVariant("gimp")
	assert.Error(t, err)
}

func TestError(t *testing.T) {
	cause := fmt.Errorf("open: %w", os.ErrNotExist)
	err := NewError(KindDecodeError, "/x/a.png", cause)

	assert.Contains(t, err.Error(), "DECODE_ERROR")
	assert.Contains(t, err.Error(), "/x/a.png")
	assert.ErrorIs(t, err, os.ErrNotExist)

	wrapped := fmt.Errorf("process: %w", err)
	assert.Equal(t, KindDecodeError, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindDecodeError))
	assert.False(t, IsKind(wrapped, KindEncodeError))

	assert.Equal(t, KindInternalError, KindOf(errors.New("plain")))
}

func TestFFmpegError(t *testing.T) {
	err := &FFmpegError{
		Args:   []string{"-i", "input.mp4", "-f", "rawvideo", "-"},
		Stderr: "Error opening input file",
		Err:    fmt.Errorf("exit status 1"),
	}

	assert.Contains(t, err.Error(), "exit status 1")
	assert.Contains(t, err.Error(), "Error opening input file")
	require.NotNil(t, err.Unwrap())
	assert.Equal(t, "exit status 1", err.Unwrap().Error())
}
