package main

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/mediabatch/internal/batch"
	"github.com/maauso/mediabatch/internal/imaging"
	"github.com/maauso/mediabatch/internal/media"
	"github.com/maauso/mediabatch/internal/pipeline"
)

func TestParseArgs_Flags(t *testing.T) {
	opts, err := parseArgs([]string{
		"-enhance", "-halve", "-dedup", "-video",
		"-brightness", "1.5", "-contrast", "0.8",
		"-text", "hello", "-text-x", "10", "-text-y", "20",
		"-variant", "PixEdit", "-publish",
		"/in/a.png", "/in/b.mp4",
	}, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, []string{"/in/a.png", "/in/b.mp4"}, opts.Paths)
	assert.True(t, opts.Publish)

	cfg := opts.Config
	assert.True(t, cfg.EnhanceDetail)
	assert.True(t, cfg.HalveSize)
	assert.True(t, cfg.RemoveDuplicates)
	assert.True(t, cfg.ProcessVideo)
	assert.True(t, cfg.AdjustBrightness)
	assert.InDelta(t, 1.5, cfg.BrightnessFactor, 1e-9)
	assert.True(t, cfg.AdjustContrast)
	assert.InDelta(t, 0.8, cfg.ContrastFactor, 1e-9)
	assert.Equal(t, media.VariantPixEdit, cfg.Variant)

	require.NotNil(t, cfg.TextOverlay)
	assert.Equal(t, "hello", cfg.TextOverlay.Content)
	assert.Equal(t, &pipeline.Point{X: 10, Y: 20}, cfg.TextOverlay.Position)
	assert.Equal(t, imaging.DefaultTextSize, cfg.TextOverlay.Size)
}

func TestParseArgs_RelativePathsBecomeAbsolute(t *testing.T) {
	opts, err := parseArgs([]string{"a.png"}, io.Discard)
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(wd, "a.png")}, opts.Paths)
}

func TestParseArgs_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no paths", []string{"-enhance"}},
		{"bad factor", []string{"-brightness", "bright", "/a.png"}},
		{"factor out of range", []string{"-contrast", "50", "/a.png"}},
		{"unknown variant", []string{"-variant", "paint", "/a.png"}},
		{"unknown flag", []string{"-sharpen", "/a.png"}},
		{"missing config file", []string{"-config", "/does/not/exist.json", "/a.png"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseArgs(tt.args, io.Discard)
			assert.Error(t, err)
		})
	}
}

func TestParseArgs_ConfigFileWithOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ops.json")
	data := `{"enhanceDetail": true, "removeDuplicates": true, "resizeTarget": {"width": 64, "height": 48}}`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	opts, err := parseArgs([]string{"-config", path, "-dedup=false", "-width", "32", "/a.png"}, io.Discard)
	require.NoError(t, err)

	cfg := opts.Config
	assert.True(t, cfg.EnhanceDetail, "kept from file")
	assert.False(t, cfg.RemoveDuplicates, "flag overrides file")
	assert.Equal(t, imaging.Size{Width: 32, Height: 48}, cfg.ResizeTarget)
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name  string
		batch *batch.Batch
		want  int
	}{
		{"completed", &batch.Batch{Status: batch.StatusCompleted, Result: &pipeline.Result{}}, 0},
		{"completed with file errors", &batch.Batch{
			Status: batch.StatusCompleted,
			Result: &pipeline.Result{Errors: []pipeline.FileError{{Path: "/a.png"}}},
		}, 3},
		{"failed", &batch.Batch{Status: batch.StatusFailed}, 1},
		{"cancelled", &batch.Batch{Status: batch.StatusCancelled}, 130},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.batch))
		})
	}
}

func TestWriteReport(t *testing.T) {
	b := &batch.Batch{
		ID:     "batch-1",
		Status: batch.StatusCompleted,
		Result: &pipeline.Result{
			Processed:          []string{"/in/processed_a.png", "/in/processed_b.png"},
			DeletedAsDuplicate: []string{"/in/processed_b.png"},
		},
		Publications: []batch.Publication{{Path: "/in/processed_a.png", URL: "file:///pub/batch-1/processed_a.png"}},
	}

	var buf bytes.Buffer
	require.NoError(t, writeReport(&buf, b))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "batch-1", got["id"])
	assert.Equal(t, "COMPLETED", got["status"])
	result := got["result"].(map[string]any)
	assert.Equal(t, []any{"/in/processed_b.png"}, result["deletedAsDuplicate"])
	pubs := got["publications"].([]any)
	assert.Equal(t, "file:///pub/batch-1/processed_a.png", pubs[0].(map[string]any)["url"])
}
