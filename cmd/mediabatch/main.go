// Package main provides the mediabatch command, which runs one batch over
// the paths given on the command line and prints the outcome as JSON.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/maauso/mediabatch/internal/batch"
	"github.com/maauso/mediabatch/internal/bootstrap"
	"github.com/maauso/mediabatch/internal/config"
	"github.com/maauso/mediabatch/internal/pipeline"
)

// report is the JSON document written to stdout.
type report struct {
	ID           string              `json:"id"`
	Status       string              `json:"status"`
	Error        string              `json:"error,omitempty"`
	Result       *pipeline.Result    `json:"result,omitempty"`
	Publications []batch.Publication `json:"publications,omitempty"`
}

func main() {
	code, err := run(os.Args[1:], os.Stdout, os.Stderr)
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	os.Exit(code)
}

func run(args []string, stdout, stderr io.Writer) (int, error) {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		return 2, err
	}

	cfg, err := config.Load()
	if err != nil {
		return 1, fmt.Errorf("load config: %w", err)
	}

	// Logs go to stderr so stdout carries only the report.
	logger := cfg.NewLoggerTo(stderr)
	slog.SetDefault(logger)

	deps, err := bootstrap.NewDependencies(cfg, logger)
	if err != nil {
		return 1, fmt.Errorf("initialize dependencies: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := deps.BatchService.Process(ctx, batch.CreateInput{
		Paths:   opts.Paths,
		Config:  opts.Config,
		Publish: opts.Publish,
	})
	if err != nil {
		return 1, err
	}

	if err := writeReport(stdout, b); err != nil {
		return 1, err
	}
	return exitCode(b), nil
}

func writeReport(w io.Writer, b *batch.Batch) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report{
		ID:           b.ID,
		Status:       string(b.Status),
		Error:        b.Error,
		Result:       b.Result,
		Publications: b.Publications,
	})
}

// exitCode is 0 for a completed batch without file errors, 3 when some files
// failed and 1 when the batch itself did not complete.
func exitCode(b *batch.Batch) int {
	switch b.Status {
	case batch.StatusCompleted:
		if b.Result != nil && len(b.Result.Errors) > 0 {
			return 3
		}
		return 0
	case batch.StatusCancelled:
		return 130
	default:
		return 1
	}
}
