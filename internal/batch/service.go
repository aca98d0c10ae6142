package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/maauso/mediabatch/internal/pipeline"
	"github.com/maauso/mediabatch/internal/storage"
)

var (
	// ErrNoPaths is returned when a batch is created without input paths.
	ErrNoPaths = errors.New("batch has no input paths")
	// ErrPublishUnavailable is returned when publication is requested but
	// no storage is configured.
	ErrPublishUnavailable = errors.New("publication is not configured")
	// ErrBatchActive is returned when an operation needs a finished batch.
	ErrBatchActive = errors.New("batch is still active")
	// ErrBatchFinished is returned when cancelling a batch that already ended.
	ErrBatchFinished = errors.New("batch already finished")
)

// Runner executes the pipeline over a list of paths.
type Runner interface {
	Run(ctx context.Context, paths []string, cfg pipeline.OperationConfig) (pipeline.Result, error)
}

// CreateInput contains the parameters of a new batch.
type CreateInput struct {
	Paths   []string
	Config  pipeline.OperationConfig
	Publish bool
}

// Service creates, runs, cancels and removes batches.
type Service struct {
	repo   Repository
	runner Runner
	store  storage.Storage
	logger *slog.Logger

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewService creates a Service. store may be nil, in which case batches
// cannot be published and deleting a batch leaves its outputs in place.
func NewService(repo Repository, runner Runner, store storage.Storage, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		runner:  runner,
		store:   store,
		logger:  logger,
		running: make(map[string]context.CancelFunc),
	}
}

// CreateBatch validates input and persists a QUEUED batch.
func (s *Service) CreateBatch(ctx context.Context, in CreateInput) (*Batch, error) {
	if len(in.Paths) == 0 {
		return nil, ErrNoPaths
	}
	if err := in.Config.Validate(); err != nil {
		return nil, err
	}
	if in.Publish && s.store == nil {
		return nil, ErrPublishUnavailable
	}

	b := New(in.Paths, in.Config)
	b.Publish = in.Publish

	s.logger.Info("creating new batch",
		slog.String("batch_id", b.ID),
		slog.Int("files", len(in.Paths)),
		slog.Bool("publish", in.Publish),
	)

	if err := s.repo.Save(ctx, b); err != nil {
		s.logger.Error("failed to save batch",
			slog.String("batch_id", b.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	return b, nil
}

// GetBatch retrieves a batch by ID.
func (s *Service) GetBatch(ctx context.Context, id string) (*Batch, error) {
	return s.repo.FindByID(ctx, id)
}

// ListBatches returns all batches, oldest first.
func (s *Service) ListBatches(ctx context.Context) ([]*Batch, error) {
	return s.repo.List(ctx)
}

// Process creates a batch and runs it synchronously.
func (s *Service) Process(ctx context.Context, in CreateInput) (*Batch, error) {
	b, err := s.CreateBatch(ctx, in)
	if err != nil {
		return nil, err
	}
	return s.ProcessExisting(ctx, b.ID)
}

// ProcessExisting runs a QUEUED batch to a terminal state and returns the
// final snapshot. Per-file failures end up in the result; only a failed
// publication marks the batch FAILED. Cancelling ctx, or calling
// CancelBatch, marks it CANCELLED and keeps the partial result.
func (s *Service) ProcessExisting(ctx context.Context, batchID string) (*Batch, error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.register(batchID, cancel)
	defer s.unregister(batchID)

	b, err := s.repo.FindByID(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if err := b.Start(); err != nil {
		return nil, fmt.Errorf("start batch %s: %w", batchID, err)
	}
	if err := s.repo.Save(ctx, b); err != nil {
		return nil, err
	}

	logger := s.logger.With(slog.String("batch_id", batchID))
	logger.Info("batch running")

	res, runErr := s.runner.Run(runCtx, b.Paths, b.Config)
	switch {
	case runErr != nil && runCtx.Err() != nil:
		logger.Warn("batch cancelled", slog.String("error", runErr.Error()))
		_ = b.Cancel(&res)
	case runErr != nil:
		logger.Error("batch failed", slog.String("error", runErr.Error()))
		_ = b.Fail(runErr.Error())
	default:
		b.SetResult(res)
		if b.Publish {
			pubs, err := s.publish(runCtx, batchID, b.Outputs())
			b.SetPublications(pubs)
			if err != nil {
				logger.Error("publication failed", slog.String("error", err.Error()))
				_ = b.Fail(fmt.Sprintf("publish outputs: %v", err))
				break
			}
		}
		_ = b.Complete(res)
		logger.Info("batch completed",
			slog.Int("processed", len(res.Processed)),
			slog.Int("errors", len(res.Errors)),
			slog.Int("published", len(b.Publications)),
		)
	}

	// The run context may be cancelled by now; the final state must still
	// be stored.
	if err := s.repo.Save(context.WithoutCancel(ctx), b); err != nil {
		return nil, err
	}
	return b.Clone(), nil
}

// CancelBatch aborts a running batch or cancels a queued one.
func (s *Service) CancelBatch(ctx context.Context, batchID string) error {
	// mu is held until the queued batch is saved so ProcessExisting cannot
	// register and start it in between.
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.running[batchID]; ok {
		s.logger.Info("cancelling running batch", slog.String("batch_id", batchID))
		cancel()
		return nil
	}

	b, err := s.repo.FindByID(ctx, batchID)
	if err != nil {
		return err
	}
	if err := b.Cancel(nil); err != nil {
		return ErrBatchFinished
	}
	return s.repo.Save(ctx, b)
}

// DeleteBatch removes a finished batch. With removeOutputs the surviving
// output files are deleted as well.
func (s *Service) DeleteBatch(ctx context.Context, batchID string, removeOutputs bool) error {
	b, err := s.repo.FindByID(ctx, batchID)
	if err != nil {
		return err
	}
	if !b.IsTerminal() {
		return ErrBatchActive
	}

	if removeOutputs && s.store != nil {
		if err := s.store.Remove(ctx, b.Outputs()); err != nil {
			s.logger.Warn("failed to remove batch outputs",
				slog.String("batch_id", batchID),
				slog.String("error", err.Error()),
			)
		}
	}
	return s.repo.Delete(ctx, batchID)
}

func (s *Service) publish(ctx context.Context, batchID string, paths []string) ([]Publication, error) {
	pubs := make([]Publication, 0, len(paths))
	for _, p := range paths {
		url, err := s.publishOne(ctx, batchID+"/"+filepath.Base(p), p)
		if err != nil {
			return pubs, fmt.Errorf("%s: %w", p, err)
		}
		pubs = append(pubs, Publication{Path: p, URL: url})
		s.logger.Debug("output published",
			slog.String("batch_id", batchID),
			slog.String("path", p),
			slog.String("url", url),
		)
	}
	return pubs, nil
}

func (s *Service) publishOne(ctx context.Context, key, path string) (string, error) {
	r, err := s.store.Open(ctx, path)
	if err != nil {
		return "", err
	}
	defer func() { _ = r.Close() }()
	return s.store.Publish(ctx, key, r)
}

func (s *Service) register(batchID string, cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running[batchID] = cancel
}

func (s *Service) unregister(batchID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.running, batchID)
}
