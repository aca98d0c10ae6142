// Package batch provides the Batch aggregate for tracking media batch runs.
// It includes the Batch entity with its state machine, the repository port
// and an in-memory repository.
package batch

import (
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/maauso/mediabatch/internal/batch/id"
	"github.com/maauso/mediabatch/internal/pipeline"
)

// Status represents the current state of a Batch.
type Status string

const (
	// StatusQueued indicates the batch is waiting to be run.
	StatusQueued Status = "QUEUED"
	// StatusRunning indicates the pipeline is processing the batch.
	StatusRunning Status = "RUNNING"
	// StatusCompleted indicates the pipeline finished. Per-file failures
	// are listed in the result; they do not fail the batch.
	StatusCompleted Status = "COMPLETED"
	// StatusFailed indicates the run could not complete, for example
	// because publication failed.
	StatusFailed Status = "FAILED"
	// StatusCancelled indicates the batch was cancelled before finishing.
	StatusCancelled Status = "CANCELLED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusQueued:    {StatusRunning, StatusCancelled},
	StatusRunning:   {StatusCompleted, StatusFailed, StatusCancelled},
	StatusCompleted: {},
	StatusFailed:    {},
	StatusCancelled: {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	return slices.Contains(validTransitions[from], to)
}

// Publication records where a processed output was published.
type Publication struct {
	Path string `json:"path"`
	URL  string `json:"url"`
}

// Batch is one run of the pipeline over a list of paths.
type Batch struct {
	mu sync.RWMutex

	// ID is the unique identifier for this batch.
	ID string
	// Status is the current batch state.
	Status Status
	// Paths are the input files in caller order.
	Paths []string
	// Config selects the operations of the run.
	Config pipeline.OperationConfig
	// Publish indicates whether surviving outputs are published after the run.
	Publish bool
	// Result is the pipeline outcome, possibly partial when cancelled.
	Result *pipeline.Result
	// Publications lists the published outputs.
	Publications []Publication
	// Error contains the reason the batch failed.
	Error string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// New creates a QUEUED Batch with a generated ID.
func New(paths []string, cfg pipeline.OperationConfig) *Batch {
	return NewWithID(id.Generate(), paths, cfg)
}

// NewWithID creates a QUEUED Batch with the specified ID.
func NewWithID(batchID string, paths []string, cfg pipeline.OperationConfig) *Batch {
	now := time.Now()
	return &Batch{
		ID:        batchID,
		Status:    StatusQueued,
		Paths:     slices.Clone(paths),
		Config:    cfg,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the batch status.
// Returns ErrInvalidTransition if the transition is not allowed.
func (b *Batch) TransitionTo(status Status) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.transitionLocked(status)
}

func (b *Batch) transitionLocked(status Status) error {
	if !canTransition(b.Status, status) {
		return ErrInvalidTransition
	}

	b.Status = status
	b.UpdatedAt = time.Now()

	switch status {
	case StatusRunning:
		b.StartedAt = b.UpdatedAt
	case StatusCompleted, StatusFailed, StatusCancelled:
		b.CompletedAt = b.UpdatedAt
	}
	return nil
}

// Start transitions the batch from QUEUED to RUNNING.
func (b *Batch) Start() error {
	return b.TransitionTo(StatusRunning)
}

// Complete records the result and transitions to COMPLETED.
func (b *Batch) Complete(res pipeline.Result) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.transitionLocked(StatusCompleted); err != nil {
		return err
	}
	b.Result = &res
	return nil
}

// Fail transitions the batch to FAILED with an error message.
func (b *Batch) Fail(errMsg string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.transitionLocked(StatusFailed); err != nil {
		return err
	}
	b.Error = errMsg
	return nil
}

// Cancel transitions the batch to CANCELLED, keeping a partial result if
// one is given.
func (b *Batch) Cancel(partial *pipeline.Result) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.transitionLocked(StatusCancelled); err != nil {
		return err
	}
	if partial != nil {
		b.Result = partial
	}
	return nil
}

// SetResult stores the pipeline result without changing state.
func (b *Batch) SetResult(res pipeline.Result) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Result = &res
	b.UpdatedAt = time.Now()
}

// SetPublications records the published outputs.
func (b *Batch) SetPublications(pubs []Publication) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Publications = pubs
	b.UpdatedAt = time.Now()
}

// GetStatus returns the current batch status (thread-safe).
func (b *Batch) GetStatus() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.Status
}

// IsTerminal returns true if the batch is in a terminal state.
func (b *Batch) IsTerminal() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(validTransitions[b.Status]) == 0
}

// Outputs returns the output paths that still exist: processed outputs
// minus those deleted as duplicates.
func (b *Batch) Outputs() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.Result == nil {
		return nil
	}
	var out []string
	for _, o := range b.Result.Outputs {
		if !o.Removed {
			out = append(out, o.Path)
		}
	}
	return out
}

// Clone creates a deep copy of the batch for safe reads.
func (b *Batch) Clone() *Batch {
	b.mu.RLock()
	defer b.mu.RUnlock()

	c := &Batch{
		ID:           b.ID,
		Status:       b.Status,
		Paths:        slices.Clone(b.Paths),
		Config:       b.Config,
		Publish:      b.Publish,
		Publications: slices.Clone(b.Publications),
		Error:        b.Error,
		CreatedAt:    b.CreatedAt,
		UpdatedAt:    b.UpdatedAt,
		StartedAt:    b.StartedAt,
		CompletedAt:  b.CompletedAt,
	}
	if b.Result != nil {
		r := *b.Result
		r.Processed = slices.Clone(r.Processed)
		r.DeletedAsDuplicate = slices.Clone(r.DeletedAsDuplicate)
		r.Errors = slices.Clone(r.Errors)
		r.Skipped = slices.Clone(r.Skipped)
		r.Warnings = slices.Clone(r.Warnings)
		r.Outputs = slices.Clone(r.Outputs)
		c.Result = &r
	}
	return c
}
