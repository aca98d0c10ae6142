package batch

import (
	"context"
	"sort"
	"sync"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is an in-memory implementation of Repository.
// Batches are stored as clones so callers cannot mutate stored state.
type MemoryRepository struct {
	mu      sync.RWMutex
	batches map[string]*Batch
}

// NewMemoryRepository creates a new in-memory batch repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		batches: make(map[string]*Batch),
	}
}

// Save stores a clone of b.
func (r *MemoryRepository) Save(_ context.Context, b *Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches[b.ID] = b.Clone()
	return nil
}

// FindByID returns a clone of the stored batch.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.batches[id]
	if !ok {
		return nil, ErrBatchNotFound
	}
	return b.Clone(), nil
}

// List returns clones of all batches, oldest first.
func (r *MemoryRepository) List(_ context.Context) ([]*Batch, error) {
	r.mu.RLock()
	result := make([]*Batch, 0, len(r.batches))
	for _, b := range r.batches {
		result = append(result, b.Clone())
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].ID < result[j].ID
		}
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// Delete removes a batch from storage.
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.batches[id]; !ok {
		return ErrBatchNotFound
	}
	delete(r.batches, id)
	return nil
}
