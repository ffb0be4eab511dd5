package analysis

import (
	"context"
	"sort"
	"sync"
)

// Compile-time check that MemoryRepository implements Repository.
var _ Repository = (*MemoryRepository)(nil)

// MemoryRepository is an in-memory implementation of Repository.
// Stored analyses are clones, so callers never share state with the map.
type MemoryRepository struct {
	mu       sync.RWMutex
	analyses map[string]*Analysis
}

// NewMemoryRepository creates a new in-memory analysis repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		analyses: make(map[string]*Analysis),
	}
}

// Save persists a clone of a.
func (r *MemoryRepository) Save(_ context.Context, a *Analysis) error {
	clone := a.Clone()
	r.mu.Lock()
	defer r.mu.Unlock()
	r.analyses[clone.ID] = clone
	return nil
}

// FindByID retrieves a clone of the analysis with the given ID.
func (r *MemoryRepository) FindByID(_ context.Context, id string) (*Analysis, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.analyses[id]
	if !ok {
		return nil, ErrAnalysisNotFound
	}
	return a.Clone(), nil
}

// List returns clones of all analyses ordered by creation time.
func (r *MemoryRepository) List(_ context.Context) ([]*Analysis, error) {
	r.mu.RLock()
	result := make([]*Analysis, 0, len(r.analyses))
	for _, a := range r.analyses {
		result = append(result, a.Clone())
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

// Delete removes an analysis from storage.
func (r *MemoryRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.analyses[id]; !ok {
		return ErrAnalysisNotFound
	}
	delete(r.analyses, id)
	return nil
}
