package insight

import (
	"context"
	"sort"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu       sync.RWMutex
	insights map[string]*RegionalInsight
}

// NewInMemoryRepository creates a new in-memory insight repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		insights: make(map[string]*RegionalInsight),
	}
}

// ReplaceAll swaps the published insight set.
func (r *InMemoryRepository) ReplaceAll(_ context.Context, insights []*RegionalInsight) error {
	next := make(map[string]*RegionalInsight, len(insights))
	for _, ri := range insights {
		cpy := *ri
		next[ri.RegionID] = &cpy
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.insights = next
	return nil
}

// List retrieves all published insights.
func (r *InMemoryRepository) List(_ context.Context) ([]*RegionalInsight, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	insights := make([]*RegionalInsight, 0, len(r.insights))
	for _, ri := range r.insights {
		cpy := *ri
		insights = append(insights, &cpy)
	}

	sort.Slice(insights, func(i, j int) bool {
		return insights[i].RegionID < insights[j].RegionID
	})

	return insights, nil
}

// Get retrieves the published insight for a region.
func (r *InMemoryRepository) Get(_ context.Context, regionID string) (*RegionalInsight, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ri, ok := r.insights[regionID]
	if !ok {
		return nil, ErrInsightNotFound
	}

	cpy := *ri
	return &cpy, nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
