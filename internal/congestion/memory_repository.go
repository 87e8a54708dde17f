package congestion

import (
	"context"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu    sync.RWMutex
	facts []*SegmentFact
}

// NewInMemoryRepository creates a new in-memory congestion repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{}
}

// ReplaceAll swaps the published fact set.
func (r *InMemoryRepository) ReplaceAll(_ context.Context, facts []*SegmentFact) error {
	cpy := make([]*SegmentFact, len(facts))
	for i, f := range facts {
		fc := *f
		cpy[i] = &fc
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.facts = cpy
	return nil
}

// BySlot retrieves all facts for a time slot.
func (r *InMemoryRepository) BySlot(_ context.Context, slot TimeSlot) ([]*SegmentFact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var facts []*SegmentFact
	for _, f := range r.facts {
		if f.TimeSlot == slot {
			fc := *f
			facts = append(facts, &fc)
		}
	}
	return facts, nil
}

// BySegment retrieves all facts for a segment key.
func (r *InMemoryRepository) BySegment(_ context.Context, segmentKey string) ([]*SegmentFact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var facts []*SegmentFact
	for _, f := range r.facts {
		if f.SegmentKey == segmentKey {
			fc := *f
			facts = append(facts, &fc)
		}
	}
	return facts, nil
}

// Baselines derives per-segment baselines from the published facts.
func (r *InMemoryRepository) Baselines(_ context.Context) (map[string]float64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	totals := make(map[string]float64)
	counts := make(map[string]int)
	for _, f := range r.facts {
		totals[f.SegmentKey] += f.AvgWaitMinutes * float64(f.SampleCount)
		counts[f.SegmentKey] += f.SampleCount
	}

	baselines := make(map[string]float64, len(totals))
	for key, total := range totals {
		if counts[key] > 0 {
			baselines[key] = total / float64(counts[key])
		}
	}
	return baselines, nil
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
