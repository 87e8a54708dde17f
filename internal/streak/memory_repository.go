package streak

import (
	"context"
	"sync"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu      sync.RWMutex
	streaks map[string]*CommuteStreak
}

// NewInMemoryRepository creates a new in-memory streak repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		streaks: make(map[string]*CommuteStreak),
	}
}

// Get retrieves a user's streak record.
func (r *InMemoryRepository) Get(_ context.Context, userID string) (*CommuteStreak, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.streaks[userID]
	if !ok {
		return nil, ErrStreakNotFound
	}

	return copyStreak(s), nil
}

// Upsert creates or replaces a user's streak record.
func (r *InMemoryRepository) Upsert(_ context.Context, s *CommuteStreak) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.streaks[s.UserID] = copyStreak(s)
	return nil
}

func copyStreak(s *CommuteStreak) *CommuteStreak {
	cpy := *s
	cpy.MilestonesAchieved = append([]int(nil), s.MilestonesAchieved...)
	return &cpy
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
