package session

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewInMemoryRepository creates a new in-memory session repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		sessions: make(map[string]*Session),
	}
}

// Get retrieves a session by ID.
func (r *InMemoryRepository) Get(_ context.Context, id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}

	return copySession(s), nil
}

// GetByUserAndID retrieves a session by user ID and session ID.
func (r *InMemoryRepository) GetByUserAndID(_ context.Context, userID, sessionID string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[sessionID]
	if !ok || s.UserID != userID {
		return nil, ErrSessionNotFound
	}

	return copySession(s), nil
}

// Create creates a new session.
func (r *InMemoryRepository) Create(_ context.Context, s *Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.ID] = copySession(s)
	return nil
}

// AppendRecord appends a checkpoint record to an in-progress session.
func (r *InMemoryRepository) AppendRecord(_ context.Context, sessionID string, rec CheckpointRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if s.Finalized() {
		return ErrSessionFinalized
	}

	s.Records = append(s.Records, rec)
	return nil
}

// Finalize transitions an in-progress session to a terminal status.
func (r *InMemoryRepository) Finalize(_ context.Context, sessionID string, status Status, endedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if s.Finalized() {
		return ErrSessionFinalized
	}

	s.Status = status
	s.EndedAt = &endedAt
	return nil
}

// Regions lists distinct region IDs with completed sessions.
func (r *InMemoryRepository) Regions(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, s := range r.sessions {
		if s.Status == StatusCompleted {
			seen[s.RegionID] = struct{}{}
		}
	}

	regions := make([]string, 0, len(seen))
	for region := range seen {
		regions = append(regions, region)
	}
	sort.Strings(regions)

	return regions, nil
}

// CompletedByRegion retrieves completed sessions for a region since a time.
func (r *InMemoryRepository) CompletedByRegion(_ context.Context, regionID string, since time.Time) ([]*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sessions []*Session
	for _, s := range r.sessions {
		if s.RegionID == regionID && s.Status == StatusCompleted && !s.StartedAt.Before(since) {
			sessions = append(sessions, copySession(s))
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.Before(sessions[j].StartedAt)
	})

	return sessions, nil
}

// CompletedByUserAndRoute retrieves the user's most recent completed sessions
// on a route, newest first.
func (r *InMemoryRepository) CompletedByUserAndRoute(_ context.Context, userID, routeID string, limit int) ([]*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}

	var sessions []*Session
	for _, s := range r.sessions {
		if s.UserID == userID && s.RouteID == routeID && s.Status == StatusCompleted {
			sessions = append(sessions, copySession(s))
		}
	}

	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})

	if len(sessions) > limit {
		sessions = sessions[:limit]
	}

	return sessions, nil
}

func copySession(s *Session) *Session {
	cpy := *s
	cpy.Records = append([]CheckpointRecord(nil), s.Records...)
	if s.EndedAt != nil {
		ended := *s.EndedAt
		cpy.EndedAt = &ended
	}
	return &cpy
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
