package departure

import (
	"context"
	"sort"
	"sync"
	"time"
)

// InMemoryRepository is an in-memory implementation of Repository.
// This is intended for testing. Production should use PostgresRepository.
type InMemoryRepository struct {
	mu        sync.RWMutex
	settings  map[string]*Setting
	snapshots map[snapshotKey]*Snapshot
}

type snapshotKey struct {
	settingID string
	date      time.Time
}

// NewInMemoryRepository creates a new in-memory departure repository.
func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		settings:  make(map[string]*Setting),
		snapshots: make(map[snapshotKey]*Snapshot),
	}
}

// CreateSetting persists a new departure setting.
func (r *InMemoryRepository) CreateSetting(_ context.Context, s *Setting) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.settings[s.ID] = copySetting(s)
	return nil
}

// GetSetting retrieves a setting owned by the user.
func (r *InMemoryRepository) GetSetting(_ context.Context, userID, settingID string) (*Setting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.settings[settingID]
	if !ok || s.UserID != userID {
		return nil, ErrSettingNotFound
	}

	return copySetting(s), nil
}

// ListSettingsByUser retrieves all of a user's settings.
func (r *InMemoryRepository) ListSettingsByUser(_ context.Context, userID string) ([]*Setting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var settings []*Setting
	for _, s := range r.settings {
		if s.UserID == userID {
			settings = append(settings, copySetting(s))
		}
	}

	sortSettings(settings)
	return settings, nil
}

// ListEnabledSettings retrieves every enabled setting across users.
func (r *InMemoryRepository) ListEnabledSettings(_ context.Context) ([]*Setting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var settings []*Setting
	for _, s := range r.settings {
		if s.IsEnabled {
			settings = append(settings, copySetting(s))
		}
	}

	sortSettings(settings)
	return settings, nil
}

// UpdateSetting replaces a setting's mutable fields.
func (r *InMemoryRepository) UpdateSetting(_ context.Context, s *Setting) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.settings[s.ID]; !ok {
		return ErrSettingNotFound
	}

	r.settings[s.ID] = copySetting(s)
	return nil
}

// GetSnapshot retrieves the snapshot for (settingID, departureDate).
func (r *InMemoryRepository) GetSnapshot(_ context.Context, settingID string, departureDate time.Time) (*Snapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snap, ok := r.snapshots[snapshotKey{settingID, departureDate}]
	if !ok {
		return nil, ErrSnapshotNotFound
	}

	return copySnapshot(snap), nil
}

// UpsertSnapshot creates or replaces the snapshot for its key pair.
func (r *InMemoryRepository) UpsertSnapshot(_ context.Context, snap *Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.snapshots[snapshotKey{snap.SettingID, snap.DepartureDate}] = copySnapshot(snap)
	return nil
}

// SnapshotCount reports the number of stored snapshot rows, for tests.
func (r *InMemoryRepository) SnapshotCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.snapshots)
}

func copySetting(s *Setting) *Setting {
	cpy := *s
	cpy.ActiveDays = append([]time.Weekday(nil), s.ActiveDays...)
	cpy.PreAlerts = append([]int(nil), s.PreAlerts...)
	return &cpy
}

func copySnapshot(s *Snapshot) *Snapshot {
	cpy := *s
	cpy.AlertsSent = append([]int(nil), s.AlertsSent...)
	return &cpy
}

func sortSettings(settings []*Setting) {
	sort.Slice(settings, func(i, j int) bool {
		return settings[i].CreatedAt.Before(settings[j].CreatedAt)
	})
}

// Ensure InMemoryRepository implements Repository interface.
var _ Repository = (*InMemoryRepository)(nil)
