package departure

import (
	"context"
	"time"
)

// Repository defines the interface for departure setting and snapshot
// persistence.
type Repository interface {
	// CreateSetting persists a new departure setting.
	CreateSetting(ctx context.Context, setting *Setting) error

	// GetSetting retrieves a setting owned by the user.
	// Returns ErrSettingNotFound if it does not exist.
	GetSetting(ctx context.Context, userID, settingID string) (*Setting, error)

	// ListSettingsByUser retrieves all of a user's settings.
	ListSettingsByUser(ctx context.Context, userID string) ([]*Setting, error)

	// ListEnabledSettings retrieves every enabled setting across users, for
	// the recurring recalculation and alert sweeps.
	ListEnabledSettings(ctx context.Context) ([]*Setting, error)

	// UpdateSetting replaces a setting's mutable fields.
	UpdateSetting(ctx context.Context, setting *Setting) error

	// GetSnapshot retrieves the snapshot for (settingID, departureDate).
	// Returns ErrSnapshotNotFound if none has been computed.
	GetSnapshot(ctx context.Context, settingID string, departureDate time.Time) (*Snapshot, error)

	// UpsertSnapshot creates or replaces the snapshot keyed by
	// (SettingID, DepartureDate). Two snapshot rows must never exist for the
	// same key.
	UpsertSnapshot(ctx context.Context, snapshot *Snapshot) error
}
