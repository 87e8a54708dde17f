package departure

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL departure repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const settingColumns = `id, user_id, route_id, departure_type, arrival_target,
	prep_time_minutes, active_days, pre_alerts, is_enabled, created_at, updated_at`

// CreateSetting persists a new departure setting.
func (r *PostgresRepository) CreateSetting(ctx context.Context, s *Setting) error {
	query := `
		INSERT INTO departure_settings (` + settingColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.pool.Exec(ctx, query,
		s.ID,
		s.UserID,
		s.RouteID,
		s.DepartureType,
		s.ArrivalTarget,
		s.PrepTimeMinutes,
		weekdaysToInts(s.ActiveDays),
		intsTo32(s.PreAlerts),
		s.IsEnabled,
		s.CreatedAt,
		s.UpdatedAt,
	)
	return err
}

// GetSetting retrieves a setting owned by the user.
func (r *PostgresRepository) GetSetting(ctx context.Context, userID, settingID string) (*Setting, error) {
	query := `SELECT ` + settingColumns + ` FROM departure_settings WHERE id = $1 AND user_id = $2`

	s, err := scanSetting(r.pool.QueryRow(ctx, query, settingID, userID).Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSettingNotFound
		}
		return nil, err
	}

	return s, nil
}

// ListSettingsByUser retrieves all of a user's settings.
func (r *PostgresRepository) ListSettingsByUser(ctx context.Context, userID string) ([]*Setting, error) {
	query := `SELECT ` + settingColumns + ` FROM departure_settings WHERE user_id = $1 ORDER BY created_at`
	return r.querySettings(ctx, query, userID)
}

// ListEnabledSettings retrieves every enabled setting across users.
func (r *PostgresRepository) ListEnabledSettings(ctx context.Context) ([]*Setting, error) {
	query := `SELECT ` + settingColumns + ` FROM departure_settings WHERE is_enabled ORDER BY created_at`
	return r.querySettings(ctx, query)
}

func (r *PostgresRepository) querySettings(ctx context.Context, query string, args ...interface{}) ([]*Setting, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var settings []*Setting
	for rows.Next() {
		s, err := scanSetting(rows.Scan)
		if err != nil {
			return nil, err
		}
		settings = append(settings, s)
	}

	return settings, rows.Err()
}

// UpdateSetting replaces a setting's mutable fields.
func (r *PostgresRepository) UpdateSetting(ctx context.Context, s *Setting) error {
	query := `
		UPDATE departure_settings
		SET arrival_target = $2, prep_time_minutes = $3, active_days = $4,
		    pre_alerts = $5, is_enabled = $6, updated_at = $7
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query,
		s.ID,
		s.ArrivalTarget,
		s.PrepTimeMinutes,
		weekdaysToInts(s.ActiveDays),
		intsTo32(s.PreAlerts),
		s.IsEnabled,
		s.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSettingNotFound
	}

	return nil
}

const snapshotColumns = `id, setting_id, user_id, route_id, departure_date, status,
	history_avg_travel_min, realtime_adjustment_min, estimated_travel_min,
	prep_time_minutes, arrival_target_at, optimal_departure_at, alerts_sent,
	computed_at, updated_at`

// GetSnapshot retrieves the snapshot for (settingID, departureDate).
func (r *PostgresRepository) GetSnapshot(ctx context.Context, settingID string, departureDate time.Time) (*Snapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM departure_snapshots WHERE setting_id = $1 AND departure_date = $2`

	snap, err := scanSnapshot(r.pool.QueryRow(ctx, query, settingID, departureDate).Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSnapshotNotFound
		}
		return nil, err
	}

	return snap, nil
}

// UpsertSnapshot creates or replaces the snapshot keyed by
// (SettingID, DepartureDate). The unique constraint on the key pair makes a
// duplicate row impossible even under concurrent recalculations.
func (r *PostgresRepository) UpsertSnapshot(ctx context.Context, snap *Snapshot) error {
	query := `
		INSERT INTO departure_snapshots (` + snapshotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (setting_id, departure_date) DO UPDATE SET
			status = EXCLUDED.status,
			history_avg_travel_min = EXCLUDED.history_avg_travel_min,
			realtime_adjustment_min = EXCLUDED.realtime_adjustment_min,
			estimated_travel_min = EXCLUDED.estimated_travel_min,
			prep_time_minutes = EXCLUDED.prep_time_minutes,
			arrival_target_at = EXCLUDED.arrival_target_at,
			optimal_departure_at = EXCLUDED.optimal_departure_at,
			alerts_sent = EXCLUDED.alerts_sent,
			computed_at = EXCLUDED.computed_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.pool.Exec(ctx, query,
		snap.ID,
		snap.SettingID,
		snap.UserID,
		snap.RouteID,
		snap.DepartureDate,
		snap.Status,
		snap.HistoryAvgTravelMin,
		snap.RealtimeAdjustmentMin,
		snap.EstimatedTravelMin,
		snap.PrepTimeMinutes,
		snap.ArrivalTargetAt,
		snap.OptimalDepartureAt,
		intsTo32(snap.AlertsSent),
		snap.ComputedAt,
		snap.UpdatedAt,
	)
	return err
}

func scanSetting(scan func(dest ...interface{}) error) (*Setting, error) {
	var s Setting
	var activeDays, preAlerts []int32

	err := scan(
		&s.ID,
		&s.UserID,
		&s.RouteID,
		&s.DepartureType,
		&s.ArrivalTarget,
		&s.PrepTimeMinutes,
		&activeDays,
		&preAlerts,
		&s.IsEnabled,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	s.ActiveDays = make([]time.Weekday, len(activeDays))
	for i, d := range activeDays {
		s.ActiveDays[i] = time.Weekday(d)
	}
	s.PreAlerts = ints32To(preAlerts)

	return &s, nil
}

func scanSnapshot(scan func(dest ...interface{}) error) (*Snapshot, error) {
	var snap Snapshot
	var alertsSent []int32

	err := scan(
		&snap.ID,
		&snap.SettingID,
		&snap.UserID,
		&snap.RouteID,
		&snap.DepartureDate,
		&snap.Status,
		&snap.HistoryAvgTravelMin,
		&snap.RealtimeAdjustmentMin,
		&snap.EstimatedTravelMin,
		&snap.PrepTimeMinutes,
		&snap.ArrivalTargetAt,
		&snap.OptimalDepartureAt,
		&alertsSent,
		&snap.ComputedAt,
		&snap.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	snap.AlertsSent = ints32To(alertsSent)
	return &snap, nil
}

func weekdaysToInts(days []time.Weekday) []int32 {
	out := make([]int32, len(days))
	for i, d := range days {
		out[i] = int32(d)
	}
	return out
}

func intsTo32(vals []int) []int32 {
	out := make([]int32, len(vals))
	for i, v := range vals {
		out[i] = int32(v) //nolint:gosec // minute offsets are small
	}
	return out
}

func ints32To(vals []int32) []int {
	out := make([]int, len(vals))
	for i, v := range vals {
		out[i] = int(v)
	}
	return out
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
