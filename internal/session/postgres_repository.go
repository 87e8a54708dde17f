package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL session repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const sessionColumns = `id, user_id, route_id, region_id, status, started_at, ended_at`

// Get retrieves a session by ID.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM commute_sessions WHERE id = $1`
	return r.scanSession(ctx, query, id)
}

// GetByUserAndID retrieves a session by user ID and session ID.
func (r *PostgresRepository) GetByUserAndID(ctx context.Context, userID, sessionID string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM commute_sessions WHERE id = $1 AND user_id = $2`
	return r.scanSession(ctx, query, sessionID, userID)
}

func (r *PostgresRepository) scanSession(ctx context.Context, query string, args ...interface{}) (*Session, error) {
	var s Session

	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&s.ID,
		&s.UserID,
		&s.RouteID,
		&s.RegionID,
		&s.Status,
		&s.StartedAt,
		&s.EndedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}

	records, err := r.loadRecords(ctx, s.ID)
	if err != nil {
		return nil, err
	}
	s.Records = records

	return &s, nil
}

func (r *PostgresRepository) loadRecords(ctx context.Context, sessionID string) ([]CheckpointRecord, error) {
	query := `
		SELECT seq, name, checkpoint_type, linked_station_id, linked_bus_stop_id, arrived_at
		FROM session_checkpoints
		WHERE session_id = $1
		ORDER BY seq ASC
	`

	rows, err := r.pool.Query(ctx, query, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []CheckpointRecord
	for rows.Next() {
		var rec CheckpointRecord
		var stationID, busStopID *string
		err := rows.Scan(
			&rec.Seq,
			&rec.Checkpoint.Name,
			&rec.Checkpoint.Type,
			&stationID,
			&busStopID,
			&rec.ArrivedAt,
		)
		if err != nil {
			return nil, err
		}
		if stationID != nil {
			rec.Checkpoint.LinkedStationID = *stationID
		}
		if busStopID != nil {
			rec.Checkpoint.LinkedBusStopID = *busStopID
		}
		records = append(records, rec)
	}

	return records, rows.Err()
}

// Create creates a new session.
func (r *PostgresRepository) Create(ctx context.Context, s *Session) error {
	query := `
		INSERT INTO commute_sessions (id, user_id, route_id, region_id, status, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		s.ID,
		s.UserID,
		s.RouteID,
		s.RegionID,
		s.Status,
		s.StartedAt,
		s.EndedAt,
	)
	return err
}

// AppendRecord appends a checkpoint record to an in-progress session.
func (r *PostgresRepository) AppendRecord(ctx context.Context, sessionID string, rec CheckpointRecord) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	var status Status
	err = tx.QueryRow(ctx,
		`SELECT status FROM commute_sessions WHERE id = $1 FOR UPDATE`, sessionID,
	).Scan(&status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSessionNotFound
		}
		return err
	}
	if status != StatusInProgress {
		return ErrSessionFinalized
	}

	query := `
		INSERT INTO session_checkpoints (session_id, seq, name, checkpoint_type, linked_station_id, linked_bus_stop_id, arrived_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), $7)
	`
	_, err = tx.Exec(ctx, query,
		sessionID,
		rec.Seq,
		rec.Checkpoint.Name,
		rec.Checkpoint.Type,
		rec.Checkpoint.LinkedStationID,
		rec.Checkpoint.LinkedBusStopID,
		rec.ArrivedAt,
	)
	if err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Finalize transitions an in-progress session to a terminal status.
func (r *PostgresRepository) Finalize(ctx context.Context, sessionID string, status Status, endedAt time.Time) error {
	query := `
		UPDATE commute_sessions
		SET status = $2, ended_at = $3
		WHERE id = $1 AND status = $4
	`

	result, err := r.pool.Exec(ctx, query, sessionID, status, endedAt, StatusInProgress)
	if err != nil {
		return err
	}

	if result.RowsAffected() == 0 {
		// Distinguish missing from already-finalized for the caller.
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM commute_sessions WHERE id = $1)`, sessionID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return ErrSessionNotFound
		}
		return ErrSessionFinalized
	}

	return nil
}

// Regions lists distinct region IDs with completed sessions.
func (r *PostgresRepository) Regions(ctx context.Context) ([]string, error) {
	query := `
		SELECT DISTINCT region_id FROM commute_sessions
		WHERE status = $1
		ORDER BY region_id
	`

	rows, err := r.pool.Query(ctx, query, StatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var regions []string
	for rows.Next() {
		var region string
		if err := rows.Scan(&region); err != nil {
			return nil, err
		}
		regions = append(regions, region)
	}

	return regions, rows.Err()
}

// CompletedByRegion retrieves completed sessions for a region since a time.
func (r *PostgresRepository) CompletedByRegion(ctx context.Context, regionID string, since time.Time) ([]*Session, error) {
	query := `SELECT ` + sessionColumns + `
		FROM commute_sessions
		WHERE region_id = $1 AND status = $2 AND started_at >= $3
		ORDER BY started_at ASC
	`

	sessions, err := r.querySessions(ctx, query, regionID, StatusCompleted, since)
	if err != nil {
		return nil, err
	}

	// Batch-load checkpoint records for all returned sessions.
	for _, s := range sessions {
		records, err := r.loadRecords(ctx, s.ID)
		if err != nil {
			return nil, fmt.Errorf("load records for session %s: %w", s.ID, err)
		}
		s.Records = records
	}

	return sessions, nil
}

// CompletedByUserAndRoute retrieves the user's most recent completed sessions
// on a route, newest first.
func (r *PostgresRepository) CompletedByUserAndRoute(ctx context.Context, userID, routeID string, limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 20
	}

	query := `SELECT ` + sessionColumns + `
		FROM commute_sessions
		WHERE user_id = $1 AND route_id = $2 AND status = $3
		ORDER BY started_at DESC
		LIMIT $4
	`

	return r.querySessions(ctx, query, userID, routeID, StatusCompleted, limit)
}

func (r *PostgresRepository) querySessions(ctx context.Context, query string, args ...interface{}) ([]*Session, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var s Session
		err := rows.Scan(
			&s.ID,
			&s.UserID,
			&s.RouteID,
			&s.RegionID,
			&s.Status,
			&s.StartedAt,
			&s.EndedAt,
		)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, &s)
	}

	return sessions, rows.Err()
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
