package congestion

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL congestion repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const factColumns = `segment_key, time_slot, level, avg_wait_minutes, sample_count, insufficient, computed_at`

// ReplaceAll swaps the published fact set inside a single transaction so
// readers never observe a mix of stale and fresh rows.
func (r *PostgresRepository) ReplaceAll(ctx context.Context, facts []*SegmentFact) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx, `DELETE FROM segment_congestion`); err != nil {
		return err
	}

	query := `
		INSERT INTO segment_congestion (` + factColumns + `)
		VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7)
	`
	for _, f := range facts {
		_, err := tx.Exec(ctx, query,
			f.SegmentKey,
			f.TimeSlot,
			string(f.Level),
			f.AvgWaitMinutes,
			f.SampleCount,
			f.Insufficient,
			f.ComputedAt,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// BySlot retrieves all facts for a time slot.
func (r *PostgresRepository) BySlot(ctx context.Context, slot TimeSlot) ([]*SegmentFact, error) {
	query := `SELECT ` + factColumns + `
		FROM segment_congestion
		WHERE time_slot = $1
		ORDER BY segment_key
	`
	return r.queryFacts(ctx, query, slot)
}

// BySegment retrieves all facts for a segment key.
func (r *PostgresRepository) BySegment(ctx context.Context, segmentKey string) ([]*SegmentFact, error) {
	query := `SELECT ` + factColumns + `
		FROM segment_congestion
		WHERE segment_key = $1
		ORDER BY time_slot
	`
	return r.queryFacts(ctx, query, segmentKey)
}

// Baselines derives per-segment baseline wait minutes from the currently
// published facts, weighted across time slots by sample count.
func (r *PostgresRepository) Baselines(ctx context.Context) (map[string]float64, error) {
	query := `
		SELECT segment_key,
		       SUM(avg_wait_minutes * sample_count) / SUM(sample_count)
		FROM segment_congestion
		WHERE sample_count > 0
		GROUP BY segment_key
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	baselines := make(map[string]float64)
	for rows.Next() {
		var key string
		var baseline float64
		if err := rows.Scan(&key, &baseline); err != nil {
			return nil, err
		}
		baselines[key] = baseline
	}

	return baselines, rows.Err()
}

func (r *PostgresRepository) queryFacts(ctx context.Context, query string, args ...interface{}) ([]*SegmentFact, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []*SegmentFact
	for rows.Next() {
		var f SegmentFact
		var level *string
		err := rows.Scan(
			&f.SegmentKey,
			&f.TimeSlot,
			&level,
			&f.AvgWaitMinutes,
			&f.SampleCount,
			&f.Insufficient,
			&f.ComputedAt,
		)
		if err != nil {
			return nil, err
		}
		if level != nil {
			f.Level = Level(*level)
		}
		facts = append(facts, &f)
	}

	return facts, rows.Err()
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
