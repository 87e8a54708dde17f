package insight

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository is a PostgreSQL implementation of Repository.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL insight repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const insightColumns = `region_id, user_count, session_count, avg_duration_min, peak_hour_distribution, trend_direction, computed_at`

// ReplaceAll swaps the published insight set inside one transaction.
func (r *PostgresRepository) ReplaceAll(ctx context.Context, insights []*RegionalInsight) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx, `DELETE FROM regional_insights`); err != nil {
		return err
	}

	query := `
		INSERT INTO regional_insights (` + insightColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, ri := range insights {
		histogram := make([]int32, len(ri.PeakHourDistribution))
		for i, n := range ri.PeakHourDistribution {
			histogram[i] = int32(n) //nolint:gosec // hour counts are bounded by session volume
		}

		_, err := tx.Exec(ctx, query,
			ri.RegionID,
			ri.UserCount,
			ri.SessionCount,
			ri.AvgDurationMin,
			histogram,
			ri.TrendDirection,
			ri.ComputedAt,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// List retrieves all published insights.
func (r *PostgresRepository) List(ctx context.Context) ([]*RegionalInsight, error) {
	query := `SELECT ` + insightColumns + ` FROM regional_insights ORDER BY region_id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var insights []*RegionalInsight
	for rows.Next() {
		ri, err := scanInsight(rows.Scan)
		if err != nil {
			return nil, err
		}
		insights = append(insights, ri)
	}

	return insights, rows.Err()
}

// Get retrieves the published insight for a region.
func (r *PostgresRepository) Get(ctx context.Context, regionID string) (*RegionalInsight, error) {
	query := `SELECT ` + insightColumns + ` FROM regional_insights WHERE region_id = $1`

	ri, err := scanInsight(r.pool.QueryRow(ctx, query, regionID).Scan)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInsightNotFound
		}
		return nil, err
	}

	return ri, nil
}

func scanInsight(scan func(dest ...interface{}) error) (*RegionalInsight, error) {
	var ri RegionalInsight
	var histogram []int32

	err := scan(
		&ri.RegionID,
		&ri.UserCount,
		&ri.SessionCount,
		&ri.AvgDurationMin,
		&histogram,
		&ri.TrendDirection,
		&ri.ComputedAt,
	)
	if err != nil {
		return nil, err
	}

	for i, n := range histogram {
		if i < len(ri.PeakHourDistribution) {
			ri.PeakHourDistribution[i] = int(n)
		}
	}

	return &ri, nil
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
