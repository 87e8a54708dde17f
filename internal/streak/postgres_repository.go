package streak

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

// NewPostgresRepository creates a new PostgreSQL streak repository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

// Get retrieves a user's streak record.
func (r *PostgresRepository) Get(ctx context.Context, userID string) (*CommuteStreak, error) {
	query := `
		SELECT user_id, current_streak, best_streak, best_streak_start, best_streak_end,
		       last_record_date, weekly_goal, weekly_count, week_start_date,
		       milestones_achieved, latest_milestone, updated_at
		FROM commute_streaks
		WHERE user_id = $1
	`

	var s CommuteStreak
	var milestones []int32
	err := r.pool.QueryRow(ctx, query, userID).Scan(
		&s.UserID,
		&s.CurrentStreak,
		&s.BestStreak,
		&s.BestStreakStart,
		&s.BestStreakEnd,
		&s.LastRecordDate,
		&s.WeeklyGoal,
		&s.WeeklyCount,
		&s.WeekStartDate,
		&milestones,
		&s.LatestMilestone,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrStreakNotFound
		}
		return nil, err
	}

	s.MilestonesAchieved = make([]int, len(milestones))
	for i, m := range milestones {
		s.MilestonesAchieved[i] = int(m)
	}

	return &s, nil
}

// Upsert creates or replaces a user's streak record.
func (r *PostgresRepository) Upsert(ctx context.Context, s *CommuteStreak) error {
	query := `
		INSERT INTO commute_streaks (
			user_id, current_streak, best_streak, best_streak_start, best_streak_end,
			last_record_date, weekly_goal, weekly_count, week_start_date,
			milestones_achieved, latest_milestone, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (user_id) DO UPDATE SET
			current_streak = EXCLUDED.current_streak,
			best_streak = EXCLUDED.best_streak,
			best_streak_start = EXCLUDED.best_streak_start,
			best_streak_end = EXCLUDED.best_streak_end,
			last_record_date = EXCLUDED.last_record_date,
			weekly_goal = EXCLUDED.weekly_goal,
			weekly_count = EXCLUDED.weekly_count,
			week_start_date = EXCLUDED.week_start_date,
			milestones_achieved = EXCLUDED.milestones_achieved,
			latest_milestone = EXCLUDED.latest_milestone,
			updated_at = EXCLUDED.updated_at
	`

	milestones := make([]int32, len(s.MilestonesAchieved))
	for i, m := range s.MilestonesAchieved {
		milestones[i] = int32(m) //nolint:gosec // thresholds are small fixed values
	}

	_, err := r.pool.Exec(ctx, query,
		s.UserID,
		s.CurrentStreak,
		s.BestStreak,
		s.BestStreakStart,
		s.BestStreakEnd,
		s.LastRecordDate,
		s.WeeklyGoal,
		s.WeeklyCount,
		s.WeekStartDate,
		milestones,
		s.LatestMilestone,
		s.UpdatedAt,
	)
	return err
}

// Ensure PostgresRepository implements Repository interface.
var _ Repository = (*PostgresRepository)(nil)
