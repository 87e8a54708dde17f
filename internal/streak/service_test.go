package streak_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutepulse/commutepulse/internal/streak"
)

func newService(opts ...func(*streak.ServiceConfig)) *streak.Service {
	cfg := streak.ServiceConfig{
		Repository: streak.NewInMemoryRepository(),
		Logger:     zerolog.Nop(),
		Location:   time.UTC,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return streak.NewService(cfg)
}

// 2026-01-05 is a Monday.
func at(day int, hour int) time.Time {
	return time.Date(2026, 1, day, hour, 0, 0, 0, time.UTC)
}

func TestService_FirstCompletion(t *testing.T) {
	svc := newService()

	res, err := svc.Record(context.Background(), "u1", at(5, 8))
	require.NoError(t, err)

	assert.True(t, res.Updated)
	assert.Equal(t, 1, res.Streak.CurrentStreak)
	assert.Equal(t, 1, res.Streak.BestStreak)
	assert.Equal(t, 1, res.Streak.WeeklyCount)
	assert.Equal(t, streak.DefaultWeeklyGoal, res.Streak.WeeklyGoal)
	assert.Equal(t, at(5, 0), res.Streak.WeekStartDate)
	assert.Equal(t, at(5, 0), res.Streak.LastRecordDate)
	assert.Empty(t, res.Streak.MilestonesAchieved)
}

func TestService_SameDayIsIdempotent(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	first, err := svc.Record(ctx, "u1", at(5, 8))
	require.NoError(t, err)
	require.True(t, first.Updated)

	second, err := svc.Record(ctx, "u1", at(5, 19))
	require.NoError(t, err)

	assert.False(t, second.Updated)
	assert.Equal(t, 1, second.Streak.CurrentStreak)
	assert.Equal(t, 1, second.Streak.WeeklyCount)
}

func TestService_ConsecutiveDaysIncrement(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	for day := 5; day <= 7; day++ {
		res, err := svc.Record(ctx, "u1", at(day, 8))
		require.NoError(t, err)
		require.True(t, res.Updated)
	}

	st, err := svc.Get(ctx, "u1", at(7, 20))
	require.NoError(t, err)

	assert.Equal(t, 3, st.CurrentStreak)
	assert.Equal(t, 3, st.BestStreak)
	assert.Equal(t, at(5, 0), st.BestStreakStart)
	assert.Equal(t, at(7, 0), st.BestStreakEnd)
	assert.Equal(t, 3, st.WeeklyCount)
}

func TestService_GapBreaksStreak(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.Record(ctx, "u1", at(5, 8))
	require.NoError(t, err)
	_, err = svc.Record(ctx, "u1", at(6, 8))
	require.NoError(t, err)

	// Nothing on the 7th; the 8th starts over.
	res, err := svc.Record(ctx, "u1", at(8, 8))
	require.NoError(t, err)

	assert.True(t, res.Updated)
	assert.Equal(t, 1, res.Streak.CurrentStreak)
	assert.Equal(t, 2, res.Streak.BestStreak)
	assert.Equal(t, at(5, 0), res.Streak.BestStreakStart)
	assert.Equal(t, at(6, 0), res.Streak.BestStreakEnd)
}

func TestService_WeeklyRollover(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	// Saturday and Sunday of the week starting Monday the 5th.
	_, err := svc.Record(ctx, "u1", at(10, 8))
	require.NoError(t, err)
	res, err := svc.Record(ctx, "u1", at(11, 8))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Streak.WeeklyCount)
	assert.Equal(t, at(5, 0), res.Streak.WeekStartDate)

	// Monday the 12th opens a new week; the daily streak continues.
	res, err = svc.Record(ctx, "u1", at(12, 8))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Streak.CurrentStreak)
	assert.Equal(t, 1, res.Streak.WeeklyCount)
	assert.Equal(t, at(12, 0), res.Streak.WeekStartDate)
}

func TestService_MilestonesAreSetSemantics(t *testing.T) {
	svc := newService(func(cfg *streak.ServiceConfig) {
		cfg.Milestones = []int{3, 7}
	})
	ctx := context.Background()

	var res *streak.RecordResult
	var err error
	for day := 5; day <= 7; day++ {
		res, err = svc.Record(ctx, "u1", at(day, 8))
		require.NoError(t, err)
	}

	assert.Equal(t, 3, res.Milestone)
	assert.Equal(t, []int{3}, res.Streak.MilestonesAchieved)
	assert.Equal(t, 3, res.Streak.LatestMilestone)

	// Break, then climb back to 3: the threshold is not re-added.
	_, err = svc.Record(ctx, "u1", at(9, 8))
	require.NoError(t, err)
	_, err = svc.Record(ctx, "u1", at(10, 8))
	require.NoError(t, err)
	res, err = svc.Record(ctx, "u1", at(11, 8))
	require.NoError(t, err)

	assert.Equal(t, 3, res.Streak.CurrentStreak)
	assert.Equal(t, 0, res.Milestone)
	assert.Equal(t, []int{3}, res.Streak.MilestonesAchieved)
}

func TestService_CanonicalCalendarDecidesTheDay(t *testing.T) {
	kst := time.FixedZone("KST", 9*60*60)
	svc := newService(func(cfg *streak.ServiceConfig) {
		cfg.Location = kst
	})
	ctx := context.Background()

	// 20:00 UTC on the 5th is already the 6th in the canonical calendar.
	first, err := svc.Record(ctx, "u1", time.Date(2026, 1, 5, 20, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.True(t, first.Updated)
	assert.Equal(t, time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC), first.Streak.LastRecordDate)

	// 10:00 UTC on the 6th is still the same canonical day.
	second, err := svc.Record(ctx, "u1", time.Date(2026, 1, 6, 10, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.False(t, second.Updated)
}

func TestService_GetNormalizesWeekView(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	_, err := svc.Record(ctx, "u1", at(9, 8))
	require.NoError(t, err)

	// Read the following week: the weekly counter presents as reset even
	// though no write has happened yet.
	st, err := svc.Get(ctx, "u1", at(13, 8))
	require.NoError(t, err)

	assert.Equal(t, 0, st.WeeklyCount)
	assert.Equal(t, at(12, 0), st.WeekStartDate)
	assert.Equal(t, 1, st.CurrentStreak)
}

func TestService_SetWeeklyGoal(t *testing.T) {
	svc := newService()
	ctx := context.Background()

	// Goal can be set before any completion exists.
	st, err := svc.SetWeeklyGoal(ctx, "u1", 3, at(5, 8))
	require.NoError(t, err)
	assert.Equal(t, 3, st.WeeklyGoal)
	assert.Equal(t, 0, st.CurrentStreak)

	for day := 5; day <= 7; day++ {
		_, err = svc.Record(ctx, "u1", at(day, 8))
		require.NoError(t, err)
	}

	got, err := svc.Get(ctx, "u1", at(7, 20))
	require.NoError(t, err)
	assert.True(t, got.WeeklyGoalMet())
}

func TestService_UnknownUser(t *testing.T) {
	svc := newService()

	_, err := svc.Get(context.Background(), "nobody", at(5, 8))
	assert.ErrorIs(t, err, streak.ErrStreakNotFound)
}
