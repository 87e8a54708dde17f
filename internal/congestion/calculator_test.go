package congestion_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/commutepulse/commutepulse/internal/checkpoint"
	"github.com/commutepulse/commutepulse/internal/congestion"
	"github.com/commutepulse/commutepulse/internal/session"
)

// mondayAt returns a weekday timestamp at the given hour and minute.
func mondayAt(hour, minute int) time.Time {
	// 2026-01-05 is a Monday.
	return time.Date(2026, 1, 5, hour, minute, 0, 0, time.UTC)
}

func completedSession(userID string, arrivals ...time.Time) *session.Session {
	s := &session.Session{
		ID:        "ses_" + userID,
		UserID:    userID,
		RouteID:   "rt_1",
		RegionID:  "rg_1",
		Status:    session.StatusCompleted,
		StartedAt: arrivals[0],
	}
	ended := arrivals[len(arrivals)-1]
	s.EndedAt = &ended

	stations := []string{"s1", "s2", "s3"}
	for i, at := range arrivals {
		s.Records = append(s.Records, session.CheckpointRecord{
			Seq: i,
			Checkpoint: checkpoint.Checkpoint{
				Name:            "Station " + stations[i%len(stations)],
				Type:            checkpoint.TypeSubway,
				LinkedStationID: stations[i%len(stations)],
			},
			ArrivedAt: at,
		})
	}
	return s
}

func TestSlotOf_Buckets(t *testing.T) {
	tests := []struct {
		name string
		at   time.Time
		want congestion.TimeSlot
	}{
		{"weekday morning peak", mondayAt(8, 0), "weekday:morning_peak"},
		{"weekday early", mondayAt(6, 15), "weekday:early"},
		{"weekday midday", mondayAt(13, 0), "weekday:midday"},
		{"weekday evening peak", mondayAt(17, 45), "weekday:evening_peak"},
		{"weekday evening", mondayAt(21, 0), "weekday:evening"},
		{"weekday night", mondayAt(2, 0), "weekday:night"},
		{"peak boundary start", mondayAt(7, 0), "weekday:morning_peak"},
		{"peak boundary end", mondayAt(9, 30), "weekday:midday"},
		{"weekend morning", time.Date(2026, 1, 10, 8, 0, 0, 0, time.UTC), "weekend:morning_peak"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, congestion.SlotOf(tt.at, time.UTC))
		})
	}
}

func TestCalculator_Compute_GroupsBySegmentAndSlot(t *testing.T) {
	calc := congestion.NewCalculator(congestion.DefaultLevelPolicy(), time.UTC)
	now := mondayAt(12, 0)

	// Three sessions traversing s1->s2 in the morning peak, 10 minutes each.
	var sessions []*session.Session
	for i := 0; i < 3; i++ {
		sessions = append(sessions, completedSession(
			"u1",
			mondayAt(8, 0),
			mondayAt(8, 10),
		))
	}

	facts := calc.Compute(sessions, nil, now)
	require.Len(t, facts, 1)

	fact := facts[0]
	assert.Equal(t, "station:s1>station:s2", fact.SegmentKey)
	assert.Equal(t, congestion.TimeSlot("weekday:morning_peak"), fact.TimeSlot)
	assert.Equal(t, 3, fact.SampleCount)
	assert.InDelta(t, 10.0, fact.AvgWaitMinutes, 0.001)
	assert.False(t, fact.Insufficient)
	assert.Equal(t, now, fact.ComputedAt)
}

func TestCalculator_Compute_InsufficientSampleRetained(t *testing.T) {
	calc := congestion.NewCalculator(congestion.DefaultLevelPolicy(), time.UTC)

	sessions := []*session.Session{
		completedSession("u1", mondayAt(8, 0), mondayAt(8, 12)),
		completedSession("u2", mondayAt(8, 5), mondayAt(8, 13)),
	}

	facts := calc.Compute(sessions, nil, mondayAt(12, 0))
	require.Len(t, facts, 1)

	// Two samples is below the floor of three: retained, flagged, no level.
	assert.Equal(t, 2, facts[0].SampleCount)
	assert.True(t, facts[0].Insufficient)
	assert.Empty(t, facts[0].Level)
}

func TestCalculator_Compute_SkipsInProgressSessions(t *testing.T) {
	calc := congestion.NewCalculator(congestion.DefaultLevelPolicy(), time.UTC)

	s := completedSession("u1", mondayAt(8, 0), mondayAt(8, 10))
	s.Status = session.StatusInProgress

	facts := calc.Compute([]*session.Session{s}, nil, mondayAt(12, 0))
	assert.Empty(t, facts)
}

func TestCalculator_Compute_UsesSegmentBaseline(t *testing.T) {
	policy := congestion.DefaultLevelPolicy()
	calc := congestion.NewCalculator(policy, time.UTC)

	var sessions []*session.Session
	for i := 0; i < 3; i++ {
		// 15-minute traversals.
		sessions = append(sessions, completedSession("u1", mondayAt(8, 0), mondayAt(8, 15)))
	}

	// With a 12-minute segment baseline the ratio is 1.25: moderate.
	baselines := map[string]float64{"station:s1>station:s2": 12}
	facts := calc.Compute(sessions, baselines, mondayAt(12, 0))
	require.Len(t, facts, 1)
	assert.Equal(t, congestion.LevelModerate, facts[0].Level)

	// Without the baseline the global 6-minute default applies: 2.5x, severe.
	facts = calc.Compute(sessions, nil, mondayAt(12, 0))
	require.Len(t, facts, 1)
	assert.Equal(t, congestion.LevelSevere, facts[0].Level)
}

func TestLevelPolicy_LevelFor_Bands(t *testing.T) {
	policy := congestion.DefaultLevelPolicy()

	tests := []struct {
		name     string
		avg      float64
		baseline float64
		want     congestion.Level
	}{
		{"well under baseline", 4, 6, congestion.LevelLow},
		{"just under moderate band", 7.4, 6, congestion.LevelLow},
		{"moderate band lower bound", 7.5, 6, congestion.LevelModerate},
		{"high band", 11, 6, congestion.LevelHigh},
		{"severe band", 15, 6, congestion.LevelSevere},
		{"zero baseline falls back to global", 15, 0, congestion.LevelSevere},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, policy.LevelFor(tt.avg, tt.baseline))
		})
	}
}

func TestCalculator_Compute_NegativeDurationSkipped(t *testing.T) {
	calc := congestion.NewCalculator(congestion.DefaultLevelPolicy(), time.UTC)

	// Arrival before departure: clock skew in recorded data.
	s := completedSession("u1", mondayAt(8, 10), mondayAt(8, 0))

	facts := calc.Compute([]*session.Session{s}, nil, mondayAt(12, 0))
	assert.Empty(t, facts)
}

func TestInMemoryRepository_ReplaceAllAndQuery(t *testing.T) {
	repo := congestion.NewInMemoryRepository()
	ctx := context.Background()

	facts := []*congestion.SegmentFact{
		{SegmentKey: "station:s1>station:s2", TimeSlot: "weekday:morning_peak", Level: congestion.LevelHigh, AvgWaitMinutes: 12, SampleCount: 5},
		{SegmentKey: "station:s1>station:s2", TimeSlot: "weekday:evening_peak", Level: congestion.LevelLow, AvgWaitMinutes: 5, SampleCount: 4},
		{SegmentKey: "bus:b1>bus:b2", TimeSlot: "weekday:morning_peak", Insufficient: true, AvgWaitMinutes: 9, SampleCount: 1},
	}
	require.NoError(t, repo.ReplaceAll(ctx, facts))

	bySlot, err := repo.BySlot(ctx, "weekday:morning_peak")
	require.NoError(t, err)
	assert.Len(t, bySlot, 2)

	bySegment, err := repo.BySegment(ctx, "station:s1>station:s2")
	require.NoError(t, err)
	assert.Len(t, bySegment, 2)

	// Replacement is wholesale, not a merge.
	require.NoError(t, repo.ReplaceAll(ctx, facts[:1]))
	bySlot, err = repo.BySlot(ctx, "weekday:evening_peak")
	require.NoError(t, err)
	assert.Empty(t, bySlot)
}
