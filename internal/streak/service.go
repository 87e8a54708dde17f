package streak

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CanonicalTimezone is the calendar all day and week boundaries are computed
// in. Client-local time never decides which day a completion counts toward.
const CanonicalTimezone = "Asia/Seoul"

// ServiceConfig holds configuration for the streak service.
type ServiceConfig struct {
	Repository Repository
	Logger     zerolog.Logger

	// Location overrides the canonical calendar. Defaults to Asia/Seoul.
	Location *time.Location

	// Milestones overrides DefaultMilestones. Must be ascending.
	Milestones []int

	// WeeklyGoal seeds new streak records. Defaults to DefaultWeeklyGoal.
	WeeklyGoal int
}

// Service maintains per-user commute streaks. Writes for the same user are
// serialized so duplicate completion events race safely.
type Service struct {
	repo       Repository
	logger     zerolog.Logger
	location   *time.Location
	milestones []int
	weeklyGoal int

	mu        sync.Mutex
	userLocks map[string]*sync.Mutex
}

// RecordResult reports the outcome of one completion event.
type RecordResult struct {
	// Updated is false when the day was already counted.
	Updated bool

	// Milestone is the threshold newly crossed by this event, 0 when none.
	Milestone int

	Streak *CommuteStreak
}

// NewService creates a new streak service.
func NewService(cfg ServiceConfig) *Service {
	location := cfg.Location
	if location == nil {
		if loc, err := time.LoadLocation(CanonicalTimezone); err == nil {
			location = loc
		} else {
			location = time.UTC
		}
	}

	milestones := cfg.Milestones
	if len(milestones) == 0 {
		milestones = DefaultMilestones
	}
	milestones = append([]int(nil), milestones...)
	sort.Ints(milestones)

	weeklyGoal := cfg.WeeklyGoal
	if weeklyGoal <= 0 {
		weeklyGoal = DefaultWeeklyGoal
	}

	return &Service{
		repo:       cfg.Repository,
		logger:     cfg.Logger,
		location:   location,
		milestones: milestones,
		weeklyGoal: weeklyGoal,
		userLocks:  make(map[string]*sync.Mutex),
	}
}

// Record applies one completion event to a user's streak. Only the first
// event of a canonical calendar day counts; later events the same day return
// Updated=false without touching state.
func (s *Service) Record(ctx context.Context, userID string, at time.Time) (*RecordResult, error) {
	unlock := s.lockUser(userID)
	defer unlock()

	today := civilDate(at, s.location)

	st, err := s.repo.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrStreakNotFound) {
			return nil, err
		}
		st = &CommuteStreak{UserID: userID, WeeklyGoal: s.weeklyGoal}
	}

	if !st.LastRecordDate.IsZero() {
		gap := daysBetween(st.LastRecordDate, today)
		switch {
		case gap <= 0:
			// Already counted today. Backdated events land here too.
			return &RecordResult{Updated: false, Streak: st}, nil
		case gap == 1:
			st.CurrentStreak++
		default:
			// A missed day breaks continuity.
			st.CurrentStreak = 1
		}
	} else {
		st.CurrentStreak = 1
	}

	// Weekly rollover runs on every write, before the counter bumps, so the
	// stored week never lags the event's week.
	if week := weekStart(today); !week.Equal(st.WeekStartDate) {
		st.WeekStartDate = week
		st.WeeklyCount = 0
	}
	st.WeeklyCount++

	if st.CurrentStreak > st.BestStreak {
		st.BestStreak = st.CurrentStreak
		st.BestStreakEnd = today
		st.BestStreakStart = today.AddDate(0, 0, -(st.CurrentStreak - 1))
	}

	milestone := 0
	for _, m := range s.milestones {
		if st.CurrentStreak >= m && !st.HasMilestone(m) {
			st.MilestonesAchieved = append(st.MilestonesAchieved, m)
			st.LatestMilestone = m
			milestone = m
		}
	}

	st.LastRecordDate = today
	st.UpdatedAt = at

	if err := s.repo.Upsert(ctx, st); err != nil {
		return nil, err
	}

	if milestone > 0 {
		s.logger.Info().
			Str("user_id", userID).
			Int("milestone_days", milestone).
			Msg("streak milestone reached")
	}

	return &RecordResult{Updated: true, Milestone: milestone, Streak: st}, nil
}

// RecordCompletion adapts Record to the completion-event contract used by
// the session service.
func (s *Service) RecordCompletion(ctx context.Context, userID string, at time.Time) (bool, error) {
	res, err := s.Record(ctx, userID, at)
	if err != nil {
		return false, err
	}
	return res.Updated, nil
}

// Get returns a user's streak as of now. The weekly view is normalized to
// the current canonical week, matching what the next write would see.
func (s *Service) Get(ctx context.Context, userID string, now time.Time) (*CommuteStreak, error) {
	st, err := s.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if week := weekStart(civilDate(now, s.location)); !week.Equal(st.WeekStartDate) {
		st.WeekStartDate = week
		st.WeeklyCount = 0
	}

	return st, nil
}

// SetWeeklyGoal updates a user's weekly completion goal.
func (s *Service) SetWeeklyGoal(ctx context.Context, userID string, goal int, now time.Time) (*CommuteStreak, error) {
	unlock := s.lockUser(userID)
	defer unlock()

	st, err := s.repo.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrStreakNotFound) {
			return nil, err
		}
		st = &CommuteStreak{UserID: userID}
	}

	st.WeeklyGoal = goal
	st.UpdatedAt = now
	if err := s.repo.Upsert(ctx, st); err != nil {
		return nil, err
	}

	return st, nil
}

func (s *Service) lockUser(userID string) func() {
	s.mu.Lock()
	l, ok := s.userLocks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.userLocks[userID] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}
