package streak

import (
	"errors"
	"time"
)

// Streak errors.
var (
	ErrStreakNotFound = errors.New("streak not found")
)

// DefaultMilestones are the streak-day thresholds that unlock a milestone,
// in ascending order. Each threshold is recorded at most once per user.
var DefaultMilestones = []int{3, 7, 14, 30, 60, 100, 180, 365}

// DefaultWeeklyGoal is the number of completions per week a new streak
// record starts with.
const DefaultWeeklyGoal = 5

// CommuteStreak is a user's daily commute-completion state. All date fields
// are civil dates (midnight UTC carrying the canonical calendar's year,
// month, and day); they are never client-local.
type CommuteStreak struct {
	UserID          string    `json:"userId"`
	CurrentStreak   int       `json:"currentStreak"`
	BestStreak      int       `json:"bestStreak"`
	BestStreakStart time.Time `json:"bestStreakStart"`
	BestStreakEnd   time.Time `json:"bestStreakEnd"`
	LastRecordDate  time.Time `json:"lastRecordDate"`

	WeeklyGoal    int       `json:"weeklyGoal"`
	WeeklyCount   int       `json:"weeklyCount"`
	WeekStartDate time.Time `json:"weekStartDate"`

	MilestonesAchieved []int     `json:"milestonesAchieved"`
	LatestMilestone    int       `json:"latestMilestone"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// HasMilestone reports whether a threshold has already been recorded.
func (s *CommuteStreak) HasMilestone(days int) bool {
	for _, m := range s.MilestonesAchieved {
		if m == days {
			return true
		}
	}
	return false
}

// WeeklyGoalMet reports whether the current week's completions reached the
// user's goal.
func (s *CommuteStreak) WeeklyGoalMet() bool {
	return s.WeeklyGoal > 0 && s.WeeklyCount >= s.WeeklyGoal
}

// civilDate collapses a wall-clock instant to the civil date it falls on in
// loc, anchored at midnight UTC so date arithmetic is calendar math only.
func civilDate(t time.Time, loc *time.Location) time.Time {
	y, m, d := t.In(loc).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween returns the whole calendar days from a to b. Both arguments
// must be civil dates.
func daysBetween(a, b time.Time) int {
	return int(b.Sub(a) / (24 * time.Hour))
}

// weekStart returns the Monday of the week containing the civil date d.
func weekStart(d time.Time) time.Time {
	offset := (int(d.Weekday()) + 6) % 7
	return d.AddDate(0, 0, -offset)
}
