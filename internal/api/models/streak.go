package models

import (
	"time"

	"github.com/commutepulse/commutepulse/internal/streak"
)

const civilDateFormat = "2006-01-02"

// Streak is a user's commute streak state. Date fields are civil dates in
// the canonical calendar, formatted YYYY-MM-DD.
type Streak struct {
	CurrentStreak   int    `json:"currentStreak"`
	BestStreak      int    `json:"bestStreak"`
	BestStreakStart string `json:"bestStreakStart,omitempty"`
	BestStreakEnd   string `json:"bestStreakEnd,omitempty"`
	LastRecordDate  string `json:"lastRecordDate,omitempty"`

	WeeklyGoal    int    `json:"weeklyGoal"`
	WeeklyCount   int    `json:"weeklyCount"`
	WeeklyGoalMet bool   `json:"weeklyGoalMet"`
	WeekStartDate string `json:"weekStartDate,omitempty"`

	MilestonesAchieved []int     `json:"milestonesAchieved"`
	LatestMilestone    int       `json:"latestMilestone"`
	UpdatedAt          Timestamp `json:"updatedAt"`
}

// WeeklyGoalRequest is the request to change a user's weekly goal.
type WeeklyGoalRequest struct {
	WeeklyGoal int `json:"weeklyGoal"`
}

// NewStreak converts a domain streak to its response model.
func NewStreak(s *streak.CommuteStreak) Streak {
	milestones := s.MilestonesAchieved
	if milestones == nil {
		milestones = []int{}
	}

	return Streak{
		CurrentStreak:      s.CurrentStreak,
		BestStreak:         s.BestStreak,
		BestStreakStart:    civilDate(s.BestStreakStart),
		BestStreakEnd:      civilDate(s.BestStreakEnd),
		LastRecordDate:     civilDate(s.LastRecordDate),
		WeeklyGoal:         s.WeeklyGoal,
		WeeklyCount:        s.WeeklyCount,
		WeeklyGoalMet:      s.WeeklyGoalMet(),
		WeekStartDate:      civilDate(s.WeekStartDate),
		MilestonesAchieved: milestones,
		LatestMilestone:    s.LatestMilestone,
		UpdatedAt:          Timestamp(s.UpdatedAt),
	}
}

func civilDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(civilDateFormat)
}
