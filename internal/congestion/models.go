// Package congestion computes discrete congestion levels per transit segment
// and time-of-day bucket from completed commute sessions.
package congestion

import (
	"time"
)

// Level is the discrete congestion band of a segment.
type Level string

// Congestion levels, ordered.
const (
	LevelLow      Level = "low"
	LevelModerate Level = "moderate"
	LevelHigh     Level = "high"
	LevelSevere   Level = "severe"
)

// MinSamplesForStats is the sample-size floor below which a segment fact is
// published as "collecting data" instead of carrying a level.
const MinSamplesForStats = 3

// DayKind splits the week into weekday and weekend buckets.
type DayKind string

// Day kinds.
const (
	DayKindWeekday DayKind = "weekday"
	DayKindWeekend DayKind = "weekend"
)

// TimeSlot is a discretized hour-of-day and weekday/weekend bucket.
type TimeSlot string

// Hour-of-day buckets.
const (
	slotEarly       = "early"        // 05:00-07:00
	slotMorningPeak = "morning_peak" // 07:00-09:30
	slotMidday      = "midday"       // 09:30-16:30
	slotEveningPeak = "evening_peak" // 16:30-19:30
	slotEvening     = "evening"      // 19:30-23:00
	slotNight       = "night"        // 23:00-05:00
)

// SlotOf buckets a timestamp into its time slot using the given location.
func SlotOf(t time.Time, loc *time.Location) TimeSlot {
	local := t.In(loc)

	kind := DayKindWeekday
	if wd := local.Weekday(); wd == time.Saturday || wd == time.Sunday {
		kind = DayKindWeekend
	}

	minutes := local.Hour()*60 + local.Minute()

	var bucket string
	switch {
	case minutes >= 5*60 && minutes < 7*60:
		bucket = slotEarly
	case minutes >= 7*60 && minutes < 9*60+30:
		bucket = slotMorningPeak
	case minutes >= 9*60+30 && minutes < 16*60+30:
		bucket = slotMidday
	case minutes >= 16*60+30 && minutes < 19*60+30:
		bucket = slotEveningPeak
	case minutes >= 19*60+30 && minutes < 23*60:
		bucket = slotEvening
	default:
		bucket = slotNight
	}

	return TimeSlot(string(kind) + ":" + bucket)
}

// SegmentFact is the aggregate congestion fact for one (segment, time slot)
// pair. Recomputed wholesale each aggregation pass, never patched in place.
type SegmentFact struct {
	SegmentKey     string
	TimeSlot       TimeSlot
	Level          Level
	AvgWaitMinutes float64
	SampleCount    int

	// Insufficient marks a retained fact whose sample count is below
	// MinSamplesForStats; Level is unset for these so consumers render a
	// "collecting data" state rather than a false band.
	Insufficient bool

	ComputedAt time.Time
}
