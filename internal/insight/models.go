// Package insight aggregates per-region commute statistics behind a
// minimum-cohort privacy gate.
package insight

import (
	"errors"
	"time"
)

// Repository errors.
var (
	ErrInsightNotFound = errors.New("regional insight not found")
)

// MinCohortSize is the privacy floor: a region's insight is only published
// when at least this many distinct users contributed sessions. Regions
// below the floor are omitted from the published set entirely, never
// published with suppressed fields.
const MinCohortSize = 3

// TrendDirection describes how a region's average commute duration moved
// against the previous published pass.
type TrendDirection string

// Trend directions.
const (
	TrendImproving TrendDirection = "improving"
	TrendWorsening TrendDirection = "worsening"
	TrendStable    TrendDirection = "stable"
)

// RegionalInsight is the published aggregate for one region. Replaced
// atomically per recomputation; never partially overwritten.
type RegionalInsight struct {
	RegionID       string
	UserCount      int
	SessionCount   int
	AvgDurationMin float64

	// PeakHourDistribution is a histogram of session starts over hour-of-day
	// in the canonical calendar.
	PeakHourDistribution [24]int

	TrendDirection TrendDirection
	ComputedAt     time.Time
}

// PeakHour returns the busiest hour of day, or -1 when the histogram is
// empty.
func (ri *RegionalInsight) PeakHour() int {
	peak, best := -1, 0
	for hour, n := range ri.PeakHourDistribution {
		if n > best {
			peak, best = hour, n
		}
	}
	return peak
}
