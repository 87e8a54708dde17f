package models

import (
	"github.com/commutepulse/commutepulse/internal/congestion"
	"github.com/commutepulse/commutepulse/internal/insight"
)

// RegionalInsight is the published aggregate for one region.
type RegionalInsight struct {
	RegionID             string    `json:"regionId"`
	UserCount            int       `json:"userCount"`
	SessionCount         int       `json:"sessionCount"`
	AvgDurationMin       float64   `json:"avgDurationMin"`
	PeakHour             int       `json:"peakHour"`
	PeakHourDistribution []int     `json:"peakHourDistribution"`
	TrendDirection       string    `json:"trendDirection"`
	ComputedAt           Timestamp `json:"computedAt"`
}

// RegionalInsightList is a list of published regional insights.
type RegionalInsightList struct {
	Items []RegionalInsight `json:"items"`
}

// SegmentFact is the congestion fact for one segment and time slot.
type SegmentFact struct {
	SegmentKey     string    `json:"segmentKey"`
	TimeSlot       string    `json:"timeSlot"`
	Level          string    `json:"level,omitempty"`
	AvgWaitMinutes float64   `json:"avgWaitMinutes"`
	SampleCount    int       `json:"sampleCount"`
	CollectingData bool      `json:"collectingData"`
	ComputedAt     Timestamp `json:"computedAt"`
}

// SegmentFactList is a list of congestion facts.
type SegmentFactList struct {
	Items []SegmentFact `json:"items"`
}

// NeighborCount reports how many commute neighbors a user has.
type NeighborCount struct {
	NeighborCount        int `json:"neighborCount"`
	MinSharedCheckpoints int `json:"minSharedCheckpoints"`
}

// NewRegionalInsight converts a domain insight to its response model.
func NewRegionalInsight(ri *insight.RegionalInsight) RegionalInsight {
	distribution := make([]int, len(ri.PeakHourDistribution))
	copy(distribution, ri.PeakHourDistribution[:])

	return RegionalInsight{
		RegionID:             ri.RegionID,
		UserCount:            ri.UserCount,
		SessionCount:         ri.SessionCount,
		AvgDurationMin:       ri.AvgDurationMin,
		PeakHour:             ri.PeakHour(),
		PeakHourDistribution: distribution,
		TrendDirection:       string(ri.TrendDirection),
		ComputedAt:           Timestamp(ri.ComputedAt),
	}
}

// NewSegmentFact converts a domain congestion fact to its response model.
func NewSegmentFact(f *congestion.SegmentFact) SegmentFact {
	return SegmentFact{
		SegmentKey:     f.SegmentKey,
		TimeSlot:       string(f.TimeSlot),
		Level:          string(f.Level),
		AvgWaitMinutes: f.AvgWaitMinutes,
		SampleCount:    f.SampleCount,
		CollectingData: f.Insufficient,
		ComputedAt:     Timestamp(f.ComputedAt),
	}
}
