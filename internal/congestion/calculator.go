package congestion

import (
	"sort"
	"time"

	"github.com/commutepulse/commutepulse/internal/session"
)

// LevelPolicy holds the ratio bands separating congestion levels. Observed
// average wait is compared against a baseline (per-segment when known,
// otherwise global); the exact band values are product policy, not engine
// constants.
type LevelPolicy struct {
	// ModerateRatio, HighRatio, SevereRatio are the lower bounds of each
	// band as a multiple of the baseline wait.
	ModerateRatio float64
	HighRatio     float64
	SevereRatio   float64

	// GlobalBaselineMinutes is the fallback baseline for segments without
	// their own historical baseline.
	GlobalBaselineMinutes float64

	// MinSamples gates the "insufficient sample" flag.
	MinSamples int
}

// DefaultLevelPolicy returns the current production bands.
func DefaultLevelPolicy() LevelPolicy {
	return LevelPolicy{
		ModerateRatio:         1.25,
		HighRatio:             1.75,
		SevereRatio:           2.5,
		GlobalBaselineMinutes: 6,
		MinSamples:            MinSamplesForStats,
	}
}

// Calculator derives segment congestion facts from completed sessions.
type Calculator struct {
	policy   LevelPolicy
	location *time.Location
}

// NewCalculator creates a calculator with the given policy. The location
// defines the canonical calendar for time-slot bucketing.
func NewCalculator(policy LevelPolicy, loc *time.Location) *Calculator {
	if policy.MinSamples <= 0 {
		policy.MinSamples = MinSamplesForStats
	}
	return &Calculator{policy: policy, location: loc}
}

type groupKey struct {
	segment string
	slot    TimeSlot
}

// Compute groups the traversals of the given completed sessions by
// (segmentKey, timeSlot) and derives one SegmentFact per group. Baselines
// maps segment keys to their historical baseline wait minutes; segments
// without an entry use the global baseline. Groups below the sample floor
// are retained but flagged, never discarded.
func (c *Calculator) Compute(sessions []*session.Session, baselines map[string]float64, now time.Time) []*SegmentFact {
	type accumulator struct {
		total float64
		count int
	}
	groups := make(map[groupKey]*accumulator)

	for _, s := range sessions {
		if s.Status != session.StatusCompleted {
			continue
		}
		for _, tr := range s.Traversals() {
			minutes := tr.Minutes()
			if minutes < 0 {
				// Out-of-order arrival timestamps; skip the pair.
				continue
			}
			key := groupKey{segment: tr.SegmentKey, slot: SlotOf(tr.DepartedAt, c.location)}
			acc := groups[key]
			if acc == nil {
				acc = &accumulator{}
				groups[key] = acc
			}
			acc.total += minutes
			acc.count++
		}
	}

	facts := make([]*SegmentFact, 0, len(groups))
	for key, acc := range groups {
		avg := acc.total / float64(acc.count)

		fact := &SegmentFact{
			SegmentKey:     key.segment,
			TimeSlot:       key.slot,
			AvgWaitMinutes: avg,
			SampleCount:    acc.count,
			ComputedAt:     now,
		}

		if acc.count < c.policy.MinSamples {
			fact.Insufficient = true
		} else {
			baseline := c.policy.GlobalBaselineMinutes
			if b, ok := baselines[key.segment]; ok && b > 0 {
				baseline = b
			}
			fact.Level = c.policy.LevelFor(avg, baseline)
		}

		facts = append(facts, fact)
	}

	sort.Slice(facts, func(i, j int) bool {
		if facts[i].SegmentKey != facts[j].SegmentKey {
			return facts[i].SegmentKey < facts[j].SegmentKey
		}
		return facts[i].TimeSlot < facts[j].TimeSlot
	})

	return facts
}

// LevelFor maps an observed average wait to its congestion band relative to
// a baseline wait.
func (p LevelPolicy) LevelFor(avgWaitMinutes, baselineMinutes float64) Level {
	if baselineMinutes <= 0 {
		baselineMinutes = p.GlobalBaselineMinutes
	}
	ratio := avgWaitMinutes / baselineMinutes

	switch {
	case ratio >= p.SevereRatio:
		return LevelSevere
	case ratio >= p.HighRatio:
		return LevelHigh
	case ratio >= p.ModerateRatio:
		return LevelModerate
	default:
		return LevelLow
	}
}
