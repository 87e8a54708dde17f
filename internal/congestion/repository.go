package congestion

import "context"

// Repository defines the interface for segment congestion fact persistence.
type Repository interface {
	// ReplaceAll atomically swaps the published fact set for the given
	// facts. The prior set must remain readable until the swap commits.
	ReplaceAll(ctx context.Context, facts []*SegmentFact) error

	// BySlot retrieves all facts for a time slot.
	BySlot(ctx context.Context, slot TimeSlot) ([]*SegmentFact, error)

	// BySegment retrieves all facts for a segment key across time slots.
	BySegment(ctx context.Context, segmentKey string) ([]*SegmentFact, error)

	// Baselines returns the historical per-segment baseline wait minutes,
	// derived from the previously published facts.
	Baselines(ctx context.Context) (map[string]float64, error)
}
