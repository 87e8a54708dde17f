package insight

import "context"

// Repository defines the interface for regional insight persistence.
type Repository interface {
	// ReplaceAll atomically swaps the published insight set. Readers must
	// never observe a partial mix of old and new regions.
	ReplaceAll(ctx context.Context, insights []*RegionalInsight) error

	// List retrieves all published insights.
	List(ctx context.Context) ([]*RegionalInsight, error)

	// Get retrieves the published insight for a region.
	// Returns ErrInsightNotFound for unpublished (below-cohort) regions.
	Get(ctx context.Context, regionID string) (*RegionalInsight, error)
}
