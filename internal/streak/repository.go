package streak

import "context"

// Repository defines the interface for commute streak persistence.
type Repository interface {
	// Get retrieves a user's streak record.
	// Returns ErrStreakNotFound for users with no completions yet.
	Get(ctx context.Context, userID string) (*CommuteStreak, error)

	// Upsert creates or replaces a user's streak record.
	Upsert(ctx context.Context, streak *CommuteStreak) error
}
