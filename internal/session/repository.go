package session

import (
	"context"
	"time"
)

// Repository defines the interface for commute session persistence.
type Repository interface {
	// Get retrieves a session by ID.
	Get(ctx context.Context, id string) (*Session, error)

	// GetByUserAndID retrieves a session by user ID and session ID.
	// Returns ErrSessionNotFound if the session doesn't exist or doesn't
	// belong to the user.
	GetByUserAndID(ctx context.Context, userID, sessionID string) (*Session, error)

	// Create creates a new session.
	Create(ctx context.Context, s *Session) error

	// AppendRecord appends a checkpoint record to an in-progress session.
	// Returns ErrSessionFinalized if the session is no longer mutable.
	AppendRecord(ctx context.Context, sessionID string, rec CheckpointRecord) error

	// Finalize transitions an in-progress session to completed or abandoned.
	// Returns ErrSessionFinalized if the session was already finalized.
	Finalize(ctx context.Context, sessionID string, status Status, endedAt time.Time) error

	// Regions lists the distinct region IDs with at least one completed session.
	Regions(ctx context.Context) ([]string, error)

	// CompletedByRegion retrieves completed sessions for a region since the
	// given time, checkpoint records included.
	CompletedByRegion(ctx context.Context, regionID string, since time.Time) ([]*Session, error)

	// CompletedByUserAndRoute retrieves the user's most recent completed
	// sessions on a route, newest first.
	CompletedByUserAndRoute(ctx context.Context, userID, routeID string, limit int) ([]*Session, error)
}
