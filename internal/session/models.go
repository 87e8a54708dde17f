// Package session provides commute session tracking and storage.
package session

import (
	"errors"
	"time"

	"github.com/commutepulse/commutepulse/internal/checkpoint"
)

// Repository errors.
var (
	ErrSessionNotFound  = errors.New("commute session not found")
	ErrSessionFinalized = errors.New("commute session already finalized")
)

// Status is the lifecycle state of a commute session.
type Status string

// Session statuses.
const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusAbandoned  Status = "abandoned"
)

// CheckpointRecord is the actual arrival at one checkpoint along a route,
// in route order.
type CheckpointRecord struct {
	Seq        int
	Checkpoint checkpoint.Checkpoint
	ArrivedAt  time.Time
}

// Key resolves the canonical identity of the recorded checkpoint.
func (r CheckpointRecord) Key() checkpoint.Key {
	return checkpoint.ResolveKey(r.Checkpoint)
}

// Session is one user's single commute run. Created when the user starts a
// commute, mutated as checkpoints are logged, and never mutated after
// finalization.
type Session struct {
	ID        string
	UserID    string
	RouteID   string
	RegionID  string
	Status    Status
	StartedAt time.Time
	EndedAt   *time.Time
	Records   []CheckpointRecord
}

// Finalized reports whether the session can no longer be mutated.
func (s *Session) Finalized() bool {
	return s.Status != StatusInProgress
}

// Duration returns the total commute duration. Zero until finalized.
func (s *Session) Duration() time.Duration {
	if s.EndedAt == nil {
		return 0
	}
	return s.EndedAt.Sub(s.StartedAt)
}

// Traversal is one observed transit between two consecutive checkpoints of a
// completed session.
type Traversal struct {
	SegmentKey string
	From       checkpoint.Key
	To         checkpoint.Key
	DepartedAt time.Time
	ArrivedAt  time.Time
}

// Minutes returns the traversal duration in minutes.
func (t Traversal) Minutes() float64 {
	return t.ArrivedAt.Sub(t.DepartedAt).Minutes()
}

// Traversals derives the consecutive checkpoint pairs of the session.
// Only meaningful for completed sessions; records are assumed route-ordered.
func (s *Session) Traversals() []Traversal {
	if len(s.Records) < 2 {
		return nil
	}

	traversals := make([]Traversal, 0, len(s.Records)-1)
	for i := 1; i < len(s.Records); i++ {
		prev, cur := s.Records[i-1], s.Records[i]
		from, to := prev.Key(), cur.Key()
		traversals = append(traversals, Traversal{
			SegmentKey: checkpoint.SegmentKey(from, to),
			From:       from,
			To:         to,
			DepartedAt: prev.ArrivedAt,
			ArrivedAt:  cur.ArrivedAt,
		})
	}
	return traversals
}
