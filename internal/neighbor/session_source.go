package neighbor

import (
	"context"
	"sort"
	"time"

	"github.com/commutepulse/commutepulse/internal/checkpoint"
	"github.com/commutepulse/commutepulse/internal/session"
)

// SessionSource provides the completed sessions a checkpoint-set derivation
// reads. session.Repository satisfies it.
type SessionSource interface {
	Regions(ctx context.Context) ([]string, error)
	CompletedByRegion(ctx context.Context, regionID string, since time.Time) ([]*session.Session, error)
}

// SessionCheckpointSource derives each user's active checkpoint keys from
// their recently completed sessions.
type SessionCheckpointSource struct {
	sessions SessionSource
	lookback time.Duration
}

// NewSessionCheckpointSource creates a session-backed checkpoint source.
// Lookback defaults to 30 days.
func NewSessionCheckpointSource(sessions SessionSource, lookback time.Duration) *SessionCheckpointSource {
	if lookback <= 0 {
		lookback = 30 * 24 * time.Hour
	}
	return &SessionCheckpointSource{sessions: sessions, lookback: lookback}
}

var _ Source = (*SessionCheckpointSource)(nil)

// ActiveCheckpointKeys returns the deduplicated checkpoint keys each user
// traversed within the lookback window.
func (s *SessionCheckpointSource) ActiveCheckpointKeys(ctx context.Context) (map[string][]checkpoint.Key, error) {
	regions, err := s.sessions.Regions(ctx)
	if err != nil {
		return nil, err
	}

	since := time.Now().Add(-s.lookback)
	seen := make(map[string]map[checkpoint.Key]struct{})

	for _, regionID := range regions {
		sessions, err := s.sessions.CompletedByRegion(ctx, regionID, since)
		if err != nil {
			return nil, err
		}

		for _, sess := range sessions {
			keys := seen[sess.UserID]
			if keys == nil {
				keys = make(map[checkpoint.Key]struct{})
				seen[sess.UserID] = keys
			}
			for _, rec := range sess.Records {
				keys[rec.Key()] = struct{}{}
			}
		}
	}

	sets := make(map[string][]checkpoint.Key, len(seen))
	for userID, keys := range seen {
		list := make([]checkpoint.Key, 0, len(keys))
		for key := range keys {
			list = append(list, key)
		}
		sort.Slice(list, func(i, j int) bool { return list[i] < list[j] })
		sets[userID] = list
	}
	return sets, nil
}
