// Package neighbor finds users who share enough route checkpoints to count
// as commute neighbors, without exposing any user's checkpoint set directly.
package neighbor

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/commutepulse/commutepulse/internal/checkpoint"
)

// MinSharedCheckpoints is the minimum number of shared checkpoint keys for
// two users to be commute neighbors.
const MinSharedCheckpoints = 2

// Matcher errors.
var (
	ErrIndexNotBuilt = errors.New("neighbor index not built yet")
)

// Source provides each user's checkpoint keys from their active routes.
// Backed by the route registry; read-only from this package's perspective.
type Source interface {
	ActiveCheckpointKeys(ctx context.Context) (map[string][]checkpoint.Key, error)
}

// Index is an immutable inverted index from checkpoint key to the users
// whose active routes include it. Built once per recomputation pass;
// intersections are computed through the index rather than pairwise, so one
// lookup costs O(user's keys × co-users) instead of O(users × checkpoints).
type Index struct {
	byKey   map[checkpoint.Key]map[string]struct{}
	userSet map[string][]checkpoint.Key
	builtAt time.Time
}

// BuildIndex constructs the inverted index from user checkpoint sets.
// Duplicate keys within one user are collapsed so a user revisiting the same
// station on two routes counts once.
func BuildIndex(sets map[string][]checkpoint.Key, builtAt time.Time) *Index {
	byKey := make(map[checkpoint.Key]map[string]struct{})
	userSet := make(map[string][]checkpoint.Key, len(sets))

	for userID, keys := range sets {
		seen := make(map[checkpoint.Key]struct{}, len(keys))
		for _, key := range keys {
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}

			users := byKey[key]
			if users == nil {
				users = make(map[string]struct{})
				byKey[key] = users
			}
			users[userID] = struct{}{}
		}

		deduped := make([]checkpoint.Key, 0, len(seen))
		for key := range seen {
			deduped = append(deduped, key)
		}
		userSet[userID] = deduped
	}

	return &Index{byKey: byKey, userSet: userSet, builtAt: builtAt}
}

// SharedCounts returns, for the target user, how many checkpoint keys each
// other user shares with them. Only the counts leave this function; the
// underlying key sets never cross the privacy boundary.
func (ix *Index) SharedCounts(userID string) map[string]int {
	counts := make(map[string]int)
	for _, key := range ix.userSet[userID] {
		for other := range ix.byKey[key] {
			if other == userID {
				continue
			}
			counts[other]++
		}
	}
	return counts
}

// Neighbors returns the users sharing at least minShared checkpoint keys
// with the target user, sorted for deterministic output. Symmetric by
// construction: intersection size does not depend on argument order.
func (ix *Index) Neighbors(userID string, minShared int) []string {
	if minShared <= 0 {
		minShared = MinSharedCheckpoints
	}

	var neighbors []string
	for other, shared := range ix.SharedCounts(userID) {
		if shared >= minShared {
			neighbors = append(neighbors, other)
		}
	}
	sort.Strings(neighbors)
	return neighbors
}

// BuiltAt returns when the index was constructed.
func (ix *Index) BuiltAt() time.Time {
	return ix.builtAt
}

// Users returns the number of indexed users.
func (ix *Index) Users() int {
	return len(ix.userSet)
}

// MatcherConfig holds configuration for the neighbor matcher.
type MatcherConfig struct {
	Source Source
	Logger zerolog.Logger

	// MinShared overrides MinSharedCheckpoints when > 0.
	MinShared int
}

// Matcher serves neighbor queries from the most recently built index.
type Matcher struct {
	source    Source
	logger    zerolog.Logger
	minShared int

	mu    sync.RWMutex
	index *Index
}

// NewMatcher creates a new neighbor matcher. The index is empty until the
// first Rebuild.
func NewMatcher(cfg MatcherConfig) *Matcher {
	minShared := cfg.MinShared
	if minShared <= 0 {
		minShared = MinSharedCheckpoints
	}

	return &Matcher{
		source:    cfg.Source,
		logger:    cfg.Logger,
		minShared: minShared,
	}
}

// Rebuild fetches the current checkpoint sets and swaps in a fresh index.
func (m *Matcher) Rebuild(ctx context.Context) error {
	sets, err := m.source.ActiveCheckpointKeys(ctx)
	if err != nil {
		return err
	}

	index := BuildIndex(sets, time.Now())

	m.mu.Lock()
	m.index = index
	m.mu.Unlock()

	m.logger.Info().
		Int("users", index.Users()).
		Msg("neighbor index rebuilt")

	return nil
}

// FindNeighbors returns the commute neighbors of the target user. Builds
// the index on first use if no recomputation pass has run yet.
func (m *Matcher) FindNeighbors(ctx context.Context, userID string) ([]string, error) {
	index, err := m.currentIndex(ctx)
	if err != nil {
		return nil, err
	}
	return index.Neighbors(userID, m.minShared), nil
}

// NeighborCount returns only the number of commute neighbors, the figure
// exposed to presentation layers.
func (m *Matcher) NeighborCount(ctx context.Context, userID string) (int, error) {
	neighbors, err := m.FindNeighbors(ctx, userID)
	if err != nil {
		return 0, err
	}
	return len(neighbors), nil
}

func (m *Matcher) currentIndex(ctx context.Context) (*Index, error) {
	m.mu.RLock()
	index := m.index
	m.mu.RUnlock()
	if index != nil {
		return index, nil
	}

	if err := m.Rebuild(ctx); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.index == nil {
		return nil, ErrIndexNotBuilt
	}
	return m.index, nil
}
