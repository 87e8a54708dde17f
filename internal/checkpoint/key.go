package checkpoint

import (
	"strings"
	"unicode"
)

// Key is the canonical identity string for a checkpoint. Two checkpoints
// linked to the same station or stop produce the same key regardless of
// display name; free-text checkpoints collide on normalized name and type,
// which is what enables matching across independently created custom places.
type Key string

// ResolveKey derives the canonical key for a checkpoint. It is pure and
// total: every checkpoint resolves to a key, never an error.
//
// Precedence is fixed: a linked station id wins over a linked bus-stop id,
// which wins over the name+type fallback. A checkpoint can carry a stale
// station link alongside a bus-stop link during data migration, so the order
// must not change. Empty-string ids count as absent.
func ResolveKey(cp Checkpoint) Key {
	if cp.LinkedStationID != "" {
		return Key("station:" + cp.LinkedStationID)
	}
	if cp.LinkedBusStopID != "" {
		return Key("bus:" + cp.LinkedBusStopID)
	}
	return Key("name:" + normalizeName(cp.Name) + ":" + string(cp.Type))
}

// SegmentKey identifies the ordered pair of consecutive checkpoints a user
// travels between.
func SegmentKey(from, to Key) string {
	return string(from) + ">" + string(to)
}

// normalizeName lower-cases and removes all whitespace, internal included.
func normalizeName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		if unicode.IsSpace(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
