package transit

import (
	"errors"
	"time"
)

// Transit errors.
var (
	// ErrProviderUnavailable is returned when the delay feed cannot be
	// reached and no acceptably fresh stale data exists.
	ErrProviderUnavailable = errors.New("transit delay provider unavailable")
)

// RouteDelay is the live delay signal for one route.
type RouteDelay struct {
	RouteID string `json:"routeId"`

	// DelayMinutes is a signed offset: positive means slower than usual,
	// negative faster.
	DelayMinutes float64 `json:"delayMinutes"`

	// Disrupted marks delays caused by an active service disruption rather
	// than ordinary congestion.
	Disrupted bool   `json:"disrupted"`
	Cause     string `json:"cause,omitempty"`

	Provider  string    `json:"provider"`
	FetchedAt time.Time `json:"fetchedAt"`
}
