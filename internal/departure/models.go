package departure

import (
	"errors"
	"fmt"
	"time"
)

// Departure errors.
var (
	ErrSettingNotFound  = errors.New("departure setting not found")
	ErrSnapshotNotFound = errors.New("departure snapshot not found")
	ErrSettingDisabled  = errors.New("departure setting is disabled")
	ErrInactiveDay      = errors.New("setting is not active on this day")
)

// Type distinguishes the morning commute from the evening return.
type Type string

// Departure types.
const (
	TypeCommute Type = "commute"
	TypeReturn  Type = "return"
)

// SnapshotStatus is the lifecycle state of a day's departure snapshot.
type SnapshotStatus string

// Snapshot statuses.
const (
	StatusScheduled SnapshotStatus = "scheduled"
	StatusNotified  SnapshotStatus = "notified"
	StatusDeparted  SnapshotStatus = "departed"
	StatusExpired   SnapshotStatus = "expired"
	StatusCancelled SnapshotStatus = "cancelled"
)

// Setting is a user's smart departure configuration for one route.
type Setting struct {
	ID      string `json:"id"`
	UserID  string `json:"userId"`
	RouteID string `json:"routeId"`

	DepartureType Type `json:"departureType"`

	// ArrivalTarget is a time of day in "HH:MM" form, interpreted in the
	// canonical calendar.
	ArrivalTarget string `json:"arrivalTarget"`

	PrepTimeMinutes int `json:"prepTimeMinutes"`

	// ActiveDays are the weekdays the setting applies to.
	ActiveDays []time.Weekday `json:"activeDays"`

	// PreAlerts are minutes-before-departure offsets, e.g. [30, 10, 0].
	PreAlerts []int `json:"preAlerts"`

	IsEnabled bool      `json:"isEnabled"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// ActiveOn reports whether the setting applies on the given weekday.
func (s *Setting) ActiveOn(day time.Weekday) bool {
	for _, d := range s.ActiveDays {
		if d == day {
			return true
		}
	}
	return false
}

// arrivalTargetOn anchors the HH:MM arrival target onto a civil date in loc.
func (s *Setting) arrivalTargetOn(date time.Time, loc *time.Location) (time.Time, error) {
	target, err := time.Parse("15:04", s.ArrivalTarget)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid arrival target %q: %w", s.ArrivalTarget, err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(),
		target.Hour(), target.Minute(), 0, 0, loc), nil
}

// Snapshot is one day's computed departure plan for a setting. Keyed by
// (SettingID, DepartureDate); recalculation mutates the row in place.
type Snapshot struct {
	ID        string `json:"id"`
	SettingID string `json:"settingId"`
	UserID    string `json:"userId"`
	RouteID   string `json:"routeId"`

	// DepartureDate is the civil date (midnight UTC) the plan is for.
	DepartureDate time.Time `json:"departureDate"`

	Status SnapshotStatus `json:"status"`

	HistoryAvgTravelMin   float64 `json:"historyAvgTravelMin"`
	RealtimeAdjustmentMin float64 `json:"realtimeAdjustmentMin"`
	EstimatedTravelMin    float64 `json:"estimatedTravelMin"`
	PrepTimeMinutes       int     `json:"prepTimeMinutes"`

	ArrivalTargetAt    time.Time `json:"arrivalTargetAt"`
	OptimalDepartureAt time.Time `json:"optimalDepartureAt"`

	// AlertsSent holds the pre-alert offsets already fired. Offsets are
	// appended once and never removed.
	AlertsSent []int `json:"alertsSent"`

	ComputedAt time.Time `json:"computedAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// MinutesUntilDeparture is always derived from "now" at read time; the
// snapshot may be read many times before departure.
func (s *Snapshot) MinutesUntilDeparture(now time.Time) float64 {
	return s.OptimalDepartureAt.Sub(now).Minutes()
}

// AlertSent reports whether a pre-alert offset has already fired.
func (s *Snapshot) AlertSent(offset int) bool {
	for _, o := range s.AlertsSent {
		if o == offset {
			return true
		}
	}
	return false
}

// Active reports whether the snapshot still awaits departure.
func (s *Snapshot) Active() bool {
	return s.Status == StatusScheduled || s.Status == StatusNotified
}
