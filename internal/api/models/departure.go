package models

import (
	"time"

	"github.com/commutepulse/commutepulse/internal/departure"
)

// DepartureSettingCreateRequest is the request to create a departure setting.
type DepartureSettingCreateRequest struct {
	RouteID       string `json:"routeId"`
	DepartureType string `json:"departureType"`

	// ArrivalTarget is a time of day in "HH:MM" form.
	ArrivalTarget string `json:"arrivalTarget"`

	PrepTimeMinutes int `json:"prepTimeMinutes"`

	// ActiveDays are weekday numbers, Sunday=0 through Saturday=6.
	ActiveDays []int `json:"activeDays"`

	// PreAlerts are minutes-before-departure offsets, e.g. [30, 10, 0].
	PreAlerts []int `json:"preAlerts"`
}

// Setting converts the request to a domain setting for the given user.
func (r DepartureSettingCreateRequest) Setting(userID string) *departure.Setting {
	days := make([]time.Weekday, 0, len(r.ActiveDays))
	for _, d := range r.ActiveDays {
		days = append(days, time.Weekday(d))
	}

	return &departure.Setting{
		UserID:          userID,
		RouteID:         r.RouteID,
		DepartureType:   departure.Type(r.DepartureType),
		ArrivalTarget:   r.ArrivalTarget,
		PrepTimeMinutes: r.PrepTimeMinutes,
		ActiveDays:      days,
		PreAlerts:       r.PreAlerts,
		IsEnabled:       true,
	}
}

// DepartureSetting is a departure setting response.
type DepartureSetting struct {
	ID              string    `json:"id"`
	RouteID         string    `json:"routeId"`
	DepartureType   string    `json:"departureType"`
	ArrivalTarget   string    `json:"arrivalTarget"`
	PrepTimeMinutes int       `json:"prepTimeMinutes"`
	ActiveDays      []int     `json:"activeDays"`
	PreAlerts       []int     `json:"preAlerts"`
	IsEnabled       bool      `json:"isEnabled"`
	CreatedAt       Timestamp `json:"createdAt"`
	UpdatedAt       Timestamp `json:"updatedAt"`
}

// DepartureSettingList is a list of a user's departure settings.
type DepartureSettingList struct {
	Items []DepartureSetting `json:"items"`
}

// DepartureSnapshot is one day's computed departure plan.
type DepartureSnapshot struct {
	ID            string `json:"id"`
	SettingID     string `json:"settingId"`
	RouteID       string `json:"routeId"`
	DepartureDate string `json:"departureDate"`
	Status        string `json:"status"`

	HistoryAvgTravelMin   float64 `json:"historyAvgTravelMin"`
	RealtimeAdjustmentMin float64 `json:"realtimeAdjustmentMin"`
	EstimatedTravelMin    float64 `json:"estimatedTravelMin"`
	PrepTimeMinutes       int     `json:"prepTimeMinutes"`

	ArrivalTargetAt    Timestamp `json:"arrivalTargetAt"`
	OptimalDepartureAt Timestamp `json:"optimalDepartureAt"`

	// MinutesUntilDeparture is derived from the server clock at read time.
	MinutesUntilDeparture float64 `json:"minutesUntilDeparture"`

	AlertsSent []int     `json:"alertsSent"`
	ComputedAt Timestamp `json:"computedAt"`
}

// NewDepartureSetting converts a domain setting to its response model.
func NewDepartureSetting(s *departure.Setting) DepartureSetting {
	days := make([]int, 0, len(s.ActiveDays))
	for _, d := range s.ActiveDays {
		days = append(days, int(d))
	}

	alerts := s.PreAlerts
	if alerts == nil {
		alerts = []int{}
	}

	return DepartureSetting{
		ID:              s.ID,
		RouteID:         s.RouteID,
		DepartureType:   string(s.DepartureType),
		ArrivalTarget:   s.ArrivalTarget,
		PrepTimeMinutes: s.PrepTimeMinutes,
		ActiveDays:      days,
		PreAlerts:       alerts,
		IsEnabled:       s.IsEnabled,
		CreatedAt:       Timestamp(s.CreatedAt),
		UpdatedAt:       Timestamp(s.UpdatedAt),
	}
}

// NewDepartureSnapshot converts a domain snapshot to its response model,
// deriving minutes-until-departure from now.
func NewDepartureSnapshot(s *departure.Snapshot, now time.Time) DepartureSnapshot {
	alerts := s.AlertsSent
	if alerts == nil {
		alerts = []int{}
	}

	return DepartureSnapshot{
		ID:                    s.ID,
		SettingID:             s.SettingID,
		RouteID:               s.RouteID,
		DepartureDate:         s.DepartureDate.Format(civilDateFormat),
		Status:                string(s.Status),
		HistoryAvgTravelMin:   s.HistoryAvgTravelMin,
		RealtimeAdjustmentMin: s.RealtimeAdjustmentMin,
		EstimatedTravelMin:    s.EstimatedTravelMin,
		PrepTimeMinutes:       s.PrepTimeMinutes,
		ArrivalTargetAt:       Timestamp(s.ArrivalTargetAt),
		OptimalDepartureAt:    Timestamp(s.OptimalDepartureAt),
		MinutesUntilDeparture: s.MinutesUntilDeparture(now),
		AlertsSent:            alerts,
		ComputedAt:            Timestamp(s.ComputedAt),
	}
}
