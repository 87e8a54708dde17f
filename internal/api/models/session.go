package models

import (
	"github.com/commutepulse/commutepulse/internal/checkpoint"
	"github.com/commutepulse/commutepulse/internal/session"
)

// SessionStartRequest is the request to start a commute session.
type SessionStartRequest struct {
	RouteID  string `json:"routeId"`
	RegionID string `json:"regionId"`
}

// CheckpointInput is a checkpoint arrival reported by the client.
type CheckpointInput struct {
	Name            string `json:"name"`
	Type            string `json:"type"`
	LinkedStationID string `json:"linkedStationId,omitempty"`
	LinkedBusStopID string `json:"linkedBusStopId,omitempty"`
}

// Checkpoint converts the input to the domain checkpoint.
func (c CheckpointInput) Checkpoint() checkpoint.Checkpoint {
	return checkpoint.Checkpoint{
		Name:            c.Name,
		Type:            checkpoint.Type(c.Type),
		LinkedStationID: c.LinkedStationID,
		LinkedBusStopID: c.LinkedBusStopID,
	}
}

// ArrivalRequest is the request to record a checkpoint arrival.
type ArrivalRequest struct {
	Checkpoint CheckpointInput `json:"checkpoint"`

	// ArrivedAt defaults to the server clock when omitted.
	ArrivedAt *Timestamp `json:"arrivedAt,omitempty"`
}

// CheckpointRecord is one recorded arrival in a session response.
type CheckpointRecord struct {
	Seq       int       `json:"seq"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Key       string    `json:"key"`
	ArrivedAt Timestamp `json:"arrivedAt"`
}

// Session is a commute session response.
type Session struct {
	ID          string             `json:"id"`
	RouteID     string             `json:"routeId"`
	RegionID    string             `json:"regionId"`
	Status      string             `json:"status"`
	StartedAt   Timestamp          `json:"startedAt"`
	EndedAt     *Timestamp         `json:"endedAt,omitempty"`
	DurationMin float64            `json:"durationMin"`
	Records     []CheckpointRecord `json:"records"`
}

// FinalizeResult is the response to a session completion or abandonment.
type FinalizeResult struct {
	// Updated is false when the session was already finalized.
	Updated bool    `json:"updated"`
	Session Session `json:"session"`
}

// NewSession converts a domain session to its response model.
func NewSession(s *session.Session) Session {
	records := make([]CheckpointRecord, 0, len(s.Records))
	for _, rec := range s.Records {
		records = append(records, CheckpointRecord{
			Seq:       rec.Seq,
			Name:      rec.Checkpoint.Name,
			Type:      string(rec.Checkpoint.Type),
			Key:       string(rec.Key()),
			ArrivedAt: Timestamp(rec.ArrivedAt),
		})
	}

	out := Session{
		ID:          s.ID,
		RouteID:     s.RouteID,
		RegionID:    s.RegionID,
		Status:      string(s.Status),
		StartedAt:   Timestamp(s.StartedAt),
		DurationMin: s.Duration().Minutes(),
		Records:     records,
	}
	if s.EndedAt != nil {
		ended := Timestamp(*s.EndedAt)
		out.EndedAt = &ended
	}
	return out
}
