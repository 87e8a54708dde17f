package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/commutepulse/commutepulse/internal/api/models"
	"github.com/commutepulse/commutepulse/internal/api/response"
	"github.com/commutepulse/commutepulse/internal/session"
)

// SessionHandler handles commute session endpoints.
type SessionHandler struct {
	sessions *session.Service
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *session.Service) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// StartSession handles POST /v1/me/sessions - start a commute session.
func (h *SessionHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var input models.SessionStartRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	var fieldErrors []models.FieldError
	if input.RouteID == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "routeId", Message: "required"})
	}
	if input.RegionID == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "regionId", Message: "required"})
	}
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "missing required fields", fieldErrors)
		return
	}

	userID := GetUserID(r.Context())
	sess, err := h.sessions.Start(r.Context(), userID, input.RouteID, input.RegionID, time.Now())
	if err != nil {
		response.InternalError(w, r, "failed to start session")
		return
	}

	location := fmt.Sprintf("/v1/me/sessions/%s", sess.ID)
	response.Created(w, r, location, models.NewSession(sess))
}

// GetSession handles GET /v1/me/sessions/{sessionId} - get a session.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if sessionID == "" {
		response.BadRequest(w, r, "sessionId is required", nil)
		return
	}

	userID := GetUserID(r.Context())
	sess, err := h.sessions.Get(r.Context(), userID, sessionID)
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			response.NotFound(w, r, "session not found")
			return
		}
		response.InternalError(w, r, "failed to get session")
		return
	}

	response.JSON(w, r, http.StatusOK, models.NewSession(sess))
}

// RecordArrival handles POST /v1/me/sessions/{sessionId}/checkpoints -
// record a checkpoint arrival on an in-progress session.
func (h *SessionHandler) RecordArrival(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	if sessionID == "" {
		response.BadRequest(w, r, "sessionId is required", nil)
		return
	}

	var input models.ArrivalRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if input.Checkpoint.Name == "" {
		response.BadRequest(w, r, "checkpoint name is required",
			[]models.FieldError{{Field: "checkpoint.name", Message: "required"}})
		return
	}

	arrivedAt := time.Now()
	if input.ArrivedAt != nil {
		arrivedAt = input.ArrivedAt.Time()
	}

	userID := GetUserID(r.Context())
	sess, err := h.sessions.RecordArrival(r.Context(), userID, sessionID, input.Checkpoint.Checkpoint(), arrivedAt)
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionNotFound):
			response.NotFound(w, r, "session not found")
		case errors.Is(err, session.ErrSessionFinalized):
			response.Conflict(w, r, "session is already finalized")
		default:
			response.InternalError(w, r, "failed to record arrival")
		}
		return
	}

	response.JSON(w, r, http.StatusOK, models.NewSession(sess))
}

// CompleteSession handles POST /v1/me/sessions/{sessionId}/complete -
// finalize a session as completed. Idempotent; a repeat completion returns
// the finalized session with updated=false.
func (h *SessionHandler) CompleteSession(w http.ResponseWriter, r *http.Request) {
	h.finalize(w, r, h.sessions.Complete)
}

// AbandonSession handles POST /v1/me/sessions/{sessionId}/abandon -
// finalize a session as abandoned.
func (h *SessionHandler) AbandonSession(w http.ResponseWriter, r *http.Request) {
	h.finalize(w, r, h.sessions.Abandon)
}

type finalizeFunc func(ctx context.Context, userID, sessionID string, at time.Time) (*session.FinalizeResult, error)

func (h *SessionHandler) finalize(w http.ResponseWriter, r *http.Request, fn finalizeFunc) {
	sessionID := chi.URLParam(r, "sessionId")
	if sessionID == "" {
		response.BadRequest(w, r, "sessionId is required", nil)
		return
	}

	userID := GetUserID(r.Context())
	result, err := fn(r.Context(), userID, sessionID, time.Now())
	if err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			response.NotFound(w, r, "session not found")
			return
		}
		response.InternalError(w, r, "failed to finalize session")
		return
	}

	response.JSON(w, r, http.StatusOK, models.FinalizeResult{
		Updated: result.Updated,
		Session: models.NewSession(result.Session),
	})
}
