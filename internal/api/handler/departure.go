package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/commutepulse/commutepulse/internal/api/models"
	"github.com/commutepulse/commutepulse/internal/api/response"
	"github.com/commutepulse/commutepulse/internal/departure"
)

// DepartureHandler handles smart departure endpoints.
type DepartureHandler struct {
	departures *departure.Service
}

// NewDepartureHandler creates a new DepartureHandler.
func NewDepartureHandler(departures *departure.Service) *DepartureHandler {
	return &DepartureHandler{departures: departures}
}

// CreateSetting handles POST /v1/me/departures - create a departure setting.
func (h *DepartureHandler) CreateSetting(w http.ResponseWriter, r *http.Request) {
	var input models.DepartureSettingCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}

	if fieldErrors := validateSettingInput(input); len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid departure setting", fieldErrors)
		return
	}

	userID := GetUserID(r.Context())
	setting, err := h.departures.CreateSetting(r.Context(), input.Setting(userID), time.Now())
	if err != nil {
		response.BadRequest(w, r, err.Error(), nil)
		return
	}

	location := fmt.Sprintf("/v1/me/departures/%s", setting.ID)
	response.Created(w, r, location, models.NewDepartureSetting(setting))
}

// ListSettings handles GET /v1/me/departures - list the caller's settings.
func (h *DepartureHandler) ListSettings(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())

	settings, err := h.departures.ListSettings(r.Context(), userID)
	if err != nil {
		response.InternalError(w, r, "failed to list departure settings")
		return
	}

	items := make([]models.DepartureSetting, 0, len(settings))
	for _, s := range settings {
		items = append(items, models.NewDepartureSetting(s))
	}

	response.JSON(w, r, http.StatusOK, models.DepartureSettingList{Items: items})
}

// GetSetting handles GET /v1/me/departures/{settingId} - get one setting.
func (h *DepartureHandler) GetSetting(w http.ResponseWriter, r *http.Request) {
	settingID := chi.URLParam(r, "settingId")
	if settingID == "" {
		response.BadRequest(w, r, "settingId is required", nil)
		return
	}

	userID := GetUserID(r.Context())
	setting, err := h.departures.GetSetting(r.Context(), userID, settingID)
	if err != nil {
		h.writeError(w, r, err, "failed to get departure setting")
		return
	}

	response.JSON(w, r, http.StatusOK, models.NewDepartureSetting(setting))
}

// DisableSetting handles DELETE /v1/me/departures/{settingId} - disable a
// setting and cancel today's pending snapshot.
func (h *DepartureHandler) DisableSetting(w http.ResponseWriter, r *http.Request) {
	settingID := chi.URLParam(r, "settingId")
	if settingID == "" {
		response.BadRequest(w, r, "settingId is required", nil)
		return
	}

	userID := GetUserID(r.Context())
	if err := h.departures.DisableSetting(r.Context(), userID, settingID, time.Now()); err != nil {
		h.writeError(w, r, err, "failed to disable departure setting")
		return
	}

	response.NoContent(w, r)
}

// TodaySnapshot handles GET /v1/me/departures/{settingId}/today - today's
// departure plan, computed on demand when the sweep hasn't reached it yet.
func (h *DepartureHandler) TodaySnapshot(w http.ResponseWriter, r *http.Request) {
	settingID := chi.URLParam(r, "settingId")
	if settingID == "" {
		response.BadRequest(w, r, "settingId is required", nil)
		return
	}

	now := time.Now()
	userID := GetUserID(r.Context())
	snapshot, err := h.departures.TodaySnapshot(r.Context(), userID, settingID, now)
	if err != nil {
		h.writeError(w, r, err, "failed to get departure snapshot")
		return
	}

	response.JSON(w, r, http.StatusOK, models.NewDepartureSnapshot(snapshot, now))
}

// Recalculate handles POST /v1/me/departures/{settingId}/recalculate -
// recompute today's plan against fresh history and delay data.
func (h *DepartureHandler) Recalculate(w http.ResponseWriter, r *http.Request) {
	settingID := chi.URLParam(r, "settingId")
	if settingID == "" {
		response.BadRequest(w, r, "settingId is required", nil)
		return
	}

	now := time.Now()
	userID := GetUserID(r.Context())
	snapshot, err := h.departures.Recalculate(r.Context(), userID, settingID, now)
	if err != nil {
		h.writeError(w, r, err, "failed to recalculate departure")
		return
	}

	response.JSON(w, r, http.StatusOK, models.NewDepartureSnapshot(snapshot, now))
}

// ConfirmDeparted handles POST /v1/me/departures/{settingId}/departed -
// mark today's plan as departed, stopping further pre-alerts.
func (h *DepartureHandler) ConfirmDeparted(w http.ResponseWriter, r *http.Request) {
	settingID := chi.URLParam(r, "settingId")
	if settingID == "" {
		response.BadRequest(w, r, "settingId is required", nil)
		return
	}

	now := time.Now()
	userID := GetUserID(r.Context())
	snapshot, err := h.departures.ConfirmDeparted(r.Context(), userID, settingID, now)
	if err != nil {
		h.writeError(w, r, err, "failed to confirm departure")
		return
	}

	response.JSON(w, r, http.StatusOK, models.NewDepartureSnapshot(snapshot, now))
}

// writeError maps departure domain errors onto problem responses.
func (h *DepartureHandler) writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, departure.ErrSettingNotFound):
		response.NotFound(w, r, "departure setting not found")
	case errors.Is(err, departure.ErrSnapshotNotFound):
		response.NotFound(w, r, "no departure snapshot for today")
	case errors.Is(err, departure.ErrSettingDisabled):
		response.Conflict(w, r, "departure setting is disabled")
	case errors.Is(err, departure.ErrInactiveDay):
		response.Conflict(w, r, "setting is not active today")
	default:
		response.InternalError(w, r, fallback)
	}
}

func validateSettingInput(input models.DepartureSettingCreateRequest) []models.FieldError {
	var fieldErrors []models.FieldError

	if input.RouteID == "" {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "routeId", Message: "required"})
	}
	switch departure.Type(input.DepartureType) {
	case departure.TypeCommute, departure.TypeReturn:
	default:
		fieldErrors = append(fieldErrors, models.FieldError{Field: "departureType", Message: "must be commute or return"})
	}
	if _, err := time.Parse("15:04", input.ArrivalTarget); err != nil {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "arrivalTarget", Message: "must be HH:MM"})
	}
	if input.PrepTimeMinutes < 0 {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "prepTimeMinutes", Message: "must not be negative"})
	}
	if len(input.ActiveDays) == 0 {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "activeDays", Message: "at least one day is required"})
	}
	for _, d := range input.ActiveDays {
		if d < 0 || d > 6 {
			fieldErrors = append(fieldErrors, models.FieldError{Field: "activeDays", Message: "days must be 0-6"})
			break
		}
	}
	for _, offset := range input.PreAlerts {
		if offset < 0 {
			fieldErrors = append(fieldErrors, models.FieldError{Field: "preAlerts", Message: "offsets must not be negative"})
			break
		}
	}

	return fieldErrors
}
