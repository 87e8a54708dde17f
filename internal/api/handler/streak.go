package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/commutepulse/commutepulse/internal/api/models"
	"github.com/commutepulse/commutepulse/internal/api/response"
	"github.com/commutepulse/commutepulse/internal/streak"
)

// StreakHandler handles commute streak endpoints.
type StreakHandler struct {
	streaks *streak.Service
}

// NewStreakHandler creates a new StreakHandler.
func NewStreakHandler(streaks *streak.Service) *StreakHandler {
	return &StreakHandler{streaks: streaks}
}

// GetStreak handles GET /v1/me/streak - the caller's streak state. A user
// with no completions yet gets the zero-state, not a 404.
func (h *StreakHandler) GetStreak(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())

	st, err := h.streaks.Get(r.Context(), userID, time.Now())
	if err != nil {
		if errors.Is(err, streak.ErrStreakNotFound) {
			zero := models.Streak{
				WeeklyGoal:         streak.DefaultWeeklyGoal,
				MilestonesAchieved: []int{},
			}
			response.JSON(w, r, http.StatusOK, zero)
			return
		}
		response.InternalError(w, r, "failed to get streak")
		return
	}

	response.JSON(w, r, http.StatusOK, models.NewStreak(st))
}

// SetWeeklyGoal handles PUT /v1/me/streak/weekly-goal - change the caller's
// weekly completion goal.
func (h *StreakHandler) SetWeeklyGoal(w http.ResponseWriter, r *http.Request) {
	var input models.WeeklyGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		response.BadRequest(w, r, "invalid JSON body", nil)
		return
	}
	if input.WeeklyGoal < 1 || input.WeeklyGoal > 7 {
		response.BadRequest(w, r, "weeklyGoal must be between 1 and 7",
			[]models.FieldError{{Field: "weeklyGoal", Message: "must be between 1 and 7"}})
		return
	}

	userID := GetUserID(r.Context())
	st, err := h.streaks.SetWeeklyGoal(r.Context(), userID, input.WeeklyGoal, time.Now())
	if err != nil {
		response.InternalError(w, r, "failed to set weekly goal")
		return
	}

	response.JSON(w, r, http.StatusOK, models.NewStreak(st))
}
