package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/commutepulse/commutepulse/internal/api/models"
	"github.com/commutepulse/commutepulse/internal/api/response"
	"github.com/commutepulse/commutepulse/internal/congestion"
	"github.com/commutepulse/commutepulse/internal/insight"
	"github.com/commutepulse/commutepulse/internal/neighbor"
)

// InsightHandler handles regional insight and congestion endpoints.
type InsightHandler struct {
	insights   insight.Repository
	congestion congestion.Repository
	neighbors  *neighbor.Matcher
}

// NewInsightHandler creates a new InsightHandler.
func NewInsightHandler(insights insight.Repository, facts congestion.Repository, neighbors *neighbor.Matcher) *InsightHandler {
	return &InsightHandler{
		insights:   insights,
		congestion: facts,
		neighbors:  neighbors,
	}
}

// ListInsights handles GET /v1/insights/regions - all published regional
// insights. Regions below the privacy cohort floor are absent, not redacted.
func (h *InsightHandler) ListInsights(w http.ResponseWriter, r *http.Request) {
	insights, err := h.insights.List(r.Context())
	if err != nil {
		response.InternalError(w, r, "failed to list regional insights")
		return
	}

	items := make([]models.RegionalInsight, 0, len(insights))
	for _, ri := range insights {
		items = append(items, models.NewRegionalInsight(ri))
	}

	response.JSON(w, r, http.StatusOK, models.RegionalInsightList{Items: items})
}

// GetInsight handles GET /v1/insights/regions/{regionId} - one region's
// published insight.
func (h *InsightHandler) GetInsight(w http.ResponseWriter, r *http.Request) {
	regionID := chi.URLParam(r, "regionId")
	if regionID == "" {
		response.BadRequest(w, r, "regionId is required", nil)
		return
	}

	ri, err := h.insights.Get(r.Context(), regionID)
	if err != nil {
		if errors.Is(err, insight.ErrInsightNotFound) {
			response.NotFound(w, r, "no published insight for region")
			return
		}
		response.InternalError(w, r, "failed to get regional insight")
		return
	}

	response.JSON(w, r, http.StatusOK, models.NewRegionalInsight(ri))
}

// CongestionBySlot handles GET /v1/congestion/slots/{slot} - all segment
// facts for a time slot, e.g. "weekday:morning_peak".
func (h *InsightHandler) CongestionBySlot(w http.ResponseWriter, r *http.Request) {
	slot := chi.URLParam(r, "slot")
	if slot == "" {
		response.BadRequest(w, r, "slot is required", nil)
		return
	}

	facts, err := h.congestion.BySlot(r.Context(), congestion.TimeSlot(slot))
	if err != nil {
		response.InternalError(w, r, "failed to list congestion facts")
		return
	}

	response.JSON(w, r, http.StatusOK, factList(facts))
}

// CongestionBySegment handles GET /v1/congestion/segments/{segmentKey} -
// a segment's facts across all time slots.
func (h *InsightHandler) CongestionBySegment(w http.ResponseWriter, r *http.Request) {
	segmentKey := chi.URLParam(r, "segmentKey")
	if segmentKey == "" {
		response.BadRequest(w, r, "segmentKey is required", nil)
		return
	}

	facts, err := h.congestion.BySegment(r.Context(), segmentKey)
	if err != nil {
		response.InternalError(w, r, "failed to list congestion facts")
		return
	}

	response.JSON(w, r, http.StatusOK, factList(facts))
}

// NeighborCount handles GET /v1/me/neighbors - how many commuters share
// enough checkpoints with the caller. Only the count is exposed; neighbor
// identities never leave the matcher.
func (h *InsightHandler) NeighborCount(w http.ResponseWriter, r *http.Request) {
	userID := GetUserID(r.Context())

	count, err := h.neighbors.NeighborCount(r.Context(), userID)
	if err != nil {
		if errors.Is(err, neighbor.ErrIndexNotBuilt) {
			response.ServiceUnavailable(w, r, "neighbor index has not been built yet")
			return
		}
		response.InternalError(w, r, "failed to count neighbors")
		return
	}

	response.JSON(w, r, http.StatusOK, models.NeighborCount{
		NeighborCount:        count,
		MinSharedCheckpoints: neighbor.MinSharedCheckpoints,
	})
}

func factList(facts []*congestion.SegmentFact) models.SegmentFactList {
	items := make([]models.SegmentFact, 0, len(facts))
	for _, f := range facts {
		items = append(items, models.NewSegmentFact(f))
	}
	return models.SegmentFactList{Items: items}
}
