// Package handler provides HTTP handlers for the CommutePulse API.
package handler

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/commutepulse/commutepulse/internal/api/models"
	"github.com/commutepulse/commutepulse/internal/api/response"
	"github.com/commutepulse/commutepulse/internal/provider/resilience"
	"github.com/commutepulse/commutepulse/internal/transit"
	"github.com/commutepulse/commutepulse/internal/worker"
)

// Pinger checks connectivity to a backing store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// RecomputeRunner runs one full analytics recompute cycle on demand.
// *worker.RecomputeJob satisfies it.
type RecomputeRunner interface {
	Run(ctx context.Context) *worker.RecomputeResult
	MetricsSnapshot() map[string]interface{}
}

// TransitStatus exposes delay cache statistics.
// *transit.Service satisfies it.
type TransitStatus interface {
	CacheStats() transit.CacheStats
}

// OpsHandlerConfig holds dependencies for the ops handler. Nil fields
// disable the corresponding status section.
type OpsHandlerConfig struct {
	Version   string
	BuildTime string

	DB        Pinger
	Transit   TransitStatus
	Job       RecomputeRunner
	Providers *resilience.Registry
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version   string
	buildTime string
	db        Pinger
	transit   TransitStatus
	job       RecomputeRunner
	providers *resilience.Registry
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsHandlerConfig) *OpsHandler {
	return &OpsHandler{
		version:   cfg.Version,
		buildTime: cfg.BuildTime,
		db:        cfg.DB,
		transit:   cfg.Transit,
		job:       cfg.Job,
		providers: cfg.Providers,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := h.db.Ping(ctx); err != nil {
			health.Status = models.HealthStatusFail
			health.Details = map[string]interface{}{"database": err.Error()}
			response.JSON(w, r, http.StatusServiceUnavailable, health)
			return
		}
	}

	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - subsystem status and job metrics.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	now := models.Timestamp(time.Now())
	status := models.SystemStatus{
		Status: models.HealthStatusOK,
		Time:   now,
	}

	if h.db != nil {
		sub := models.SubsystemStatus{Name: "postgres", Status: models.HealthStatusOK}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		if err := h.db.Ping(ctx); err != nil {
			detail := err.Error()
			sub.Status = models.HealthStatusFail
			sub.Detail = &detail
			status.Status = models.HealthStatusDegraded
		}
		cancel()

		status.Subsystems = append(status.Subsystems, sub)
	}

	if h.transit != nil {
		stats := h.transit.CacheStats()
		detail := fmt.Sprintf("%d cached routes", stats.RouteCacheEntries)
		status.Subsystems = append(status.Subsystems, models.SubsystemStatus{
			Name:   "delay-cache",
			Status: models.HealthStatusOK,
			Detail: &detail,
		})
	}

	if h.providers != nil {
		for _, health := range h.providers.GetAllHealth() {
			provider := models.ProviderStatus{
				Provider: health.Name,
				Status:   models.HealthStatusOK,
			}
			switch {
			case health.IsDegraded():
				provider.Status = models.HealthStatusDegraded
				status.Status = models.HealthStatusDegraded
			case health.IsUnhealthy():
				provider.Status = models.HealthStatusFail
				status.Status = models.HealthStatusDegraded
			}
			if health.LastSuccessAt != nil {
				ts := models.Timestamp(*health.LastSuccessAt)
				provider.LastSuccessAt = &ts
			}
			if health.LastFailureAt != nil {
				ts := models.Timestamp(*health.LastFailureAt)
				provider.LastFailureAt = &ts
			}
			if health.LastError != "" {
				msg := health.LastError
				provider.Message = &msg
			}
			status.Providers = append(status.Providers, provider)
		}
	}

	if h.job != nil {
		status.JobMetrics = h.job.MetricsSnapshot()
	}

	response.JSON(w, r, http.StatusOK, status)
}

// TriggerRecompute handles POST /v1/ops/recompute - on-demand analytics
// recomputation. A pass already holding the aggregation lock yields 409.
func (h *OpsHandler) TriggerRecompute(w http.ResponseWriter, r *http.Request) {
	if h.job == nil {
		response.ServiceUnavailable(w, r, "recompute job is not configured")
		return
	}

	result := h.job.Run(r.Context())

	if result.Rejected {
		response.Conflict(w, r, "a recomputation pass is already in progress")
		return
	}

	response.JSON(w, r, http.StatusOK, models.RecomputeResult{
		RegionCount:        result.RegionCount,
		SnapshotsRefreshed: result.SnapshotsRefreshed,
		AlertsFired:        result.AlertsFired,
		DurationMs:         result.Duration.Milliseconds(),
		Errors:             result.Errors,
	})
}
