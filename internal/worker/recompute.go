package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/commutepulse/commutepulse/internal/insight"
)

// InsightRecomputer runs a full regional recomputation pass.
// *insight.Aggregator satisfies it.
type InsightRecomputer interface {
	RecalculateAll(ctx context.Context) (*insight.Result, error)
}

// DepartureSweeper refreshes departure snapshots and fires due pre-alerts.
// *departure.Service satisfies it.
type DepartureSweeper interface {
	RecalculateAll(ctx context.Context, now time.Time) (int, error)
	EvaluateAlerts(ctx context.Context, now time.Time) (int, error)
}

// RecomputeJob drives one analytics cycle: the regional insight pass, the
// departure snapshot sweep, and the pre-alert evaluation.
type RecomputeJob struct {
	config     JobConfig
	logger     zerolog.Logger
	insights   InsightRecomputer
	departures DepartureSweeper

	metrics *JobMetrics
}

// JobMetrics tracks recompute job statistics.
type JobMetrics struct {
	mu sync.RWMutex

	// Counters
	TotalRuns          int64
	SuccessfulRuns     int64
	FailedRuns         int64
	RejectedRuns       int64
	RegionsPublished   int64
	SnapshotsRefreshed int64
	AlertsFired        int64

	// Timings
	LastRunAt       time.Time
	LastRunDuration time.Duration
	TotalDuration   time.Duration
}

// RecomputeJobConfig holds configuration for creating a RecomputeJob.
type RecomputeJobConfig struct {
	Config     JobConfig
	Logger     zerolog.Logger
	Insights   InsightRecomputer
	Departures DepartureSweeper
}

// NewRecomputeJob creates a new recompute job processor.
func NewRecomputeJob(cfg RecomputeJobConfig) *RecomputeJob {
	config := cfg.Config
	if config.Timeout == 0 {
		config = DefaultJobConfig()
	}

	return &RecomputeJob{
		config:     config,
		logger:     cfg.Logger,
		insights:   cfg.Insights,
		departures: cfg.Departures,
		metrics:    &JobMetrics{},
	}
}

// RecomputeResult contains the result of one recompute run.
type RecomputeResult struct {
	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	RegionCount        int
	SnapshotsRefreshed int
	AlertsFired        int

	// Rejected is true when another recomputation pass held the lock.
	Rejected bool

	Errors []string
}

// Run executes one full recompute cycle. A concurrent aggregation pass is
// reported as rejected, not failed; the departure sweeps still run.
func (j *RecomputeJob) Run(ctx context.Context) *RecomputeResult {
	startTime := time.Now()
	result := &RecomputeResult{StartTime: startTime}

	runCtx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	j.logger.Info().Msg("starting recompute job")

	if j.config.RunAggregation && j.insights != nil {
		res, err := j.insights.RecalculateAll(runCtx)
		switch {
		case errors.Is(err, insight.ErrRecomputeInProgress):
			result.Rejected = true
			j.logger.Warn().Msg("recomputation already in progress, skipping aggregation")
		case err != nil:
			result.Errors = append(result.Errors, err.Error())
			j.logger.Error().Err(err).Msg("regional recomputation failed")
		default:
			result.RegionCount = res.RegionCount
		}
	}

	if j.config.RunDepartures && j.departures != nil {
		refreshed, err := j.departures.RecalculateAll(runCtx, time.Now())
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			j.logger.Error().Err(err).Msg("departure snapshot sweep failed")
		} else {
			result.SnapshotsRefreshed = refreshed
		}
	}

	if j.config.RunAlerts && j.departures != nil {
		fired, err := j.departures.EvaluateAlerts(runCtx, time.Now())
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			j.logger.Error().Err(err).Msg("pre-alert evaluation failed")
		} else {
			result.AlertsFired = fired
		}
	}

	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(startTime)

	j.updateMetrics(result)

	j.logger.Info().
		Dur("duration", result.Duration).
		Int("region_count", result.RegionCount).
		Int("snapshots_refreshed", result.SnapshotsRefreshed).
		Int("alerts_fired", result.AlertsFired).
		Int("errors", len(result.Errors)).
		Msg("recompute job completed")

	return result
}

func (j *RecomputeJob) updateMetrics(result *RecomputeResult) {
	j.metrics.mu.Lock()
	defer j.metrics.mu.Unlock()

	j.metrics.TotalRuns++
	if result.Rejected {
		j.metrics.RejectedRuns++
	} else if len(result.Errors) > 0 {
		j.metrics.FailedRuns++
	} else {
		j.metrics.SuccessfulRuns++
	}
	j.metrics.RegionsPublished += int64(result.RegionCount)
	j.metrics.SnapshotsRefreshed += int64(result.SnapshotsRefreshed)
	j.metrics.AlertsFired += int64(result.AlertsFired)
	j.metrics.LastRunAt = result.EndTime
	j.metrics.LastRunDuration = result.Duration
	j.metrics.TotalDuration += result.Duration
}

// GetMetrics returns a copy of the current metrics.
func (j *RecomputeJob) GetMetrics() JobMetrics {
	j.metrics.mu.RLock()
	defer j.metrics.mu.RUnlock()

	return JobMetrics{
		TotalRuns:          j.metrics.TotalRuns,
		SuccessfulRuns:     j.metrics.SuccessfulRuns,
		FailedRuns:         j.metrics.FailedRuns,
		RejectedRuns:       j.metrics.RejectedRuns,
		RegionsPublished:   j.metrics.RegionsPublished,
		SnapshotsRefreshed: j.metrics.SnapshotsRefreshed,
		AlertsFired:        j.metrics.AlertsFired,
		LastRunAt:          j.metrics.LastRunAt,
		LastRunDuration:    j.metrics.LastRunDuration,
		TotalDuration:      j.metrics.TotalDuration,
	}
}

// MetricsSnapshot returns a snapshot of the current metrics as a map.
func (j *RecomputeJob) MetricsSnapshot() map[string]interface{} {
	m := j.GetMetrics()
	return map[string]interface{}{
		"total_runs":          m.TotalRuns,
		"successful_runs":     m.SuccessfulRuns,
		"failed_runs":         m.FailedRuns,
		"rejected_runs":       m.RejectedRuns,
		"regions_published":   m.RegionsPublished,
		"snapshots_refreshed": m.SnapshotsRefreshed,
		"alerts_fired":        m.AlertsFired,
		"last_run_at":         m.LastRunAt,
		"last_run_duration":   m.LastRunDuration.String(),
		"total_duration":      m.TotalDuration.String(),
	}
}
