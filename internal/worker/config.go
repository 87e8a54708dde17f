// Package worker provides background job processing for CommutePulse.
package worker

import (
	"time"
)

// JobConfig holds configuration for the recompute job.
type JobConfig struct {
	// Timeout bounds one full recompute run.
	// Default: 5 minutes
	Timeout time.Duration

	// RunAggregation enables the regional insight recomputation pass.
	// Default: true
	RunAggregation bool

	// RunDepartures enables the departure snapshot sweep.
	// Default: true
	RunDepartures bool

	// RunAlerts enables the pre-alert evaluation sweep.
	// Default: true
	RunAlerts bool
}

// DefaultJobConfig returns the default recompute job configuration.
func DefaultJobConfig() JobConfig {
	return JobConfig{
		Timeout:        5 * time.Minute,
		RunAggregation: true,
		RunDepartures:  true,
		RunAlerts:      true,
	}
}
