package models

// Health represents the health status of the service.
type Health struct {
	Status  HealthStatus           `json:"status"`
	Time    Timestamp              `json:"time"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// SystemStatus represents the overall system status.
type SystemStatus struct {
	Status     HealthStatus           `json:"status"`
	Time       Timestamp              `json:"time"`
	Subsystems []SubsystemStatus      `json:"subsystems,omitempty"`
	Providers  []ProviderStatus       `json:"providers,omitempty"`
	JobMetrics map[string]interface{} `json:"jobMetrics,omitempty"`
}

// SubsystemStatus represents the status of a subsystem.
type SubsystemStatus struct {
	Name   string       `json:"name"`
	Status HealthStatus `json:"status"`
	Detail *string      `json:"detail,omitempty"`
}

// ProviderStatus represents the status of an external provider.
type ProviderStatus struct {
	Provider      string       `json:"provider"`
	Status        HealthStatus `json:"status"`
	LastSuccessAt *Timestamp   `json:"lastSuccessAt,omitempty"`
	LastFailureAt *Timestamp   `json:"lastFailureAt,omitempty"`
	Message       *string      `json:"message,omitempty"`
}

// RecomputeResult summarizes one on-demand recompute run.
type RecomputeResult struct {
	RegionCount        int      `json:"regionCount"`
	SnapshotsRefreshed int      `json:"snapshotsRefreshed"`
	AlertsFired        int      `json:"alertsFired"`
	DurationMs         int64    `json:"durationMs"`
	Errors             []string `json:"errors,omitempty"`
}
