package domain

import "time"

// HealthStatus summarises a readiness probe.
type HealthStatus string

const (
	HealthStatusOK       HealthStatus = "ok"
	HealthStatusDegraded HealthStatus = "degraded"
	HealthStatusError    HealthStatus = "error"
)

// HealthCheck is the outcome of probing one dependency.
type HealthCheck struct {
	Status    HealthStatus  `json:"status"`
	Detail    string        `json:"detail,omitempty"`
	Latency   time.Duration `json:"-"`
	CheckedAt time.Time     `json:"checkedAt"`
}

// HealthReport aggregates dependency checks; the worst check decides Status.
type HealthReport struct {
	Status      HealthStatus           `json:"status"`
	Checks      map[string]HealthCheck `json:"checks"`
	Version     string                 `json:"version,omitempty"`
	CommitSHA   string                 `json:"commitSha,omitempty"`
	Environment string                 `json:"environment,omitempty"`
	Uptime      time.Duration          `json:"-"`
	GeneratedAt time.Time              `json:"generatedAt"`
}

// CursorPage is one page of a newest-first listing. An empty NextPageToken means the
// listing is exhausted.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}
