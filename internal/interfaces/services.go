package interfaces

import (
	"context"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

// IngestService is the entry point the API layer calls to start, retry and
// inspect ingestions. Create operations return promptly; the pipeline runs
// asynchronously on the worker pool.
type IngestService interface {
	CreateFromURL(ctx context.Context, req *models.IngestURLRequest) (*models.IngestResponse, error)
	CreateFromFile(ctx context.Context, twinID, fileName string, data []byte, priority int) (*models.IngestResponse, error)

	// Retry re-enqueues a terminal-failed source. Idempotent: a concurrent
	// or duplicate call returns the already-active job.
	Retry(ctx context.Context, sourceID string, reset bool) (*models.RetryResponse, error)

	GetSource(ctx context.Context, sourceID string) (*models.Source, error)
	DeleteSource(ctx context.Context, sourceID string) error
}

// DiagnosticsService reads the source timeline. Timeline returns
// ErrDiagnosticsUnavailable - never an empty list - when the diagnostics
// schema is not provisioned.
type DiagnosticsService interface {
	Timeline(ctx context.Context, sourceID string) ([]*models.SourceEvent, error)
	Available() bool
}

// HealthService runs the post-hoc source health checks
type HealthService interface {
	RunChecks(ctx context.Context, sourceID string) ([]*models.HealthCheck, error)
	ListChecks(ctx context.Context, sourceID string) ([]*models.HealthCheck, error)
}

// SchedulerService runs periodic maintenance (health sweeps, stale job
// recovery) on cron schedules.
type SchedulerService interface {
	Start() error
	Stop()
}
