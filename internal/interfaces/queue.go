package interfaces

import (
	"context"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

// WakeNotifier is the optional fast-path signal that reduces worker poll
// latency. It is never authoritative: losing or dropping a wake-up only
// delays pickup until the next poll tick, it never loses work.
type WakeNotifier interface {
	// Wake nudges one idle worker. Must never block.
	Wake()

	// C returns the channel workers select on alongside their poll ticker
	C() <-chan struct{}
}

// QueueManager is the logical queue over the durable job table
type QueueManager interface {
	// Enqueue persists and announces a job. When an active job already
	// exists for the source, that job is returned instead and no new job
	// is created.
	Enqueue(ctx context.Context, job *models.Job) (*models.Job, bool, error)

	// ClaimNext claims the next ready job, or ErrNoJob
	ClaimNext(ctx context.Context, twinID string) (*models.Job, error)

	Complete(ctx context.Context, jobID string) error
	Fail(ctx context.Context, jobID string, errorMessage string, needsAttention bool) error
	Requeue(ctx context.Context, jobID string, delaySeconds int, reason string) error

	// Drain synchronously processes up to max queued jobs for a twin.
	// Uses the same conditional claim as the background workers, so it is
	// race-safe against a running worker pool.
	Drain(ctx context.Context, twinID string, max int) (*models.DrainResult, error)

	Counts(ctx context.Context) (map[models.JobStatus]int, error)
}

// JobExecutor runs the ingestion pipeline for a claimed job. Implemented
// by the pipeline executor; the queue only knows this boundary.
type JobExecutor interface {
	ExecuteJob(ctx context.Context, job *models.Job) error
}
