package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

// Manager is the logical queue over the durable job table. All state
// lives in JobStorage; the manager adds the single-active-job-per-source
// rule, the wake notifier, and the event bus announcements.
type Manager struct {
	jobs     interfaces.JobStorage
	events   interfaces.EventService
	notifier *Notifier
	executor interfaces.JobExecutor

	// enqueueMu serializes the active-job check with the insert. Badger
	// holds an exclusive directory lock, so one process owns the store and
	// in-process serialization is sufficient to keep two racing enqueues
	// for the same source from both passing the check.
	enqueueMu sync.Mutex

	logger arbor.ILogger
}

// NewManager creates a queue manager
func NewManager(jobs interfaces.JobStorage, events interfaces.EventService, logger arbor.ILogger) *Manager {
	return &Manager{
		jobs:     jobs,
		events:   events,
		notifier: NewNotifier(),
		logger:   logger,
	}
}

// SetExecutor wires the pipeline executor used by Drain. Set after
// construction because the executor is built later in app wiring.
func (m *Manager) SetExecutor(executor interfaces.JobExecutor) {
	m.executor = executor
}

// Notifier returns the wake notifier shared with the worker pool
func (m *Manager) Notifier() interfaces.WakeNotifier {
	return m.notifier
}

// Enqueue persists and announces a job. When the source already has a
// queued or processing job, that existing job is returned unchanged and
// the new one is discarded - retries while a job is in flight must not
// stack duplicate work.
func (m *Manager) Enqueue(ctx context.Context, job *models.Job) (*models.Job, bool, error) {
	if err := job.Validate(); err != nil {
		return nil, false, fmt.Errorf("invalid job: %w", err)
	}

	m.enqueueMu.Lock()
	defer m.enqueueMu.Unlock()

	existing, err := m.jobs.ActiveJobForSource(ctx, job.SourceID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to check active jobs: %w", err)
	}
	if existing != nil {
		m.logger.Debug().
			Str("source_id", job.SourceID).
			Str("existing_job_id", existing.ID).
			Str("existing_status", string(existing.Status)).
			Msg("Source already has an active job, skipping enqueue")
		return existing, true, nil
	}

	if err := m.jobs.SaveJob(ctx, job); err != nil {
		return nil, false, fmt.Errorf("failed to enqueue job: %w", err)
	}

	m.publish(ctx, interfaces.EventJobQueued, job)
	m.notifier.Wake()

	m.logger.Info().
		Str("job_id", job.ID).
		Str("source_id", job.SourceID).
		Str("job_type", string(job.Type)).
		Msg("Job enqueued")

	return job, false, nil
}

// ClaimNext claims the next ready job for the twin (empty twinID means
// any twin). The conditional claim may lose the race to another worker;
// losing just means trying the next candidate.
func (m *Manager) ClaimNext(ctx context.Context, twinID string) (*models.Job, error) {
	for {
		candidate, err := m.jobs.NextQueued(ctx, twinID)
		if err != nil {
			return nil, err
		}

		job, err := m.jobs.Claim(ctx, candidate.ID)
		if err != nil {
			if errors.Is(err, interfaces.ErrAlreadyClaimed) {
				continue
			}
			return nil, err
		}

		m.publish(ctx, interfaces.EventJobStarted, job)
		return job, nil
	}
}

// Complete marks a processing job complete
func (m *Manager) Complete(ctx context.Context, jobID string) error {
	if err := m.jobs.CompleteJob(ctx, jobID); err != nil {
		return err
	}
	job, err := m.jobs.GetJob(ctx, jobID)
	if err == nil {
		m.publish(ctx, interfaces.EventJobCompleted, job)
	}
	return nil
}

// Fail marks a processing job failed, or needs_attention when the
// failure is pinned non-retryable and wants operator review.
func (m *Manager) Fail(ctx context.Context, jobID string, errorMessage string, needsAttention bool) error {
	if err := m.jobs.FailJob(ctx, jobID, errorMessage, needsAttention); err != nil {
		return err
	}
	job, err := m.jobs.GetJob(ctx, jobID)
	if err == nil {
		m.publish(ctx, interfaces.EventJobFailed, job)
	}
	return nil
}

// Requeue returns a processing job to queued with a delivery delay
func (m *Manager) Requeue(ctx context.Context, jobID string, delaySeconds int, reason string) error {
	notBefore := time.Now().Add(time.Duration(delaySeconds) * time.Second)
	if err := m.jobs.RequeueJob(ctx, jobID, notBefore, reason); err != nil {
		return err
	}

	job, err := m.jobs.GetJob(ctx, jobID)
	if err == nil {
		m.publish(ctx, interfaces.EventJobRequeued, job)
	}

	m.logger.Info().
		Str("job_id", jobID).
		Int("delay_seconds", delaySeconds).
		Str("reason", reason).
		Msg("Job requeued")
	return nil
}

// Drain synchronously claims and executes up to max queued jobs for a
// twin. It goes through the same conditional claim as the background
// workers, so running it against a live worker pool is safe - each job
// is processed exactly once, whoever wins the claim.
func (m *Manager) Drain(ctx context.Context, twinID string, max int) (*models.DrainResult, error) {
	if m.executor == nil {
		return nil, fmt.Errorf("queue manager has no executor wired")
	}
	if max <= 0 {
		max = 100
	}

	result := &models.DrainResult{}
	for i := 0; i < max; i++ {
		job, err := m.ClaimNext(ctx, twinID)
		if err != nil {
			if errors.Is(err, interfaces.ErrNoJob) {
				break
			}
			return result, fmt.Errorf("drain claim failed: %w", err)
		}

		if err := m.executor.ExecuteJob(ctx, job); err != nil {
			result.Failed++
			m.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Drained job failed")
		} else {
			result.Processed++
		}
	}

	remaining, err := m.jobs.CountQueued(ctx, twinID)
	if err != nil {
		return result, fmt.Errorf("failed to count remaining jobs: %w", err)
	}
	result.Remaining = remaining

	m.logger.Info().
		Str("twin_id", twinID).
		Int("processed", result.Processed).
		Int("failed", result.Failed).
		Int("remaining", result.Remaining).
		Msg("Queue drain finished")

	return result, nil
}

// Counts returns job counts by status
func (m *Manager) Counts(ctx context.Context) (map[models.JobStatus]int, error) {
	return m.jobs.CountByStatus(ctx)
}

func (m *Manager) publish(ctx context.Context, eventType interfaces.EventType, job *models.Job) {
	if m.events == nil {
		return
	}
	err := m.events.Publish(ctx, interfaces.Event{
		Type: eventType,
		Payload: map[string]interface{}{
			"job_id":    job.ID,
			"source_id": job.SourceID,
			"twin_id":   job.TwinID,
			"status":    string(job.Status),
		},
	})
	if err != nil {
		m.logger.Warn().Err(err).Str("event", string(eventType)).Msg("Failed to publish queue event")
	}
}
