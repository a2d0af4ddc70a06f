package queue

import (
	"context"
	"errors"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

const heartbeatInterval = 30 * time.Second

// WorkerPool runs concurrent workers that claim jobs from the durable
// queue and hand them to the pipeline executor. Claiming is the only
// coordination point between workers; two workers may race for the same
// job but the conditional claim lets exactly one of them win.
type WorkerPool struct {
	manager      *Manager
	executor     interfaces.JobExecutor
	jobs         interfaces.JobStorage
	concurrency  int
	pollInterval time.Duration
	logger       arbor.ILogger
	ctx          context.Context
	cancel       context.CancelFunc
}

// NewWorkerPool creates a worker pool over the queue manager
func NewWorkerPool(manager *Manager, executor interfaces.JobExecutor, jobs interfaces.JobStorage, concurrency int, pollInterval time.Duration, logger arbor.ILogger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		manager:      manager,
		executor:     executor,
		jobs:         jobs,
		concurrency:  concurrency,
		pollInterval: pollInterval,
		logger:       logger,
		ctx:          ctx,
		cancel:       cancel,
	}
}

// Start starts the worker goroutines
func (wp *WorkerPool) Start() error {
	wp.logger.Info().
		Int("concurrency", wp.concurrency).
		Dur("poll_interval", wp.pollInterval).
		Msg("Starting worker pool")

	for i := 0; i < wp.concurrency; i++ {
		go wp.worker(i)
	}
	return nil
}

// Stop gracefully stops the worker pool
func (wp *WorkerPool) Stop() error {
	wp.logger.Info().Msg("Stopping worker pool")
	wp.cancel()
	return nil
}

// worker claims and runs jobs until the pool is stopped. The poll ticker
// is the authoritative trigger; the wake notifier only shortens the wait
// after an enqueue.
func (wp *WorkerPool) worker(workerID int) {
	// Stagger worker starts to spread claim contention over the interval
	stagger := (wp.pollInterval / time.Duration(wp.concurrency)) * time.Duration(workerID)
	if stagger > 0 {
		select {
		case <-wp.ctx.Done():
			return
		case <-time.After(stagger):
		}
	}

	wp.logger.Debug().Int("worker_id", workerID).Msg("Worker started")

	ticker := time.NewTicker(wp.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-wp.ctx.Done():
			wp.logger.Debug().Int("worker_id", workerID).Msg("Worker stopped")
			return
		case <-ticker.C:
			wp.drainAvailable(workerID)
		case <-wp.manager.Notifier().C():
			wp.drainAvailable(workerID)
		}
	}
}

// drainAvailable claims and runs jobs until the queue is empty, so one
// wake-up burst does not cost one poll tick per job.
func (wp *WorkerPool) drainAvailable(workerID int) {
	for {
		if wp.ctx.Err() != nil {
			return
		}
		job, err := wp.manager.ClaimNext(wp.ctx, "")
		if err != nil {
			if !errors.Is(err, interfaces.ErrNoJob) && wp.ctx.Err() == nil {
				wp.logger.Warn().Err(err).Int("worker_id", workerID).Msg("Failed to claim job")
			}
			return
		}
		wp.runJob(workerID, job)
	}
}

// runJob executes one claimed job under a heartbeat. The executor owns
// the job's terminal transition (complete, requeue, or fail); an error
// return here means the run did not reach live.
func (wp *WorkerPool) runJob(workerID int, job *models.Job) {
	wp.logger.Info().
		Int("worker_id", workerID).
		Str("job_id", job.ID).
		Str("source_id", job.SourceID).
		Int("attempt", job.Attempts).
		Msg("Processing job")

	hbCtx, stopHeartbeat := context.WithCancel(wp.ctx)
	go wp.heartbeat(hbCtx, job.ID)

	err := wp.executor.ExecuteJob(wp.ctx, job)
	stopHeartbeat()

	if err != nil {
		wp.logger.Warn().
			Err(err).
			Int("worker_id", workerID).
			Str("job_id", job.ID).
			Msg("Job execution failed")
		return
	}

	wp.logger.Info().
		Int("worker_id", workerID).
		Str("job_id", job.ID).
		Msg("Job completed")
}

// heartbeat records liveness for a processing job until ctx is cancelled.
// Stale job recovery uses the heartbeat age to reclaim work from dead
// workers.
func (wp *WorkerPool) heartbeat(ctx context.Context, jobID string) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := wp.jobs.UpdateHeartbeat(ctx, jobID); err != nil {
				wp.logger.Debug().Err(err).Str("job_id", jobID).Msg("Heartbeat update failed")
			}
		}
	}
}
