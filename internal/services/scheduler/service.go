package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

// Service runs periodic maintenance on cron schedules: the health sweep
// over live sources and the recovery of stale processing jobs left
// behind by a crashed worker.
type Service struct {
	jobs           interfaces.JobStorage
	sources        interfaces.SourceStorage
	health         interfaces.HealthService
	queue          interfaces.QueueManager
	cron           *cron.Cron
	healthSpec     string
	staleSpec      string
	staleThreshold time.Duration
	logger         arbor.ILogger
	running        bool
}

// NewService creates the maintenance scheduler
func NewService(
	jobs interfaces.JobStorage,
	sources interfaces.SourceStorage,
	health interfaces.HealthService,
	queueMgr interfaces.QueueManager,
	healthSpec, staleSpec string,
	staleThreshold time.Duration,
	logger arbor.ILogger,
) interfaces.SchedulerService {
	return &Service{
		jobs:           jobs,
		sources:        sources,
		health:         health,
		queue:          queueMgr,
		cron:           cron.New(),
		healthSpec:     healthSpec,
		staleSpec:      staleSpec,
		staleThreshold: staleThreshold,
		logger:         logger,
	}
}

// Start registers the maintenance jobs and starts the cron runner
func (s *Service) Start() error {
	if s.running {
		return fmt.Errorf("scheduler already running")
	}

	if s.healthSpec != "" {
		if _, err := s.cron.AddFunc(s.healthSpec, s.runHealthSweep); err != nil {
			return fmt.Errorf("invalid health sweep schedule %q: %w", s.healthSpec, err)
		}
	}
	if s.staleSpec != "" {
		if _, err := s.cron.AddFunc(s.staleSpec, s.recoverStaleJobs); err != nil {
			return fmt.Errorf("invalid stale recovery schedule %q: %w", s.staleSpec, err)
		}
	}

	s.cron.Start()
	s.running = true

	s.logger.Info().
		Str("health_sweep", s.healthSpec).
		Str("stale_recovery", s.staleSpec).
		Dur("stale_threshold", s.staleThreshold).
		Msg("Scheduler started")

	return nil
}

// Stop halts the cron runner
func (s *Service) Stop() {
	if !s.running {
		return
	}
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.running = false
	s.logger.Info().Msg("Scheduler stopped")
}

// recoverStaleJobs returns processing jobs with an expired heartbeat to
// the queue. At-least-once semantics: the job re-runs, and completed
// steps are skipped through the source's completion watermark.
func (s *Service) recoverStaleJobs() {
	ctx := context.Background()

	stale, err := s.jobs.StaleProcessing(ctx, s.staleThreshold)
	if err != nil {
		s.logger.Error().Err(err).Msg("Stale job scan failed")
		return
	}
	if len(stale) == 0 {
		return
	}

	s.logger.Warn().Int("count", len(stale)).Msg("Recovering stale processing jobs")

	for _, job := range stale {
		if err := s.queue.Requeue(ctx, job.ID, 0, "stale_worker"); err != nil {
			s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to requeue stale job")
		}
	}
}

// runHealthSweep re-runs the health checks over live sources
func (s *Service) runHealthSweep() {
	ctx := context.Background()

	live, err := s.sources.ListSources(ctx, &interfaces.SourceListOptions{Status: models.SourceStatusLive})
	if err != nil {
		s.logger.Error().Err(err).Msg("Health sweep source listing failed")
		return
	}

	checked := 0
	for _, source := range live {
		if _, err := s.health.RunChecks(ctx, source.ID); err != nil {
			s.logger.Warn().Err(err).Str("source_id", source.ID).Msg("Health sweep check failed")
			continue
		}
		checked++
	}

	if checked > 0 {
		s.logger.Info().Int("sources", checked).Msg("Health sweep finished")
	}
}
