package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/services/diagnostics"
)

// Executor drives a claimed job through the step state machine: for each
// pipeline step it records the start, runs the provider adapter under a
// bounded timeout, and either advances or classifies the failure and
// halts. Steps already completed by an earlier attempt are skipped, so
// retry never repeats finished side effects.
type Executor struct {
	sources    interfaces.SourceStorage
	documents  interfaces.DocumentStorage
	queue      interfaces.QueueManager
	registry   *Registry
	recorder   *diagnostics.Recorder
	classifier *Classifier
	policy     *Policy
	health     interfaces.HealthService
	stepTime   time.Duration
	logger     arbor.ILogger
}

// NewExecutor creates the pipeline executor
func NewExecutor(
	sources interfaces.SourceStorage,
	documents interfaces.DocumentStorage,
	queueMgr interfaces.QueueManager,
	registry *Registry,
	recorder *diagnostics.Recorder,
	classifier *Classifier,
	policy *Policy,
	stepTimeout time.Duration,
	logger arbor.ILogger,
) *Executor {
	if stepTimeout <= 0 {
		stepTimeout = 90 * time.Second
	}
	return &Executor{
		sources:    sources,
		documents:  documents,
		queue:      queueMgr,
		registry:   registry,
		recorder:   recorder,
		classifier: classifier,
		policy:     policy,
		stepTime:   stepTimeout,
		logger:     logger,
	}
}

// SetHealthService wires the post-live health sweep. Optional; wired late
// because the health service is constructed after the executor.
func (e *Executor) SetHealthService(health interfaces.HealthService) {
	e.health = health
}

// ExecuteJob runs the full pipeline for one claimed job. The job's
// terminal transition (complete, requeue, or fail) happens in here; the
// returned error reports whether the run reached live.
func (e *Executor) ExecuteJob(ctx context.Context, job *models.Job) error {
	source, err := e.sources.GetSource(ctx, job.SourceID)
	if err != nil {
		if errors.Is(err, interfaces.ErrNotFound) {
			// Source deleted while the job sat queued; nothing to do
			e.logger.Warn().Str("job_id", job.ID).Str("source_id", job.SourceID).Msg("Job references deleted source")
			return e.queue.Complete(ctx, job.ID)
		}
		return fmt.Errorf("failed to load source for job %s: %w", job.ID, err)
	}

	correlationID := job.ID

	adapter, err := e.registry.Get(source.Provider)
	if err != nil {
		ingErr := e.classifier.Classify(err, source.Provider, models.StepFetching, correlationID)
		return e.failRun(ctx, job, source, models.StepFetching, ingErr)
	}

	payload := &interfaces.StepPayload{Metadata: make(map[string]interface{})}
	if err := e.hydratePayload(ctx, source, payload); err != nil {
		e.logger.Warn().Err(err).Str("source_id", source.ID).Msg("Failed to hydrate payload, re-running from scratch")
		source.LastCompletedStep = models.StepQueued
	}

	for _, step := range models.PipelineSteps() {
		// Already finished in an earlier attempt
		if step.Index() <= source.LastCompletedStep.Index() {
			continue
		}

		// Providers skip steps irrelevant to them (file upload never
		// fetches). The skip still advances the completion watermark.
		if !adapter.Performs(step) {
			source.LastCompletedStep = step
			continue
		}

		startedAt := time.Now()
		if err := e.recorder.StepStarted(ctx, source, step, correlationID); err != nil {
			return fmt.Errorf("failed to record step start: %w", err)
		}

		stepCtx, cancel := context.WithTimeout(ctx, e.stepTime)
		stepErr := adapter.Execute(stepCtx, source, step, payload)
		cancel()

		if stepErr != nil {
			ingErr := e.classifier.Classify(stepErr, source.Provider, step, correlationID)
			return e.failRun(ctx, job, source, step, ingErr)
		}

		e.applyDerivedFields(source, payload)
		if err := e.recorder.StepCompleted(ctx, source, step, correlationID, startedAt); err != nil {
			return fmt.Errorf("failed to record step completion: %w", err)
		}

		e.logger.Debug().
			Str("source_id", source.ID).
			Str("step", string(step)).
			Dur("duration", time.Since(startedAt)).
			Msg("Step completed")
	}

	if err := e.recorder.SourceLive(ctx, source, correlationID); err != nil {
		return fmt.Errorf("failed to record live transition: %w", err)
	}
	if err := e.queue.Complete(ctx, job.ID); err != nil {
		e.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to complete job")
	}

	e.runHealthChecks(ctx, source)

	e.logger.Info().
		Str("source_id", source.ID).
		Str("provider", string(source.Provider)).
		Int("chunks", source.ChunkCount).
		Msg("Source is live")
	return nil
}

// failRun records the classified failure and decides the job's fate:
// retryable failures under the attempt ceiling go back to the queue with
// backoff, policy-blocked codes land in needs_attention, everything else
// fails terminally.
func (e *Executor) failRun(ctx context.Context, job *models.Job, source *models.Source, step models.Step, ingErr *models.IngestError) error {
	if err := e.recorder.StepFailed(ctx, source, step, ingErr); err != nil {
		e.logger.Error().Err(err).Str("source_id", source.ID).Msg("Failed to record step failure")
	}

	maxAttempts := e.policy.MaxAttempts(source.Provider)
	if ingErr.Retryable && job.Attempts < maxAttempts {
		delay := e.policy.BackoffSeconds(source.Provider, job.Attempts)
		if err := e.queue.Requeue(ctx, job.ID, delay, string(ingErr.Code)); err != nil {
			e.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to requeue job")
		}
		e.logger.Info().
			Str("source_id", source.ID).
			Str("code", string(ingErr.Code)).
			Int("attempt", job.Attempts).
			Int("max_attempts", maxAttempts).
			Int("delay_seconds", delay).
			Msg("Step failed, retry scheduled")
		return ingErr
	}

	needsAttention := ingErr.Code.PolicyBlocked()
	if err := e.queue.Fail(ctx, job.ID, ingErr.Error(), needsAttention); err != nil {
		e.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark job failed")
	}

	// Checks run after a run fails terminally too, so an empty extraction
	// leaves its fail record next to the error payload.
	e.runHealthChecks(ctx, source)

	e.logger.Warn().
		Str("source_id", source.ID).
		Str("step", string(step)).
		Str("code", string(ingErr.Code)).
		Bool("needs_attention", needsAttention).
		Msg("Ingestion failed terminally")

	return ingErr
}

// hydratePayload reloads persisted extraction output when the run resumes
// past the parse step, so skipped steps leave later ones with their input.
func (e *Executor) hydratePayload(ctx context.Context, source *models.Source, payload *interfaces.StepPayload) error {
	if source.LastCompletedStep.Index() < models.StepParsed.Index() {
		return nil
	}

	doc, err := e.documents.GetDocument(ctx, source.ID)
	if err != nil {
		return err
	}

	payload.Markdown = doc.ContentMarkdown
	payload.Text = doc.ContentText
	payload.Title = doc.Title
	payload.Chunks = doc.Chunks
	payload.ContentHash = doc.ContentHash
	return nil
}

// applyDerivedFields copies payload-derived presentation fields onto the
// source row so status reads do not need the document.
func (e *Executor) applyDerivedFields(source *models.Source, payload *interfaces.StepPayload) {
	if payload.Title != "" {
		source.Title = payload.Title
	}
	if payload.ContentHash != "" {
		source.ContentHash = payload.ContentHash
	}
	if len(payload.Chunks) > 0 {
		source.ChunkCount = len(payload.Chunks)
	}
	if payload.Text != "" {
		source.ExtractedTextLength = len(payload.Text)
	}
}

// runHealthChecks runs the post-run sweep for the source, after a live
// transition or a terminal failure. Sweep errors only log; they never
// alter the run's outcome.
func (e *Executor) runHealthChecks(ctx context.Context, source *models.Source) {
	if e.health == nil {
		return
	}
	if _, err := e.health.RunChecks(ctx, source.ID); err != nil {
		e.logger.Warn().Err(err).Str("source_id", source.ID).Msg("Post-live health checks failed")
	}
}
