package diagnostics

import (
	"context"
	"time"

	plog "github.com/phuslu/log"
	"github.com/ternarybob/arbor"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

// Recorder writes source step transitions: the append-only timeline, the
// denormalized last_* fields on the source row, and the application event
// bus. Timeline writes degrade gracefully - when the diagnostics schema
// is absent the entry goes to the flat legacy log instead, and ingestion
// carries on.
type Recorder struct {
	sources interfaces.SourceStorage
	events  interfaces.EventStorage
	bus     interfaces.EventService
	legacy  *plog.Logger
	logger  arbor.ILogger
}

// NewRecorder creates a diagnostics recorder. legacyLogPath is the flat
// fallback file used when the event schema is not provisioned.
func NewRecorder(sources interfaces.SourceStorage, events interfaces.EventStorage, bus interfaces.EventService, legacyLogPath string, logger arbor.ILogger) *Recorder {
	var legacy *plog.Logger
	if legacyLogPath != "" {
		legacy = &plog.Logger{
			Level:  plog.InfoLevel,
			Writer: &plog.FileWriter{Filename: legacyLogPath, MaxSize: 50 << 20},
		}
	}
	return &Recorder{
		sources: sources,
		events:  events,
		bus:     bus,
		legacy:  legacy,
		logger:  logger,
	}
}

// StepStarted records the beginning of a step attempt. The source row
// moves to processing with LastStep set to the attempted step before the
// adapter runs, so a crash mid-step is visible in the status read.
func (r *Recorder) StepStarted(ctx context.Context, source *models.Source, step models.Step, correlationID string) error {
	now := time.Now()
	source.Status = models.SourceStatusProcessing
	source.LastStep = step
	source.LastProvider = source.Provider
	source.LastEventAt = &now

	if err := r.sources.SaveSource(ctx, source); err != nil {
		return err
	}

	event := models.NewSourceEvent(source, step, models.EventStatusStarted)
	event.CorrelationID = correlationID
	event.StartedAt = &now
	r.append(ctx, event)

	r.publish(ctx, interfaces.EventStepStarted, source, step, nil)
	return nil
}

// StepCompleted records a successful step. LastCompletedStep only ever
// advances here; it is what lets a retry run skip finished work.
func (r *Recorder) StepCompleted(ctx context.Context, source *models.Source, step models.Step, correlationID string, startedAt time.Time) error {
	now := time.Now()
	source.LastStep = step
	source.LastCompletedStep = step
	source.LastEventAt = &now

	if err := r.sources.SaveSource(ctx, source); err != nil {
		return err
	}

	event := models.NewSourceEvent(source, step, models.EventStatusCompleted)
	event.CorrelationID = correlationID
	event.StartedAt = &startedAt
	event.EndedAt = &now
	r.append(ctx, event)

	r.publish(ctx, interfaces.EventStepCompleted, source, step, nil)
	return nil
}

// StepFailed records a failed step. LastStep stays pinned at the failing
// step and LastError.Step always equals LastStep; LastCompletedStep is
// not touched, so a later retry resumes exactly where this run stopped.
func (r *Recorder) StepFailed(ctx context.Context, source *models.Source, step models.Step, ingErr *models.IngestError) error {
	now := time.Now()
	source.Status = models.SourceStatusError
	source.LastStep = step
	source.LastError = ingErr
	source.LastErrorAt = &now
	source.LastEventAt = &now

	if err := r.sources.SaveSource(ctx, source); err != nil {
		return err
	}

	event := models.NewSourceEvent(source, step, models.EventStatusError)
	event.CorrelationID = ingErr.CorrelationID
	event.Message = ingErr.Message
	event.Error = ingErr
	event.EndedAt = &now
	r.append(ctx, event)

	r.publish(ctx, interfaces.EventStepFailed, source, step, ingErr)
	r.publish(ctx, interfaces.EventSourceErrored, source, step, ingErr)
	return nil
}

// SourceLive records the terminal success transition and clears any error
// left over from earlier attempts.
func (r *Recorder) SourceLive(ctx context.Context, source *models.Source, correlationID string) error {
	now := time.Now()
	source.Status = models.SourceStatusLive
	source.LastStep = models.StepLive
	source.LastCompletedStep = models.StepLive
	source.LastError = nil
	source.LastErrorAt = nil
	source.LastEventAt = &now

	if err := r.sources.SaveSource(ctx, source); err != nil {
		return err
	}

	event := models.NewSourceEvent(source, models.StepLive, models.EventStatusCompleted)
	event.CorrelationID = correlationID
	event.EndedAt = &now
	r.append(ctx, event)

	r.publish(ctx, interfaces.EventSourceLive, source, models.StepLive, nil)
	return nil
}

// append writes the timeline entry, falling back to the flat legacy log
// when the diagnostics schema is absent or the write fails. Timeline
// failures never fail the pipeline.
func (r *Recorder) append(ctx context.Context, event *models.SourceEvent) {
	if r.events.Available() {
		if err := r.events.AppendEvent(ctx, event); err == nil {
			return
		} else {
			r.logger.Warn().Err(err).Str("source_id", event.SourceID).Msg("Timeline append failed, using legacy log")
		}
	}

	if r.legacy != nil {
		r.legacy.Info().
			Str("source_id", event.SourceID).
			Str("twin_id", event.TwinID).
			Str("provider", string(event.Provider)).
			Str("step", string(event.Step)).
			Str("status", string(event.Status)).
			Str("message", event.Message).
			Str("correlation_id", event.CorrelationID).
			Msg("source step transition")
	}
}

func (r *Recorder) publish(ctx context.Context, eventType interfaces.EventType, source *models.Source, step models.Step, ingErr *models.IngestError) {
	if r.bus == nil {
		return
	}
	payload := map[string]interface{}{
		"source_id": source.ID,
		"twin_id":   source.TwinID,
		"provider":  string(source.Provider),
		"step":      string(step),
		"status":    string(source.Status),
	}
	if ingErr != nil {
		payload["error_code"] = string(ingErr.Code)
		payload["retryable"] = ingErr.Retryable
	}
	_ = r.bus.Publish(ctx, interfaces.Event{Type: eventType, Payload: payload})
}
