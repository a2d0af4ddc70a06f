package ingest

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ternarybob/arbor"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

// Service is the entry point the API layer calls to start, retry and
// inspect ingestions. Create paths persist the source, enqueue a job and
// return promptly; the worker pool runs the pipeline.
type Service struct {
	storage interfaces.StorageManager
	queue   interfaces.QueueManager
	bus     interfaces.EventService
	logger  arbor.ILogger
}

// NewService creates the ingest service
func NewService(storage interfaces.StorageManager, queueMgr interfaces.QueueManager, bus interfaces.EventService, logger arbor.ILogger) interfaces.IngestService {
	return &Service{
		storage: storage,
		queue:   queueMgr,
		bus:     bus,
		logger:  logger,
	}
}

// CreateFromURL registers a URL source and enqueues its ingestion job
func (s *Service) CreateFromURL(ctx context.Context, req *models.IngestURLRequest) (*models.IngestResponse, error) {
	source := models.NewSource(req.TwinID, models.Reference{URL: strings.TrimSpace(req.URL)})
	if err := source.Validate(); err != nil {
		return nil, fmt.Errorf("invalid source: %w", err)
	}

	return s.createSource(ctx, source, req.Priority)
}

// CreateFromFile stores the uploaded bytes in blob storage then registers
// a file source referencing the blob key.
func (s *Service) CreateFromFile(ctx context.Context, twinID, fileName string, data []byte, priority int) (*models.IngestResponse, error) {
	if twinID == "" {
		return nil, fmt.Errorf("twin_id is required")
	}
	if fileName == "" {
		return nil, fmt.Errorf("file name is required")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("uploaded file is empty")
	}

	fileKey := fmt.Sprintf("upload/%s/%s%s", twinID, uuid.New().String(), strings.ToLower(filepath.Ext(fileName)))
	if err := s.storage.BlobStorage().PutBlob(ctx, fileKey, data); err != nil {
		return nil, fmt.Errorf("failed to store uploaded file: %w", err)
	}

	source := models.NewSource(twinID, models.Reference{FileName: fileName, FileKey: fileKey})
	if err := source.Validate(); err != nil {
		return nil, fmt.Errorf("invalid source: %w", err)
	}

	return s.createSource(ctx, source, priority)
}

func (s *Service) createSource(ctx context.Context, source *models.Source, priority int) (*models.IngestResponse, error) {
	if err := s.storage.SourceStorage().SaveSource(ctx, source); err != nil {
		return nil, fmt.Errorf("failed to save source: %w", err)
	}

	job, _, err := s.queue.Enqueue(ctx, models.NewJob(source, models.JobTypeIngest, priority))
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue ingestion: %w", err)
	}

	s.publish(ctx, interfaces.EventSourceCreated, source)

	s.logger.Info().
		Str("source_id", source.ID).
		Str("twin_id", source.TwinID).
		Str("provider", string(source.Provider)).
		Str("job_id", job.ID).
		Msg("Source created and queued")

	return &models.IngestResponse{
		SourceID: source.ID,
		JobID:    job.ID,
		Status:   source.Status,
	}, nil
}

// Retry re-enqueues a source. Idempotent: when an active job already
// exists it is returned and nothing else changes. The source row is only
// reset once a fresh job was actually created; while a run is in flight
// the executor owns the row and a retry must not touch it.
func (s *Service) Retry(ctx context.Context, sourceID string, reset bool) (*models.RetryResponse, error) {
	source, err := s.storage.SourceStorage().GetSource(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	job, existing, err := s.queue.Enqueue(ctx, models.NewJob(source, models.JobTypeReingest, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to enqueue retry: %w", err)
	}

	if !existing {
		if reset {
			// Full re-run: forget prior progress so every step executes again
			source.LastCompletedStep = models.StepQueued
		}
		source.Status = models.SourceStatusPending
		source.LastStep = models.StepQueued
		source.LastError = nil
		source.LastErrorAt = nil
		source.UpdatedAt = time.Now()

		if err := s.storage.SourceStorage().SaveSource(ctx, source); err != nil {
			return nil, fmt.Errorf("failed to reset source state: %w", err)
		}
	}

	s.logger.Info().
		Str("source_id", sourceID).
		Str("job_id", job.ID).
		Bool("existing", existing).
		Bool("reset", reset).
		Msg("Retry requested")

	return &models.RetryResponse{
		SourceID: sourceID,
		JobID:    job.ID,
		Existing: existing,
	}, nil
}

// GetSource returns a source by ID
func (s *Service) GetSource(ctx context.Context, sourceID string) (*models.Source, error) {
	return s.storage.SourceStorage().GetSource(ctx, sourceID)
}

// DeleteSource removes a source and everything derived from it: jobs,
// timeline events, health checks, the extracted document, index vectors,
// and any uploaded blob.
func (s *Service) DeleteSource(ctx context.Context, sourceID string) error {
	source, err := s.storage.SourceStorage().GetSource(ctx, sourceID)
	if err != nil {
		return err
	}

	if err := s.storage.JobStorage().DeleteJobsForSource(ctx, sourceID); err != nil {
		return fmt.Errorf("failed to delete jobs: %w", err)
	}
	if err := s.storage.VectorStorage().DeleteEmbeddings(ctx, sourceID); err != nil {
		return fmt.Errorf("failed to delete index entries: %w", err)
	}
	if err := s.storage.DocumentStorage().DeleteDocument(ctx, sourceID); err != nil && !errors.Is(err, interfaces.ErrNotFound) {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if err := s.storage.HealthStorage().DeleteChecks(ctx, sourceID); err != nil {
		return fmt.Errorf("failed to delete health checks: %w", err)
	}
	if s.storage.EventStorage().Available() {
		if err := s.storage.EventStorage().DeleteEvents(ctx, sourceID); err != nil {
			s.logger.Warn().Err(err).Str("source_id", sourceID).Msg("Failed to delete timeline events")
		}
	}
	if source.FileKey != "" {
		if err := s.storage.BlobStorage().DeleteBlob(ctx, source.FileKey); err != nil {
			s.logger.Warn().Err(err).Str("file_key", source.FileKey).Msg("Failed to delete uploaded blob")
		}
	}

	if err := s.storage.SourceStorage().DeleteSource(ctx, sourceID); err != nil {
		return fmt.Errorf("failed to delete source: %w", err)
	}

	s.publish(ctx, interfaces.EventSourceDeleted, source)

	s.logger.Info().
		Str("source_id", sourceID).
		Str("twin_id", source.TwinID).
		Msg("Source deleted")

	return nil
}

func (s *Service) publish(ctx context.Context, eventType interfaces.EventType, source *models.Source) {
	if s.bus == nil {
		return
	}
	_ = s.bus.Publish(ctx, interfaces.Event{
		Type: eventType,
		Payload: map[string]interface{}{
			"source_id": source.ID,
			"twin_id":   source.TwinID,
			"provider":  string(source.Provider),
			"status":    string(source.Status),
		},
	})
}
