package badger

import (
	"context"
	"fmt"
	"sort"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

// JobStorage implements the durable job queue table over Badger. The
// conditional claim (queued -> processing) runs inside a single Badger
// transaction; Badger's serializable conflict detection makes it a true
// compare-and-swap across concurrent workers and processes sharing the
// store, with no in-memory locks.
type JobStorage struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewJobStorage creates a new JobStorage instance
func NewJobStorage(db *BadgerDB, logger arbor.ILogger) interfaces.JobStorage {
	return &JobStorage{db: db, logger: logger}
}

func (s *JobStorage) SaveJob(ctx context.Context, job *models.Job) error {
	if err := job.Validate(); err != nil {
		return fmt.Errorf("invalid job: %w", err)
	}
	if err := s.db.Store().Upsert(job.ID, *job); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *JobStorage) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := s.db.Store().Get(id, &job); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, interfaces.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

func (s *JobStorage) ListJobs(ctx context.Context, opts *interfaces.JobListOptions) ([]*models.Job, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, nil); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	var result []*models.Job
	for i := range jobs {
		if opts != nil {
			if opts.TwinID != "" && jobs[i].TwinID != opts.TwinID {
				continue
			}
			if opts.SourceID != "" && jobs[i].SourceID != opts.SourceID {
				continue
			}
			if opts.Status != "" && jobs[i].Status != opts.Status {
				continue
			}
		}
		result = append(result, &jobs[i])
	}

	// Newest first
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})

	if opts != nil {
		if opts.Offset > 0 {
			if opts.Offset >= len(result) {
				return []*models.Job{}, nil
			}
			result = result[opts.Offset:]
		}
		if opts.Limit > 0 && opts.Limit < len(result) {
			result = result[:opts.Limit]
		}
	}

	return result, nil
}

// Claim atomically transitions the job from queued to processing. This is
// the sole synchronization point of the queue: of any number of racing
// callers, exactly one receives the job; the rest get ErrAlreadyClaimed.
func (s *JobStorage) Claim(ctx context.Context, jobID string) (*models.Job, error) {
	var claimed models.Job

	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var job models.Job
		if err := s.db.Store().TxGet(txn, jobID, &job); err != nil {
			if err == badgerhold.ErrNotFound {
				return interfaces.ErrNotFound
			}
			return err
		}

		if job.Status != models.JobStatusQueued {
			return interfaces.ErrAlreadyClaimed
		}

		now := time.Now()
		job.Status = models.JobStatusProcessing
		job.StartedAt = &now
		job.Heartbeat = &now
		job.Attempts++

		if err := s.db.Store().TxUpdate(txn, jobID, job); err != nil {
			return err
		}
		claimed = job
		return nil
	})

	if err != nil {
		// A commit conflict means another transaction touched the row
		// between our read and write - same outcome as losing the CAS.
		if err == badgerdb.ErrConflict {
			return nil, interfaces.ErrAlreadyClaimed
		}
		if err == interfaces.ErrNotFound || err == interfaces.ErrAlreadyClaimed {
			return nil, err
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	s.logger.Debug().
		Str("job_id", claimed.ID).
		Str("source_id", claimed.SourceID).
		Int("attempts", claimed.Attempts).
		Msg("Job claimed")

	return &claimed, nil
}

// NextQueued returns the highest-priority, oldest ready queued job without
// claiming it. Callers race on Claim afterwards.
func (s *JobStorage) NextQueued(ctx context.Context, twinID string) (*models.Job, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(models.JobStatusQueued).Index("Status")); err != nil {
		return nil, fmt.Errorf("failed to query queued jobs: %w", err)
	}

	now := time.Now()
	var ready []*models.Job
	for i := range jobs {
		if twinID != "" && jobs[i].TwinID != twinID {
			continue
		}
		if !jobs[i].Ready(now) {
			continue
		}
		ready = append(ready, &jobs[i])
	}

	if len(ready) == 0 {
		return nil, interfaces.ErrNoJob
	}

	sort.Slice(ready, func(i, j int) bool {
		if ready[i].Priority != ready[j].Priority {
			return ready[i].Priority > ready[j].Priority
		}
		return ready[i].CreatedAt.Before(ready[j].CreatedAt)
	})

	return ready[0], nil
}

func (s *JobStorage) ActiveJobForSource(ctx context.Context, sourceID string) (*models.Job, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("SourceID").Eq(sourceID).Index("SourceID")); err != nil {
		return nil, fmt.Errorf("failed to query jobs for source: %w", err)
	}

	for i := range jobs {
		if jobs[i].IsActive() {
			return &jobs[i], nil
		}
	}
	return nil, nil
}

func (s *JobStorage) CompleteJob(ctx context.Context, jobID string) error {
	return s.finishJob(ctx, jobID, models.JobStatusComplete, "")
}

func (s *JobStorage) FailJob(ctx context.Context, jobID string, errorMessage string, needsAttention bool) error {
	status := models.JobStatusFailed
	if needsAttention {
		status = models.JobStatusNeedsAttention
	}
	return s.finishJob(ctx, jobID, status, errorMessage)
}

// finishJob writes a terminal job status. Runs in a transaction so a
// concurrent requeue cannot interleave with the terminal write.
func (s *JobStorage) finishJob(ctx context.Context, jobID string, status models.JobStatus, errorMessage string) error {
	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var job models.Job
		if err := s.db.Store().TxGet(txn, jobID, &job); err != nil {
			if err == badgerhold.ErrNotFound {
				return interfaces.ErrNotFound
			}
			return err
		}

		now := time.Now()
		job.Status = status
		job.CompletedAt = &now
		if errorMessage != "" {
			job.ErrorMessage = errorMessage
		}

		return s.db.Store().TxUpdate(txn, jobID, job)
	})
	if err != nil {
		if err == interfaces.ErrNotFound {
			return err
		}
		return fmt.Errorf("failed to finish job: %w", err)
	}

	s.logger.Debug().Str("job_id", jobID).Str("status", string(status)).Msg("Job finished")
	return nil
}

func (s *JobStorage) RequeueJob(ctx context.Context, jobID string, notBefore time.Time, reason string) error {
	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var job models.Job
		if err := s.db.Store().TxGet(txn, jobID, &job); err != nil {
			if err == badgerhold.ErrNotFound {
				return interfaces.ErrNotFound
			}
			return err
		}

		job.Status = models.JobStatusQueued
		job.NotBefore = &notBefore
		job.Heartbeat = nil
		if reason != "" {
			if job.Metadata == nil {
				job.Metadata = make(map[string]interface{})
			}
			job.Metadata["requeue_reason"] = reason
		}

		return s.db.Store().TxUpdate(txn, jobID, job)
	})
	if err != nil {
		if err == interfaces.ErrNotFound {
			return err
		}
		return fmt.Errorf("failed to requeue job: %w", err)
	}

	s.logger.Info().
		Str("job_id", jobID).
		Str("not_before", notBefore.Format(time.RFC3339)).
		Str("reason", reason).
		Msg("Job requeued")
	return nil
}

// UpdateHeartbeat records liveness for a processing job. The check and
// the write share one transaction: a heartbeat that raced with the
// terminal status write must not resurrect the job as processing.
func (s *JobStorage) UpdateHeartbeat(ctx context.Context, jobID string) error {
	err := s.db.Store().Badger().Update(func(txn *badgerdb.Txn) error {
		var job models.Job
		if err := s.db.Store().TxGet(txn, jobID, &job); err != nil {
			if err == badgerhold.ErrNotFound {
				return nil // job deleted while the heartbeat ticker was in flight
			}
			return err
		}

		if job.Status != models.JobStatusProcessing {
			return nil
		}

		now := time.Now()
		job.Heartbeat = &now
		return s.db.Store().TxUpdate(txn, jobID, job)
	})
	if err != nil {
		// Losing a commit race to the terminal write is fine; the next
		// tick either sees the finished job or the job is gone.
		if err == badgerdb.ErrConflict {
			return nil
		}
		return fmt.Errorf("failed to update heartbeat: %w", err)
	}
	return nil
}

func (s *JobStorage) StaleProcessing(ctx context.Context, olderThan time.Duration) ([]*models.Job, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(models.JobStatusProcessing).Index("Status")); err != nil {
		return nil, fmt.Errorf("failed to query processing jobs: %w", err)
	}

	threshold := time.Now().Add(-olderThan)
	var stale []*models.Job
	for i := range jobs {
		switch {
		case jobs[i].Heartbeat != nil && jobs[i].Heartbeat.Before(threshold):
			stale = append(stale, &jobs[i])
		case jobs[i].Heartbeat == nil && jobs[i].StartedAt != nil && jobs[i].StartedAt.Before(threshold):
			stale = append(stale, &jobs[i])
		}
	}
	return stale, nil
}

func (s *JobStorage) CountByStatus(ctx context.Context) (map[models.JobStatus]int, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, nil); err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}

	counts := make(map[models.JobStatus]int)
	for i := range jobs {
		counts[jobs[i].Status]++
	}
	return counts, nil
}

func (s *JobStorage) CountQueued(ctx context.Context, twinID string) (int, error) {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(models.JobStatusQueued).Index("Status")); err != nil {
		return 0, fmt.Errorf("failed to count queued jobs: %w", err)
	}

	count := 0
	for i := range jobs {
		if twinID == "" || jobs[i].TwinID == twinID {
			count++
		}
	}
	return count, nil
}

func (s *JobStorage) DeleteJobsForSource(ctx context.Context, sourceID string) error {
	var jobs []models.Job
	if err := s.db.Store().Find(&jobs, badgerhold.Where("SourceID").Eq(sourceID).Index("SourceID")); err != nil {
		return fmt.Errorf("failed to find jobs for source: %w", err)
	}

	for i := range jobs {
		if err := s.db.Store().Delete(jobs[i].ID, &models.Job{}); err != nil && err != badgerhold.ErrNotFound {
			s.logger.Warn().Err(err).Str("job_id", jobs[i].ID).Msg("Failed to delete job")
		}
	}
	return nil
}
