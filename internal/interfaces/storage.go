package interfaces

import (
	"context"
	"errors"
	"time"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

// Sentinel storage errors
var (
	// ErrNotFound is returned when a requested record does not exist
	ErrNotFound = errors.New("record not found")

	// ErrAlreadyClaimed is returned by the conditional job claim when the
	// row was no longer queued - another worker won the race.
	ErrAlreadyClaimed = errors.New("job already claimed")

	// ErrNoJob is returned when no queued job is ready for claiming
	ErrNoJob = errors.New("no queued jobs ready")

	// ErrDiagnosticsUnavailable is returned for timeline reads when the
	// diagnostics schema is not provisioned. Callers must surface it
	// explicitly - never as a silently-empty timeline.
	ErrDiagnosticsUnavailable = errors.New("diagnostics schema not provisioned")
)

// SourceListOptions filters source listings
type SourceListOptions struct {
	TwinID string
	Status models.SourceStatus
	Limit  int
	Offset int
}

// JobListOptions filters job listings
type JobListOptions struct {
	TwinID   string
	SourceID string
	Status   models.JobStatus
	Limit    int
	Offset   int
}

// SourceStorage persists sources. Source rows are mutated only by the
// pipeline executor (step transitions) and the retry controller (reset).
type SourceStorage interface {
	SaveSource(ctx context.Context, source *models.Source) error
	GetSource(ctx context.Context, id string) (*models.Source, error)
	ListSources(ctx context.Context, opts *SourceListOptions) ([]*models.Source, error)

	// FindByContentHash returns live sources in the twin sharing the hash,
	// excluding excludeID. Used by the duplicate health check.
	FindByContentHash(ctx context.Context, twinID, hash, excludeID string) ([]*models.Source, error)

	DeleteSource(ctx context.Context, id string) error
}

// EventStorage is the append-only source timeline. It may legitimately be
// absent (schema not provisioned); Available reports that, and ingestion
// must proceed without it.
type EventStorage interface {
	// Available reports whether the diagnostics schema is provisioned
	Available() bool

	// AppendEvent assigns the per-store sequence number and appends.
	// The log is never rewritten; retry runs simply append new events.
	AppendEvent(ctx context.Context, event *models.SourceEvent) error

	// ListEvents returns all events for a source ordered by (CreatedAt, Seq).
	// Returns ErrDiagnosticsUnavailable when the schema is absent.
	ListEvents(ctx context.Context, sourceID string) ([]*models.SourceEvent, error)

	// DeleteEvents removes a source's events (cascading source delete only)
	DeleteEvents(ctx context.Context, sourceID string) error
}

// JobStorage is the canonical, durable job queue table
type JobStorage interface {
	SaveJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id string) (*models.Job, error)
	ListJobs(ctx context.Context, opts *JobListOptions) ([]*models.Job, error)

	// Claim atomically transitions the job from queued to processing.
	// This compare-and-swap is the sole concurrency-control point of the
	// queue: at most one caller ever receives the claimed job. Returns
	// ErrAlreadyClaimed when the row was not queued anymore.
	Claim(ctx context.Context, jobID string) (*models.Job, error)

	// NextQueued returns the highest-priority, oldest queued job that is
	// ready (NotBefore elapsed), optionally filtered by twin. The caller
	// must still Claim it. Returns ErrNoJob when the queue is empty.
	NextQueued(ctx context.Context, twinID string) (*models.Job, error)

	// ActiveJobForSource returns the single queued-or-processing job for
	// the source, or nil when none exists.
	ActiveJobForSource(ctx context.Context, sourceID string) (*models.Job, error)

	// CompleteJob marks a processing job complete
	CompleteJob(ctx context.Context, jobID string) error

	// FailJob marks a processing job failed, or needs_attention when the
	// failure requires operator review.
	FailJob(ctx context.Context, jobID string, errorMessage string, needsAttention bool) error

	// RequeueJob returns a processing job to queued with a delivery delay
	RequeueJob(ctx context.Context, jobID string, notBefore time.Time, reason string) error

	// UpdateHeartbeat records liveness for a processing job
	UpdateHeartbeat(ctx context.Context, jobID string) error

	// StaleProcessing returns processing jobs whose heartbeat (or start,
	// when no heartbeat was ever written) is older than the threshold.
	StaleProcessing(ctx context.Context, olderThan time.Duration) ([]*models.Job, error)

	CountByStatus(ctx context.Context) (map[models.JobStatus]int, error)
	CountQueued(ctx context.Context, twinID string) (int, error)

	DeleteJobsForSource(ctx context.Context, sourceID string) error
}

// HealthStorage persists health check records (append-only)
type HealthStorage interface {
	AppendCheck(ctx context.Context, check *models.HealthCheck) error
	ListChecks(ctx context.Context, sourceID string) ([]*models.HealthCheck, error)
	DeleteChecks(ctx context.Context, sourceID string) error
}

// DocumentStorage persists normalized extracted content
type DocumentStorage interface {
	SaveDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, sourceID string) (*models.Document, error)
	DeleteDocument(ctx context.Context, sourceID string) error
}

// VectorStorage persists chunk embeddings for the index
type VectorStorage interface {
	SaveEmbeddings(ctx context.Context, embeddings []*models.ChunkEmbedding) error
	ListEmbeddings(ctx context.Context, sourceID string) ([]*models.ChunkEmbedding, error)
	DeleteEmbeddings(ctx context.Context, sourceID string) error
}

// BlobStorage stores raw uploaded file bytes keyed by file key
type BlobStorage interface {
	PutBlob(ctx context.Context, key string, data []byte) error
	GetBlob(ctx context.Context, key string) ([]byte, error)
	DeleteBlob(ctx context.Context, key string) error
}

// StorageManager aggregates all storage backends
type StorageManager interface {
	SourceStorage() SourceStorage
	EventStorage() EventStorage
	JobStorage() JobStorage
	HealthStorage() HealthStorage
	DocumentStorage() DocumentStorage
	VectorStorage() VectorStorage
	BlobStorage() BlobStorage
	Close() error
}
