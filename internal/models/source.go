package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SourceStatus is the coarse derived status of a source
type SourceStatus string

const (
	SourceStatusPending    SourceStatus = "pending"
	SourceStatusProcessing SourceStatus = "processing"
	SourceStatusLive       SourceStatus = "live"
	SourceStatusError      SourceStatus = "error"
)

// StagingStatus is the separate approval workflow state. It moves
// independently of the pipeline status.
type StagingStatus string

const (
	StagingStatusStaged   StagingStatus = "staged"
	StagingStatusApproved StagingStatus = "approved"
	StagingStatusRejected StagingStatus = "rejected"
	StagingStatusTraining StagingStatus = "training"
	StagingStatusLive     StagingStatus = "live"
)

// HealthStatus is the post-hoc health assessment of a source
type HealthStatus string

const (
	HealthStatusHealthy        HealthStatus = "healthy"
	HealthStatusNeedsAttention HealthStatus = "needs_attention"
	HealthStatusFailed         HealthStatus = "failed"
)

// Source is one ingested unit of knowledge belonging to a twin.
//
// Denormalized last_* fields give O(1) status reads without scanning the
// event log. Invariants:
//   - LastStep always reflects the step most recently attempted; on failure
//     it is pinned to the failing step and never advanced past it.
//   - LastCompletedStep only ever advances (except under an explicit retry
//     reset) and is what the executor uses to skip already-done steps.
//   - When Status == error, LastError.Step == LastStep exactly.
type Source struct {
	ID     string `json:"id" badgerhold:"key"`
	TwinID string `json:"twin_id" badgerhold:"index"`

	Provider Provider `json:"provider"`
	URL      string   `json:"url,omitempty"`
	FileName string   `json:"file_name,omitempty"`
	FileKey  string   `json:"file_key,omitempty"`

	Status        SourceStatus  `json:"status" badgerhold:"index"`
	StagingStatus StagingStatus `json:"staging_status"`
	HealthStatus  HealthStatus  `json:"health_status"`

	LastProvider      Provider     `json:"last_provider,omitempty"`
	LastStep          Step         `json:"last_step"`
	LastCompletedStep Step         `json:"last_completed_step"`
	LastError         *IngestError `json:"last_error,omitempty"`
	LastErrorAt       *time.Time   `json:"last_error_at,omitempty"`
	LastEventAt       *time.Time   `json:"last_event_at,omitempty"`

	Title               string                 `json:"title,omitempty"`
	ContentHash         string                 `json:"content_hash,omitempty" badgerhold:"index"`
	ChunkCount          int                    `json:"chunk_count"`
	ExtractedTextLength int                    `json:"extracted_text_length"`
	Metadata            map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewSource creates a source for the given twin and input reference.
// The provider is classified eagerly so it is stable for the lifetime of
// the source even if classification rules change later.
func NewSource(twinID string, ref Reference) *Source {
	now := time.Now()
	return &Source{
		ID:                "src_" + uuid.New().String(),
		TwinID:            twinID,
		Provider:          ClassifyReference(ref),
		URL:               ref.URL,
		FileName:          ref.FileName,
		FileKey:           ref.FileKey,
		Status:            SourceStatusPending,
		StagingStatus:     StagingStatusStaged,
		HealthStatus:      HealthStatusHealthy,
		LastStep:          StepQueued,
		LastCompletedStep: StepQueued,
		Metadata:          make(map[string]interface{}),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// Reference re-derives the original input from persisted fields. Retry
// always rebuilds the input from here, never from caller-supplied data.
func (s *Source) Reference() Reference {
	return Reference{
		URL:      s.URL,
		FileName: s.FileName,
		FileKey:  s.FileKey,
	}
}

// IsTerminal reports whether the source is in a terminal pipeline state
func (s *Source) IsTerminal() bool {
	return s.Status == SourceStatusLive || s.Status == SourceStatusError
}

// Validate validates the source
func (s *Source) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("source ID is required")
	}
	if s.TwinID == "" {
		return fmt.Errorf("twin ID is required")
	}
	if !s.Provider.IsValid() {
		return fmt.Errorf("invalid provider: %s", s.Provider)
	}
	if s.URL == "" && s.FileKey == "" {
		return fmt.Errorf("source requires a URL or an uploaded file")
	}
	return nil
}
