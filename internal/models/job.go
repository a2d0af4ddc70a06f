package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// JobStatus is the queue lifecycle state of a job
type JobStatus string

const (
	JobStatusQueued         JobStatus = "queued"
	JobStatusProcessing     JobStatus = "processing"
	JobStatusNeedsAttention JobStatus = "needs_attention"
	JobStatusComplete       JobStatus = "complete"
	JobStatusFailed         JobStatus = "failed"
)

// JobType classifies what kind of work the job represents
type JobType string

const (
	JobTypeIngest   JobType = "ingest"
	JobTypeReingest JobType = "reingest"
)

// Job is one unit of queued work referencing a source. The job table is
// the canonical, durable queue; at most one job per source may be in
// {queued, processing} at any time (enforced by enqueue and retry logic,
// not by a uniqueness constraint, since historical jobs coexist).
type Job struct {
	ID       string `json:"id" badgerhold:"key"`
	SourceID string `json:"source_id" badgerhold:"index"`
	TwinID   string `json:"twin_id" badgerhold:"index"`

	Status   JobStatus `json:"status" badgerhold:"index"`
	Type     JobType   `json:"job_type"`
	Priority int       `json:"priority"`

	// Attempts counts claims of this job; NotBefore delays redelivery of a
	// requeued job until the provider backoff has elapsed.
	Attempts  int        `json:"attempts"`
	NotBefore *time.Time `json:"not_before,omitempty"`

	ErrorMessage string                 `json:"error_message,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Heartbeat   *time.Time `json:"heartbeat,omitempty"`
}

// NewJob creates a queued ingestion job for a source
func NewJob(source *Source, jobType JobType, priority int) *Job {
	return &Job{
		ID:        "job_" + uuid.New().String(),
		SourceID:  source.ID,
		TwinID:    source.TwinID,
		Status:    JobStatusQueued,
		Type:      jobType,
		Priority:  priority,
		Metadata:  make(map[string]interface{}),
		CreatedAt: time.Now(),
	}
}

// IsActive reports whether the job occupies the source's single active slot
func (j *Job) IsActive() bool {
	return j.Status == JobStatusQueued || j.Status == JobStatusProcessing
}

// IsTerminal reports whether the job reached a final state
func (j *Job) IsTerminal() bool {
	return j.Status == JobStatusComplete || j.Status == JobStatusFailed || j.Status == JobStatusNeedsAttention
}

// Ready reports whether a queued job is eligible for claiming at t
func (j *Job) Ready(t time.Time) bool {
	if j.Status != JobStatusQueued {
		return false
	}
	return j.NotBefore == nil || !j.NotBefore.After(t)
}

// Validate validates the job
func (j *Job) Validate() error {
	if j.ID == "" {
		return fmt.Errorf("job ID is required")
	}
	if j.SourceID == "" {
		return fmt.Errorf("job source ID is required")
	}
	if j.TwinID == "" {
		return fmt.Errorf("job twin ID is required")
	}
	if j.Type == "" {
		return fmt.Errorf("job type is required")
	}
	return nil
}
