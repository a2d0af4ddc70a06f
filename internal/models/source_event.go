package models

import (
	"time"

	"github.com/google/uuid"
)

// EventStatus describes what a timeline entry records
type EventStatus string

const (
	EventStatusStarted   EventStatus = "started"
	EventStatusCompleted EventStatus = "completed"
	EventStatusError     EventStatus = "error"
)

// SourceEvent is one append-only timeline entry for a source. The log is
// never mutated or deleted during a source's lifetime, only appended;
// entries for one source are totally ordered by (CreatedAt, Seq).
type SourceEvent struct {
	ID       string `json:"id" badgerhold:"key"`
	Seq      uint64 `json:"seq"`
	SourceID string `json:"source_id" badgerhold:"index"`
	TwinID   string `json:"twin_id"`

	Provider Provider    `json:"provider"`
	Step     Step        `json:"step"`
	Status   EventStatus `json:"status"`
	Message  string      `json:"message,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty"`
	Error    *IngestError           `json:"error,omitempty"`

	CorrelationID string     `json:"correlation_id,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// NewSourceEvent creates a timeline entry for a source. Seq is assigned by
// the event store at append time.
func NewSourceEvent(source *Source, step Step, status EventStatus) *SourceEvent {
	return &SourceEvent{
		ID:        "evt_" + uuid.New().String(),
		SourceID:  source.ID,
		TwinID:    source.TwinID,
		Provider:  source.Provider,
		Step:      step,
		Status:    status,
		Metadata:  make(map[string]interface{}),
		CreatedAt: time.Now(),
	}
}
