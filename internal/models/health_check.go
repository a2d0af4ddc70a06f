package models

import (
	"time"

	"github.com/google/uuid"
)

// CheckType identifies an independent post-hoc health check
type CheckType string

const (
	CheckEmptyExtraction CheckType = "empty_extraction"
	CheckDuplicate       CheckType = "duplicate"
	CheckChunkAnomaly    CheckType = "chunk_anomaly"
	CheckMissingMetadata CheckType = "missing_metadata"
)

// CheckStatus is the outcome of a single health check run
type CheckStatus string

const (
	CheckStatusPass    CheckStatus = "pass"
	CheckStatusFail    CheckStatus = "fail"
	CheckStatusWarning CheckStatus = "warning"
)

// HealthCheck is an independent analysis record for a source. Checks run
// after a pipeline run completes or fails, never block pipeline progress,
// and re-running appends fresh records rather than mutating history.
type HealthCheck struct {
	ID       string `json:"id" badgerhold:"key"`
	SourceID string `json:"source_id" badgerhold:"index"`
	TwinID   string `json:"twin_id"`

	CheckType CheckType   `json:"check_type"`
	Status    CheckStatus `json:"status"`
	Message   string      `json:"message,omitempty"`

	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewHealthCheck creates a health check record for a source
func NewHealthCheck(source *Source, checkType CheckType, status CheckStatus, message string) *HealthCheck {
	return &HealthCheck{
		ID:        "hc_" + uuid.New().String(),
		SourceID:  source.ID,
		TwinID:    source.TwinID,
		CheckType: checkType,
		Status:    status,
		Message:   message,
		Metadata:  make(map[string]interface{}),
		CreatedAt: time.Now(),
	}
}
