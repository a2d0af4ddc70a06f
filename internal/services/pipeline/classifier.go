package pipeline

import (
	"context"
	"errors"
	"regexp"
	"runtime/debug"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
)

const maxRawLength = 2000

// secretPatterns match credential material that must never be persisted
// into error records.
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(authorization:\s*)\S+(\s+\S+)?`),
	regexp.MustCompile(`(?i)(cookie:\s*)[^\n]+`),
	regexp.MustCompile(`(?i)(set-cookie:\s*)[^\n]+`),
	regexp.MustCompile(`(?i)(api[_-]?key=)[^&\s]+`),
	regexp.MustCompile(`(?i)(token=)[^&\s]+`),
}

// Classifier converts any step error into the structured IngestError
// record that is persisted and surfaced to API consumers.
type Classifier struct {
	policy       *Policy
	includeStack bool
}

// NewClassifier creates an error classifier over the retry policy
func NewClassifier(policy *Policy, includeStack bool) *Classifier {
	return &Classifier{policy: policy, includeStack: includeStack}
}

// Classify builds the persisted error record for a failed step. Typed
// adapter failures keep their code; untyped errors fall back to a
// step-specific code so every failure still lands in the taxonomy.
func (c *Classifier) Classify(err error, provider models.Provider, step models.Step, correlationID string) *models.IngestError {
	record := &models.IngestError{
		Provider:      provider,
		Step:          step,
		CorrelationID: correlationID,
	}

	var ingErr *models.IngestError
	var failure *models.StepFailure

	switch {
	case errors.As(err, &ingErr):
		record = ingErr.Clone()
		record.Provider = provider
		record.Step = step
		record.CorrelationID = correlationID

	case errors.As(err, &failure):
		record.Code = failure.Code
		record.Message = failure.Message
		record.HTTPStatus = failure.HTTPStatus
		record.ProviderErrorCode = failure.ProviderErrorCode
		if failure.Cause != nil {
			record.Raw = failure.Cause.Error()
		}

	case errors.Is(err, context.DeadlineExceeded):
		record.Code = models.ErrCodeStepTimeout
		record.Message = "step exceeded its bounded execution timeout"
		record.Raw = err.Error()

	default:
		record.Code = fallbackCode(step)
		record.Message = err.Error()
		record.Raw = err.Error()
	}

	record.Retryable = c.policy.Retryable(provider, record.Code)
	record.Raw = sanitizeRaw(record.Raw)

	if c.includeStack && record.Stacktrace == "" {
		record.Stacktrace = string(debug.Stack())
	}

	return record
}

// fallbackCode maps a step to its generic failure code for errors the
// adapter could not identify itself.
func fallbackCode(step models.Step) models.ErrorCode {
	switch step {
	case models.StepFetching:
		return models.ErrCodeFetchFailed
	case models.StepParsed:
		return models.ErrCodeParseFailed
	case models.StepChunked:
		return models.ErrCodeChunkingFailed
	case models.StepEmbedded:
		return models.ErrCodeEmbeddingsFailed
	case models.StepIndexed:
		return models.ErrCodeIndexingFailed
	default:
		return models.ErrCodeInternal
	}
}

// sanitizeRaw strips credential material and truncates oversized payloads
func sanitizeRaw(raw string) string {
	if raw == "" {
		return ""
	}
	for _, pattern := range secretPatterns {
		raw = pattern.ReplaceAllString(raw, "${1}[redacted]")
	}
	if len(raw) > maxRawLength {
		raw = raw[:maxRawLength]
	}
	return raw
}
