package models

import "fmt"

// ErrorCode is a stable string identifier for a classified ingestion
// failure. Codes are part of the API contract consumed by the UI - never
// rename an existing code.
type ErrorCode string

const (
	ErrCodeYouTubeTranscriptUnavailable ErrorCode = "YOUTUBE_TRANSCRIPT_UNAVAILABLE"
	ErrCodeLinkedInBlocked              ErrorCode = "LINKEDIN_BLOCKED_OR_REQUIRES_AUTH"
	ErrCodeXBlocked                     ErrorCode = "X_BLOCKED_OR_REQUIRES_AUTH"
	ErrCodeFileExtractionEmpty          ErrorCode = "FILE_EXTRACTION_EMPTY"
	ErrCodeFileUnsupported              ErrorCode = "FILE_TYPE_UNSUPPORTED"
	ErrCodeContentEmpty                 ErrorCode = "CONTENT_EMPTY"
	ErrCodePodcastFeedInvalid           ErrorCode = "PODCAST_FEED_INVALID"
	ErrCodeFetchFailed                  ErrorCode = "FETCH_FAILED"
	ErrCodeParseFailed                  ErrorCode = "PARSE_FAILED"
	ErrCodeChunkingFailed               ErrorCode = "CHUNKING_FAILED"
	ErrCodeEmbeddingsFailed             ErrorCode = "EMBEDDINGS_FAILED"
	ErrCodeIndexingFailed               ErrorCode = "INDEXING_FAILED"
	ErrCodeStepTimeout                  ErrorCode = "STEP_TIMEOUT"
	ErrCodeRateLimited                  ErrorCode = "RATE_LIMITED"
	ErrCodeInternal                     ErrorCode = "INTERNAL_ERROR"
)

// defaultRetryable is the baseline retry policy per code. Per-provider
// policy files may override these (see pipeline.Policy); policy-blocked
// codes are pinned non-retryable and cannot be overridden upward.
var defaultRetryable = map[ErrorCode]bool{
	ErrCodeYouTubeTranscriptUnavailable: false,
	ErrCodeLinkedInBlocked:              false,
	ErrCodeXBlocked:                     false,
	ErrCodeFileExtractionEmpty:          false,
	ErrCodeFileUnsupported:              false,
	ErrCodeContentEmpty:                 false,
	ErrCodePodcastFeedInvalid:           false,
	ErrCodeFetchFailed:                  true,
	ErrCodeParseFailed:                  false,
	ErrCodeChunkingFailed:               false,
	ErrCodeEmbeddingsFailed:             true,
	ErrCodeIndexingFailed:               true,
	ErrCodeStepTimeout:                  true,
	ErrCodeRateLimited:                  true,
	ErrCodeInternal:                     true,
}

// DefaultRetryable returns the baseline retryable policy for a code.
// Unknown codes default to retryable so a transient bug never strands
// a source permanently.
func DefaultRetryable(code ErrorCode) bool {
	if retryable, ok := defaultRetryable[code]; ok {
		return retryable
	}
	return true
}

// PolicyBlocked reports whether the code describes a condition this system
// refuses to work around (login automation, scraping behind auth walls).
// These are always terminal regardless of configured policy.
func (c ErrorCode) PolicyBlocked() bool {
	return c == ErrCodeLinkedInBlocked || c == ErrCodeXBlocked
}

// IngestError is the structured, persisted error record for a failed
// ingestion step. The field set is the exact payload shape surfaced to
// API consumers.
type IngestError struct {
	Code              ErrorCode `json:"code"`
	Message           string    `json:"message"`
	Provider          Provider  `json:"provider"`
	Step              Step      `json:"step"`
	HTTPStatus        int       `json:"http_status,omitempty"`
	ProviderErrorCode string    `json:"provider_error_code,omitempty"`
	Retryable         bool      `json:"retryable"`
	CorrelationID     string    `json:"correlation_id,omitempty"`
	Raw               string    `json:"raw,omitempty"`
	Stacktrace        string    `json:"stacktrace,omitempty"`
}

// Error implements the error interface so an IngestError can cross
// function boundaries as a regular Go error.
func (e *IngestError) Error() string {
	return fmt.Sprintf("%s [%s/%s]: %s", e.Code, e.Provider, e.Step, e.Message)
}

// Clone returns a copy of the error record
func (e *IngestError) Clone() *IngestError {
	if e == nil {
		return nil
	}
	clone := *e
	return &clone
}

// StepFailure is the typed failure a provider adapter raises when it can
// identify the condition itself. The error classifier converts it (or any
// untyped error) into the persisted IngestError record.
type StepFailure struct {
	Code              ErrorCode
	Message           string
	HTTPStatus        int
	ProviderErrorCode string
	Cause             error
}

// Error implements the error interface
func (f *StepFailure) Error() string {
	if f.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", f.Code, f.Message, f.Cause)
	}
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// Unwrap exposes the underlying cause for errors.Is/As chains
func (f *StepFailure) Unwrap() error {
	return f.Cause
}

// NewStepFailure creates a typed adapter failure
func NewStepFailure(code ErrorCode, message string) *StepFailure {
	return &StepFailure{Code: code, Message: message}
}

// WithHTTPStatus attaches the provider's HTTP status to the failure
func (f *StepFailure) WithHTTPStatus(status int) *StepFailure {
	f.HTTPStatus = status
	return f
}

// WithProviderCode attaches the provider's raw error code
func (f *StepFailure) WithProviderCode(code string) *StepFailure {
	f.ProviderErrorCode = code
	return f
}

// WithCause attaches the underlying error
func (f *StepFailure) WithCause(err error) *StepFailure {
	f.Cause = err
	return f
}
