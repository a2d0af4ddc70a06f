package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
	"github.com/ternarybob/arbor"
)

func testClassifier(includeStack bool) *Classifier {
	return NewClassifier(DefaultPolicy(arbor.NewLogger()), includeStack)
}

func TestClassifyTypedFailure(t *testing.T) {
	c := testClassifier(false)

	failure := models.NewStepFailure(models.ErrCodeLinkedInBlocked, "LinkedIn blocked the request; paste the post text instead").
		WithHTTPStatus(999).
		WithProviderCode("http_999")

	record := c.Classify(failure, models.ProviderLinkedIn, models.StepFetching, "job_abc")

	if record.Code != models.ErrCodeLinkedInBlocked {
		t.Errorf("code = %s, want LINKEDIN_BLOCKED_OR_REQUIRES_AUTH", record.Code)
	}
	if record.HTTPStatus != 999 {
		t.Errorf("http_status = %d, want 999", record.HTTPStatus)
	}
	if record.ProviderErrorCode != "http_999" {
		t.Errorf("provider_error_code = %s, want http_999", record.ProviderErrorCode)
	}
	if record.Retryable {
		t.Error("policy blocked code must classify non-retryable")
	}
	if record.Provider != models.ProviderLinkedIn || record.Step != models.StepFetching {
		t.Error("provider and step must come from the failing context")
	}
	if record.CorrelationID != "job_abc" {
		t.Errorf("correlation_id = %s, want job_abc", record.CorrelationID)
	}
	if record.Stacktrace != "" {
		t.Error("stacktrace must be empty without the debug flag")
	}
}

func TestClassifyTimeout(t *testing.T) {
	c := testClassifier(false)

	wrapped := fmt.Errorf("fetch https://example.com: %w", context.DeadlineExceeded)
	record := c.Classify(wrapped, models.ProviderWeb, models.StepFetching, "job_1")

	if record.Code != models.ErrCodeStepTimeout {
		t.Errorf("code = %s, want STEP_TIMEOUT", record.Code)
	}
	if !record.Retryable {
		t.Error("timeouts should be retryable by default")
	}
}

func TestClassifyUntypedFallsBackPerStep(t *testing.T) {
	c := testClassifier(false)

	tests := []struct {
		step models.Step
		code models.ErrorCode
	}{
		{models.StepFetching, models.ErrCodeFetchFailed},
		{models.StepParsed, models.ErrCodeParseFailed},
		{models.StepChunked, models.ErrCodeChunkingFailed},
		{models.StepEmbedded, models.ErrCodeEmbeddingsFailed},
		{models.StepIndexed, models.ErrCodeIndexingFailed},
		{models.StepQueued, models.ErrCodeInternal},
	}

	for _, tt := range tests {
		record := c.Classify(errors.New("boom"), models.ProviderWeb, tt.step, "job_1")
		if record.Code != tt.code {
			t.Errorf("step %s classified as %s, want %s", tt.step, record.Code, tt.code)
		}
	}
}

func TestClassifyRedactsSecrets(t *testing.T) {
	c := testClassifier(false)

	raw := "request failed: Authorization: Bearer sk-super-secret\nCookie: session=abc123\nurl https://api.example.com?api_key=XYZ&token=TTT"
	record := c.Classify(errors.New(raw), models.ProviderWeb, models.StepFetching, "job_1")

	for _, secret := range []string{"sk-super-secret", "session=abc123", "api_key=XYZ", "token=TTT"} {
		if strings.Contains(record.Raw, secret) {
			t.Errorf("raw payload leaked %q: %s", secret, record.Raw)
		}
	}
	if !strings.Contains(record.Raw, "[redacted]") {
		t.Errorf("expected redaction markers in raw: %s", record.Raw)
	}
}

func TestClassifyTruncatesRaw(t *testing.T) {
	c := testClassifier(false)

	record := c.Classify(errors.New(strings.Repeat("x", 5000)), models.ProviderWeb, models.StepFetching, "job_1")
	if len(record.Raw) > maxRawLength {
		t.Errorf("raw length %d exceeds cap %d", len(record.Raw), maxRawLength)
	}
}

func TestClassifyStacktraceOnlyUnderDebug(t *testing.T) {
	record := testClassifier(true).Classify(errors.New("boom"), models.ProviderWeb, models.StepFetching, "job_1")
	if record.Stacktrace == "" {
		t.Error("debug classifier should attach a stacktrace")
	}
}

func TestPolicyProviderOverrides(t *testing.T) {
	policy := DefaultPolicy(arbor.NewLogger())
	policy.providers["web"] = providerPolicy{
		MaxAttempts:    5,
		BackoffSeconds: []int{10, 20},
		Retryable:      map[string]bool{string(models.ErrCodeParseFailed): true},
	}

	if got := policy.MaxAttempts(models.ProviderWeb); got != 5 {
		t.Errorf("web max attempts = %d, want 5", got)
	}
	if got := policy.MaxAttempts(models.ProviderYouTube); got != 3 {
		t.Errorf("default max attempts = %d, want 3", got)
	}

	if !policy.Retryable(models.ProviderWeb, models.ErrCodeParseFailed) {
		t.Error("provider override should make PARSE_FAILED retryable for web")
	}
	if policy.Retryable(models.ProviderYouTube, models.ErrCodeParseFailed) {
		t.Error("override must not leak to other providers")
	}

	// No override can raise a policy-blocked code
	policy.providers["linkedin"] = providerPolicy{
		Retryable: map[string]bool{string(models.ErrCodeLinkedInBlocked): true},
	}
	if policy.Retryable(models.ProviderLinkedIn, models.ErrCodeLinkedInBlocked) {
		t.Error("policy blocked codes are pinned non-retryable")
	}
}

func TestPolicyBackoffSchedule(t *testing.T) {
	policy := DefaultPolicy(arbor.NewLogger())

	cases := []struct {
		attempt int
		want    int
	}{
		{1, 30},
		{2, 120},
		{3, 600},
		{7, 600}, // past the schedule reuses the last entry
		{0, 30},  // clamped up to the first attempt
	}
	for _, tt := range cases {
		if got := policy.BackoffSeconds(models.ProviderWeb, tt.attempt); got != tt.want {
			t.Errorf("backoff(attempt=%d) = %d, want %d", tt.attempt, got, tt.want)
		}
	}
}

func TestLoadPolicyFromFile(t *testing.T) {
	path := t.TempDir() + "/policy.yaml"
	content := `default:
  max_attempts: 4
  backoff_seconds: [5, 15]
providers:
  youtube:
    max_attempts: 2
    retryable:
      YOUTUBE_TRANSCRIPT_UNAVAILABLE: false
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write policy file: %v", err)
	}

	policy, err := LoadPolicy(path, arbor.NewLogger())
	if err != nil {
		t.Fatalf("LoadPolicy failed: %v", err)
	}

	if got := policy.MaxAttempts(models.ProviderWeb); got != 4 {
		t.Errorf("default max attempts = %d, want 4", got)
	}
	if got := policy.MaxAttempts(models.ProviderYouTube); got != 2 {
		t.Errorf("youtube max attempts = %d, want 2", got)
	}
	if got := policy.BackoffSeconds(models.ProviderWeb, 2); got != 15 {
		t.Errorf("backoff = %d, want 15", got)
	}
	if policy.Retryable(models.ProviderYouTube, models.ErrCodeYouTubeTranscriptUnavailable) {
		t.Error("file override should pin transcript errors non-retryable")
	}
}
