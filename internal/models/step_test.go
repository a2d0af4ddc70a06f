package models

import "testing"

func TestStepOrder(t *testing.T) {
	ordered := []Step{StepQueued, StepFetching, StepParsed, StepChunked, StepEmbedded, StepIndexed, StepLive}

	for i := 1; i < len(ordered); i++ {
		prev, cur := ordered[i-1], ordered[i]
		if !prev.Before(cur) {
			t.Errorf("expected %s before %s", prev, cur)
		}
		if cur.Before(prev) {
			t.Errorf("did not expect %s before %s", cur, prev)
		}
	}
}

func TestStepIndexUnknown(t *testing.T) {
	if StepError.Index() != -1 {
		t.Errorf("error step should have no pipeline position, got %d", StepError.Index())
	}
	if Step("bogus").Index() != -1 {
		t.Error("unknown step should have index -1")
	}
	if Step("bogus").Before(StepLive) {
		t.Error("unknown step must never order before a real step")
	}
}

func TestPipelineStepsExcludeBookkeeping(t *testing.T) {
	for _, s := range PipelineSteps() {
		if s == StepQueued || s == StepLive || s == StepError {
			t.Errorf("bookkeeping step %s must not be executable", s)
		}
	}
	if len(PipelineSteps()) != 5 {
		t.Errorf("expected 5 executable steps, got %d", len(PipelineSteps()))
	}
}

func TestDefaultRetryable(t *testing.T) {
	if DefaultRetryable(ErrCodeLinkedInBlocked) {
		t.Error("LINKEDIN_BLOCKED_OR_REQUIRES_AUTH must not be retryable")
	}
	if !DefaultRetryable(ErrCodeFetchFailed) {
		t.Error("FETCH_FAILED should be retryable by default")
	}
	if !DefaultRetryable(ErrorCode("SOME_FUTURE_CODE")) {
		t.Error("unknown codes should default to retryable")
	}
}

func TestPolicyBlockedCodes(t *testing.T) {
	if !ErrCodeLinkedInBlocked.PolicyBlocked() || !ErrCodeXBlocked.PolicyBlocked() {
		t.Error("auth wall codes must be policy blocked")
	}
	if ErrCodeFetchFailed.PolicyBlocked() {
		t.Error("FETCH_FAILED is not a policy blocked condition")
	}
}
