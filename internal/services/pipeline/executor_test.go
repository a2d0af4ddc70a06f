package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/common"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/queue"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/services/diagnostics"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/services/events"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/services/health"
	badgerstore "github.com/snsettitech/verified-digital-twin-brains-sub009/internal/storage/badger"
	"github.com/ternarybob/arbor"
)

// fakeAdapter is a scripted web adapter: it fills the payload like the
// real one would, persists the document at parse time, and fails the
// configured step with the configured error.
type fakeAdapter struct {
	documents interfaces.DocumentStorage
	failStep  models.Step
	failWith  error
}

func (f *fakeAdapter) Provider() models.Provider { return models.ProviderWeb }

func (f *fakeAdapter) Performs(step models.Step) bool { return true }

func (f *fakeAdapter) Execute(ctx context.Context, source *models.Source, step models.Step, payload *interfaces.StepPayload) error {
	if step == f.failStep && f.failWith != nil {
		return f.failWith
	}

	switch step {
	case models.StepFetching:
		payload.HTML = "<html><body>hello world</body></html>"
	case models.StepParsed:
		payload.Markdown = "# Hello\n\nhello world from a page with enough text to pass the health sweep"
		payload.Text = "Hello hello world from a page with enough text to pass the health sweep"
		payload.Title = "Hello"
		payload.ContentHash = "abc123"
		now := time.Now()
		return f.documents.SaveDocument(ctx, &models.Document{
			SourceID:        source.ID,
			TwinID:          source.TwinID,
			Title:           payload.Title,
			ContentMarkdown: payload.Markdown,
			ContentText:     payload.Text,
			ContentHash:     payload.ContentHash,
			CreatedAt:       now,
			UpdatedAt:       now,
		})
	case models.StepChunked:
		payload.Chunks = []string{"Hello hello world from a page with enough text to pass the health sweep"}
		doc, err := f.documents.GetDocument(ctx, source.ID)
		if err != nil {
			return err
		}
		doc.Chunks = payload.Chunks
		return f.documents.SaveDocument(ctx, doc)
	case models.StepEmbedded:
		payload.Vectors = [][]float32{{0.1, 0.2}}
	case models.StepIndexed:
		if len(payload.Vectors) != len(payload.Chunks) {
			payload.Vectors = make([][]float32, len(payload.Chunks))
			for i := range payload.Vectors {
				payload.Vectors[i] = []float32{0.1, 0.2}
			}
		}
	}
	return nil
}

type executorFixture struct {
	executor *Executor
	manager  *queue.Manager
	sources  interfaces.SourceStorage
	events   interfaces.EventStorage
	jobs     interfaces.JobStorage
	checks   interfaces.HealthStorage
}

func newExecutorFixture(t *testing.T, adapter *fakeAdapter) *executorFixture {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := badgerstore.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sources := badgerstore.NewSourceStorage(db, logger)
	documents := badgerstore.NewDocumentStorage(db, logger)
	adapter.documents = documents
	eventStore := badgerstore.NewEventStorage(db, logger, true)
	jobs := badgerstore.NewJobStorage(db, logger)

	bus := events.NewService(logger)
	manager := queue.NewManager(jobs, bus, logger)

	registry := NewRegistry()
	registry.Register(adapter)

	policy := DefaultPolicy(logger)
	classifier := NewClassifier(policy, false)
	recorder := diagnostics.NewRecorder(sources, eventStore, bus, t.TempDir()+"/fallback.log", logger)

	executor := NewExecutor(sources, documents, manager, registry, recorder, classifier, policy, 30*time.Second, logger)
	manager.SetExecutor(executor)

	checks := badgerstore.NewHealthStorage(db, logger)
	executor.SetHealthService(health.NewChecker(sources, documents, checks, bus, 40, logger))

	return &executorFixture{
		executor: executor,
		manager:  manager,
		sources:  sources,
		events:   eventStore,
		jobs:     jobs,
		checks:   checks,
	}
}

func (f *executorFixture) enqueueAndClaim(t *testing.T, source *models.Source) *models.Job {
	t.Helper()
	ctx := context.Background()

	if err := f.sources.SaveSource(ctx, source); err != nil {
		t.Fatalf("failed to save source: %v", err)
	}
	job := models.NewJob(source, models.JobTypeIngest, 0)
	if _, _, err := f.manager.Enqueue(ctx, job); err != nil {
		t.Fatalf("failed to enqueue job: %v", err)
	}
	claimed, err := f.manager.ClaimNext(ctx, source.TwinID)
	if err != nil {
		t.Fatalf("failed to claim job: %v", err)
	}
	return claimed
}

func TestExecuteJobHappyPath(t *testing.T) {
	f := newExecutorFixture(t, &fakeAdapter{})
	ctx := context.Background()

	source := models.NewSource("twin-1", models.Reference{URL: "https://example.com/post"})
	job := f.enqueueAndClaim(t, source)

	if err := f.executor.ExecuteJob(ctx, job); err != nil {
		t.Fatalf("ExecuteJob failed: %v", err)
	}

	got, err := f.sources.GetSource(ctx, source.ID)
	if err != nil {
		t.Fatalf("failed to reload source: %v", err)
	}
	if got.Status != models.SourceStatusLive {
		t.Errorf("source status = %s, want live", got.Status)
	}
	if got.LastStep != models.StepLive || got.LastCompletedStep != models.StepLive {
		t.Errorf("last_step = %s, last_completed_step = %s, want live/live", got.LastStep, got.LastCompletedStep)
	}
	if got.LastError != nil {
		t.Error("live source must have no last_error")
	}
	if got.ChunkCount != 1 {
		t.Errorf("chunk_count = %d, want 1", got.ChunkCount)
	}
	if got.Title != "Hello" {
		t.Errorf("title = %q, want Hello", got.Title)
	}

	reloaded, err := f.jobs.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("failed to reload job: %v", err)
	}
	if reloaded.Status != models.JobStatusComplete {
		t.Errorf("job status = %s, want complete", reloaded.Status)
	}

	// Timeline: fetching..indexed started+completed pairs, then live
	timeline, err := f.events.ListEvents(ctx, source.ID)
	if err != nil {
		t.Fatalf("failed to list events: %v", err)
	}
	if len(timeline) != 11 {
		t.Errorf("timeline has %d events, want 11 (5 step pairs + live)", len(timeline))
	}
	last := timeline[len(timeline)-1]
	if last.Step != models.StepLive || last.Status != models.EventStatusCompleted {
		t.Errorf("last event = %s/%s, want live/completed", last.Step, last.Status)
	}
}

func TestExecuteJobRetryableFailureRequeues(t *testing.T) {
	failure := models.NewStepFailure(models.ErrCodeFetchFailed, "upstream returned 502").
		WithHTTPStatus(502).
		WithCause(errors.New("bad gateway"))
	f := newExecutorFixture(t, &fakeAdapter{failStep: models.StepFetching, failWith: failure})
	ctx := context.Background()

	source := models.NewSource("twin-1", models.Reference{URL: "https://example.com/post"})
	job := f.enqueueAndClaim(t, source)

	err := f.executor.ExecuteJob(ctx, job)
	if err == nil {
		t.Fatal("expected ExecuteJob to report the failed run")
	}

	var ingErr *models.IngestError
	if !errors.As(err, &ingErr) {
		t.Fatalf("error is %T, want *models.IngestError", err)
	}
	if ingErr.Code != models.ErrCodeFetchFailed || !ingErr.Retryable {
		t.Errorf("classified as %s retryable=%v, want FETCH_FAILED retryable", ingErr.Code, ingErr.Retryable)
	}

	// First attempt of three: the job goes back to queued with backoff
	reloaded, _ := f.jobs.GetJob(ctx, job.ID)
	if reloaded.Status != models.JobStatusQueued {
		t.Errorf("job status = %s, want queued", reloaded.Status)
	}
	if reloaded.NotBefore == nil || !reloaded.NotBefore.After(time.Now()) {
		t.Error("requeued job must carry a future not_before")
	}

	got, _ := f.sources.GetSource(ctx, source.ID)
	if got.Status != models.SourceStatusError {
		t.Errorf("source status = %s, want error", got.Status)
	}
	// Pinned: last_step stays on the failing step, last_error matches it
	if got.LastStep != models.StepFetching {
		t.Errorf("last_step = %s, want fetching (pinned)", got.LastStep)
	}
	if got.LastError == nil || got.LastError.Step != got.LastStep {
		t.Error("last_error.step must equal last_step on failure")
	}
}

func TestExecuteJobPolicyBlockedNeedsAttention(t *testing.T) {
	failure := models.NewStepFailure(models.ErrCodeLinkedInBlocked, "LinkedIn blocked the request; paste the post text instead").
		WithHTTPStatus(999)
	f := newExecutorFixture(t, &fakeAdapter{failStep: models.StepFetching, failWith: failure})
	ctx := context.Background()

	source := models.NewSource("twin-1", models.Reference{URL: "https://example.com/post"})
	job := f.enqueueAndClaim(t, source)

	if err := f.executor.ExecuteJob(ctx, job); err == nil {
		t.Fatal("expected ExecuteJob to report the failed run")
	}

	reloaded, _ := f.jobs.GetJob(ctx, job.ID)
	if reloaded.Status != models.JobStatusNeedsAttention {
		t.Errorf("job status = %s, want needs_attention", reloaded.Status)
	}

	got, _ := f.sources.GetSource(ctx, source.ID)
	if got.LastError == nil || got.LastError.Retryable {
		t.Error("policy blocked failure must persist as non-retryable")
	}
	if got.LastError.HTTPStatus != 999 {
		t.Errorf("http_status = %d, want 999", got.LastError.HTTPStatus)
	}
}

func TestExecuteJobExhaustedAttemptsFailsTerminally(t *testing.T) {
	failure := models.NewStepFailure(models.ErrCodeFetchFailed, "upstream down")
	f := newExecutorFixture(t, &fakeAdapter{failStep: models.StepFetching, failWith: failure})
	ctx := context.Background()

	source := models.NewSource("twin-1", models.Reference{URL: "https://example.com/post"})
	job := f.enqueueAndClaim(t, source)

	// Simulate the final attempt under the default ceiling of 3
	job.Attempts = 3

	if err := f.executor.ExecuteJob(ctx, job); err == nil {
		t.Fatal("expected ExecuteJob to report the failed run")
	}

	reloaded, _ := f.jobs.GetJob(ctx, job.ID)
	if reloaded.Status != models.JobStatusFailed {
		t.Errorf("job status = %s, want failed", reloaded.Status)
	}
}

func TestExecuteJobResumesAfterWatermark(t *testing.T) {
	// Fail at embedded so fetch/parse/chunk complete on the first run
	failure := models.NewStepFailure(models.ErrCodeEmbeddingsFailed, "embedding backend unavailable")
	adapter := &fakeAdapter{failStep: models.StepEmbedded, failWith: failure}
	f := newExecutorFixture(t, adapter)
	ctx := context.Background()

	source := models.NewSource("twin-1", models.Reference{URL: "https://example.com/post"})
	job := f.enqueueAndClaim(t, source)

	if err := f.executor.ExecuteJob(ctx, job); err == nil {
		t.Fatal("expected first run to fail at embedded")
	}

	got, _ := f.sources.GetSource(ctx, source.ID)
	if got.LastCompletedStep != models.StepChunked {
		t.Fatalf("watermark = %s, want chunked", got.LastCompletedStep)
	}

	// Heal the backend, elapse the backoff and run the requeued job again
	adapter.failWith = nil
	requeued, err := f.jobs.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("failed to reload requeued job: %v", err)
	}
	past := time.Now().Add(-time.Second)
	requeued.NotBefore = &past
	if err := f.jobs.SaveJob(ctx, requeued); err != nil {
		t.Fatalf("failed to backdate backoff: %v", err)
	}

	claimed, err := f.manager.ClaimNext(ctx, source.TwinID)
	if err != nil {
		t.Fatalf("failed to claim requeued job: %v", err)
	}
	if err := f.executor.ExecuteJob(ctx, claimed); err != nil {
		t.Fatalf("resumed run failed: %v", err)
	}

	got, _ = f.sources.GetSource(ctx, source.ID)
	if got.Status != models.SourceStatusLive {
		t.Errorf("source status = %s, want live after resume", got.Status)
	}

	// The resumed run must not re-execute fetching: one started event per
	// completed step from run one, plus embedded twice (fail + retry)
	timeline, _ := f.events.ListEvents(ctx, source.ID)
	fetchStarts := 0
	for _, evt := range timeline {
		if evt.Step == models.StepFetching && evt.Status == models.EventStatusStarted {
			fetchStarts++
		}
	}
	if fetchStarts != 1 {
		t.Errorf("fetching started %d times, want 1 (idempotent resume)", fetchStarts)
	}
}

func TestExecuteJobTerminalFailureRunsHealthChecks(t *testing.T) {
	failure := models.NewStepFailure(models.ErrCodeFileExtractionEmpty, "no text could be extracted from this file")
	f := newExecutorFixture(t, &fakeAdapter{failStep: models.StepParsed, failWith: failure})
	ctx := context.Background()

	source := models.NewSource("twin-1", models.Reference{URL: "https://example.com/empty.pdf"})
	job := f.enqueueAndClaim(t, source)

	if err := f.executor.ExecuteJob(ctx, job); err == nil {
		t.Fatal("expected ExecuteJob to report the failed run")
	}

	got, _ := f.sources.GetSource(ctx, source.ID)
	if got.Status != models.SourceStatusError {
		t.Fatalf("source status = %s, want error", got.Status)
	}
	if got.LastError == nil || got.LastError.Code != models.ErrCodeFileExtractionEmpty {
		t.Fatal("expected FILE_EXTRACTION_EMPTY persisted as last_error")
	}

	// The failed run still leaves its health records next to the error
	checks, err := f.checks.ListChecks(ctx, source.ID)
	if err != nil {
		t.Fatalf("ListChecks failed: %v", err)
	}
	if len(checks) != 4 {
		t.Fatalf("got %d health checks after terminal failure, want 4", len(checks))
	}
	var extraction *models.HealthCheck
	for _, check := range checks {
		if check.CheckType == models.CheckEmptyExtraction {
			extraction = check
		}
	}
	if extraction == nil || extraction.Status != models.CheckStatusFail {
		t.Error("empty_extraction check must fail alongside the extraction error")
	}
	if got.HealthStatus != models.HealthStatusFailed {
		t.Errorf("health_status = %s, want failed", got.HealthStatus)
	}
}

func TestExecuteJobDeletedSourceCompletesJob(t *testing.T) {
	f := newExecutorFixture(t, &fakeAdapter{})
	ctx := context.Background()

	source := models.NewSource("twin-1", models.Reference{URL: "https://example.com/post"})
	job := f.enqueueAndClaim(t, source)

	if err := f.sources.DeleteSource(ctx, source.ID); err != nil {
		t.Fatalf("failed to delete source: %v", err)
	}

	if err := f.executor.ExecuteJob(ctx, job); err != nil {
		t.Fatalf("job for deleted source should complete quietly, got %v", err)
	}

	reloaded, _ := f.jobs.GetJob(ctx, job.ID)
	if reloaded.Status != models.JobStatusComplete {
		t.Errorf("job status = %s, want complete", reloaded.Status)
	}
}
