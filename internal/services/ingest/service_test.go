package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/common"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/queue"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/services/events"
	badgerstore "github.com/snsettitech/verified-digital-twin-brains-sub009/internal/storage/badger"
	"github.com/ternarybob/arbor"
)

type ingestFixture struct {
	ingest  interfaces.IngestService
	storage interfaces.StorageManager
	queue   *queue.Manager
}

func newIngestFixture(t *testing.T) *ingestFixture {
	t.Helper()

	logger := arbor.NewLogger()
	storage, err := badgerstore.NewManager(logger, &common.BadgerConfig{Path: t.TempDir()}, true)
	if err != nil {
		t.Fatalf("failed to open test storage: %v", err)
	}
	t.Cleanup(func() { storage.Close() })

	bus := events.NewService(logger)
	queueMgr := queue.NewManager(storage.JobStorage(), bus, logger)

	return &ingestFixture{
		ingest:  NewService(storage, queueMgr, bus, logger),
		storage: storage,
		queue:   queueMgr,
	}
}

func TestCreateFromURLQueuesJob(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	resp, err := f.ingest.CreateFromURL(ctx, &models.IngestURLRequest{
		TwinID: "twin-1",
		URL:    "https://example.com/post",
	})
	if err != nil {
		t.Fatalf("CreateFromURL failed: %v", err)
	}

	source, err := f.storage.SourceStorage().GetSource(ctx, resp.SourceID)
	if err != nil {
		t.Fatalf("failed to load created source: %v", err)
	}
	if source.Provider != models.ProviderWeb {
		t.Errorf("provider = %s, want web", source.Provider)
	}

	job, err := f.storage.JobStorage().GetJob(ctx, resp.JobID)
	if err != nil {
		t.Fatalf("failed to load created job: %v", err)
	}
	if job.Status != models.JobStatusQueued {
		t.Errorf("job status = %s, want queued", job.Status)
	}
}

func TestRetryWhileJobActiveLeavesSourceAlone(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	resp, err := f.ingest.CreateFromURL(ctx, &models.IngestURLRequest{
		TwinID: "twin-1",
		URL:    "https://example.com/post",
	})
	if err != nil {
		t.Fatalf("CreateFromURL failed: %v", err)
	}

	// Simulate the executor mid-run: job claimed, source row owned by it
	if _, err := f.queue.ClaimNext(ctx, "twin-1"); err != nil {
		t.Fatalf("failed to claim job: %v", err)
	}
	source, err := f.storage.SourceStorage().GetSource(ctx, resp.SourceID)
	if err != nil {
		t.Fatalf("failed to load source: %v", err)
	}
	source.Status = models.SourceStatusProcessing
	source.LastStep = models.StepChunked
	source.LastCompletedStep = models.StepChunked
	if err := f.storage.SourceStorage().SaveSource(ctx, source); err != nil {
		t.Fatalf("failed to save mid-run state: %v", err)
	}

	retry, err := f.ingest.Retry(ctx, resp.SourceID, false)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if !retry.Existing {
		t.Error("retry during an active job must return the existing job")
	}
	if retry.JobID != resp.JobID {
		t.Errorf("retry returned job %s, want the active job %s", retry.JobID, resp.JobID)
	}

	// The no-op retry must not have touched the executor's state
	got, err := f.storage.SourceStorage().GetSource(ctx, resp.SourceID)
	if err != nil {
		t.Fatalf("failed to reload source: %v", err)
	}
	if got.Status != models.SourceStatusProcessing {
		t.Errorf("source status = %s, want processing untouched", got.Status)
	}
	if got.LastStep != models.StepChunked || got.LastCompletedStep != models.StepChunked {
		t.Errorf("last_step = %s, last_completed_step = %s, want chunked/chunked untouched", got.LastStep, got.LastCompletedStep)
	}
}

func TestRetryAfterTerminalFailureResetsSource(t *testing.T) {
	f := newIngestFixture(t)
	ctx := context.Background()

	resp, err := f.ingest.CreateFromURL(ctx, &models.IngestURLRequest{
		TwinID: "twin-1",
		URL:    "https://example.com/post",
	})
	if err != nil {
		t.Fatalf("CreateFromURL failed: %v", err)
	}

	// Run the job to a terminal failure
	if _, err := f.queue.ClaimNext(ctx, "twin-1"); err != nil {
		t.Fatalf("failed to claim job: %v", err)
	}
	if err := f.queue.Fail(ctx, resp.JobID, "upstream down", false); err != nil {
		t.Fatalf("failed to fail job: %v", err)
	}
	source, _ := f.storage.SourceStorage().GetSource(ctx, resp.SourceID)
	now := time.Now()
	source.Status = models.SourceStatusError
	source.LastStep = models.StepFetching
	source.LastError = &models.IngestError{Code: models.ErrCodeFetchFailed, Step: models.StepFetching}
	source.LastErrorAt = &now
	if err := f.storage.SourceStorage().SaveSource(ctx, source); err != nil {
		t.Fatalf("failed to save errored state: %v", err)
	}

	retry, err := f.ingest.Retry(ctx, resp.SourceID, false)
	if err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if retry.Existing {
		t.Error("retry after a terminal job must create a fresh job")
	}
	if retry.JobID == resp.JobID {
		t.Error("retry must not reuse the failed job id")
	}

	got, _ := f.storage.SourceStorage().GetSource(ctx, resp.SourceID)
	if got.Status != models.SourceStatusPending {
		t.Errorf("source status = %s, want pending", got.Status)
	}
	if got.LastStep != models.StepQueued {
		t.Errorf("last_step = %s, want queued", got.LastStep)
	}
	if got.LastError != nil || got.LastErrorAt != nil {
		t.Error("retry must clear last_error")
	}
}

func TestRetryUnknownSource(t *testing.T) {
	f := newIngestFixture(t)

	if _, err := f.ingest.Retry(context.Background(), "no-such-source", false); err == nil {
		t.Fatal("expected an error for an unknown source")
	}
}
