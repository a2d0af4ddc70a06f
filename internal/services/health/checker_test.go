package health

import (
	"context"
	"testing"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/common"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
	badgerstore "github.com/snsettitech/verified-digital-twin-brains-sub009/internal/storage/badger"
	"github.com/ternarybob/arbor"
)

type checkerFixture struct {
	checker   interfaces.HealthService
	sources   interfaces.SourceStorage
	documents interfaces.DocumentStorage
}

func newCheckerFixture(t *testing.T) *checkerFixture {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := badgerstore.NewBadgerDB(logger, &common.BadgerConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	sources := badgerstore.NewSourceStorage(db, logger)
	documents := badgerstore.NewDocumentStorage(db, logger)
	checks := badgerstore.NewHealthStorage(db, logger)

	return &checkerFixture{
		checker:   NewChecker(sources, documents, checks, nil, 40, logger),
		sources:   sources,
		documents: documents,
	}
}

func (f *checkerFixture) saveLiveSource(t *testing.T, twinID, url, title string, textLen, chunkCount int, hash string) *models.Source {
	t.Helper()
	source := models.NewSource(twinID, models.Reference{URL: url})
	source.Status = models.SourceStatusLive
	source.Title = title
	source.ExtractedTextLength = textLen
	source.ChunkCount = chunkCount
	source.ContentHash = hash
	if err := f.sources.SaveSource(context.Background(), source); err != nil {
		t.Fatalf("failed to save source: %v", err)
	}
	return source
}

func checkByType(t *testing.T, results []*models.HealthCheck, checkType models.CheckType) *models.HealthCheck {
	t.Helper()
	for _, check := range results {
		if check.CheckType == checkType {
			return check
		}
	}
	t.Fatalf("no %s check in results", checkType)
	return nil
}

func TestRunChecksHealthySource(t *testing.T) {
	f := newCheckerFixture(t)
	ctx := context.Background()

	source := f.saveLiveSource(t, "twin-1", "https://example.com/a", "A Title", 500, 3, "hash-a")

	results, err := f.checker.RunChecks(ctx, source.ID)
	if err != nil {
		t.Fatalf("RunChecks failed: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d checks, want 4", len(results))
	}
	for _, check := range results {
		if check.Status != models.CheckStatusPass {
			t.Errorf("%s = %s (%s), want pass", check.CheckType, check.Status, check.Message)
		}
	}

	got, _ := f.sources.GetSource(ctx, source.ID)
	if got.HealthStatus != models.HealthStatusHealthy {
		t.Errorf("health_status = %s, want healthy", got.HealthStatus)
	}
}

func TestRunChecksEmptyExtractionFails(t *testing.T) {
	f := newCheckerFixture(t)
	ctx := context.Background()

	source := f.saveLiveSource(t, "twin-1", "https://example.com/a", "A Title", 0, 3, "hash-a")

	results, err := f.checker.RunChecks(ctx, source.ID)
	if err != nil {
		t.Fatalf("RunChecks failed: %v", err)
	}
	check := checkByType(t, results, models.CheckEmptyExtraction)
	if check.Status != models.CheckStatusFail {
		t.Errorf("empty_extraction = %s, want fail", check.Status)
	}

	got, _ := f.sources.GetSource(ctx, source.ID)
	if got.HealthStatus != models.HealthStatusNeedsAttention {
		t.Errorf("health_status = %s, want needs_attention", got.HealthStatus)
	}
}

func TestRunChecksShortTextWarns(t *testing.T) {
	f := newCheckerFixture(t)
	ctx := context.Background()

	source := f.saveLiveSource(t, "twin-1", "https://example.com/a", "A Title", 12, 1, "hash-a")

	results, err := f.checker.RunChecks(ctx, source.ID)
	if err != nil {
		t.Fatalf("RunChecks failed: %v", err)
	}
	check := checkByType(t, results, models.CheckEmptyExtraction)
	if check.Status != models.CheckStatusWarning {
		t.Errorf("empty_extraction = %s, want warning", check.Status)
	}
	if check.Metadata["text_length"] != 12 {
		t.Errorf("metadata text_length = %v, want 12", check.Metadata["text_length"])
	}
}

func TestRunChecksDuplicateContentWarns(t *testing.T) {
	f := newCheckerFixture(t)
	ctx := context.Background()

	f.saveLiveSource(t, "twin-1", "https://example.com/a", "A", 500, 3, "same-hash")
	second := f.saveLiveSource(t, "twin-1", "https://example.com/b", "B", 500, 3, "same-hash")
	// Same hash in another twin must not count
	f.saveLiveSource(t, "twin-2", "https://example.com/c", "C", 500, 3, "same-hash")

	results, err := f.checker.RunChecks(ctx, second.ID)
	if err != nil {
		t.Fatalf("RunChecks failed: %v", err)
	}
	check := checkByType(t, results, models.CheckDuplicate)
	if check.Status != models.CheckStatusWarning {
		t.Errorf("duplicate = %s, want warning", check.Status)
	}
	ids, ok := check.Metadata["duplicate_source_ids"].([]string)
	if !ok || len(ids) != 1 {
		t.Errorf("duplicate_source_ids = %v, want exactly the twin-1 sibling", check.Metadata["duplicate_source_ids"])
	}
}

func TestRunChecksLiveWithoutChunksFails(t *testing.T) {
	f := newCheckerFixture(t)
	ctx := context.Background()

	source := f.saveLiveSource(t, "twin-1", "https://example.com/a", "A Title", 500, 0, "hash-a")

	results, err := f.checker.RunChecks(ctx, source.ID)
	if err != nil {
		t.Fatalf("RunChecks failed: %v", err)
	}
	check := checkByType(t, results, models.CheckChunkAnomaly)
	if check.Status != models.CheckStatusFail {
		t.Errorf("chunk_anomaly = %s, want fail", check.Status)
	}
}

func TestRunChecksChunkCountAnomalyWarns(t *testing.T) {
	f := newCheckerFixture(t)
	ctx := context.Background()

	// 90 chunks for 100 chars of text is far past one-per-ten-chars
	source := f.saveLiveSource(t, "twin-1", "https://example.com/a", "A Title", 100, 90, "hash-a")

	results, err := f.checker.RunChecks(ctx, source.ID)
	if err != nil {
		t.Fatalf("RunChecks failed: %v", err)
	}
	check := checkByType(t, results, models.CheckChunkAnomaly)
	if check.Status != models.CheckStatusWarning {
		t.Errorf("chunk_anomaly = %s, want warning", check.Status)
	}
}

func TestRunChecksMissingMetadataWarns(t *testing.T) {
	f := newCheckerFixture(t)
	ctx := context.Background()

	source := f.saveLiveSource(t, "twin-1", "https://example.com/a", "", 500, 3, "hash-a")

	results, err := f.checker.RunChecks(ctx, source.ID)
	if err != nil {
		t.Fatalf("RunChecks failed: %v", err)
	}
	check := checkByType(t, results, models.CheckMissingMetadata)
	if check.Status != models.CheckStatusWarning {
		t.Errorf("missing_metadata = %s, want warning", check.Status)
	}
}

func TestRunChecksFailOnErroredSourceMarksFailed(t *testing.T) {
	f := newCheckerFixture(t)
	ctx := context.Background()

	source := models.NewSource("twin-1", models.Reference{URL: "https://example.com/a"})
	source.Status = models.SourceStatusError
	source.Title = "A Title"
	if err := f.sources.SaveSource(ctx, source); err != nil {
		t.Fatalf("failed to save source: %v", err)
	}

	if _, err := f.checker.RunChecks(ctx, source.ID); err != nil {
		t.Fatalf("RunChecks failed: %v", err)
	}

	got, _ := f.sources.GetSource(ctx, source.ID)
	if got.HealthStatus != models.HealthStatusFailed {
		t.Errorf("health_status = %s, want failed", got.HealthStatus)
	}
}

func TestRunChecksUnknownSource(t *testing.T) {
	f := newCheckerFixture(t)

	if _, err := f.checker.RunChecks(context.Background(), "no-such-source"); err == nil {
		t.Fatal("expected an error for an unknown source")
	}
}

func TestListChecksAccumulatesHistory(t *testing.T) {
	f := newCheckerFixture(t)
	ctx := context.Background()

	source := f.saveLiveSource(t, "twin-1", "https://example.com/a", "A Title", 500, 3, "hash-a")

	if _, err := f.checker.RunChecks(ctx, source.ID); err != nil {
		t.Fatalf("first RunChecks failed: %v", err)
	}
	if _, err := f.checker.RunChecks(ctx, source.ID); err != nil {
		t.Fatalf("second RunChecks failed: %v", err)
	}

	history, err := f.checker.ListChecks(ctx, source.ID)
	if err != nil {
		t.Fatalf("ListChecks failed: %v", err)
	}
	if len(history) != 8 {
		t.Errorf("history has %d records, want 8 (two full runs)", len(history))
	}
}
