package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/common"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/interfaces"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/models"
	"github.com/snsettitech/verified-digital-twin-brains-sub009/internal/services/events"
	badgerstore "github.com/snsettitech/verified-digital-twin-brains-sub009/internal/storage/badger"
	"github.com/ternarybob/arbor"
)

func newTestManager(t *testing.T) (*Manager, interfaces.JobStorage) {
	t.Helper()

	db, err := badgerstore.NewBadgerDB(arbor.NewLogger(), &common.BadgerConfig{Path: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	jobs := badgerstore.NewJobStorage(db, arbor.NewLogger())
	bus := events.NewService(arbor.NewLogger())
	return NewManager(jobs, bus, arbor.NewLogger()), jobs
}

func queueTestSource(twinID string) *models.Source {
	return models.NewSource(twinID, models.Reference{URL: "https://example.com/post"})
}

func TestEnqueueConcurrentRacersStackOneJob(t *testing.T) {
	manager, jobs := newTestManager(t)
	ctx := context.Background()

	source := queueTestSource("twin-1")

	const racers = 8
	results := make(chan bool, racers)
	start := make(chan struct{})
	for i := 0; i < racers; i++ {
		go func() {
			<-start
			_, existing, err := manager.Enqueue(ctx, models.NewJob(source, models.JobTypeIngest, 0))
			if err != nil {
				t.Errorf("enqueue failed: %v", err)
				results <- true
				return
			}
			results <- existing
		}()
	}
	close(start)

	created := 0
	for i := 0; i < racers; i++ {
		if !<-results {
			created++
		}
	}
	if created != 1 {
		t.Errorf("%d racers created %d jobs, want exactly 1", racers, created)
	}

	stored, err := jobs.ListJobs(ctx, &interfaces.JobListOptions{SourceID: source.ID})
	if err != nil {
		t.Fatalf("failed to list jobs: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("source has %d jobs after the race, want 1", len(stored))
	}
}

// fakeExecutor finalizes each job the way the pipeline executor would,
// without running any steps.
type fakeExecutor struct {
	manager *Manager
	fail    bool
	runs    int
}

func (f *fakeExecutor) ExecuteJob(ctx context.Context, job *models.Job) error {
	f.runs++
	if f.fail {
		f.manager.Fail(ctx, job.ID, "forced failure", false)
		return errors.New("forced failure")
	}
	return f.manager.Complete(ctx, job.ID)
}

func TestEnqueueDeduplicatesActiveJob(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	source := queueTestSource("twin-1")
	first := models.NewJob(source, models.JobTypeIngest, 0)

	job, existing, err := manager.Enqueue(ctx, first)
	if err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if existing {
		t.Fatal("first enqueue must not report an existing job")
	}

	// A second enqueue while the first is still queued returns the first
	second := models.NewJob(source, models.JobTypeReingest, 0)
	got, existing, err := manager.Enqueue(ctx, second)
	if err != nil {
		t.Fatalf("duplicate enqueue failed: %v", err)
	}
	if !existing {
		t.Error("duplicate enqueue must report the existing job")
	}
	if got.ID != job.ID {
		t.Errorf("duplicate enqueue returned job %s, want %s", got.ID, job.ID)
	}

	counts, err := manager.Counts(ctx)
	if err != nil {
		t.Fatalf("counts failed: %v", err)
	}
	if counts[models.JobStatusQueued] != 1 {
		t.Errorf("queued count = %d, want 1", counts[models.JobStatusQueued])
	}
}

func TestEnqueueAfterTerminalJobCreatesNew(t *testing.T) {
	manager, jobs := newTestManager(t)
	ctx := context.Background()

	source := queueTestSource("twin-1")
	first := models.NewJob(source, models.JobTypeIngest, 0)
	if _, _, err := manager.Enqueue(ctx, first); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}
	if _, err := jobs.Claim(ctx, first.ID); err != nil {
		t.Fatalf("claim failed: %v", err)
	}
	if err := manager.Complete(ctx, first.ID); err != nil {
		t.Fatalf("complete failed: %v", err)
	}

	retry := models.NewJob(source, models.JobTypeReingest, 0)
	got, existing, err := manager.Enqueue(ctx, retry)
	if err != nil {
		t.Fatalf("enqueue after completion failed: %v", err)
	}
	if existing || got.ID != retry.ID {
		t.Error("completed job must not block a new enqueue")
	}
}

func TestClaimNextReturnsErrNoJobWhenEmpty(t *testing.T) {
	manager, _ := newTestManager(t)

	if _, err := manager.ClaimNext(context.Background(), "twin-1"); !errors.Is(err, interfaces.ErrNoJob) {
		t.Errorf("ClaimNext on empty queue returned %v, want ErrNoJob", err)
	}
}

func TestDrainProcessesQueuedJobs(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	executor := &fakeExecutor{manager: manager}
	manager.SetExecutor(executor)

	for i := 0; i < 3; i++ {
		job := models.NewJob(queueTestSource("twin-1"), models.JobTypeIngest, 0)
		if _, _, err := manager.Enqueue(ctx, job); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}
	// A job for another twin stays untouched
	otherJob := models.NewJob(queueTestSource("twin-2"), models.JobTypeIngest, 0)
	if _, _, err := manager.Enqueue(ctx, otherJob); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	result, err := manager.Drain(ctx, "twin-1", 10)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if result.Processed != 3 || result.Failed != 0 || result.Remaining != 0 {
		t.Errorf("drain result = %+v, want 3 processed, 0 failed, 0 remaining", result)
	}
	if executor.runs != 3 {
		t.Errorf("executor ran %d times, want 3", executor.runs)
	}

	counts, _ := manager.Counts(ctx)
	if counts[models.JobStatusQueued] != 1 {
		t.Errorf("twin-2 job should remain queued, counts = %v", counts)
	}
}

func TestDrainCountsFailures(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	executor := &fakeExecutor{manager: manager, fail: true}
	manager.SetExecutor(executor)

	job := models.NewJob(queueTestSource("twin-1"), models.JobTypeIngest, 0)
	if _, _, err := manager.Enqueue(ctx, job); err != nil {
		t.Fatalf("enqueue failed: %v", err)
	}

	result, err := manager.Drain(ctx, "twin-1", 10)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if result.Processed != 0 || result.Failed != 1 {
		t.Errorf("drain result = %+v, want 0 processed, 1 failed", result)
	}
}

func TestDrainRespectsMax(t *testing.T) {
	manager, _ := newTestManager(t)
	ctx := context.Background()

	executor := &fakeExecutor{manager: manager}
	manager.SetExecutor(executor)

	for i := 0; i < 5; i++ {
		job := models.NewJob(queueTestSource("twin-1"), models.JobTypeIngest, 0)
		if _, _, err := manager.Enqueue(ctx, job); err != nil {
			t.Fatalf("enqueue failed: %v", err)
		}
	}

	result, err := manager.Drain(ctx, "twin-1", 2)
	if err != nil {
		t.Fatalf("drain failed: %v", err)
	}
	if result.Processed != 2 || result.Remaining != 3 {
		t.Errorf("drain result = %+v, want 2 processed, 3 remaining", result)
	}
}

func TestNotifierWakeNeverBlocks(t *testing.T) {
	n := NewNotifier()

	// Repeated wakes without a listener must not block or panic
	for i := 0; i < 100; i++ {
		n.Wake()
	}

	select {
	case <-n.C():
	default:
		t.Error("expected a pending wake-up after Wake calls")
	}
}
