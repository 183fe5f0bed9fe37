package queue

import (
	"errors"
	"testing"
	"time"

	"go_jobs_backend/models"
)

// fakeClock drives a MemoryStore deterministically
type fakeClock struct {
	t time.Time
}

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore() (*MemoryStore, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)}
	store := NewMemoryStore()
	store.now = clock.now
	return store, clock
}

func TestEnqueueDefaults(t *testing.T) {
	store, _ := newTestStore()

	job, err := store.Enqueue("candles", "collect-candles", map[string]string{"symbol": "VNM"}, Options{})
	if err != nil {
		t.Fatalf("Enqueue error: %v", err)
	}
	if job.State != models.JobWaiting {
		t.Fatalf("State = %s, want waiting", job.State)
	}
	if job.MaxAttempts != 3 {
		t.Fatalf("MaxAttempts = %d, want 3", job.MaxAttempts)
	}
	if job.BackoffType != models.BackoffExponential {
		t.Fatalf("BackoffType = %s, want exponential", job.BackoffType)
	}
	if job.BackoffBaseMS != 2000 {
		t.Fatalf("BackoffBaseMS = %d, want 2000", job.BackoffBaseMS)
	}
	if job.JobID == "" {
		t.Fatal("expected a job id")
	}
}

func TestDequeueFIFO(t *testing.T) {
	store, clock := newTestStore()

	first, _ := store.Enqueue("candles", "collect-candles", nil, Options{})
	clock.advance(time.Second)
	second, _ := store.Enqueue("candles", "collect-candles", nil, Options{})
	clock.advance(time.Second)
	third, _ := store.Enqueue("candles", "collect-candles", nil, Options{})

	jobs, err := store.Dequeue("candles", 2)
	if err != nil {
		t.Fatalf("Dequeue error: %v", err)
	}
	if len(jobs) != 2 {
		t.Fatalf("dequeued %d jobs, want 2", len(jobs))
	}
	if jobs[0].JobID != first.JobID || jobs[1].JobID != second.JobID {
		t.Fatal("jobs not served in FIFO order")
	}
	for _, job := range jobs {
		if job.State != models.JobActive {
			t.Fatalf("claimed job state = %s, want active", job.State)
		}
	}

	rest, _ := store.Dequeue("candles", 10)
	if len(rest) != 1 || rest[0].JobID != third.JobID {
		t.Fatal("remaining job not dequeued in order")
	}
}

func TestDequeueIgnoresOtherQueues(t *testing.T) {
	store, _ := newTestStore()

	store.Enqueue("candles", "collect-candles", nil, Options{})
	store.Enqueue("notifications", "send-email", nil, Options{})

	jobs, _ := store.Dequeue("candles", 10)
	if len(jobs) != 1 {
		t.Fatalf("dequeued %d jobs, want 1", len(jobs))
	}
	if jobs[0].Queue != "candles" {
		t.Fatalf("job from queue %s, want candles", jobs[0].Queue)
	}
}

func TestFailAppliesExponentialBackoff(t *testing.T) {
	store, clock := newTestStore()

	job, _ := store.Enqueue("candles", "collect-candles", nil, Options{
		MaxAttempts:   3,
		BackoffBaseMS: 2000,
	})
	store.Dequeue("candles", 1)

	// First failure: retryable, delayed by base.
	if err := store.Fail(job.JobID, errors.New("fetch timeout")); err != nil {
		t.Fatalf("Fail error: %v", err)
	}
	stored, _ := store.Job(job.JobID)
	if stored.State != models.JobDelayed {
		t.Fatalf("State = %s, want delayed", stored.State)
	}
	if stored.Attempts != 1 {
		t.Fatalf("Attempts = %d, want 1", stored.Attempts)
	}
	wantUntil := clock.t.Add(2000 * time.Millisecond)
	if !stored.NotBefore.Equal(wantUntil) {
		t.Fatalf("NotBefore = %s, want %s", stored.NotBefore, wantUntil)
	}

	// Not eligible before the backoff window passes.
	if jobs, _ := store.Dequeue("candles", 1); len(jobs) != 0 {
		t.Fatal("delayed job dequeued before its backoff elapsed")
	}

	clock.advance(2 * time.Second)
	jobs, _ := store.Dequeue("candles", 1)
	if len(jobs) != 1 {
		t.Fatal("expected job to be eligible after backoff")
	}

	// Second failure: delay doubles.
	store.Fail(job.JobID, errors.New("fetch timeout"))
	stored, _ = store.Job(job.JobID)
	wantUntil = clock.t.Add(4000 * time.Millisecond)
	if !stored.NotBefore.Equal(wantUntil) {
		t.Fatalf("retry 2 NotBefore = %s, want %s", stored.NotBefore, wantUntil)
	}
}

func TestFailTerminalAfterMaxAttempts(t *testing.T) {
	store, clock := newTestStore()

	job, _ := store.Enqueue("candles", "collect-candles", nil, Options{MaxAttempts: 3})

	for i := 0; i < 3; i++ {
		clock.advance(time.Hour) // past any backoff window
		jobs, _ := store.Dequeue("candles", 1)
		if len(jobs) != 1 {
			t.Fatalf("run %d: expected job to be dequeued", i+1)
		}
		if err := store.Fail(job.JobID, errors.New("boom")); err != nil {
			t.Fatalf("Fail error: %v", err)
		}
	}

	stored, _ := store.Job(job.JobID)
	if stored.State != models.JobFailed {
		t.Fatalf("State = %s, want failed", stored.State)
	}
	if stored.Attempts != 3 {
		t.Fatalf("Attempts = %d, want 3", stored.Attempts)
	}
	if stored.FinishedAt == nil {
		t.Fatal("terminal failed job has no finish time")
	}
	if stored.LastError != "boom" {
		t.Fatalf("LastError = %q, want boom", stored.LastError)
	}

	// Never dequeued a 4th time.
	clock.advance(24 * time.Hour)
	if jobs, _ := store.Dequeue("candles", 10); len(jobs) != 0 {
		t.Fatal("terminal failed job was dequeued again")
	}
}

func TestReportProgressClamps(t *testing.T) {
	store, _ := newTestStore()
	job, _ := store.Enqueue("candles", "collect-candles", nil, Options{})

	tests := []struct {
		in   int
		want int
	}{
		{-5, 0},
		{0, 0},
		{42, 42},
		{100, 100},
		{150, 100},
	}
	for _, tt := range tests {
		if err := store.ReportProgress(job.JobID, tt.in); err != nil {
			t.Fatalf("ReportProgress(%d) error: %v", tt.in, err)
		}
		stored, _ := store.Job(job.JobID)
		if stored.Progress != tt.want {
			t.Fatalf("Progress after %d = %d, want %d", tt.in, stored.Progress, tt.want)
		}
	}
}

func TestCompleteIsTerminal(t *testing.T) {
	store, _ := newTestStore()
	job, _ := store.Enqueue("candles", "collect-candles", nil, Options{})
	store.Dequeue("candles", 1)

	if err := store.Complete(job.JobID, "stored 12 candles"); err != nil {
		t.Fatalf("Complete error: %v", err)
	}
	stored, _ := store.Job(job.JobID)
	if stored.State != models.JobCompleted {
		t.Fatalf("State = %s, want completed", stored.State)
	}
	if stored.Result != "stored 12 candles" {
		t.Fatalf("Result = %q", stored.Result)
	}
	if stored.FinishedAt == nil {
		t.Fatal("completed job has no finish time")
	}

	if jobs, _ := store.Dequeue("candles", 10); len(jobs) != 0 {
		t.Fatal("completed job was dequeued")
	}
}

func TestCountsByState(t *testing.T) {
	store, _ := newTestStore()

	for i := 0; i < 3; i++ {
		store.Enqueue("candles", "collect-candles", nil, Options{})
	}
	active, _ := store.Enqueue("candles", "collect-candles", nil, Options{})
	done, _ := store.Enqueue("candles", "collect-candles", nil, Options{})
	dead, _ := store.Enqueue("candles", "collect-candles", nil, Options{MaxAttempts: 1})

	store.Dequeue("candles", 6)
	store.Complete(done.JobID, "ok")
	store.Fail(dead.JobID, errors.New("boom"))
	_ = active

	counts, err := store.CountsByState("candles")
	if err != nil {
		t.Fatalf("CountsByState error: %v", err)
	}
	if counts.Active != 4 || counts.Completed != 1 || counts.Failed != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}
}

func TestCleanRemovesOnlyOldTerminalJobs(t *testing.T) {
	store, clock := newTestStore()

	old, _ := store.Enqueue("candles", "collect-candles", nil, Options{})
	store.Dequeue("candles", 1)
	store.Complete(old.JobID, "ok")

	clock.advance(25 * time.Hour)

	recent, _ := store.Enqueue("candles", "collect-candles", nil, Options{})
	store.Dequeue("candles", 1)
	store.Complete(recent.JobID, "ok")

	clock.advance(time.Hour)

	removed, err := store.Clean("candles", clock.t.Add(-24*time.Hour), models.JobCompleted)
	if err != nil {
		t.Fatalf("Clean error: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed %d jobs, want 1", removed)
	}
	if _, err := store.Job(old.JobID); !errors.Is(err, ErrJobNotFound) {
		t.Fatal("job finished 25h ago should be pruned")
	}
	if _, err := store.Job(recent.JobID); err != nil {
		t.Fatal("job finished 1h ago should remain")
	}
}

func TestCleanRejectsNonTerminalStates(t *testing.T) {
	store, clock := newTestStore()

	for _, state := range []models.JobState{models.JobWaiting, models.JobActive, models.JobDelayed} {
		if _, err := store.Clean("candles", clock.t, state); !errors.Is(err, ErrNotTerminal) {
			t.Fatalf("Clean(%s) = %v, want ErrNotTerminal", state, err)
		}
	}
}

func TestRetryResetsTerminalFailedJob(t *testing.T) {
	store, _ := newTestStore()

	job, _ := store.Enqueue("candles", "collect-candles", nil, Options{MaxAttempts: 1})
	store.Dequeue("candles", 1)
	store.Fail(job.JobID, errors.New("boom"))

	if err := store.Retry("candles", job.JobID); err != nil {
		t.Fatalf("Retry error: %v", err)
	}

	stored, _ := store.Job(job.JobID)
	if stored.State != models.JobWaiting {
		t.Fatalf("State = %s, want waiting", stored.State)
	}
	if stored.Attempts != 0 {
		t.Fatalf("Attempts = %d, want 0", stored.Attempts)
	}
	if stored.FinishedAt != nil {
		t.Fatal("retried job still has a finish time")
	}

	jobs, _ := store.Dequeue("candles", 1)
	if len(jobs) != 1 {
		t.Fatal("retried job should be dequeueable again")
	}
}

func TestRetryRejectsNonFailedJobs(t *testing.T) {
	store, _ := newTestStore()

	job, _ := store.Enqueue("candles", "collect-candles", nil, Options{})
	if err := store.Retry("candles", job.JobID); !errors.Is(err, ErrNotRetryable) {
		t.Fatalf("Retry on waiting job = %v, want ErrNotRetryable", err)
	}

	if err := store.Retry("candles", "no-such-id"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("Retry on missing job = %v, want ErrJobNotFound", err)
	}
}

func TestRequeueStalledDoesNotConsumeAttempts(t *testing.T) {
	store, clock := newTestStore()

	job, _ := store.Enqueue("candles", "collect-candles", nil, Options{MaxAttempts: 3})
	store.Dequeue("candles", 1)

	clock.advance(11 * time.Minute)

	n, err := store.RequeueStalled("candles", 10*time.Minute)
	if err != nil {
		t.Fatalf("RequeueStalled error: %v", err)
	}
	if n != 1 {
		t.Fatalf("requeued %d jobs, want 1", n)
	}

	stored, _ := store.Job(job.JobID)
	if stored.State != models.JobWaiting {
		t.Fatalf("State = %s, want waiting", stored.State)
	}
	if stored.Attempts != 0 {
		t.Fatalf("Attempts = %d, stall recovery must not burn retries", stored.Attempts)
	}
}

func TestRequeueStalledLeavesFreshActiveJobs(t *testing.T) {
	store, clock := newTestStore()

	store.Enqueue("candles", "collect-candles", nil, Options{})
	store.Dequeue("candles", 1)

	clock.advance(time.Minute)

	n, _ := store.RequeueStalled("candles", 10*time.Minute)
	if n != 0 {
		t.Fatalf("requeued %d fresh jobs, want 0", n)
	}
}

func TestQueuesListsKnownQueues(t *testing.T) {
	store, _ := newTestStore()

	store.Enqueue("candles", "collect-candles", nil, Options{})
	store.Enqueue("notifications", "send-email", nil, Options{})
	store.Enqueue("candles", "collect-candles", nil, Options{})

	names, err := store.Queues()
	if err != nil {
		t.Fatalf("Queues error: %v", err)
	}
	if len(names) != 2 || names[0] != "candles" || names[1] != "notifications" {
		t.Fatalf("Queues = %v", names)
	}
}
