package scheduler

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go_jobs_backend/models"
	"go_jobs_backend/queue"
)

type fakeCatalog struct {
	stocks []models.Stock
	err    error
}

func (c *fakeCatalog) ListActiveTradable() ([]models.Stock, error) {
	return c.stocks, c.err
}

type fakeRecipients struct {
	userIDs []uint
	err     error
}

func (r *fakeRecipients) ListDigestUserIDs() ([]uint, error) {
	return r.userIDs, r.err
}

// flakyStore fails Enqueue for one symbol and delegates everything else
type flakyStore struct {
	queue.Store
	rejectSymbol string
}

func (s *flakyStore) Enqueue(queueName, jobName string, payload interface{}, opts queue.Options) (*models.Job, error) {
	if cp, ok := payload.(CandlePayload); ok && cp.Symbol == s.rejectSymbol {
		return nil, errors.New("enqueue rejected")
	}
	return s.Store.Enqueue(queueName, jobName, payload, opts)
}

func testStocks() []models.Stock {
	return []models.Stock{
		{ID: 1, Symbol: "VNM", Status: "active", Tradable: true},
		{ID: 2, Symbol: "FPT", Status: "active", Tradable: true},
		{ID: 3, Symbol: "HPG", Status: "active", Tradable: true},
	}
}

func TestCandleCollectionEnqueuesPerStock(t *testing.T) {
	store := queue.NewMemoryStore()
	catalog := &fakeCatalog{stocks: testStocks()}
	action := CandleCollectionAction(store, catalog, "5m", 2000)

	// Each fire enqueues one job per stock.
	fires := 4
	for i := 0; i < fires; i++ {
		n, err := action()
		if err != nil {
			t.Fatalf("fire %d error: %v", i+1, err)
		}
		if n != len(catalog.stocks) {
			t.Fatalf("fire %d enqueued %d jobs, want %d", i+1, n, len(catalog.stocks))
		}
	}

	counts, _ := store.CountsByState(CandleQueue)
	want := int64(fires * len(catalog.stocks))
	if counts.Waiting != want {
		t.Fatalf("Waiting = %d, want %d", counts.Waiting, want)
	}

	jobs, _ := store.Jobs(CandleQueue, models.JobWaiting, 100)
	var payload CandlePayload
	if err := json.Unmarshal([]byte(jobs[0].Payload), &payload); err != nil {
		t.Fatalf("payload decode error: %v", err)
	}
	if payload.Timeframe != "5m" || payload.Symbol == "" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestCandleCollectionSkipsRunOnEnumerationError(t *testing.T) {
	store := queue.NewMemoryStore()
	catalog := &fakeCatalog{err: errors.New("database unreachable")}
	action := CandleCollectionAction(store, catalog, "1m", 2000)

	n, err := action()
	if err == nil {
		t.Fatal("expected an error when enumeration fails")
	}
	if n != 0 {
		t.Fatalf("enqueued %d jobs on a skipped run, want 0", n)
	}

	counts, _ := store.CountsByState(CandleQueue)
	if counts.Waiting != 0 {
		t.Fatalf("Waiting = %d after skipped run, want 0", counts.Waiting)
	}
}

func TestCandleCollectionIsolatesEnqueueFailures(t *testing.T) {
	store := &flakyStore{Store: queue.NewMemoryStore(), rejectSymbol: "FPT"}
	catalog := &fakeCatalog{stocks: testStocks()}
	action := CandleCollectionAction(store, catalog, "1h", 2000)

	n, err := action()
	if err != nil {
		t.Fatalf("action error: %v", err)
	}
	if n != 2 {
		t.Fatalf("enqueued %d jobs, want 2 (one stock rejected)", n)
	}

	counts, _ := store.CountsByState(CandleQueue)
	if counts.Waiting != 2 {
		t.Fatalf("Waiting = %d, want 2", counts.Waiting)
	}
}

func TestWeeklyDigestEnqueuesPerRecipient(t *testing.T) {
	store := queue.NewMemoryStore()
	recipients := &fakeRecipients{userIDs: []uint{7, 11, 13}}
	action := WeeklyDigestAction(store, recipients, 2000)

	n, err := action()
	if err != nil {
		t.Fatalf("action error: %v", err)
	}
	if n != 3 {
		t.Fatalf("enqueued %d jobs, want 3", n)
	}

	jobs, _ := store.Jobs(NotificationQueue, models.JobWaiting, 10)
	if len(jobs) != 3 {
		t.Fatalf("found %d notification jobs, want 3", len(jobs))
	}
	for _, job := range jobs {
		if job.Name != JobSendEmail {
			t.Fatalf("job name = %s, want %s", job.Name, JobSendEmail)
		}
	}
}

func TestWeeklyDigestSkipsRunOnEnumerationError(t *testing.T) {
	store := queue.NewMemoryStore()
	recipients := &fakeRecipients{err: errors.New("database unreachable")}
	action := WeeklyDigestAction(store, recipients, 2000)

	if _, err := action(); err == nil {
		t.Fatal("expected an error when enumeration fails")
	}
}

func TestIsMarketOpen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"monday mid-session", time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC), true},
		{"monday at open", time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC), true},
		{"monday before open", time.Date(2026, 3, 2, 8, 59, 0, 0, time.UTC), false},
		{"monday at close", time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC), false},
		{"friday last hour", time.Date(2026, 3, 6, 14, 59, 0, 0, time.UTC), true},
		{"saturday", time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC), false},
		{"sunday", time.Date(2026, 3, 8, 10, 0, 0, 0, time.UTC), false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := IsMarketOpen(tt.at); got != tt.want {
				t.Fatalf("IsMarketOpen(%s) = %v, want %v", tt.at, got, tt.want)
			}
		})
	}
}

func TestBaseDelaysFallBackToDefault(t *testing.T) {
	delays := BaseDelays{"candles-1h": 500}

	if got := delays.For("candles-1h"); got != 500 {
		t.Fatalf("For(candles-1h) = %d, want 500", got)
	}
	if got := delays.For("weekly-digest"); got != queue.DefaultOptions.BackoffBaseMS {
		t.Fatalf("For(weekly-digest) = %d, want default %d", got, queue.DefaultOptions.BackoffBaseMS)
	}
	if got := BaseDelays(nil).For("candles-1m"); got != queue.DefaultOptions.BackoffBaseMS {
		t.Fatalf("nil map For = %d, want default", got)
	}
}

func TestRegisterDefaultTriggersAppliesPerTriggerDelays(t *testing.T) {
	store := queue.NewMemoryStore()
	catalog := &fakeCatalog{stocks: testStocks()[:1]}
	recipients := &fakeRecipients{userIDs: []uint{7}}

	s := NewScheduler()
	RegisterDefaultTriggers(s, store, catalog, recipients, BaseDelays{
		"candles-1h":    500,
		"weekly-digest": 8000,
	})

	fire := func(name string) {
		t.Helper()
		for _, trigger := range s.triggers {
			if trigger.Name == name {
				if _, err := trigger.Action(); err != nil {
					t.Fatalf("trigger %s error: %v", name, err)
				}
				return
			}
		}
		t.Fatalf("trigger %s not registered", name)
	}
	fire("candles-1h")
	fire("weekly-digest")

	candleJobs, _ := store.Jobs(CandleQueue, models.JobWaiting, 10)
	if len(candleJobs) != 1 || candleJobs[0].BackoffBaseMS != 500 {
		t.Fatalf("candle jobs = %+v, want one with base delay 500", candleJobs)
	}
	digestJobs, _ := store.Jobs(NotificationQueue, models.JobWaiting, 10)
	if len(digestJobs) != 1 || digestJobs[0].BackoffBaseMS != 8000 {
		t.Fatalf("digest jobs = %+v, want one with base delay 8000", digestJobs)
	}
}

func TestRunTriggerSurvivesPanicAndError(t *testing.T) {
	s := NewScheduler()

	// Neither a panicking action nor a failing one may escape.
	s.runTrigger(Trigger{Name: "panicky", Action: func() (int, error) {
		panic("boom")
	}})
	s.runTrigger(Trigger{Name: "failing", Action: func() (int, error) {
		return 0, errors.New("enumeration failed")
	}})
}
