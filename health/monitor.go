package health

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go_jobs_backend/models"
	"go_jobs_backend/queue"
)

// Status classifies operational health
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// Classification thresholds
const (
	FailedUnhealthyThreshold = 100
	WaitingDegradedThreshold = 1000
)

// QueueHealth is one queue's classification with its raw counts
type QueueHealth struct {
	Name    string `json:"name"`
	Status  Status `json:"status"`
	Waiting int64  `json:"waiting"`
	Active  int64  `json:"active"`
	Failed  int64  `json:"failed"`
}

// Snapshot is a freshly computed view of system health. Never persisted.
type Snapshot struct {
	Status    Status        `json:"status"`
	Queues    []QueueHealth `json:"queues"`
	Timestamp time.Time     `json:"timestamp"`
}

// Publisher receives each periodic snapshot, e.g. the websocket hub.
type Publisher interface {
	Broadcast(Snapshot)
}

// Config holds health monitor settings
type Config struct {
	SampleInterval  time.Duration // default 5m
	CleanupInterval time.Duration // default 1h
	Retention       time.Duration // default 24h
}

// Monitor samples queue health on a fixed cadence and prunes old
// completed jobs, independent of the data path.
type Monitor struct {
	store     queue.Store
	cfg       Config
	publisher Publisher

	mu     sync.Mutex
	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewMonitor creates a health monitor over the given job store
func NewMonitor(store queue.Store, cfg Config) *Monitor {
	if cfg.SampleInterval <= 0 {
		cfg.SampleInterval = 5 * time.Minute
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Hour
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	return &Monitor{store: store, cfg: cfg}
}

// SetPublisher attaches a snapshot publisher. Call before Start.
func (m *Monitor) SetPublisher(p Publisher) {
	m.publisher = p
}

// Start launches the sampling and cleanup timers. Each runs on its own
// cadence; neither blocks the other.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.stopCh != nil {
		m.mu.Unlock()
		return
	}
	m.stopCh = make(chan struct{})
	stopCh := m.stopCh
	m.mu.Unlock()

	m.wg.Add(2)
	go m.sampleLoop(ctx, stopCh)
	go m.cleanupLoop(ctx, stopCh)

	log.Printf("Health monitor started (sample=%s cleanup=%s retention=%s)",
		m.cfg.SampleInterval, m.cfg.CleanupInterval, m.cfg.Retention)
}

// Stop stops both timers
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.stopCh == nil {
		m.mu.Unlock()
		return
	}
	close(m.stopCh)
	m.stopCh = nil
	m.mu.Unlock()

	m.wg.Wait()
	log.Println("Health monitor stopped")
}

func (m *Monitor) sampleLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.SampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			snapshot, err := m.GetHealthStatus()
			if err != nil {
				log.Printf("Health sampling failed: %v", err)
				continue
			}
			if snapshot.Status != StatusHealthy {
				log.Printf("System health: %s", snapshot.Status)
			}
			if m.publisher != nil {
				m.publisher.Broadcast(snapshot)
			}
		}
	}
}

func (m *Monitor) cleanupLoop(ctx context.Context, stopCh <-chan struct{}) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			m.RunCleanup()
		}
	}
}

// RunCleanup prunes completed jobs older than the retention window in
// every queue. A failure on one queue is logged and never blocks the
// remaining queues.
func (m *Monitor) RunCleanup() {
	names, err := m.store.Queues()
	if err != nil {
		log.Printf("Cleanup skipped, failed to list queues: %v", err)
		return
	}

	cutoff := time.Now().Add(-m.cfg.Retention)
	for _, name := range names {
		removed, err := m.store.Clean(name, cutoff, models.JobCompleted)
		if err != nil {
			log.Printf("Error cleaning completed jobs in %s: %v", name, err)
			continue
		}
		if removed > 0 {
			log.Printf("Cleaned %d completed jobs from %s", removed, name)
		}
	}
}

// GetHealthStatus computes a fresh classification of every queue.
// Read-only and side-effect free. A queue whose counts cannot be read
// is logged and omitted; the remaining queues are still classified.
func (m *Monitor) GetHealthStatus() (Snapshot, error) {
	names, err := m.store.Queues()
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to list queues: %w", err)
	}

	snapshot := Snapshot{
		Status:    StatusHealthy,
		Queues:    make([]QueueHealth, 0, len(names)),
		Timestamp: time.Now(),
	}

	for _, name := range names {
		counts, err := m.store.CountsByState(name)
		if err != nil {
			log.Printf("Error reading counts for %s, omitting from snapshot: %v", name, err)
			continue
		}

		qh := QueueHealth{
			Name:    name,
			Status:  Classify(counts),
			Waiting: counts.Waiting,
			Active:  counts.Active,
			Failed:  counts.Failed,
		}
		snapshot.Queues = append(snapshot.Queues, qh)
		snapshot.Status = worse(snapshot.Status, qh.Status)
	}

	return snapshot, nil
}

// Classify derives one queue's status from its counts
func Classify(counts models.QueueCounts) Status {
	if counts.Failed > FailedUnhealthyThreshold {
		return StatusUnhealthy
	}
	if counts.Waiting > WaitingDegradedThreshold {
		return StatusDegraded
	}
	return StatusHealthy
}

func worse(a, b Status) Status {
	if a == StatusUnhealthy || b == StatusUnhealthy {
		return StatusUnhealthy
	}
	if a == StatusDegraded || b == StatusDegraded {
		return StatusDegraded
	}
	return StatusHealthy
}
