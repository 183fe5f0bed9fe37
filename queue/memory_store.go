package queue

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"go_jobs_backend/models"

	"github.com/google/uuid"
)

// MemoryStore is an in-process job store with the same semantics as the
// database-backed store. It backs unit tests.
type MemoryStore struct {
	mu     sync.Mutex
	jobs   []*models.Job
	nextID uint

	// now is swappable so tests can advance time deterministically.
	now func() time.Time
}

// NewMemoryStore creates an empty in-memory job store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

// Enqueue creates a waiting job in the named queue
func (s *MemoryStore) Enqueue(queueName, jobName string, payload interface{}, opts Options) (*models.Job, error) {
	opts = opts.withDefaults()

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload for %s: %w", jobName, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	job := &models.Job{
		ID:            s.nextID,
		JobID:         uuid.NewString(),
		Queue:         queueName,
		Name:          jobName,
		Payload:       string(body),
		State:         models.JobWaiting,
		MaxAttempts:   opts.MaxAttempts,
		BackoffType:   opts.BackoffType,
		BackoffBaseMS: opts.BackoffBaseMS,
		CreatedAt:     s.now(),
	}
	s.jobs = append(s.jobs, job)

	out := *job
	return &out, nil
}

// Dequeue promotes due delayed jobs, then claims up to limit waiting jobs
// in FIFO order
func (s *MemoryStore) Dequeue(queueName string, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for _, job := range s.jobs {
		if job.Queue == queueName && job.State == models.JobDelayed &&
			job.NotBefore != nil && !job.NotBefore.After(now) {
			job.State = models.JobWaiting
			job.NotBefore = nil
		}
	}

	var eligible []*models.Job
	for _, job := range s.jobs {
		if job.Queue == queueName && job.State == models.JobWaiting {
			eligible = append(eligible, job)
		}
	}
	sort.SliceStable(eligible, func(i, j int) bool {
		if eligible[i].CreatedAt.Equal(eligible[j].CreatedAt) {
			return eligible[i].ID < eligible[j].ID
		}
		return eligible[i].CreatedAt.Before(eligible[j].CreatedAt)
	})
	if len(eligible) > limit {
		eligible = eligible[:limit]
	}

	out := make([]*models.Job, 0, len(eligible))
	for _, job := range eligible {
		job.State = models.JobActive
		started := now
		job.StartedAt = &started
		copied := *job
		out = append(out, &copied)
	}
	return out, nil
}

// ReportProgress stores the latest progress value, clamped to [0,100]
func (s *MemoryStore) ReportProgress(jobID string, percent int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.findLocked(jobID)
	if job == nil {
		return ErrJobNotFound
	}
	job.Progress = clampProgress(percent)
	return nil
}

// Complete moves a job to the terminal completed state
func (s *MemoryStore) Complete(jobID string, result string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.findLocked(jobID)
	if job == nil {
		return ErrJobNotFound
	}
	now := s.now()
	job.State = models.JobCompleted
	job.Result = result
	job.Progress = 100
	job.FinishedAt = &now
	return nil
}

// Fail records a failed run, delaying a retry or terminating the job
func (s *MemoryStore) Fail(jobID string, jobErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.findLocked(jobID)
	if job == nil {
		return ErrJobNotFound
	}

	job.Attempts++
	job.LastError = jobErr.Error()

	if job.Attempts >= job.MaxAttempts {
		now := s.now()
		job.State = models.JobFailed
		job.FinishedAt = &now
		job.NotBefore = nil
	} else {
		until := s.now().Add(job.BackoffDelay(job.Attempts))
		job.State = models.JobDelayed
		job.NotBefore = &until
	}
	return nil
}

// CountsByState returns per-state job counts for one queue
func (s *MemoryStore) CountsByState(queueName string) (models.QueueCounts, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var counts models.QueueCounts
	for _, job := range s.jobs {
		if job.Queue != queueName {
			continue
		}
		switch job.State {
		case models.JobWaiting:
			counts.Waiting++
		case models.JobActive:
			counts.Active++
		case models.JobDelayed:
			counts.Delayed++
		case models.JobFailed:
			counts.Failed++
		case models.JobCompleted:
			counts.Completed++
		}
	}
	return counts, nil
}

// Clean deletes terminal jobs finished before the cutoff
func (s *MemoryStore) Clean(queueName string, olderThan time.Time, state models.JobState) (int64, error) {
	if !state.IsTerminal() {
		return 0, ErrNotTerminal
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []*models.Job
	var removed int64
	for _, job := range s.jobs {
		if job.Queue == queueName && job.State == state &&
			job.FinishedAt != nil && job.FinishedAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, job)
	}
	s.jobs = kept
	return removed, nil
}

// Retry resets a terminal-failed job and returns it to waiting
func (s *MemoryStore) Retry(queueName, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.findLocked(jobID)
	if job == nil || job.Queue != queueName {
		return ErrJobNotFound
	}
	if job.State != models.JobFailed {
		return ErrNotRetryable
	}

	job.State = models.JobWaiting
	job.Attempts = 0
	job.Progress = 0
	job.NotBefore = nil
	job.StartedAt = nil
	job.FinishedAt = nil
	return nil
}

// RequeueStalled returns long-active jobs to waiting without consuming
// an attempt
func (s *MemoryStore) RequeueStalled(queueName string, stallTimeout time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-stallTimeout)
	var n int64
	for _, job := range s.jobs {
		if job.Queue == queueName && job.State == models.JobActive &&
			job.StartedAt != nil && job.StartedAt.Before(cutoff) {
			job.State = models.JobWaiting
			job.StartedAt = nil
			n++
		}
	}
	return n, nil
}

// Jobs lists jobs in a queue, optionally filtered by state, newest first
func (s *MemoryStore) Jobs(queueName string, state models.JobState, limit int) ([]*models.Job, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*models.Job
	for _, job := range s.jobs {
		if job.Queue != queueName {
			continue
		}
		if state != "" && job.State != state {
			continue
		}
		copied := *job
		out = append(out, &copied)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Queues returns the names of all queues that have ever held a job
func (s *MemoryStore) Queues() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := map[string]bool{}
	var names []string
	for _, job := range s.jobs {
		if !seen[job.Queue] {
			seen[job.Queue] = true
			names = append(names, job.Queue)
		}
	}
	sort.Strings(names)
	return names, nil
}

// Job returns a copy of one job by id. Test helper.
func (s *MemoryStore) Job(jobID string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	job := s.findLocked(jobID)
	if job == nil {
		return nil, ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (s *MemoryStore) findLocked(jobID string) *models.Job {
	for _, job := range s.jobs {
		if job.JobID == jobID {
			return job
		}
	}
	return nil
}
