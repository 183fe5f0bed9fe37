package queue

import (
	"errors"
	"time"

	"go_jobs_backend/models"
)

// Store errors
var (
	ErrJobNotFound  = errors.New("job not found")
	ErrNotRetryable = errors.New("job is not in a terminal failed state")
	ErrNotTerminal  = errors.New("clean only applies to terminal states")
)

// Options controls retry behavior for an enqueued job
type Options struct {
	MaxAttempts   int
	BackoffType   string
	BackoffBaseMS int
}

// DefaultOptions is the retry policy applied by scheduler triggers
var DefaultOptions = Options{
	MaxAttempts:   3,
	BackoffType:   models.BackoffExponential,
	BackoffBaseMS: 2000,
}

func (o Options) withDefaults() Options {
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultOptions.MaxAttempts
	}
	if o.BackoffType == "" {
		o.BackoffType = DefaultOptions.BackoffType
	}
	if o.BackoffBaseMS <= 0 {
		o.BackoffBaseMS = DefaultOptions.BackoffBaseMS
	}
	return o
}

// Store is the only mutable home of job records. The scheduler enqueues,
// the worker pool dequeues and reports outcomes, the health monitor reads
// counts and prunes terminal jobs.
type Store interface {
	// Enqueue creates a waiting job in the named queue. The payload is
	// serialized to JSON and opaque to the store.
	Enqueue(queueName, jobName string, payload interface{}, opts Options) (*models.Job, error)

	// Dequeue promotes due delayed jobs, then claims up to limit waiting
	// jobs in FIFO order, marking them active.
	Dequeue(queueName string, limit int) ([]*models.Job, error)

	// ReportProgress stores the latest progress value, clamped to [0,100].
	ReportProgress(jobID string, percent int) error

	// Complete moves a job to the terminal completed state.
	Complete(jobID string, result string) error

	// Fail records a failed run. While attempts remain the job is delayed
	// by the backoff policy; otherwise it becomes terminal failed.
	Fail(jobID string, jobErr error) error

	// CountsByState returns per-state job counts for one queue.
	CountsByState(queueName string) (models.QueueCounts, error)

	// Clean deletes jobs in the given terminal state whose finish time
	// precedes the cutoff, returning how many were removed.
	Clean(queueName string, olderThan time.Time, state models.JobState) (int64, error)

	// Retry resets a terminal-failed job and returns it to waiting.
	// Operator action only.
	Retry(queueName, jobID string) error

	// RequeueStalled returns jobs active longer than the stall timeout to
	// waiting without consuming an attempt. Covers worker crashes and
	// process shutdown with work in flight.
	RequeueStalled(queueName string, stallTimeout time.Duration) (int64, error)

	// Jobs lists jobs in a queue, optionally filtered by state, newest first.
	Jobs(queueName string, state models.JobState, limit int) ([]*models.Job, error)

	// Queues returns the names of all queues that have ever held a job.
	Queues() ([]string, error)
}

func clampProgress(percent int) int {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
