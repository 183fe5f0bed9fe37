package worker

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"go_jobs_backend/models"
	"go_jobs_backend/queue"
)

// ResultNotHandled marks a job resolved because no handler is registered
// for its name. Retrying such a job can never succeed, so it is not an
// error condition.
const ResultNotHandled = "not handled"

// ProgressFunc lets a handler report progress any number of times during
// execution; values are forwarded to the store unmodified.
type ProgressFunc func(percent int) error

// Handler executes one job and returns a result string on success.
// Handlers must be idempotent with respect to their payload's natural key.
type Handler func(ctx context.Context, job *models.Job, progress ProgressFunc) (string, error)

// Pool consumes one queue with a bounded number of concurrent executions
type Pool struct {
	queueName    string
	store        queue.Store
	concurrency  int
	pollInterval time.Duration
	stallTimeout time.Duration

	mu       sync.Mutex
	handlers map[string]Handler
	stopCh   chan struct{}

	slots chan struct{}
	wg    sync.WaitGroup
}

// Config holds worker pool settings
type Config struct {
	Concurrency  int
	PollInterval time.Duration
	StallTimeout time.Duration
}

// NewPool creates a worker pool for one queue
func NewPool(queueName string, store queue.Store, cfg Config) *Pool {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Pool{
		queueName:    queueName,
		store:        store,
		concurrency:  cfg.Concurrency,
		pollInterval: cfg.PollInterval,
		stallTimeout: cfg.StallTimeout,
		handlers:     map[string]Handler{},
		slots:        make(chan struct{}, cfg.Concurrency),
	}
}

// RegisterHandler registers the handler for a job name
func (p *Pool) RegisterHandler(jobName string, handler Handler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers[jobName] = handler
}

// Start begins polling the queue. Safe to call once.
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	if p.stopCh != nil {
		p.mu.Unlock()
		return
	}
	p.stopCh = make(chan struct{})
	stopCh := p.stopCh
	p.mu.Unlock()

	log.Printf("Worker pool for queue %s started (concurrency=%d)", p.queueName, p.concurrency)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.pollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-stopCh:
				return
			case <-ticker.C:
				p.tick(ctx)
			}
		}
	}()
}

// Stop stops polling and waits for in-flight jobs to finish. Jobs are
// never failed merely because of shutdown; anything abandoned by a hard
// crash comes back through the stall sweep.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopCh == nil {
		p.mu.Unlock()
		return
	}
	close(p.stopCh)
	p.stopCh = nil
	p.mu.Unlock()

	p.wg.Wait()
	log.Printf("Worker pool for queue %s stopped", p.queueName)
}

func (p *Pool) tick(ctx context.Context) {
	if p.stallTimeout > 0 {
		if n, err := p.store.RequeueStalled(p.queueName, p.stallTimeout); err != nil {
			log.Printf("Error requeuing stalled jobs in %s: %v", p.queueName, err)
		} else if n > 0 {
			log.Printf("Requeued %d stalled jobs in %s", n, p.queueName)
		}
	}

	free := p.concurrency - len(p.slots)
	if free <= 0 {
		return
	}

	jobs, err := p.store.Dequeue(p.queueName, free)
	if err != nil {
		log.Printf("Error dequeuing from %s: %v", p.queueName, err)
		return
	}

	for _, job := range jobs {
		p.slots <- struct{}{}
		p.wg.Add(1)
		go func(job *models.Job) {
			defer p.wg.Done()
			defer func() { <-p.slots }()
			p.execute(ctx, job)
		}(job)
	}
}

// execute runs one job through its handler and translates the outcome
// into a queue state transition. Handler errors and panics never escape
// the pool.
func (p *Pool) execute(ctx context.Context, job *models.Job) {
	p.mu.Lock()
	handler, ok := p.handlers[job.Name]
	p.mu.Unlock()

	if !ok {
		// A permanently-missing handler can never succeed on retry.
		log.Printf("No handler registered for job %s (%s), resolving as not handled", job.Name, job.JobID)
		if err := p.store.Complete(job.JobID, ResultNotHandled); err != nil {
			log.Printf("Error resolving unhandled job %s: %v", job.JobID, err)
		}
		return
	}

	progress := func(percent int) error {
		return p.store.ReportProgress(job.JobID, percent)
	}

	result, err := p.runHandler(ctx, handler, job, progress)
	if err != nil {
		log.Printf("Job %s (%s) failed on attempt %d: %v", job.Name, job.JobID, job.Attempts+1, err)
		if ferr := p.store.Fail(job.JobID, err); ferr != nil {
			log.Printf("Error recording failure for job %s: %v", job.JobID, ferr)
		}
		return
	}

	if cerr := p.store.Complete(job.JobID, result); cerr != nil {
		log.Printf("Error completing job %s: %v", job.JobID, cerr)
	}
}

func (p *Pool) runHandler(ctx context.Context, handler Handler, job *models.Job, progress ProgressFunc) (result string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, job, progress)
}
