package background

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/goliatone/go-recipe-query/internal/logger"
)

// Job represents a task to be executed by a worker
type Job interface {
	Name() string
	Process(ctx context.Context) error
}

// JobFunc adapts a function to Job.
type JobFunc struct {
	Label string
	Fn    func(ctx context.Context) error
}

func (j JobFunc) Name() string                      { return j.Label }
func (j JobFunc) Process(ctx context.Context) error { return j.Fn(ctx) }

type queued struct {
	ctx context.Context
	job Job
}

// Pool runs detached jobs on a fixed number of workers. Job errors are logged
// and never returned to whoever enqueued the job.
type Pool struct {
	workers  int
	timeout  time.Duration
	logger   *slog.Logger
	jobQueue chan queued
	pending  sync.WaitGroup
	wg       sync.WaitGroup
	quit     chan struct{}

	mu      sync.RWMutex
	started bool
	stopped bool

	onDone func(name string, err error)
}

// Option customizes a Pool.
type Option func(*Pool)

// WithLogger sets the logger used for failed jobs.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pool) { p.logger = l }
}

// WithJobTimeout bounds every job's context.
func WithJobTimeout(d time.Duration) Option {
	return func(p *Pool) { p.timeout = d }
}

// WithCompletionHook is called after each job with its outcome.
func WithCompletionHook(fn func(name string, err error)) Option {
	return func(p *Pool) { p.onDone = fn }
}

// NewPool creates a new worker pool
func NewPool(workers, queueSize int, opts ...Option) *Pool {
	if workers <= 0 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	p := &Pool{
		workers:  workers,
		timeout:  30 * time.Second,
		logger:   slog.Default(),
		jobQueue: make(chan queued, queueSize),
		quit:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Start starts the workers. Calling it more than once has no effect.
func (p *Pool) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return
	}
	p.started = true
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for {
		select {
		case q := <-p.jobQueue:
			p.run(q)
		case <-p.quit:
			return
		}
	}
}

func (p *Pool) run(q queued) {
	defer p.pending.Done()

	ctx := context.WithoutCancel(q.ctx)
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	err := q.job.Process(ctx)
	if err != nil {
		l := p.logger
		if id, ok := logger.RequestIDFromContext(q.ctx); ok {
			l = l.With("request_id", id)
		}
		l.Warn("background job failed", "job", q.job.Name(), "error", err)
	}
	if p.onDone != nil {
		p.onDone(q.job.Name(), err)
	}
}

// Enqueue adds a job to the queue. The job inherits ctx values but not its
// cancellation. It blocks while the queue is full and returns false once the
// pool is stopped.
func (p *Pool) Enqueue(ctx context.Context, job Job) bool {
	p.mu.RLock()
	if p.stopped {
		p.mu.RUnlock()
		return false
	}
	p.pending.Add(1)
	p.mu.RUnlock()

	select {
	case p.jobQueue <- queued{ctx: ctx, job: job}:
		return true
	case <-p.quit:
		p.pending.Done()
		return false
	}
}

// Wait blocks until every enqueued job has finished.
func (p *Pool) Wait() {
	p.pending.Wait()
}

// Stop waits for queued jobs, then stops the workers.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	started := p.started
	p.mu.Unlock()

	if started {
		p.pending.Wait()
	}
	close(p.quit)
	p.wg.Wait()
}
