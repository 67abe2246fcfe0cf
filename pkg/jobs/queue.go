package jobs

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrQueueStopped is returned when work is submitted to a queue that is not running.
var ErrQueueStopped = errors.New("queue not running")

// Job represents a unit of CPU-bound work executed by a worker.
type Job struct {
	ID       string
	Type     string
	Run      func(context.Context) error
	Enqueued time.Time

	ctx  context.Context
	done chan error
}

// QueueConfig configures worker pool behaviour.
type QueueConfig struct {
	Workers    int
	BufferSize int
	Logger     *zap.Logger
	// Observe, when set, receives how long each job waited and ran.
	Observe func(jobType string, wait, run time.Duration)
}

// Queue is a bounded pool of goroutines. Submitters block until their job
// has run, so at most Workers jobs execute concurrently.
type Queue struct {
	name string

	workers    int
	bufferSize int
	logger     *zap.Logger
	observe    func(string, time.Duration, time.Duration)

	jobs    chan Job
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewQueue builds a new queue.
func NewQueue(name string, cfg QueueConfig) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = cfg.Workers * 4
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Queue{
		name:       name,
		workers:    cfg.Workers,
		bufferSize: cfg.BufferSize,
		logger:     cfg.Logger,
		observe:    cfg.Observe,
		jobs:       make(chan Job, cfg.BufferSize),
	}
}

// Start begins worker consumption. Safe to call once.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i + 1)
	}
	q.started = true
	q.logger.Sugar().Infow("queue started", "queue", q.name, "workers", q.workers, "buffer", q.bufferSize)
}

// Stop cancels workers and waits for them to exit.
func (q *Queue) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	q.started = false
	q.mu.Unlock()
	q.wg.Wait()
	q.logger.Sugar().Infow("queue stopped", "queue", q.name)
}

// Do enqueues job and waits for its result. It returns early with the
// context error when ctx is cancelled before the job finishes.
func (q *Queue) Do(ctx context.Context, job Job) error {
	if job.Run == nil {
		return fmt.Errorf("queue %s: job %q has no run function", q.name, job.Type)
	}

	q.mu.Lock()
	qctx := q.ctx
	started := q.started
	q.mu.Unlock()

	if !started {
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueStopped)
	}
	if job.Enqueued.IsZero() {
		job.Enqueued = time.Now()
	}
	job.ctx = ctx
	job.done = make(chan error, 1)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-qctx.Done():
		return fmt.Errorf("queue %s: %w", q.name, ErrQueueStopped)
	case q.jobs <- job:
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-job.done:
		return err
	}
}

func (q *Queue) worker(workerID int) {
	defer q.wg.Done()
	for {
		select {
		case <-q.ctx.Done():
			q.drain()
			return
		case job := <-q.jobs:
			q.run(workerID, job)
		}
	}
}

func (q *Queue) run(workerID int, job Job) {
	if err := job.ctx.Err(); err != nil {
		job.done <- err
		return
	}

	started := time.Now()
	err := job.Run(job.ctx)
	finished := time.Now()

	if q.observe != nil {
		q.observe(job.Type, started.Sub(job.Enqueued), finished.Sub(started))
	}
	if err != nil {
		q.logger.Debug("job failed",
			zap.String("queue", q.name),
			zap.Int("worker", workerID),
			zap.String("job_id", job.ID),
			zap.String("type", job.Type),
			zap.Error(err),
		)
	}
	job.done <- err
}

// drain fails buffered jobs so their submitters do not wait forever.
func (q *Queue) drain() {
	for {
		select {
		case job := <-q.jobs:
			job.done <- ErrQueueStopped
		default:
			return
		}
	}
}
