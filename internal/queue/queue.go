package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"companion.app/relay/common/logger"
	"companion.app/relay/internal/model"
)

var (
	ErrQueueStarted = errors.New("queue already started")
	ErrNoProcessor  = errors.New("no processor registered for job type")
	ErrPayloadType  = errors.New("unexpected payload type")
	ErrJobNotFound  = errors.New("job not found")
)

// Handler processes one job. A returned error counts as a failed attempt.
type Handler func(ctx context.Context, job *model.Job) error

// Handle adapts a handler for one concrete payload type. A job whose payload
// is not a T fails permanently.
func Handle[T model.Payload](fn func(ctx context.Context, job *model.Job, payload T) error) Handler {
	return func(ctx context.Context, job *model.Job) error {
		payload, ok := job.Payload.(T)
		if !ok {
			return Permanent(fmt.Errorf("%w: job %s carries %T", ErrPayloadType, job.ID, job.Payload))
		}
		return fn(ctx, job, payload)
	}
}

type Config struct {
	Workers       int           // Fixed size of the worker pool
	MaxAttempts   int           // Default attempt budget per job
	BaseBackoff   time.Duration // Delay after the first failure, doubled per attempt
	MaxBackoff    time.Duration // Upper bound for the retry delay
	AgingInterval time.Duration // Waiting this long raises a job one priority tier (0 disables)
	JobTimeout    time.Duration // Per-attempt handler deadline (0 disables)
	IdlePoll      time.Duration // Upper bound on how long an idle worker sleeps
	Journal       Journal       // Optional persistence for crash recovery
}

type EnqueueOptions struct {
	Priority    model.Priority
	MaxAttempts int
}

// entry is the queue's bookkeeping around a job. seq breaks EnqueuedAt ties.
type entry struct {
	job *model.Job
	seq uint64
}

// Queue is a single-process priority job queue with a fixed worker pool.
// Jobs live in memory; the journal is a write-through copy used to
// recover pending work after a restart.
type Queue struct {
	cfg     Config
	journal Journal

	mu       sync.Mutex
	handlers map[model.JobType]Handler
	jobs     map[string]*entry
	pending  map[string]*entry
	seq      uint64
	started  bool
	stopping bool
	stats    counters

	wake   chan struct{}
	stopCh chan struct{}
	wg     sync.WaitGroup

	runCtx    context.Context
	cancelRun context.CancelFunc

	liveWorkers atomic.Int64
	now         func() time.Time
}

type counters struct {
	enqueued  int64
	completed int64
	failed    int64
	retried   int64
}

func New(cfg Config) *Queue {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = model.DefaultMaxAttempts
	}
	if cfg.IdlePoll <= 0 {
		cfg.IdlePoll = time.Second
	}
	journal := cfg.Journal
	if journal == nil {
		journal = NopJournal{}
	}

	return &Queue{
		cfg:      cfg,
		journal:  journal,
		handlers: make(map[model.JobType]Handler),
		jobs:     make(map[string]*entry),
		pending:  make(map[string]*entry),
		wake:     make(chan struct{}, cfg.Workers),
		stopCh:   make(chan struct{}),
		now:      time.Now,
	}
}

// RegisterProcessor binds a job type to its handler. Handlers are fixed
// once the pool is running.
func (q *Queue) RegisterProcessor(jobType model.JobType, handler Handler) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.started {
		return fmt.Errorf("registering %s: %w", jobType, ErrQueueStarted)
	}
	q.handlers[jobType] = handler
	return nil
}

// Enqueue adds a pending job and returns without waiting for it to run.
func (q *Queue) Enqueue(ctx context.Context, payload model.Payload, opts EnqueueOptions) (*model.Job, error) {
	if payload == nil {
		return nil, fmt.Errorf("enqueue: payload is required")
	}

	priority := opts.Priority
	if priority == "" {
		priority = model.PriorityNormal
	}
	if !priority.Valid() {
		return nil, fmt.Errorf("enqueue: invalid priority %q", priority)
	}

	maxAttempts := opts.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = q.cfg.MaxAttempts
	}

	now := q.now()
	job := &model.Job{
		ID:          uuid.NewString(),
		Type:        payload.JobType(),
		Payload:     payload,
		Priority:    priority,
		Status:      model.JobStatusPending,
		MaxAttempts: maxAttempts,
		EnqueuedAt:  now,
		AvailableAt: now,
		TraceID:     logger.TraceIDFromContext(ctx),
	}

	// Journal before the job becomes visible to workers, so the pending
	// record can never land after a later state.
	if err := q.journal.Save(ctx, job); err != nil {
		slog.WarnContext(ctx, "failed to journal enqueued job",
			"error", err,
			"job_id", job.ID,
			"job_type", job.Type)
	}

	q.mu.Lock()
	q.seq++
	e := &entry{job: job, seq: q.seq}
	q.jobs[job.ID] = e
	q.pending[job.ID] = e
	q.stats.enqueued++
	q.mu.Unlock()

	q.signal()

	slog.DebugContext(ctx, "job enqueued",
		"job_id", job.ID,
		"job_type", job.Type,
		"priority", job.Priority)

	return job.Clone(), nil
}

// Start recovers journaled jobs and launches the worker pool.
func (q *Queue) Start(ctx context.Context) error {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return ErrQueueStarted
	}
	q.started = true
	q.runCtx, q.cancelRun = context.WithCancel(context.WithoutCancel(ctx))
	q.mu.Unlock()

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "relay.queue"})

	if err := q.recover(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to recover journaled jobs", "error", err)
	}

	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.runWorker(i)
	}

	slog.InfoContext(ctx, "queue started",
		"workers", q.cfg.Workers,
		"max_attempts", q.cfg.MaxAttempts)

	return nil
}

// Stop prevents new dequeues and waits for in-flight jobs to settle.
// If ctx expires first, in-flight handlers are cancelled and Stop still
// waits for them to return before reporting the deadline.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if !q.started || q.stopping {
		q.mu.Unlock()
		return nil
	}
	q.stopping = true
	close(q.stopCh)
	q.mu.Unlock()

	slog.InfoContext(ctx, "queue stopping, draining in-flight jobs")

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.cancelRun()
		slog.InfoContext(ctx, "queue stopped")
		return nil
	case <-ctx.Done():
		q.cancelRun()
		<-done
		return fmt.Errorf("draining queue: %w", ctx.Err())
	}
}

func (q *Queue) recover(ctx context.Context) error {
	jobs, err := q.journal.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading journal: %w", err)
	}
	if len(jobs) == 0 {
		return nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	recovered := 0
	for _, job := range jobs {
		if _, exists := q.jobs[job.ID]; exists {
			continue
		}
		// A job processing at crash time never reached an outcome.
		if job.Status == model.JobStatusProcessing {
			job.Status = model.JobStatusPending
		}
		q.seq++
		e := &entry{job: job, seq: q.seq}
		q.jobs[job.ID] = e
		if job.Status == model.JobStatusPending {
			q.pending[job.ID] = e
			recovered++
		}
	}

	slog.InfoContext(ctx, "recovered journaled jobs",
		"total", len(jobs),
		"pending", recovered)
	return nil
}

// signal wakes one idle worker without blocking.
func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// backoff is BaseBackoff doubled per prior failure, capped at MaxBackoff.
func (q *Queue) backoff(attempts int) time.Duration {
	if q.cfg.BaseBackoff <= 0 || attempts <= 0 {
		return 0
	}
	delay := q.cfg.BaseBackoff
	for i := 1; i < attempts; i++ {
		delay *= 2
		if q.cfg.MaxBackoff > 0 && delay >= q.cfg.MaxBackoff {
			return q.cfg.MaxBackoff
		}
	}
	if q.cfg.MaxBackoff > 0 && delay > q.cfg.MaxBackoff {
		return q.cfg.MaxBackoff
	}
	return delay
}
