package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"companion.app/relay/common/logger"
	"companion.app/relay/internal/model"
)

// permanentError marks a failure that retrying cannot fix.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the job goes straight to dead instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

func (q *Queue) runWorker(workerID int) {
	defer q.wg.Done()
	q.liveWorkers.Add(1)
	defer q.liveWorkers.Add(-1)

	ctx := logger.WithLogFields(q.runCtx, logger.LogFields{Component: "relay.queue.worker"})
	slog.DebugContext(ctx, "worker started", "worker", workerID)

	for {
		job, wait := q.claim()
		if job == nil {
			timer := time.NewTimer(wait)
			select {
			case <-q.stopCh:
				timer.Stop()
				slog.DebugContext(ctx, "worker stopping", "worker", workerID)
				return
			case <-q.wake:
			case <-timer.C:
			}
			timer.Stop()
			continue
		}

		q.process(ctx, job)

		select {
		case <-q.stopCh:
			slog.DebugContext(ctx, "worker stopping", "worker", workerID)
			return
		default:
		}
	}
}

// claim takes the best eligible pending job and marks it processing.
// With nothing eligible it returns how long the caller may sleep.
func (q *Queue) claim() (*model.Job, time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopping {
		return nil, q.cfg.IdlePoll
	}

	now := q.now()
	var (
		best     *entry
		bestRank int
		wait     = q.cfg.IdlePoll
	)
	for _, e := range q.pending {
		if e.job.AvailableAt.After(now) {
			if d := e.job.AvailableAt.Sub(now); d < wait {
				wait = d
			}
			continue
		}
		rank := q.effectiveRank(e.job, now)
		if best == nil || rank < bestRank || (rank == bestRank && before(e, best)) {
			best, bestRank = e, rank
		}
	}
	if best == nil {
		return nil, wait
	}

	delete(q.pending, best.job.ID)
	best.job.Status = model.JobStatusProcessing
	best.job.LastAttemptAt = &now
	return best.job.Clone(), 0
}

// effectiveRank is the priority rank lowered one tier per AgingInterval
// the job has been eligible, so low tiers cannot starve.
func (q *Queue) effectiveRank(job *model.Job, now time.Time) int {
	rank := job.Priority.Rank()
	if q.cfg.AgingInterval <= 0 {
		return rank
	}
	rank -= int(now.Sub(job.AvailableAt) / q.cfg.AgingInterval)
	if rank < 0 {
		return 0
	}
	return rank
}

func before(a, b *entry) bool {
	if !a.job.EnqueuedAt.Equal(b.job.EnqueuedAt) {
		return a.job.EnqueuedAt.Before(b.job.EnqueuedAt)
	}
	return a.seq < b.seq
}

func (q *Queue) process(ctx context.Context, job *model.Job) {
	sc := logger.StartSpanFromTraceID(ctx, job.TraceID, "queue.process_job")
	defer sc.End()
	ctx = logger.WithLogFields(sc.Context(), logger.LogFields{
		JobID:   logger.Ptr(job.ID),
		JobType: logger.Ptr(string(job.Type)),
	})

	if err := q.journal.Save(ctx, job); err != nil {
		slog.WarnContext(ctx, "failed to journal processing job", "error", err)
	}

	slog.InfoContext(ctx, "processing job",
		"priority", job.Priority,
		"attempt", job.Attempts+1,
		"max_attempts", job.MaxAttempts)

	start := q.now()
	err := q.executeSafe(ctx, job)
	if err != nil {
		sc.RecordError(err)
	}
	q.finish(ctx, job, err, q.now().Sub(start))
}

func (q *Queue) executeSafe(ctx context.Context, job *model.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "panic recovered in job handler", "panic", r)
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	// handlers is read-only once started
	handler, ok := q.handlers[job.Type]
	if !ok {
		return Permanent(fmt.Errorf("%w: %s", ErrNoProcessor, job.Type))
	}

	if q.cfg.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.cfg.JobTimeout)
		defer cancel()
	}

	return handler(ctx, job.Clone())
}

// finish records the attempt outcome. The journal is written before the
// new state is published so operator actions never race a stale record.
func (q *Queue) finish(ctx context.Context, job *model.Job, err error, took time.Duration) {
	now := q.now()
	next := job.Clone()

	switch {
	case err == nil:
		next.Status = model.JobStatusCompleted
		next.CompletedAt = &now
		next.Error = ""
		slog.InfoContext(ctx, "job completed", "duration_ms", took.Milliseconds())

	case IsPermanent(err) || next.Attempts+1 >= next.MaxAttempts:
		next.Attempts++
		next.Status = model.JobStatusDead
		next.Error = err.Error()
		slog.ErrorContext(ctx, "job failed permanently, moving to dead",
			"error", err,
			"attempts", next.Attempts,
			"permanent", IsPermanent(err))
		if dlqErr := q.journal.DeadLetter(ctx, next); dlqErr != nil {
			slog.ErrorContext(ctx, "failed to dead-letter job", "error", dlqErr)
		}

	default:
		next.Attempts++
		next.Status = model.JobStatusPending
		next.Error = err.Error()
		delay := q.backoff(next.Attempts)
		next.AvailableAt = now.Add(delay)
		slog.WarnContext(ctx, "job failed, scheduling retry",
			"error", err,
			"attempts", next.Attempts,
			"retry_in_ms", delay.Milliseconds())
	}

	if saveErr := q.journal.Save(ctx, next); saveErr != nil {
		slog.WarnContext(ctx, "failed to journal job outcome", "error", saveErr)
	}

	q.mu.Lock()
	e, ok := q.jobs[job.ID]
	if ok {
		*e.job = *next
		switch next.Status {
		case model.JobStatusCompleted:
			q.stats.completed++
		case model.JobStatusDead:
			q.stats.failed++
		case model.JobStatusPending:
			q.stats.retried++
			q.pending[job.ID] = e
		}
	}
	q.mu.Unlock()

	if ok && next.Status == model.JobStatusPending {
		q.signal()
	}
}
