package queue

import (
	"context"
	"log/slog"
	"slices"

	"companion.app/relay/internal/model"
)

type Stats struct {
	TotalEnqueued  int64 `json:"total_enqueued"`
	TotalCompleted int64 `json:"total_completed"`
	TotalFailed    int64 `json:"total_failed"`
	TotalRetried   int64 `json:"total_retried"`
	Pending        int   `json:"pending"`
	Retrying       int   `json:"retrying"`
	Processing     int   `json:"processing"`
	Completed      int   `json:"completed"`
	Dead           int   `json:"dead"`
	ActiveWorkers  int   `json:"active_workers"`
	QueueSize      int   `json:"queue_size"`
}

// Stats reports lifetime counters and the current index breakdown.
// Counters survive ClearCompleted.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	s := Stats{
		TotalEnqueued:  q.stats.enqueued,
		TotalCompleted: q.stats.completed,
		TotalFailed:    q.stats.failed,
		TotalRetried:   q.stats.retried,
		ActiveWorkers:  int(q.liveWorkers.Load()),
		QueueSize:      len(q.jobs),
	}
	for _, e := range q.jobs {
		switch e.job.Status {
		case model.JobStatusPending:
			s.Pending++
			if e.job.Failed() {
				s.Retrying++
			}
		case model.JobStatusProcessing:
			s.Processing++
		case model.JobStatusCompleted:
			s.Completed++
		case model.JobStatusDead:
			s.Dead++
		}
	}
	return s
}

// RetryDeadJobs moves every dead job back to pending with a fresh attempt
// budget. It is an operator action; the queue never calls it itself.
func (q *Queue) RetryDeadJobs(ctx context.Context) int {
	q.mu.Lock()
	now := q.now()
	var retried []*model.Job
	for _, e := range q.jobs {
		if e.job.Status != model.JobStatusDead {
			continue
		}
		job := e.job.Clone()
		job.Status = model.JobStatusPending
		job.Attempts = 0
		job.Error = ""
		job.AvailableAt = now
		retried = append(retried, job)
	}
	q.mu.Unlock()

	// Dead jobs are never claimed, so their pending records can be written
	// before any worker can see them.
	for _, job := range retried {
		if err := q.journal.Save(ctx, job); err != nil {
			slog.WarnContext(ctx, "failed to journal retried job", "error", err, "job_id", job.ID)
		}
	}

	q.mu.Lock()
	count := 0
	for _, job := range retried {
		e, ok := q.jobs[job.ID]
		if !ok || e.job.Status != model.JobStatusDead {
			continue
		}
		*e.job = *job
		q.pending[job.ID] = e
		count++
	}
	q.mu.Unlock()

	for i := 0; i < count && i < q.cfg.Workers; i++ {
		q.signal()
	}

	slog.InfoContext(ctx, "dead jobs requeued", "count", count)
	return count
}

// ClearCompleted drops completed jobs from the index. Counters are kept.
func (q *Queue) ClearCompleted(ctx context.Context) int {
	q.mu.Lock()
	var cleared []string
	for id, e := range q.jobs {
		if e.job.Status == model.JobStatusCompleted {
			delete(q.jobs, id)
			cleared = append(cleared, id)
		}
	}
	q.mu.Unlock()

	for _, id := range cleared {
		if err := q.journal.Remove(ctx, id); err != nil {
			slog.WarnContext(ctx, "failed to remove cleared job from journal", "error", err, "job_id", id)
		}
	}

	slog.InfoContext(ctx, "completed jobs cleared", "count", len(cleared))
	return len(cleared)
}

func (q *Queue) Get(id string) (*model.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.jobs[id]
	if !ok {
		return nil, ErrJobNotFound
	}
	return e.job.Clone(), nil
}

// List returns jobs in enqueue order, optionally filtered by status.
func (q *Queue) List(status model.JobStatus) []*model.Job {
	q.mu.Lock()
	entries := make([]*entry, 0, len(q.jobs))
	for _, e := range q.jobs {
		if status == "" || e.job.Status == status {
			entries = append(entries, e)
		}
	}
	slices.SortFunc(entries, func(a, b *entry) int {
		if before(a, b) {
			return -1
		}
		if before(b, a) {
			return 1
		}
		return 0
	})
	jobs := make([]*model.Job, len(entries))
	for i, e := range entries {
		jobs[i] = e.job.Clone()
	}
	q.mu.Unlock()
	return jobs
}
