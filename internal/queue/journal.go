package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"companion.app/relay/internal/model"
)

// Journal is a write-through record of job state. Save is called on every
// state change, so Load after a crash yields the last known state of each job.
type Journal interface {
	Save(ctx context.Context, job *model.Job) error
	Remove(ctx context.Context, jobID string) error
	DeadLetter(ctx context.Context, job *model.Job) error
	Load(ctx context.Context) ([]*model.Job, error)
}

// NopJournal keeps nothing. Jobs are lost on restart.
type NopJournal struct{}

func (NopJournal) Save(context.Context, *model.Job) error       { return nil }
func (NopJournal) Remove(context.Context, string) error         { return nil }
func (NopJournal) DeadLetter(context.Context, *model.Job) error { return nil }
func (NopJournal) Load(context.Context) ([]*model.Job, error)   { return nil, nil }

type RedisJournalConfig struct {
	JobsKey   string // Hash of job ID to job record
	DLQStream string // Stream receiving a copy of every dead job
}

// RedisJournal keeps one hash field per job and appends dead jobs to a
// stream for inspection.
type RedisJournal struct {
	client redis.Cmdable
	cfg    RedisJournalConfig
}

func NewRedisJournal(client redis.Cmdable, cfg RedisJournalConfig) *RedisJournal {
	if cfg.JobsKey == "" {
		cfg.JobsKey = "relay:jobs"
	}
	if cfg.DLQStream == "" {
		cfg.DLQStream = "relay:jobs:dlq"
	}
	return &RedisJournal{client: client, cfg: cfg}
}

// record is the stored form of a job. Payload is kept raw and decoded
// against the job type on load.
type record struct {
	*model.Job
	Payload json.RawMessage `json:"payload"`
}

func encodeRecord(job *model.Job) ([]byte, error) {
	payload, err := json.Marshal(job.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(record{Job: job, Payload: payload})
	if err != nil {
		return nil, fmt.Errorf("marshal job: %w", err)
	}
	return data, nil
}

func decodeRecord(data []byte) (*model.Job, error) {
	rec := record{Job: &model.Job{}}
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	payload, err := model.DecodePayload(rec.Type, rec.Payload)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", rec.ID, err)
	}
	rec.Job.Payload = payload
	return rec.Job, nil
}

func (j *RedisJournal) Save(ctx context.Context, job *model.Job) error {
	data, err := encodeRecord(job)
	if err != nil {
		return err
	}
	if err := j.client.HSet(ctx, j.cfg.JobsKey, job.ID, data).Err(); err != nil {
		return fmt.Errorf("hset job (key=%s): %w", j.cfg.JobsKey, err)
	}
	return nil
}

func (j *RedisJournal) Remove(ctx context.Context, jobID string) error {
	if err := j.client.HDel(ctx, j.cfg.JobsKey, jobID).Err(); err != nil {
		return fmt.Errorf("hdel job (key=%s): %w", j.cfg.JobsKey, err)
	}
	return nil
}

func (j *RedisJournal) DeadLetter(ctx context.Context, job *model.Job) error {
	data, err := encodeRecord(job)
	if err != nil {
		return err
	}

	if err := j.client.XAdd(ctx, &redis.XAddArgs{
		Stream: j.cfg.DLQStream,
		Values: map[string]any{
			"job_id":   job.ID,
			"job_type": string(job.Type),
			"attempts": job.Attempts,
			"error":    job.Error,
			"job":      string(data),
		},
	}).Err(); err != nil {
		return fmt.Errorf("xadd dlq (stream=%s): %w", j.cfg.DLQStream, err)
	}

	slog.ErrorContext(ctx, "job sent to DLQ",
		"job_id", job.ID,
		"final_error", job.Error,
		"dlq_stream", j.cfg.DLQStream)
	return nil
}

// Load returns every journaled job. Records that fail to decode are
// skipped and logged.
func (j *RedisJournal) Load(ctx context.Context) ([]*model.Job, error) {
	fields, err := j.client.HGetAll(ctx, j.cfg.JobsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall jobs (key=%s): %w", j.cfg.JobsKey, err)
	}

	jobs := make([]*model.Job, 0, len(fields))
	for id, raw := range fields {
		job, err := decodeRecord([]byte(raw))
		if err != nil {
			slog.WarnContext(ctx, "skipping unreadable journal record", "error", err, "job_id", id)
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
