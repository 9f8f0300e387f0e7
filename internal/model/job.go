package model

import (
	"encoding/json"
	"fmt"
	"time"
)

type JobType string

const (
	JobTypeMemoryProcessing      JobType = "memory_processing"
	JobTypeTaskExtraction        JobType = "task_extraction"
	JobTypeCommitmentTracking    JobType = "commitment_tracking"
	JobTypeRelationshipAnalysis  JobType = "relationship_analysis"
	JobTypeSpeakerReconciliation JobType = "speaker_reconciliation"
)

type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityNormal Priority = "normal"
	PriorityLow    Priority = "low"
)

// Rank orders priorities for scheduling; lower runs first.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	default:
		return 2
	}
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityNormal, PriorityLow:
		return true
	}
	return false
}

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusDead       JobStatus = "dead"
)

const DefaultMaxAttempts = 3

type Job struct {
	ID            string     `json:"id"`
	Type          JobType    `json:"type"`
	Payload       Payload    `json:"-"`
	Priority      Priority   `json:"priority"`
	Status        JobStatus  `json:"status"`
	Attempts      int        `json:"attempts"`
	MaxAttempts   int        `json:"max_attempts"`
	EnqueuedAt    time.Time  `json:"enqueued_at"`
	AvailableAt   time.Time  `json:"available_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`
	Error         string     `json:"error,omitempty"`
	TraceID       string     `json:"trace_id,omitempty"`
}

// Payload is the closed set of job bodies. Each job type carries exactly
// one concrete payload type.
type Payload interface {
	JobType() JobType
}

// MemoryPayload is the body of memory_processing and of the extraction
// jobs fanned out from it. Kind selects which of those job types it is.
type MemoryPayload struct {
	Kind      JobType  `json:"kind"`
	MemoryID  string   `json:"memory_id,omitempty"`
	SessionID string   `json:"session_id"`
	DeviceID  string   `json:"device_id"`
	Source    Source   `json:"source"`
	Content   string   `json:"content"`
	Speakers  []string `json:"speakers,omitempty"`
}

func (p MemoryPayload) JobType() JobType {
	if p.Kind == "" {
		return JobTypeMemoryProcessing
	}
	return p.Kind
}

// As returns a copy of the payload retargeted at another job type.
func (p MemoryPayload) As(kind JobType) MemoryPayload {
	p.Kind = kind
	return p
}

type ReconcilePayload struct {
	SessionID string `json:"session_id"`
	DeviceID  string `json:"device_id,omitempty"`
}

func (ReconcilePayload) JobType() JobType { return JobTypeSpeakerReconciliation }

// DecodePayload turns a journaled payload back into its concrete type.
func DecodePayload(jobType JobType, raw json.RawMessage) (Payload, error) {
	switch jobType {
	case JobTypeMemoryProcessing, JobTypeTaskExtraction, JobTypeCommitmentTracking, JobTypeRelationshipAnalysis:
		var p MemoryPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", jobType, err)
		}
		p.Kind = jobType
		return p, nil
	case JobTypeSpeakerReconciliation:
		var p ReconcilePayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, fmt.Errorf("decoding %s payload: %w", jobType, err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown job type %q", jobType)
	}
}

// Clone returns a copy safe to hand out of the queue's lock.
func (j *Job) Clone() *Job {
	c := *j
	if j.LastAttemptAt != nil {
		t := *j.LastAttemptAt
		c.LastAttemptAt = &t
	}
	if j.CompletedAt != nil {
		t := *j.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

func (j *Job) Terminal() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusDead
}

// Failed reports a job that is waiting out a retry backoff after a failed
// attempt. It is still pending as far as scheduling is concerned.
func (j *Job) Failed() bool {
	return j.Status == JobStatusPending && j.Attempts > 0
}
