package worker

import (
	"context"

	"companion.app/relay/internal/brain"
	"companion.app/relay/internal/conversation"
	"companion.app/relay/internal/model"
	"companion.app/relay/internal/queue"
)

// Enqueuer is the part of the queue handlers use to schedule follow-up jobs.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload model.Payload, opts queue.EnqueueOptions) (*model.Job, error)
}

type Registrar interface {
	RegisterProcessor(jobType model.JobType, handler queue.Handler) error
}

type TaskExtractor interface {
	Extract(ctx context.Context, in brain.Input) ([]model.ExtractedTask, error)
}

type CommitmentTracker interface {
	Track(ctx context.Context, in brain.Input) ([]model.TrackedCommitment, error)
}

type RelationshipAnalyzer interface {
	Analyze(ctx context.Context, in brain.Input) (*brain.RelationshipResult, error)
}

type Reconciler interface {
	ReconcileSession(ctx context.Context, sessionID string) (*conversation.ReconcileResult, error)
}
