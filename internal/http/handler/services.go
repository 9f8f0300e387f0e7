package handler

import (
	"context"

	"companion.app/relay/internal/conversation"
	"companion.app/relay/internal/model"
	"companion.app/relay/internal/pipeline"
	"companion.app/relay/internal/queue"
)

// ConversationService is the pipeline as the conversation routes use it.
type ConversationService interface {
	Ingest(ctx context.Context, event pipeline.IngestEvent) (*pipeline.IngestResult, error)
	End(ctx context.Context, sessionID string) (*pipeline.EndOutcome, error)
	Reconcile(ctx context.Context, sessionID string) (*conversation.ReconcileResult, error)
	Session(ctx context.Context, sessionID string) (*model.ConversationSession, error)
}

type VoiceService interface {
	Enroll(ctx context.Context, deviceID, name string, embedding model.Embedding) (*model.VoiceProfile, error)
	Profiles(ctx context.Context, deviceID string) ([]model.VoiceProfile, error)
	LinkSpeaker(ctx context.Context, profileID int64, speakerID int) (*pipeline.LinkOutcome, error)
	IdentifySpeaker(ctx context.Context, deviceID string, speakerID int, embedding model.Embedding) (*pipeline.IdentifyOutcome, error)
}

type CommitmentService interface {
	List(deviceID string, status model.CommitmentStatus) []model.TrackedCommitment
	Get(commitmentID int64) (*model.TrackedCommitment, error)
	MarkFulfilled(ctx context.Context, commitmentID int64) (*model.TrackedCommitment, error)
	MarkMissed(ctx context.Context, commitmentID int64) (*model.TrackedCommitment, error)
}

type TaskService interface {
	ListByMemory(ctx context.Context, memoryID string) ([]model.ExtractedTask, error)
}

type ContactService interface {
	Upsert(ctx context.Context, contact *model.Contact) error
	ListByDevice(ctx context.Context, deviceID string) ([]model.Contact, error)
}

type QueueService interface {
	QueueStatus() queue.Stats
	Jobs(status model.JobStatus) []*model.Job
	Job(id string) (*model.Job, error)
	RetryDeadJobs(ctx context.Context) int
	ClearCompleted(ctx context.Context) int
}
