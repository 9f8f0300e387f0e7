package pipeline

import (
	"context"
	"errors"

	"companion.app/relay/internal/conversation"
	"companion.app/relay/internal/model"
	"companion.app/relay/internal/queue"
	"companion.app/relay/internal/speaker"
)

var ErrInvalidEvent = errors.New("invalid ingest event")

type Bridge interface {
	StartConversation(ctx context.Context, sessionID, deviceID string, source model.Source) (*conversation.StartResult, error)
	AddSegments(ctx context.Context, sessionID, deviceID string, segments []model.TranscriptSegment) (*conversation.AddResult, error)
	EndConversation(ctx context.Context, sessionID string) (*conversation.EndResult, error)
	ReconcileSession(ctx context.Context, sessionID string) (*conversation.ReconcileResult, error)
	Get(ctx context.Context, sessionID string) (*model.ConversationSession, error)
	SessionIDsForDevice(ctx context.Context, deviceID string) ([]string, error)
}

type JobQueue interface {
	Enqueue(ctx context.Context, payload model.Payload, opts queue.EnqueueOptions) (*model.Job, error)
	Stats() queue.Stats
	List(status model.JobStatus) []*model.Job
	Get(id string) (*model.Job, error)
	RetryDeadJobs(ctx context.Context) int
	ClearCompleted(ctx context.Context) int
}

type Enroller interface {
	Enroll(ctx context.Context, deviceID, name string, embedding model.Embedding) (*model.VoiceProfile, error)
	LinkSpeakerID(ctx context.Context, profileID int64, speakerID int) (*model.VoiceProfile, error)
	IdentifySpeaker(ctx context.Context, deviceID string, speakerID int, embedding model.Embedding) (*speaker.Identification, error)
	ListProfiles(ctx context.Context, deviceID string) ([]model.VoiceProfile, error)
}
