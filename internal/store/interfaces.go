package store

import (
	"context"
	"errors"

	"companion.app/relay/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// SessionStore persists conversation sessions, one record per session ID.
type SessionStore interface {
	Get(ctx context.Context, sessionID string) (*model.ConversationSession, error)
	Upsert(ctx context.Context, session *model.ConversationSession) error
	ListIDsByDevice(ctx context.Context, deviceID string) ([]string, error)
}

// VoiceProfileStore is the voice enrollment boundary.
type VoiceProfileStore interface {
	Create(ctx context.Context, profile *model.VoiceProfile) error
	GetByID(ctx context.Context, id int64) (*model.VoiceProfile, error)
	GetProfileBySpeakerID(ctx context.Context, deviceID string, speakerID int) (*model.VoiceProfile, error)
	ListByDevice(ctx context.Context, deviceID string) ([]model.VoiceProfile, error)
	LinkSpeakerID(ctx context.Context, profileID int64, speakerID int) (*model.VoiceProfile, error)
}

// TaskStore persists extracted tasks as standalone records.
type TaskStore interface {
	Create(ctx context.Context, task *model.ExtractedTask) error
	ReplaceForMemory(ctx context.Context, memoryID string, tasks []model.ExtractedTask) error
	ListByMemory(ctx context.Context, memoryID string) ([]model.ExtractedTask, error)
}

// ContactStore holds the per-device contact names used for people detection.
type ContactStore interface {
	Upsert(ctx context.Context, contact *model.Contact) error
	ListByDevice(ctx context.Context, deviceID string) ([]model.Contact, error)
}
