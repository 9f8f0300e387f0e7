package speaker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"companion.app/relay/common/id"
	"companion.app/relay/internal/model"
	"companion.app/relay/internal/store"
)

var (
	ErrProfileNotFound  = errors.New("voice profile not found")
	ErrInvalidEmbedding = errors.New("embedding vector is empty")
	ErrNameRequired     = errors.New("profile name is required")
)

// Enrollment owns voice profiles. LinkSpeakerID is the only path that sets
// a profile's external speaker ID.
type Enrollment struct {
	profiles store.VoiceProfileStore
	matcher  *Matcher
}

func NewEnrollment(profiles store.VoiceProfileStore, matcher *Matcher) *Enrollment {
	if matcher == nil {
		matcher = NewMatcher(DefaultMatchThreshold)
	}
	return &Enrollment{profiles: profiles, matcher: matcher}
}

func (e *Enrollment) Enroll(ctx context.Context, deviceID, name string, embedding model.Embedding) (*model.VoiceProfile, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	if len(embedding.Vector) == 0 {
		return nil, ErrInvalidEmbedding
	}
	if embedding.Quality == "" {
		embedding.Quality = model.EmbeddingQualityMedium
	}

	profile := &model.VoiceProfile{
		ID:        id.New(),
		DeviceID:  deviceID,
		Name:      name,
		Embedding: embedding,
	}
	if err := e.profiles.Create(ctx, profile); err != nil {
		return nil, fmt.Errorf("creating voice profile: %w", err)
	}

	slog.InfoContext(ctx, "voice profile enrolled",
		"profile_id", profile.ID,
		"name", profile.Name,
		"dimensions", len(embedding.Vector))
	return profile, nil
}

func (e *Enrollment) LinkSpeakerID(ctx context.Context, profileID int64, speakerID int) (*model.VoiceProfile, error) {
	profile, err := e.profiles.LinkSpeakerID(ctx, profileID, speakerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("linking speaker %d: %w", speakerID, err)
	}

	slog.InfoContext(ctx, "speaker id linked",
		"profile_id", profile.ID,
		"speaker_id", speakerID,
		"name", profile.Name)
	return profile, nil
}

type Identification struct {
	Match  MatchResult         `json:"match"`
	Linked *model.VoiceProfile `json:"linked,omitempty"`
}

// IdentifySpeaker ranks the device's profiles against a live embedding and
// links the speaker ID to the best one when it clears the threshold.
func (e *Enrollment) IdentifySpeaker(ctx context.Context, deviceID string, speakerID int, embedding model.Embedding) (*Identification, error) {
	if len(embedding.Vector) == 0 {
		return nil, ErrInvalidEmbedding
	}

	profiles, err := e.profiles.ListByDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("listing voice profiles: %w", err)
	}

	result := &Identification{Match: e.matcher.Rank(embedding, profiles)}
	if !result.Match.Accepted {
		slog.DebugContext(ctx, "no voice profile accepted",
			"speaker_id", speakerID,
			"candidates", len(result.Match.Scores))
		return result, nil
	}

	linked, err := e.LinkSpeakerID(ctx, result.Match.Best.ProfileID, speakerID)
	if err != nil {
		return nil, err
	}
	result.Linked = linked
	return result, nil
}

func (e *Enrollment) ListProfiles(ctx context.Context, deviceID string) ([]model.VoiceProfile, error) {
	profiles, err := e.profiles.ListByDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("listing voice profiles: %w", err)
	}
	return profiles, nil
}
