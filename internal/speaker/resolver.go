package speaker

import (
	"context"
	"errors"
	"fmt"

	"companion.app/relay/internal/model"
	"companion.app/relay/internal/store"
)

// ProfileStore is the slice of voice enrollment the resolver reads.
type ProfileStore interface {
	GetProfileBySpeakerID(ctx context.Context, deviceID string, speakerID int) (*model.VoiceProfile, error)
}

// Resolver maps a diarization speaker ID to an enrolled person's name.
type Resolver struct {
	profiles ProfileStore
}

func NewResolver(profiles ProfileStore) *Resolver {
	return &Resolver{profiles: profiles}
}

// Resolve returns the name linked to speakerID on the device. ok is false
// when no profile holds that ID; err is reserved for lookup failures.
func (r *Resolver) Resolve(ctx context.Context, deviceID string, speakerID int) (string, bool, error) {
	profile, err := r.profiles.GetProfileBySpeakerID(ctx, deviceID, speakerID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("resolving speaker %d: %w", speakerID, err)
	}
	if profile.Name == "" {
		return "", false, nil
	}
	return profile.Name, true, nil
}
