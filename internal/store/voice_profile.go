package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"companion.app/relay/core/db"
	"companion.app/relay/internal/model"
)

type voiceProfileStore struct {
	db *db.DB
}

func newVoiceProfileStore(database *db.DB) VoiceProfileStore {
	return &voiceProfileStore{db: database}
}

const voiceProfileColumns = `id, device_id, name, embedding, external_speaker_id, created_at, updated_at`

func (s *voiceProfileStore) Create(ctx context.Context, profile *model.VoiceProfile) error {
	embedding, err := json.Marshal(profile.Embedding)
	if err != nil {
		return fmt.Errorf("encoding embedding: %w", err)
	}

	now := time.Now().UTC()
	if profile.CreatedAt.IsZero() {
		profile.CreatedAt = now
	}
	profile.UpdatedAt = now

	_, err = s.db.Queries().ExecContext(ctx, s.db.Rebind(`
		INSERT INTO voice_profiles (`+voiceProfileColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`),
		profile.ID, profile.DeviceID, profile.Name, string(embedding),
		nullInt(profile.ExternalSpeakerID), toMillis(profile.CreatedAt), toMillis(profile.UpdatedAt))
	if err != nil {
		return fmt.Errorf("inserting voice profile: %w", err)
	}
	return nil
}

func (s *voiceProfileStore) GetByID(ctx context.Context, id int64) (*model.VoiceProfile, error) {
	row := s.db.Queries().QueryRowContext(ctx, s.db.Rebind(`
		SELECT `+voiceProfileColumns+` FROM voice_profiles WHERE id = ?`), id)
	return scanVoiceProfile(row)
}

func (s *voiceProfileStore) GetProfileBySpeakerID(ctx context.Context, deviceID string, speakerID int) (*model.VoiceProfile, error) {
	row := s.db.Queries().QueryRowContext(ctx, s.db.Rebind(`
		SELECT `+voiceProfileColumns+` FROM voice_profiles
		WHERE device_id = ? AND external_speaker_id = ?
		ORDER BY updated_at DESC
		LIMIT 1`), deviceID, speakerID)
	return scanVoiceProfile(row)
}

func (s *voiceProfileStore) ListByDevice(ctx context.Context, deviceID string) ([]model.VoiceProfile, error) {
	rows, err := s.db.Queries().QueryContext(ctx, s.db.Rebind(`
		SELECT `+voiceProfileColumns+` FROM voice_profiles
		WHERE device_id = ?
		ORDER BY created_at ASC`), deviceID)
	if err != nil {
		return nil, fmt.Errorf("listing voice profiles: %w", err)
	}
	defer rows.Close()

	var profiles []model.VoiceProfile
	for rows.Next() {
		p, err := scanVoiceProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

// LinkSpeakerID points a diarization speaker ID at a profile. Any other
// profile on the same device holding that ID loses it, so a speaker ID
// resolves to at most one name.
func (s *voiceProfileStore) LinkSpeakerID(ctx context.Context, profileID int64, speakerID int) (*model.VoiceProfile, error) {
	var linked *model.VoiceProfile
	err := s.db.WithTx(ctx, func(q db.Querier) error {
		row := q.QueryRowContext(ctx, s.db.Rebind(`
			SELECT `+voiceProfileColumns+` FROM voice_profiles WHERE id = ?`), profileID)
		profile, err := scanVoiceProfile(row)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if _, err := q.ExecContext(ctx, s.db.Rebind(`
			UPDATE voice_profiles SET external_speaker_id = NULL, updated_at = ?
			WHERE device_id = ? AND external_speaker_id = ? AND id <> ?`),
			toMillis(now), profile.DeviceID, speakerID, profileID); err != nil {
			return fmt.Errorf("unlinking previous holder: %w", err)
		}

		if _, err := q.ExecContext(ctx, s.db.Rebind(`
			UPDATE voice_profiles SET external_speaker_id = ?, updated_at = ?
			WHERE id = ?`), speakerID, toMillis(now), profileID); err != nil {
			return fmt.Errorf("linking speaker id: %w", err)
		}

		profile.ExternalSpeakerID = &speakerID
		profile.UpdatedAt = fromMillis(toMillis(now))
		linked = profile
		return nil
	})
	if err != nil {
		return nil, err
	}
	return linked, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVoiceProfile(row rowScanner) (*model.VoiceProfile, error) {
	var (
		p                    model.VoiceProfile
		embedding            string
		speakerID            sql.NullInt64
		createdAt, updatedAt int64
	)
	if err := row.Scan(&p.ID, &p.DeviceID, &p.Name, &embedding, &speakerID, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning voice profile: %w", err)
	}
	if err := json.Unmarshal([]byte(embedding), &p.Embedding); err != nil {
		return nil, fmt.Errorf("decoding embedding: %w", err)
	}
	if speakerID.Valid {
		id := int(speakerID.Int64)
		p.ExternalSpeakerID = &id
	}
	p.CreatedAt = fromMillis(createdAt)
	p.UpdatedAt = fromMillis(updatedAt)
	return &p, nil
}

func nullInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}
