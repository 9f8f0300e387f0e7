package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"companion.app/relay/core/db"
	"companion.app/relay/internal/model"
)

type sessionStore struct {
	db *db.DB
}

func newSessionStore(database *db.DB) SessionStore {
	return &sessionStore{db: database}
}

// sessionMetadata is the JSON stored in the metadata column.
type sessionMetadata struct {
	Segments           []model.TranscriptSegment `json:"segments"`
	UnlinkedSpeakerIDs []int                     `json:"unlinkedSpeakerIds"`
	GraphSpeakers      []string                  `json:"graphSpeakers,omitempty"`
}

func (s *sessionStore) Get(ctx context.Context, sessionID string) (*model.ConversationSession, error) {
	row := s.db.Queries().QueryRowContext(ctx, s.db.Rebind(`
		SELECT session_id, device_id, source, transcript, speakers, metadata,
		       status, memory_id, start_time, end_time, updated_at
		FROM conversation_sessions
		WHERE session_id = ?`), sessionID)

	var (
		session                model.ConversationSession
		speakersJSON, metaJSON string
		memoryID               sql.NullString
		startTime, updatedAt   int64
		endTime                sql.NullInt64
		source, status         string
	)
	err := row.Scan(&session.SessionID, &session.DeviceID, &source, &session.Transcript,
		&speakersJSON, &metaJSON, &status, &memoryID, &startTime, &endTime, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("loading session: %w", err)
	}

	session.Source = model.Source(source)
	session.Status = model.SessionStatus(status)
	session.MemoryID = stringPtr(memoryID)
	session.StartTime = fromMillis(startTime)
	session.EndTime = timePtr(endTime)
	session.UpdatedAt = fromMillis(updatedAt)

	speakers, err := decodeSpeakers(speakersJSON)
	if err != nil {
		return nil, err
	}
	session.SpeakerProfiles = speakers

	var meta sessionMetadata
	if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
		return nil, fmt.Errorf("decoding session metadata: %w", err)
	}
	session.Segments = meta.Segments
	session.GraphSpeakers = meta.GraphSpeakers
	session.UnlinkedSpeakerIDs = make(map[int]struct{}, len(meta.UnlinkedSpeakerIDs))
	for _, id := range meta.UnlinkedSpeakerIDs {
		session.UnlinkedSpeakerIDs[id] = struct{}{}
	}

	return &session, nil
}

// Upsert writes segments, speaker map, unlinked set and transcript in a
// single statement so a reader never sees them out of step.
func (s *sessionStore) Upsert(ctx context.Context, session *model.ConversationSession) error {
	speakersJSON, err := encodeSpeakers(session.SpeakerProfiles)
	if err != nil {
		return err
	}

	segments := session.Segments
	if segments == nil {
		segments = []model.TranscriptSegment{}
	}
	metaJSON, err := json.Marshal(sessionMetadata{
		Segments:           segments,
		UnlinkedSpeakerIDs: session.Unlinked(),
		GraphSpeakers:      session.GraphSpeakers,
	})
	if err != nil {
		return fmt.Errorf("encoding session metadata: %w", err)
	}

	_, err = s.db.Queries().ExecContext(ctx, s.db.Rebind(`
		INSERT INTO conversation_sessions (
			session_id, device_id, source, transcript, speakers, metadata,
			status, memory_id, start_time, end_time, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			device_id  = excluded.device_id,
			source     = excluded.source,
			transcript = excluded.transcript,
			speakers   = excluded.speakers,
			metadata   = excluded.metadata,
			status     = excluded.status,
			memory_id  = excluded.memory_id,
			end_time   = excluded.end_time,
			updated_at = excluded.updated_at`),
		session.SessionID, session.DeviceID, string(session.Source), session.Transcript,
		speakersJSON, string(metaJSON), string(session.Status), nullString(session.MemoryID),
		toMillis(session.StartTime), nullMillis(session.EndTime), toMillis(session.UpdatedAt))
	if err != nil {
		return fmt.Errorf("upserting session: %w", err)
	}
	return nil
}

func (s *sessionStore) ListIDsByDevice(ctx context.Context, deviceID string) ([]string, error) {
	rows, err := s.db.Queries().QueryContext(ctx, s.db.Rebind(`
		SELECT session_id FROM conversation_sessions
		WHERE device_id = ?
		ORDER BY start_time ASC`), deviceID)
	if err != nil {
		return nil, fmt.Errorf("listing sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Speaker maps are stored with string keys since JSON objects cannot have int keys.
func encodeSpeakers(speakers map[int]string) (string, error) {
	out := make(map[string]string, len(speakers))
	for k, v := range speakers {
		out[strconv.Itoa(k)] = v
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "", fmt.Errorf("encoding speakers: %w", err)
	}
	return string(data), nil
}

func decodeSpeakers(raw string) (map[int]string, error) {
	var in map[string]string
	if err := json.Unmarshal([]byte(raw), &in); err != nil {
		return nil, fmt.Errorf("decoding speakers: %w", err)
	}
	out := make(map[int]string, len(in))
	for k, v := range in {
		id, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("decoding speaker id %q: %w", k, err)
		}
		out[id] = v
	}
	return out, nil
}
