package model

import (
	"slices"
	"time"
)

type Source string

const (
	SourceOmi        Source = "omi"
	SourceLimitless  Source = "limitless"
	SourceMicrophone Source = "microphone"
)

func (s Source) Valid() bool {
	switch s {
	case SourceOmi, SourceLimitless, SourceMicrophone:
		return true
	}
	return false
}

type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusProcessed SessionStatus = "processed"
)

type TranscriptSegment struct {
	Text      string  `json:"text"`
	Speaker   string  `json:"speaker"`
	SpeakerID int     `json:"speaker_id"`
	IsUser    bool    `json:"is_user"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
}

// SegmentKey identifies a segment within a session.
type SegmentKey struct {
	Start float64
	End   float64
	Text  string
}

func (s TranscriptSegment) Key() SegmentKey {
	return SegmentKey{Start: s.Start, End: s.End, Text: s.Text}
}

type ConversationSession struct {
	SessionID          string              `json:"session_id"`
	DeviceID           string              `json:"device_id"`
	Source             Source              `json:"source"`
	Segments           []TranscriptSegment `json:"segments"`
	SpeakerProfiles    map[int]string      `json:"speaker_profiles"`
	UnlinkedSpeakerIDs map[int]struct{}    `json:"-"`
	Transcript         string              `json:"transcript"`
	Status             SessionStatus       `json:"status"`
	MemoryID           *string             `json:"memory_id,omitempty"`
	StartTime          time.Time           `json:"start_time"`
	EndTime            *time.Time          `json:"end_time,omitempty"`
	UpdatedAt          time.Time           `json:"updated_at"`
	// GraphSpeakers is the resolved name set last written to the knowledge
	// graph, sorted. Nil until a graph update succeeds.
	GraphSpeakers []string `json:"graph_speakers,omitempty"`
}

func NewConversationSession(sessionID, deviceID string, source Source, now time.Time) *ConversationSession {
	return &ConversationSession{
		SessionID:          sessionID,
		DeviceID:           deviceID,
		Source:             source,
		SpeakerProfiles:    map[int]string{},
		UnlinkedSpeakerIDs: map[int]struct{}{},
		Status:             SessionStatusActive,
		StartTime:          now,
		UpdatedAt:          now,
	}
}

// Unlinked returns the unlinked speaker IDs in ascending order.
func (s *ConversationSession) Unlinked() []int {
	ids := make([]int, 0, len(s.UnlinkedSpeakerIDs))
	for id := range s.UnlinkedSpeakerIDs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ResolvedNames returns the distinct resolved speaker names, sorted.
func (s *ConversationSession) ResolvedNames() []string {
	seen := make(map[string]struct{}, len(s.SpeakerProfiles))
	names := make([]string, 0, len(s.SpeakerProfiles))
	for _, name := range s.SpeakerProfiles {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// GraphStale reports whether the resolved names differ from the set last
// written to the knowledge graph.
func (s *ConversationSession) GraphStale() bool {
	names := s.ResolvedNames()
	return len(names) > 0 && !slices.Equal(names, s.GraphSpeakers)
}

func (s *ConversationSession) Ended() bool {
	return s.Status != SessionStatusActive
}

// Clone deep-copies the session so callers outside the bridge cannot
// mutate its state.
func (s *ConversationSession) Clone() *ConversationSession {
	c := *s
	c.Segments = slices.Clone(s.Segments)
	c.GraphSpeakers = slices.Clone(s.GraphSpeakers)
	c.SpeakerProfiles = make(map[int]string, len(s.SpeakerProfiles))
	for k, v := range s.SpeakerProfiles {
		c.SpeakerProfiles[k] = v
	}
	c.UnlinkedSpeakerIDs = make(map[int]struct{}, len(s.UnlinkedSpeakerIDs))
	for k := range s.UnlinkedSpeakerIDs {
		c.UnlinkedSpeakerIDs[k] = struct{}{}
	}
	if s.MemoryID != nil {
		id := *s.MemoryID
		c.MemoryID = &id
	}
	if s.EndTime != nil {
		t := *s.EndTime
		c.EndTime = &t
	}
	return &c
}
