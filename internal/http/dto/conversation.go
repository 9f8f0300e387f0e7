package dto

import "companion.app/relay/internal/model"

type Segment struct {
	Text      string  `json:"text" binding:"required"`
	Speaker   string  `json:"speaker"`
	SpeakerID int     `json:"speaker_id"`
	IsUser    bool    `json:"is_user"`
	Start     float64 `json:"start"`
	End       float64 `json:"end"`
}

type IngestRequest struct {
	SessionID string    `json:"session_id" binding:"required"`
	DeviceID  string    `json:"device_id" binding:"required"`
	Source    string    `json:"source,omitempty"`
	Segments  []Segment `json:"segments" binding:"dive"`
}

func (r IngestRequest) ToSegments() []model.TranscriptSegment {
	out := make([]model.TranscriptSegment, len(r.Segments))
	for i, s := range r.Segments {
		out[i] = model.TranscriptSegment{
			Text:      s.Text,
			Speaker:   s.Speaker,
			SpeakerID: s.SpeakerID,
			IsUser:    s.IsUser,
			Start:     s.Start,
			End:       s.End,
		}
	}
	return out
}

type IngestResponse struct {
	SessionID     string `json:"session_id"`
	Status        string `json:"status"`
	SegmentCount  int    `json:"segment_count"`
	Accepted      int    `json:"accepted"`
	Duplicates    int    `json:"duplicates"`
	Persisted     bool   `json:"persisted"`
	Unlinked      []int  `json:"unlinked_speaker_ids"`
	RealtimeJobID string `json:"realtime_job_id,omitempty"`
}

type EndResponse struct {
	SessionID    string  `json:"session_id"`
	Status       string  `json:"status"`
	MemoryID     *string `json:"memory_id,omitempty"`
	Reason       string  `json:"reason,omitempty"`
	JobID        string  `json:"job_id,omitempty"`
	Priority     string  `json:"priority,omitempty"`
	GraphUpdated bool    `json:"graph_updated"`
	Persisted    bool    `json:"persisted"`
}

type ReconcileResponse struct {
	SessionID    string         `json:"session_id"`
	Resolved     map[int]string `json:"resolved"`
	Unlinked     []int          `json:"unlinked_speaker_ids"`
	Changed      bool           `json:"changed"`
	GraphUpdated bool           `json:"graph_updated"`
}

type SessionResponse struct {
	SessionID       string                    `json:"session_id"`
	DeviceID        string                    `json:"device_id"`
	Source          string                    `json:"source"`
	Status          string                    `json:"status"`
	Segments        []model.TranscriptSegment `json:"segments"`
	SpeakerProfiles map[int]string            `json:"speaker_profiles"`
	Unlinked        []int                     `json:"unlinked_speaker_ids"`
	Transcript      string                    `json:"transcript,omitempty"`
	MemoryID        *string                   `json:"memory_id,omitempty"`
	StartTime       string                    `json:"start_time"`
	EndTime         *string                   `json:"end_time,omitempty"`
}

func NewSessionResponse(s *model.ConversationSession) SessionResponse {
	resp := SessionResponse{
		SessionID:       s.SessionID,
		DeviceID:        s.DeviceID,
		Source:          string(s.Source),
		Status:          string(s.Status),
		Segments:        s.Segments,
		SpeakerProfiles: s.SpeakerProfiles,
		Unlinked:        s.Unlinked(),
		Transcript:      s.Transcript,
		MemoryID:        s.MemoryID,
		StartTime:       formatTime(s.StartTime),
	}
	if resp.Segments == nil {
		resp.Segments = []model.TranscriptSegment{}
	}
	if s.EndTime != nil {
		end := formatTime(*s.EndTime)
		resp.EndTime = &end
	}
	return resp
}
