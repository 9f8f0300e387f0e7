package dto

import "companion.app/relay/internal/model"

type Embedding struct {
	Vector  []float64 `json:"vector" binding:"required,min=1"`
	Quality string    `json:"quality,omitempty" binding:"omitempty,oneof=low medium high"`
}

func (e Embedding) ToModel() model.Embedding {
	return model.Embedding{Vector: e.Vector, Quality: model.EmbeddingQuality(e.Quality)}
}

type EnrollRequest struct {
	DeviceID  string    `json:"device_id" binding:"required"`
	Name      string    `json:"name" binding:"required"`
	Embedding Embedding `json:"embedding"`
}

type LinkSpeakerRequest struct {
	SpeakerID *int `json:"speaker_id" binding:"required,min=0"`
}

type IdentifyRequest struct {
	DeviceID  string    `json:"device_id" binding:"required"`
	SpeakerID *int      `json:"speaker_id" binding:"required,min=0"`
	Embedding Embedding `json:"embedding"`
}

// VoiceProfileResponse leaves the embedding vector out.
type VoiceProfileResponse struct {
	ID                int64  `json:"id,string"`
	DeviceID          string `json:"device_id"`
	Name              string `json:"name"`
	Quality           string `json:"quality"`
	Dimensions        int    `json:"dimensions"`
	ExternalSpeakerID *int   `json:"external_speaker_id,omitempty"`
	CreatedAt         string `json:"created_at"`
}

func NewVoiceProfileResponse(p *model.VoiceProfile) VoiceProfileResponse {
	return VoiceProfileResponse{
		ID:                p.ID,
		DeviceID:          p.DeviceID,
		Name:              p.Name,
		Quality:           string(p.Embedding.Quality),
		Dimensions:        len(p.Embedding.Vector),
		ExternalSpeakerID: p.ExternalSpeakerID,
		CreatedAt:         formatTime(p.CreatedAt),
	}
}

type LinkSpeakerResponse struct {
	Profile            VoiceProfileResponse `json:"profile"`
	ReconciliationJobs []string             `json:"reconciliation_jobs"`
}

type MatchScore struct {
	ProfileID int64   `json:"profile_id,string"`
	Name      string  `json:"name"`
	Score     float64 `json:"score"`
}

type IdentifyResponse struct {
	Accepted           bool                  `json:"accepted"`
	Scores             []MatchScore          `json:"scores"`
	Linked             *VoiceProfileResponse `json:"linked,omitempty"`
	ReconciliationJobs []string              `json:"reconciliation_jobs"`
}
