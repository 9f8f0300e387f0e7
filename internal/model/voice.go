package model

import "time"

type EmbeddingQuality string

const (
	EmbeddingQualityLow    EmbeddingQuality = "low"
	EmbeddingQualityMedium EmbeddingQuality = "medium"
	EmbeddingQualityHigh   EmbeddingQuality = "high"
)

type Embedding struct {
	Vector  []float64        `json:"vector"`
	Quality EmbeddingQuality `json:"quality"`
}

type VoiceProfile struct {
	ID                int64     `json:"id"`
	DeviceID          string    `json:"device_id"`
	Name              string    `json:"name"`
	Embedding         Embedding `json:"embedding"`
	ExternalSpeakerID *int      `json:"external_speaker_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}
