package model

import "time"

type CommitmentStatus string

const (
	CommitmentStatusPending   CommitmentStatus = "pending"
	CommitmentStatusFulfilled CommitmentStatus = "fulfilled"
	CommitmentStatusMissed    CommitmentStatus = "missed"
)

type TrackedCommitment struct {
	ID          int64            `json:"id"`
	Description string           `json:"description"`
	MadeBy      *string          `json:"made_by,omitempty"`
	MadeTo      *string          `json:"made_to,omitempty"`
	Deadline    *time.Time       `json:"deadline,omitempty"`
	Status      CommitmentStatus `json:"status"`
	MemoryID    string           `json:"memory_id"`
	DeviceID    string           `json:"device_id"`
	CreatedAt   time.Time        `json:"created_at"`
	ResolvedAt  *time.Time       `json:"resolved_at,omitempty"`
}

type ExtractionSource string

const (
	ExtractionSourceLLM     ExtractionSource = "llm"
	ExtractionSourcePattern ExtractionSource = "pattern"
)

type ExtractedTask struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Description string           `json:"description"`
	Priority    Priority         `json:"priority"`
	DueDate     *time.Time       `json:"due_date,omitempty"`
	Assignee    *string          `json:"assignee,omitempty"`
	Source      ExtractionSource `json:"source"`
	Category    string           `json:"category"`
	MemoryID    string           `json:"memory_id"`
	SessionID   string           `json:"session_id"`
	DeviceID    string           `json:"device_id"`
	CreatedAt   time.Time        `json:"created_at"`
}

type RelationshipInsight struct {
	PersonA         string   `json:"person_a"`
	PersonB         string   `json:"person_b"`
	InteractionType string   `json:"interaction_type"`
	Sentiment       string   `json:"sentiment"`
	Topics          []string `json:"topics"`
	Strength        float64  `json:"strength"`
}

type Contact struct {
	ID       int64  `json:"id"`
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
}
