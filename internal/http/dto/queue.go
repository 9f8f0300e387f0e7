package dto

import "companion.app/relay/internal/model"

type JobResponse struct {
	ID            string  `json:"id"`
	Type          string  `json:"type"`
	Priority      string  `json:"priority"`
	Status        string  `json:"status"`
	Failed        bool    `json:"failed"`
	Attempts      int     `json:"attempts"`
	MaxAttempts   int     `json:"max_attempts"`
	EnqueuedAt    string  `json:"enqueued_at"`
	AvailableAt   string  `json:"available_at"`
	LastAttemptAt *string `json:"last_attempt_at,omitempty"`
	CompletedAt   *string `json:"completed_at,omitempty"`
	Error         string  `json:"error,omitempty"`
	Payload       any     `json:"payload"`
}

func NewJobResponse(j *model.Job) JobResponse {
	resp := JobResponse{
		ID:          j.ID,
		Type:        string(j.Type),
		Priority:    string(j.Priority),
		Status:      string(j.Status),
		Failed:      j.Failed(),
		Attempts:    j.Attempts,
		MaxAttempts: j.MaxAttempts,
		EnqueuedAt:  formatTime(j.EnqueuedAt),
		AvailableAt: formatTime(j.AvailableAt),
		Error:       j.Error,
		Payload:     j.Payload,
	}
	if j.LastAttemptAt != nil {
		t := formatTime(*j.LastAttemptAt)
		resp.LastAttemptAt = &t
	}
	if j.CompletedAt != nil {
		t := formatTime(*j.CompletedAt)
		resp.CompletedAt = &t
	}
	return resp
}

func NewJobResponses(jobs []*model.Job) []JobResponse {
	out := make([]JobResponse, len(jobs))
	for i, j := range jobs {
		out[i] = NewJobResponse(j)
	}
	return out
}

type CountResponse struct {
	Count int `json:"count"`
}
