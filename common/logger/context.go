package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within a context.
// Fields flow through context enrichment, so a job handler deep in the pipeline logs
// the session and job it is working on without passing them around.
type LogFields struct {
	SessionID *string // Conversation session ID (external correlation key)
	DeviceID  *string // Wearable device ID
	JobID     *string // Queue job ID
	JobType   *string // Queue job type (e.g., "task_extraction")
	MemoryID  *string // Memory ID returned by the memory API
	Component string  // Component name (OTel semantic convention style, e.g., "relay.queue.worker")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking precedence.
// Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.SessionID != nil {
		result.SessionID = new.SessionID
	}
	if new.DeviceID != nil {
		result.DeviceID = new.DeviceID
	}
	if new.JobID != nil {
		result.JobID = new.JobID
	}
	if new.JobType != nil {
		result.JobType = new.JobType
	}
	if new.MemoryID != nil {
		result.MemoryID = new.MemoryID
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{SessionID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if truncated.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
