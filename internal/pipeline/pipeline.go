// Package pipeline connects the conversation bridge, voice enrollment and
// the job queue. Callers hand it typed events; everything slow runs as a
// queued job.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"companion.app/relay/common/logger"
	"companion.app/relay/internal/brain"
	"companion.app/relay/internal/conversation"
	"companion.app/relay/internal/model"
	"companion.app/relay/internal/queue"
	"companion.app/relay/internal/speaker"
)

// minRealtimeChars is the smallest batch worth a realtime extraction job.
const minRealtimeChars = 20

type Config struct {
	// RealtimeExtraction queues task extraction for urgent batches while
	// the conversation is still running.
	RealtimeExtraction bool
}

type Pipeline struct {
	bridge   Bridge
	queue    JobQueue
	enroller Enroller
	cfg      Config
}

func New(bridge Bridge, jobs JobQueue, enroller Enroller, cfg Config) *Pipeline {
	return &Pipeline{bridge: bridge, queue: jobs, enroller: enroller, cfg: cfg}
}

// IngestEvent is one batch of transcript segments from a device.
type IngestEvent struct {
	SessionID string
	DeviceID  string
	Source    model.Source
	Segments  []model.TranscriptSegment
}

func (e IngestEvent) Validate() error {
	if strings.TrimSpace(e.SessionID) == "" {
		return fmt.Errorf("%w: session id is required", ErrInvalidEvent)
	}
	if strings.TrimSpace(e.DeviceID) == "" {
		return fmt.Errorf("%w: device id is required", ErrInvalidEvent)
	}
	if e.Source != "" && !e.Source.Valid() {
		return fmt.Errorf("%w: unknown source %q", ErrInvalidEvent, e.Source)
	}
	return nil
}

type IngestResult struct {
	Session    *model.ConversationSession `json:"session"`
	Accepted   int                        `json:"accepted"`
	Duplicates int                        `json:"duplicates"`
	Persisted  bool                       `json:"persisted"`
	// RealtimeJob is the task extraction queued for an urgent batch.
	RealtimeJob *model.Job `json:"realtime_job,omitempty"`
}

// Ingest starts or resumes the session and appends the new segments.
func (p *Pipeline) Ingest(ctx context.Context, event IngestEvent) (*IngestResult, error) {
	if err := event.Validate(); err != nil {
		return nil, err
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SessionID: logger.Ptr(event.SessionID),
		DeviceID:  logger.Ptr(event.DeviceID),
		Component: "relay.pipeline",
	})

	if _, err := p.bridge.StartConversation(ctx, event.SessionID, event.DeviceID, event.Source); err != nil {
		return nil, fmt.Errorf("starting conversation: %w", err)
	}

	added, err := p.bridge.AddSegments(ctx, event.SessionID, event.DeviceID, event.Segments)
	if err != nil {
		return nil, err
	}

	result := &IngestResult{
		Session:    added.Session,
		Accepted:   len(added.Accepted),
		Duplicates: added.Duplicates,
		Persisted:  added.Persisted,
	}

	if p.cfg.RealtimeExtraction {
		job, err := p.extractRealtime(ctx, added)
		if err != nil {
			slog.WarnContext(ctx, "failed to queue realtime extraction", "error", err)
		}
		result.RealtimeJob = job
	}

	return result, nil
}

// extractRealtime queues task extraction for an accepted batch whose
// content reads as urgent. Other batches wait for the finished memory.
func (p *Pipeline) extractRealtime(ctx context.Context, added *conversation.AddResult) (*model.Job, error) {
	if len(added.Accepted) == 0 {
		return nil, nil
	}

	lines := make([]string, 0, len(added.Accepted))
	for _, seg := range added.Accepted {
		if text := strings.TrimSpace(seg.Text); text != "" {
			lines = append(lines, text)
		}
	}
	content := strings.Join(lines, "\n")
	if utf8.RuneCountInString(content) < minRealtimeChars {
		return nil, nil
	}
	if brain.ClassifyPriority(content) != model.PriorityUrgent {
		return nil, nil
	}

	s := added.Session
	first := added.Accepted[0]
	payload := model.MemoryPayload{
		Kind: model.JobTypeTaskExtraction,
		// Live batches have no memory yet; the key keeps their task sets apart.
		MemoryID:  fmt.Sprintf("live:%s:%.3f", s.SessionID, first.Start),
		SessionID: s.SessionID,
		DeviceID:  s.DeviceID,
		Source:    s.Source,
		Content:   content,
		Speakers:  s.ResolvedNames(),
	}

	job, err := p.queue.Enqueue(ctx, payload, queue.EnqueueOptions{Priority: model.PriorityUrgent})
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "urgent batch queued for realtime extraction", "job_id", job.ID)
	return job, nil
}

type EndOutcome struct {
	Session *model.ConversationSession `json:"session"`
	Memory  *model.Memory              `json:"memory,omitempty"`
	Reason  string                     `json:"reason,omitempty"`
	// Job is the memory_processing job queued for the new memory.
	Job          *model.Job `json:"job,omitempty"`
	GraphUpdated bool       `json:"graph_updated"`
	Persisted    bool       `json:"persisted"`
}

// End finalizes the conversation and queues processing of the resulting
// memory at the priority its transcript reads as.
func (p *Pipeline) End(ctx context.Context, sessionID string) (*EndOutcome, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SessionID: logger.Ptr(sessionID),
		Component: "relay.pipeline",
	})

	ended, err := p.bridge.EndConversation(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	outcome := &EndOutcome{
		Session:      ended.Session,
		Memory:       ended.Memory,
		Reason:       ended.Reason,
		GraphUpdated: ended.GraphUpdated,
		Persisted:    ended.Persisted,
	}
	if ended.Memory == nil {
		return outcome, nil
	}

	s := ended.Session
	priority := brain.ClassifyPriority(s.Transcript)
	job, err := p.queue.Enqueue(ctx, model.MemoryPayload{
		Kind:      model.JobTypeMemoryProcessing,
		MemoryID:  ended.Memory.ID,
		SessionID: s.SessionID,
		DeviceID:  s.DeviceID,
		Source:    s.Source,
		Content:   s.Transcript,
		Speakers:  s.ResolvedNames(),
	}, queue.EnqueueOptions{Priority: priority})
	if err != nil {
		return nil, fmt.Errorf("queueing memory processing: %w", err)
	}
	outcome.Job = job

	slog.InfoContext(ctx, "memory queued for processing",
		"memory_id", ended.Memory.ID,
		"job_id", job.ID,
		"priority", priority)
	return outcome, nil
}

// Reconcile re-resolves a session's speakers right away.
func (p *Pipeline) Reconcile(ctx context.Context, sessionID string) (*conversation.ReconcileResult, error) {
	return p.bridge.ReconcileSession(ctx, sessionID)
}

func (p *Pipeline) Session(ctx context.Context, sessionID string) (*model.ConversationSession, error) {
	return p.bridge.Get(ctx, sessionID)
}

type LinkOutcome struct {
	Profile *model.VoiceProfile `json:"profile"`
	Jobs    []*model.Job        `json:"jobs"`
}

// LinkSpeaker binds an external speaker ID to a profile, then queues
// reconciliation of every session of the device that heard that speaker.
func (p *Pipeline) LinkSpeaker(ctx context.Context, profileID int64, speakerID int) (*LinkOutcome, error) {
	profile, err := p.enroller.LinkSpeakerID(ctx, profileID, speakerID)
	if err != nil {
		return nil, err
	}

	jobs, err := p.reconcileDevice(ctx, profile.DeviceID, speakerID)
	if err != nil {
		return nil, err
	}
	return &LinkOutcome{Profile: profile, Jobs: jobs}, nil
}

type IdentifyOutcome struct {
	*speaker.Identification
	Jobs []*model.Job `json:"jobs,omitempty"`
}

// IdentifySpeaker matches a live embedding and, when a profile is linked,
// queues reconciliation the same way LinkSpeaker does.
func (p *Pipeline) IdentifySpeaker(ctx context.Context, deviceID string, speakerID int, embedding model.Embedding) (*IdentifyOutcome, error) {
	ident, err := p.enroller.IdentifySpeaker(ctx, deviceID, speakerID, embedding)
	if err != nil {
		return nil, err
	}

	outcome := &IdentifyOutcome{Identification: ident}
	if ident.Linked == nil {
		return outcome, nil
	}
	outcome.Jobs, err = p.reconcileDevice(ctx, deviceID, speakerID)
	if err != nil {
		return nil, err
	}
	return outcome, nil
}

func (p *Pipeline) Enroll(ctx context.Context, deviceID, name string, embedding model.Embedding) (*model.VoiceProfile, error) {
	return p.enroller.Enroll(ctx, deviceID, name, embedding)
}

func (p *Pipeline) Profiles(ctx context.Context, deviceID string) ([]model.VoiceProfile, error) {
	return p.enroller.ListProfiles(ctx, deviceID)
}

func (p *Pipeline) reconcileDevice(ctx context.Context, deviceID string, speakerID int) ([]*model.Job, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		DeviceID:  logger.Ptr(deviceID),
		Component: "relay.pipeline",
	})

	ids, err := p.bridge.SessionIDsForDevice(ctx, deviceID)
	if err != nil {
		return nil, err
	}

	var jobs []*model.Job
	for _, id := range ids {
		s, err := p.bridge.Get(ctx, id)
		if errors.Is(err, conversation.ErrSessionNotFound) {
			continue
		}
		if err != nil {
			return jobs, err
		}
		if !heard(s, speakerID) {
			continue
		}

		job, err := p.queue.Enqueue(ctx, model.ReconcilePayload{SessionID: id, DeviceID: deviceID}, queue.EnqueueOptions{})
		if err != nil {
			return jobs, fmt.Errorf("queueing reconciliation for %s: %w", id, err)
		}
		jobs = append(jobs, job)
	}

	slog.InfoContext(ctx, "speaker reconciliation queued",
		"speaker_id", speakerID,
		"sessions", len(ids),
		"jobs", len(jobs))
	return jobs, nil
}

func heard(s *model.ConversationSession, speakerID int) bool {
	if _, ok := s.UnlinkedSpeakerIDs[speakerID]; ok {
		return true
	}
	_, ok := s.SpeakerProfiles[speakerID]
	return ok
}

func (p *Pipeline) QueueStatus() queue.Stats {
	return p.queue.Stats()
}

func (p *Pipeline) Jobs(status model.JobStatus) []*model.Job {
	return p.queue.List(status)
}

func (p *Pipeline) Job(id string) (*model.Job, error) {
	return p.queue.Get(id)
}

func (p *Pipeline) RetryDeadJobs(ctx context.Context) int {
	return p.queue.RetryDeadJobs(ctx)
}

func (p *Pipeline) ClearCompleted(ctx context.Context) int {
	return p.queue.ClearCompleted(ctx)
}
