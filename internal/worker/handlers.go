package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"companion.app/relay/common/logger"
	"companion.app/relay/internal/brain"
	"companion.app/relay/internal/conversation"
	"companion.app/relay/internal/model"
	"companion.app/relay/internal/queue"
)

// extractionKinds are the jobs a processed memory fans out into.
var extractionKinds = []model.JobType{
	model.JobTypeTaskExtraction,
	model.JobTypeCommitmentTracking,
	model.JobTypeRelationshipAnalysis,
}

type Handlers struct {
	enqueuer      Enqueuer
	tasks         TaskExtractor
	commitments   CommitmentTracker
	relationships RelationshipAnalyzer
	reconciler    Reconciler
}

func NewHandlers(enqueuer Enqueuer, tasks TaskExtractor, commitments CommitmentTracker, relationships RelationshipAnalyzer, reconciler Reconciler) *Handlers {
	return &Handlers{
		enqueuer:      enqueuer,
		tasks:         tasks,
		commitments:   commitments,
		relationships: relationships,
		reconciler:    reconciler,
	}
}

// Register binds every job type the relay produces to its handler.
func (h *Handlers) Register(r Registrar) error {
	handlers := map[model.JobType]queue.Handler{
		model.JobTypeMemoryProcessing:      queue.Handle(h.processMemory),
		model.JobTypeTaskExtraction:        queue.Handle(h.extractTasks),
		model.JobTypeCommitmentTracking:    queue.Handle(h.trackCommitments),
		model.JobTypeRelationshipAnalysis:  queue.Handle(h.analyzeRelationships),
		model.JobTypeSpeakerReconciliation: queue.Handle(h.reconcileSpeakers),
	}
	for jobType, handler := range handlers {
		if err := r.RegisterProcessor(jobType, handler); err != nil {
			return err
		}
	}
	return nil
}

// processMemory fans a memory out into the extraction jobs at the
// priority it was queued with.
func (h *Handlers) processMemory(ctx context.Context, job *model.Job, p model.MemoryPayload) error {
	ctx = withPayloadFields(ctx, p)

	for _, kind := range extractionKinds {
		child, err := h.enqueuer.Enqueue(ctx, p.As(kind), queue.EnqueueOptions{Priority: job.Priority})
		if err != nil {
			return fmt.Errorf("enqueue %s: %w", kind, err)
		}
		slog.DebugContext(ctx, "extraction job enqueued",
			"child_job_id", child.ID,
			"child_job_type", kind)
	}

	slog.InfoContext(ctx, "memory fanned out", "jobs", len(extractionKinds))
	return nil
}

func (h *Handlers) extractTasks(ctx context.Context, job *model.Job, p model.MemoryPayload) error {
	ctx = withPayloadFields(ctx, p)
	_, err := h.tasks.Extract(ctx, brain.InputFromPayload(p, lastAttempt(job)))
	return err
}

func (h *Handlers) trackCommitments(ctx context.Context, job *model.Job, p model.MemoryPayload) error {
	ctx = withPayloadFields(ctx, p)
	_, err := h.commitments.Track(ctx, brain.InputFromPayload(p, lastAttempt(job)))
	return err
}

func (h *Handlers) analyzeRelationships(ctx context.Context, job *model.Job, p model.MemoryPayload) error {
	ctx = withPayloadFields(ctx, p)
	result, err := h.relationships.Analyze(ctx, brain.InputFromPayload(p, lastAttempt(job)))
	if err != nil {
		return err
	}
	slog.DebugContext(ctx, "relationship analysis finished",
		"people", len(result.People),
		"insights", len(result.Insights),
		"edges", result.Edges)
	return nil
}

// reconcileSpeakers re-resolves a session after a speaker was linked. A
// session that no longer exists cannot be reconciled by retrying.
func (h *Handlers) reconcileSpeakers(ctx context.Context, job *model.Job, p model.ReconcilePayload) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SessionID: logger.Ptr(p.SessionID),
		DeviceID:  logger.Ptr(p.DeviceID),
	})

	result, err := h.reconciler.ReconcileSession(ctx, p.SessionID)
	if errors.Is(err, conversation.ErrSessionNotFound) {
		return queue.Permanent(err)
	}
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "speakers reconciled",
		"resolved", len(result.Resolved),
		"unlinked", len(result.Unlinked),
		"graph_updated", result.GraphUpdated)
	return nil
}

func lastAttempt(job *model.Job) bool {
	return job.Attempts+1 >= job.MaxAttempts
}

func withPayloadFields(ctx context.Context, p model.MemoryPayload) context.Context {
	fields := logger.LogFields{
		SessionID: logger.Ptr(p.SessionID),
		DeviceID:  logger.Ptr(p.DeviceID),
	}
	if p.MemoryID != "" {
		fields.MemoryID = logger.Ptr(p.MemoryID)
	}
	return logger.WithLogFields(ctx, fields)
}
