package worker_test

import (
	"context"
	"sync"

	"companion.app/relay/internal/brain"
	"companion.app/relay/internal/conversation"
	"companion.app/relay/internal/model"
	"companion.app/relay/internal/queue"
)

type recordingRegistrar struct {
	handlers map[model.JobType]queue.Handler
}

func (r *recordingRegistrar) RegisterProcessor(jobType model.JobType, handler queue.Handler) error {
	if r.handlers == nil {
		r.handlers = map[model.JobType]queue.Handler{}
	}
	r.handlers[jobType] = handler
	return nil
}

type mockEnqueuer struct {
	mu    sync.Mutex
	calls []enqueueCall
	err   error
}

type enqueueCall struct {
	payload model.Payload
	opts    queue.EnqueueOptions
}

func (m *mockEnqueuer) Enqueue(_ context.Context, payload model.Payload, opts queue.EnqueueOptions) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.calls = append(m.calls, enqueueCall{payload: payload, opts: opts})
	return &model.Job{ID: "child", Type: payload.JobType(), Payload: payload, Priority: opts.Priority}, nil
}

type inputRecorder struct {
	mu     sync.Mutex
	inputs []brain.Input
	err    error
}

func (r *inputRecorder) record(in brain.Input) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inputs = append(r.inputs, in)
	return r.err
}

func (r *inputRecorder) seen() []brain.Input {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]brain.Input(nil), r.inputs...)
}

type mockTaskExtractor struct{ inputRecorder }

func (m *mockTaskExtractor) Extract(_ context.Context, in brain.Input) ([]model.ExtractedTask, error) {
	return nil, m.record(in)
}

type mockCommitmentTracker struct{ inputRecorder }

func (m *mockCommitmentTracker) Track(_ context.Context, in brain.Input) ([]model.TrackedCommitment, error) {
	return nil, m.record(in)
}

type mockRelationshipAnalyzer struct{ inputRecorder }

func (m *mockRelationshipAnalyzer) Analyze(_ context.Context, in brain.Input) (*brain.RelationshipResult, error) {
	if err := m.record(in); err != nil {
		return nil, err
	}
	return &brain.RelationshipResult{}, nil
}

type mockReconciler struct {
	mu       sync.Mutex
	sessions []string
	result   *conversation.ReconcileResult
	err      error
}

func (m *mockReconciler) ReconcileSession(_ context.Context, sessionID string) (*conversation.ReconcileResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = append(m.sessions, sessionID)
	if m.err != nil {
		return nil, m.err
	}
	if m.result != nil {
		return m.result, nil
	}
	return &conversation.ReconcileResult{}, nil
}
