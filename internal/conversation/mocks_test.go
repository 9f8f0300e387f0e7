package conversation_test

import (
	"context"
	"errors"
	"sync"

	"companion.app/relay/internal/model"
	"companion.app/relay/internal/store"
)

type mockMemoryClient struct {
	mu       sync.Mutex
	createFn func(ctx context.Context, req model.CreateMemoryRequest) (*model.Memory, error)
	requests []model.CreateMemoryRequest
}

func (m *mockMemoryClient) CreateMemory(ctx context.Context, req model.CreateMemoryRequest) (*model.Memory, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()
	if m.createFn != nil {
		return m.createFn(ctx, req)
	}
	return &model.Memory{ID: "mem-1"}, nil
}

func (m *mockMemoryClient) calls() []model.CreateMemoryRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.CreateMemoryRequest(nil), m.requests...)
}

type mockGraphClient struct {
	mu       sync.Mutex
	updateFn func(ctx context.Context, update model.GraphUpdate) error
	updates  []model.GraphUpdate
}

func (m *mockGraphClient) UpdateKnowledgeGraph(ctx context.Context, update model.GraphUpdate) error {
	m.mu.Lock()
	m.updates = append(m.updates, update)
	m.mu.Unlock()
	if m.updateFn != nil {
		return m.updateFn(ctx, update)
	}
	return nil
}

func (m *mockGraphClient) calls() []model.GraphUpdate {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.GraphUpdate(nil), m.updates...)
}

// flakySessionStore fails writes while failUpsert is set.
type flakySessionStore struct {
	store.SessionStore
	mu         sync.Mutex
	failUpsert bool
	upserts    int
}

func (f *flakySessionStore) Upsert(ctx context.Context, s *model.ConversationSession) error {
	f.mu.Lock()
	f.upserts++
	fail := f.failUpsert
	f.mu.Unlock()
	if fail {
		return errors.New("database is locked")
	}
	return f.SessionStore.Upsert(ctx, s)
}

func (f *flakySessionStore) setFail(v bool) {
	f.mu.Lock()
	f.failUpsert = v
	f.mu.Unlock()
}
