package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"
	"unicode/utf8"

	"companion.app/relay/common/logger"
	"companion.app/relay/internal/model"
	"companion.app/relay/internal/store"
)

var (
	ErrSessionNotFound = errors.New("conversation session not found")
	ErrSessionEnded    = errors.New("conversation session has ended")
	ErrMemoryCreation  = errors.New("memory creation failed")
)

const (
	DefaultMinTranscriptLength = 100
	DefaultOwnerName           = "user"

	ReasonTooShort         = "transcript_too_short"
	ReasonAlreadyProcessed = "already_processed"
)

// SpeakerResolver maps a diarization speaker ID to an enrolled name.
type SpeakerResolver interface {
	Resolve(ctx context.Context, deviceID string, speakerID int) (string, bool, error)
}

// MemoryClient creates long-term memories from finished conversations.
type MemoryClient interface {
	CreateMemory(ctx context.Context, req model.CreateMemoryRequest) (*model.Memory, error)
}

// GraphClient applies entity and relationship upserts to the knowledge graph.
type GraphClient interface {
	UpdateKnowledgeGraph(ctx context.Context, update model.GraphUpdate) error
}

type Config struct {
	MinTranscriptLength int          // Shorter transcripts are dropped as noise
	OwnerName           string       // Graph entity for the device owner
	DefaultSource       model.Source // Source for sessions created by their first segment
}

// Bridge turns streamed transcript segments into sessions and finished
// sessions into memories. Sessions being worked on live in memory; the
// session store is a write-through copy read only when a session is not
// cached, such as after a restart.
type Bridge struct {
	cfg      Config
	sessions store.SessionStore
	resolver SpeakerResolver
	memories MemoryClient
	graph    GraphClient

	locks *keyedMutex

	mu     sync.RWMutex
	active map[string]*model.ConversationSession

	now func() time.Time
}

func NewBridge(cfg Config, sessions store.SessionStore, resolver SpeakerResolver, memories MemoryClient, graph GraphClient) *Bridge {
	if cfg.MinTranscriptLength <= 0 {
		cfg.MinTranscriptLength = DefaultMinTranscriptLength
	}
	if cfg.OwnerName == "" {
		cfg.OwnerName = DefaultOwnerName
	}
	if cfg.DefaultSource == "" {
		cfg.DefaultSource = model.SourceOmi
	}
	return &Bridge{
		cfg:      cfg,
		sessions: sessions,
		resolver: resolver,
		memories: memories,
		graph:    graph,
		locks:    newKeyedMutex(),
		active:   make(map[string]*model.ConversationSession),
		// Millisecond precision matches what the session store keeps.
		now: func() time.Time { return time.Now().UTC().Truncate(time.Millisecond) },
	}
}

type StartResult struct {
	Session   *model.ConversationSession
	Resumed   bool
	Persisted bool
}

// StartConversation resumes the session if it is known, otherwise creates
// and persists a new active one.
func (b *Bridge) StartConversation(ctx context.Context, sessionID, deviceID string, source model.Source) (*StartResult, error) {
	ctx, end := b.begin(ctx, "conversation.start", sessionID, deviceID)
	defer end()

	unlock := b.locks.Lock(sessionID)
	defer unlock()

	s, err := b.load(ctx, sessionID)
	if err == nil {
		b.release(ctx, s)
		slog.InfoContext(ctx, "conversation resumed",
			"status", s.Status,
			"segments", len(s.Segments))
		return &StartResult{Session: s.Clone(), Resumed: true, Persisted: true}, nil
	}
	if !errors.Is(err, ErrSessionNotFound) {
		return nil, err
	}

	if source == "" {
		source = b.cfg.DefaultSource
	}
	s = b.create(sessionID, deviceID, source)
	persisted := b.persist(ctx, s) == nil

	slog.InfoContext(ctx, "conversation started", "source", source, "persisted", persisted)
	return &StartResult{Session: s.Clone(), Persisted: persisted}, nil
}

type AddResult struct {
	Session    *model.ConversationSession
	Accepted   []model.TranscriptSegment
	Duplicates int
	Created    bool
	// Persisted is false when the store rejected the write. The in-memory
	// session still holds every accepted segment.
	Persisted bool
}

// AddSegments appends segments not already in the session, resolving the
// speaker of each new non-user segment.
func (b *Bridge) AddSegments(ctx context.Context, sessionID, deviceID string, segments []model.TranscriptSegment) (*AddResult, error) {
	ctx, end := b.begin(ctx, "conversation.add_segments", sessionID, deviceID)
	defer end()

	unlock := b.locks.Lock(sessionID)
	defer unlock()

	created := false
	s, err := b.load(ctx, sessionID)
	switch {
	case errors.Is(err, ErrSessionNotFound):
		s = b.create(sessionID, deviceID, b.cfg.DefaultSource)
		created = true
	case err != nil:
		return nil, err
	}
	if s.Ended() {
		b.release(ctx, s)
		return nil, fmt.Errorf("adding segments to %s: %w", sessionID, ErrSessionEnded)
	}
	if s.DeviceID == "" {
		s.DeviceID = deviceID
	}

	seen := make(map[model.SegmentKey]struct{}, len(s.Segments)+len(segments))
	for _, seg := range s.Segments {
		seen[seg.Key()] = struct{}{}
	}

	result := &AddResult{Created: created, Persisted: true}
	retried := make(map[int]struct{})
	for _, seg := range segments {
		key := seg.Key()
		if _, dup := seen[key]; dup {
			result.Duplicates++
			continue
		}
		seen[key] = struct{}{}
		s.Segments = append(s.Segments, seg)
		result.Accepted = append(result.Accepted, seg)

		if seg.IsUser {
			continue
		}
		if _, resolved := s.SpeakerProfiles[seg.SpeakerID]; resolved {
			continue
		}
		// An unlinked speaker is looked up again once per batch, since
		// enrollment can complete mid-conversation.
		if _, done := retried[seg.SpeakerID]; done {
			continue
		}
		retried[seg.SpeakerID] = struct{}{}
		b.resolveInto(ctx, s, seg.SpeakerID)
	}

	if len(result.Accepted) > 0 || created {
		s.Transcript = formatTranscript(s)
		result.Persisted = b.persist(ctx, s) == nil
	}

	slog.DebugContext(ctx, "segments added",
		"accepted", len(result.Accepted),
		"duplicates", result.Duplicates,
		"unlinked", len(s.UnlinkedSpeakerIDs),
		"persisted", result.Persisted)

	result.Session = s.Clone()
	return result, nil
}

type EndResult struct {
	Session *model.ConversationSession
	Memory  *model.Memory
	// Reason is set when no memory was created.
	Reason       string
	GraphUpdated bool
	// Persisted is false when the store rejected the final session write.
	Persisted bool
}

// EndConversation closes the session and turns it into a memory unless the
// transcript is too short to be worth keeping. A memory API failure leaves
// the session completed and is returned as an error.
func (b *Bridge) EndConversation(ctx context.Context, sessionID string) (*EndResult, error) {
	ctx, end := b.begin(ctx, "conversation.end", sessionID, "")
	defer end()

	unlock := b.locks.Lock(sessionID)
	defer unlock()

	s, err := b.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{DeviceID: logger.Ptr(s.DeviceID)})

	if s.Status == model.SessionStatusProcessed {
		slog.InfoContext(ctx, "conversation already processed")
		persisted := b.release(ctx, s)
		return &EndResult{Session: s.Clone(), Reason: ReasonAlreadyProcessed, Persisted: persisted}, nil
	}

	if s.EndTime == nil {
		now := b.now()
		s.EndTime = &now
	}
	s.Status = model.SessionStatusCompleted
	s.Transcript = formatTranscript(s)
	persisted := b.persist(ctx, s) == nil

	length := utf8.RuneCountInString(s.Transcript)
	if length < b.cfg.MinTranscriptLength {
		slog.InfoContext(ctx, "conversation too short for a memory, dropping",
			"length", length,
			"min_length", b.cfg.MinTranscriptLength,
			"persisted", persisted)
		b.settle(s, persisted)
		return &EndResult{Session: s.Clone(), Reason: ReasonTooShort, Persisted: persisted}, nil
	}

	memory, err := b.memories.CreateMemory(ctx, model.CreateMemoryRequest{
		Type:    model.MemoryTypeConversation,
		Source:  s.Source,
		Content: s.Transcript,
		Metadata: model.MemoryMetadata{
			SessionID:    s.SessionID,
			DeviceID:     s.DeviceID,
			StartTime:    s.StartTime,
			EndTime:      s.EndTime,
			Speakers:     s.ResolvedNames(),
			SegmentCount: len(s.Segments),
		},
	})
	if err != nil {
		slog.ErrorContext(ctx, "memory creation failed", "error", err)
		b.settle(s, persisted)
		return nil, fmt.Errorf("%w for %s: %w", ErrMemoryCreation, sessionID, err)
	}

	s.Status = model.SessionStatusProcessed
	s.MemoryID = &memory.ID
	ctx = logger.WithLogFields(ctx, logger.LogFields{MemoryID: logger.Ptr(memory.ID)})

	graphUpdated := b.syncGraph(ctx, s)
	persisted = b.persist(ctx, s) == nil

	slog.InfoContext(ctx, "conversation processed into memory",
		"length", length,
		"speakers", len(s.SpeakerProfiles),
		"graph_updated", graphUpdated,
		"persisted", persisted)

	b.settle(s, persisted)
	return &EndResult{
		Session:      s.Clone(),
		Memory:       memory,
		GraphUpdated: graphUpdated,
		Persisted:    persisted,
	}, nil
}

type ReconcileResult struct {
	Session      *model.ConversationSession
	Resolved     map[int]string
	Unlinked     []int
	Changed      bool
	GraphUpdated bool
}

// ReconcileSession re-resolves every speaker in the session against the
// current enrollments, rebuilding the speaker map from scratch. For a
// processed session with no speaker left unlinked, the graph is updated
// when the resolved names differ from those last written. Active sessions
// leave the graph to EndConversation.
func (b *Bridge) ReconcileSession(ctx context.Context, sessionID string) (*ReconcileResult, error) {
	ctx, end := b.begin(ctx, "conversation.reconcile", sessionID, "")
	defer end()

	unlock := b.locks.Lock(sessionID)
	defer unlock()

	s, err := b.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{DeviceID: logger.Ptr(s.DeviceID)})

	before := s.Transcript
	s.SpeakerProfiles = make(map[int]string)
	s.UnlinkedSpeakerIDs = make(map[int]struct{})
	for _, seg := range s.Segments {
		if seg.IsUser {
			continue
		}
		if _, ok := s.SpeakerProfiles[seg.SpeakerID]; ok {
			continue
		}
		if _, ok := s.UnlinkedSpeakerIDs[seg.SpeakerID]; ok {
			continue
		}
		b.resolveInto(ctx, s, seg.SpeakerID)
	}
	s.Transcript = formatTranscript(s)

	graphUpdated := false
	if s.Status == model.SessionStatusProcessed && len(s.UnlinkedSpeakerIDs) == 0 {
		graphUpdated = b.syncGraph(ctx, s)
	}

	if err := b.persist(ctx, s); err != nil {
		return nil, fmt.Errorf("persisting reconciled session %s: %w", sessionID, err)
	}

	result := &ReconcileResult{
		Session:      s.Clone(),
		Resolved:     maps.Clone(s.SpeakerProfiles),
		Unlinked:     s.Unlinked(),
		Changed:      s.Transcript != before,
		GraphUpdated: graphUpdated,
	}

	slog.InfoContext(ctx, "conversation reconciled",
		"resolved", len(result.Resolved),
		"unlinked", len(result.Unlinked),
		"changed", result.Changed,
		"graph_updated", result.GraphUpdated)

	b.settle(s, true)
	return result, nil
}

// Get returns a snapshot of the session.
func (b *Bridge) Get(ctx context.Context, sessionID string) (*model.ConversationSession, error) {
	unlock := b.locks.Lock(sessionID)
	defer unlock()

	s, err := b.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	b.release(ctx, s)
	return s.Clone(), nil
}

// SessionIDsForDevice lists every known session of a device, cached or stored.
func (b *Bridge) SessionIDsForDevice(ctx context.Context, deviceID string) ([]string, error) {
	ids, err := b.sessions.ListIDsByDevice(ctx, deviceID)
	if err != nil {
		return nil, fmt.Errorf("listing sessions for device: %w", err)
	}

	b.mu.RLock()
	for id, s := range b.active {
		if s.DeviceID == deviceID && !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	b.mu.RUnlock()

	slices.Sort(ids)
	return ids, nil
}

func (b *Bridge) begin(ctx context.Context, op, sessionID, deviceID string) (context.Context, func()) {
	sc := logger.StartSpan(ctx, op)
	fields := logger.LogFields{
		SessionID: logger.Ptr(sessionID),
		Component: "relay.conversation",
	}
	if deviceID != "" {
		fields.DeviceID = logger.Ptr(deviceID)
	}
	return logger.WithLogFields(sc.Context(), fields), sc.End
}

// load returns the cached session, falling back to the store. Only active
// sessions are cached on load. The caller must hold the session's lock.
func (b *Bridge) load(ctx context.Context, sessionID string) (*model.ConversationSession, error) {
	b.mu.RLock()
	s, ok := b.active[sessionID]
	b.mu.RUnlock()
	if ok {
		return s, nil
	}

	s, err := b.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return nil, fmt.Errorf("loading session %s: %w", sessionID, err)
	}
	if s.SpeakerProfiles == nil {
		s.SpeakerProfiles = make(map[int]string)
	}
	if s.UnlinkedSpeakerIDs == nil {
		s.UnlinkedSpeakerIDs = make(map[int]struct{})
	}

	slog.DebugContext(ctx, "session loaded from persistence",
		"status", s.Status,
		"segments", len(s.Segments))

	if !s.Ended() {
		b.mu.Lock()
		b.active[sessionID] = s
		b.mu.Unlock()
	}
	return s, nil
}

func (b *Bridge) create(sessionID, deviceID string, source model.Source) *model.ConversationSession {
	s := model.NewConversationSession(sessionID, deviceID, source, b.now())
	b.mu.Lock()
	b.active[sessionID] = s
	b.mu.Unlock()
	return s
}

// persist writes the session through to the store. Failures are logged
// and returned; the cached session stays authoritative either way.
func (b *Bridge) persist(ctx context.Context, s *model.ConversationSession) error {
	s.UpdatedAt = b.now()
	if err := b.sessions.Upsert(ctx, s.Clone()); err != nil {
		slog.ErrorContext(ctx, "failed to persist session", "error", err, "status", s.Status)
		return err
	}
	return nil
}

// settle drops an ended session from the cache once the store holds its
// latest state.
func (b *Bridge) settle(s *model.ConversationSession, persisted bool) {
	if !s.Ended() || !persisted {
		return
	}
	b.mu.Lock()
	if b.active[s.SessionID] == s {
		delete(b.active, s.SessionID)
	}
	b.mu.Unlock()
}

// release evicts an ended session that is still cached because an earlier
// write failed, retrying that write first. It reports whether the store
// holds the session's latest state.
func (b *Bridge) release(ctx context.Context, s *model.ConversationSession) bool {
	if !s.Ended() {
		return true
	}
	b.mu.RLock()
	cached := b.active[s.SessionID] == s
	b.mu.RUnlock()
	if !cached {
		return true
	}
	persisted := b.persist(ctx, s) == nil
	b.settle(s, persisted)
	return persisted
}

// resolveInto records speakerID as resolved or unlinked. A failed lookup
// counts as unlinked.
func (b *Bridge) resolveInto(ctx context.Context, s *model.ConversationSession, speakerID int) {
	name, ok, err := b.resolver.Resolve(ctx, s.DeviceID, speakerID)
	if err != nil {
		slog.WarnContext(ctx, "speaker resolution failed", "error", err, "speaker_id", speakerID)
	}
	if ok {
		s.SpeakerProfiles[speakerID] = name
		delete(s.UnlinkedSpeakerIDs, speakerID)
		return
	}
	s.UnlinkedSpeakerIDs[speakerID] = struct{}{}
}

// syncGraph records that the owner spoke with each resolved speaker,
// unless those names were already written. A success is remembered in
// GraphSpeakers; failures are logged and never fail the caller.
func (b *Bridge) syncGraph(ctx context.Context, s *model.ConversationSession) bool {
	if !s.GraphStale() {
		return false
	}
	names := s.ResolvedNames()
	update := spokeWith(b.cfg.OwnerName, s)
	if update.Empty() {
		s.GraphSpeakers = names
		return false
	}
	if err := b.graph.UpdateKnowledgeGraph(ctx, update); err != nil {
		slog.WarnContext(ctx, "knowledge graph update failed", "error", err)
		return false
	}
	s.GraphSpeakers = names
	return true
}

func spokeWith(owner string, s *model.ConversationSession) model.GraphUpdate {
	var update model.GraphUpdate
	for _, name := range s.ResolvedNames() {
		if name == owner {
			continue
		}
		update.Entities = append(update.Entities, model.Entity{
			Name: name,
			Type: model.EntityTypePerson,
			Attributes: map[string]any{
				"device_id": s.DeviceID,
			},
		})
		update.Relationships = append(update.Relationships, model.Relationship{
			Source:  owner,
			Target:  name,
			Type:    model.RelationshipSpokeWith,
			Context: "conversation " + s.SessionID,
		})
	}
	if len(update.Entities) > 0 {
		update.Entities = append([]model.Entity{{Name: owner, Type: model.EntityTypePerson}}, update.Entities...)
	}
	return update
}
