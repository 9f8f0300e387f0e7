package conversation_test

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"companion.app/relay/core/db"
	"companion.app/relay/internal/conversation"
	"companion.app/relay/internal/model"
	"companion.app/relay/internal/speaker"
	"companion.app/relay/internal/store"
)

func seg(speakerID int, label, text string, start float64, isUser bool) model.TranscriptSegment {
	return model.TranscriptSegment{
		Text:      text,
		Speaker:   label,
		SpeakerID: speakerID,
		IsUser:    isUser,
		Start:     start,
		End:       start + 2,
	}
}

var _ = Describe("Bridge", func() {
	var (
		ctx        context.Context
		database   *db.DB
		stores     *store.Stores
		sessions   *flakySessionStore
		enrollment *speaker.Enrollment
		memories   *mockMemoryClient
		graph      *mockGraphClient
		bridge     *conversation.Bridge
	)

	newBridge := func() *conversation.Bridge {
		return conversation.NewBridge(
			conversation.Config{MinTranscriptLength: 100, OwnerName: "user"},
			sessions,
			speaker.NewResolver(stores.VoiceProfiles()),
			memories,
			graph,
		)
	}

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		database, err = db.New(ctx, db.Config{DSN: ":memory:"})
		Expect(err).NotTo(HaveOccurred())
		stores = store.NewStores(database)
		sessions = &flakySessionStore{SessionStore: stores.Sessions()}
		enrollment = speaker.NewEnrollment(stores.VoiceProfiles(), nil)
		memories = &mockMemoryClient{}
		graph = &mockGraphClient{}
		bridge = newBridge()
	})

	AfterEach(func() {
		database.Close()
	})

	Describe("StartConversation", func() {
		It("creates and persists a new active session", func() {
			res, err := bridge.StartConversation(ctx, "s1", "dev-1", model.SourceLimitless)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Resumed).To(BeFalse())
			Expect(res.Persisted).To(BeTrue())
			Expect(res.Session.Status).To(Equal(model.SessionStatusActive))

			stored, err := stores.Sessions().Get(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Source).To(Equal(model.SourceLimitless))
		})

		It("resumes a persisted session after a restart", func() {
			_, err := bridge.AddSegments(ctx, "s1", "dev-1", []model.TranscriptSegment{
				seg(1, "Speaker 1", "hello there", 0, false),
			})
			Expect(err).NotTo(HaveOccurred())

			restarted := newBridge()
			res, err := restarted.StartConversation(ctx, "s1", "dev-1", model.SourceOmi)
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Resumed).To(BeTrue())
			Expect(res.Session.Segments).To(HaveLen(1))
			Expect(res.Session.UnlinkedSpeakerIDs).To(HaveKey(1))

			add, err := restarted.AddSegments(ctx, "s1", "dev-1", []model.TranscriptSegment{
				seg(1, "Speaker 1", "hello there", 0, false),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(add.Duplicates).To(Equal(1))
		})
	})

	Describe("AddSegments", func() {
		It("drops segments already in the session", func() {
			batch := []model.TranscriptSegment{
				seg(1, "Speaker 1", "first", 0, false),
				seg(1, "Speaker 1", "second", 2, false),
			}
			first, err := bridge.AddSegments(ctx, "s1", "dev-1", batch)
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Created).To(BeTrue())
			Expect(first.Accepted).To(HaveLen(2))

			again, err := bridge.AddSegments(ctx, "s1", "dev-1", append(batch, seg(1, "Speaker 1", "third", 4, false)))
			Expect(err).NotTo(HaveOccurred())
			Expect(again.Duplicates).To(Equal(2))
			Expect(again.Accepted).To(HaveLen(1))
			Expect(again.Session.Segments).To(HaveLen(3))
		})

		It("treats a different text at the same time range as new", func() {
			_, _ = bridge.AddSegments(ctx, "s1", "dev-1", []model.TranscriptSegment{seg(1, "A", "one", 0, false)})
			res, err := bridge.AddSegments(ctx, "s1", "dev-1", []model.TranscriptSegment{seg(1, "A", "two", 0, false)})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Accepted).To(HaveLen(1))
		})

		It("resolves enrolled speakers and tracks unlinked ones", func() {
			alice, err := enrollment.Enroll(ctx, "dev-1", "Alice", model.Embedding{Vector: []float64{1, 0}})
			Expect(err).NotTo(HaveOccurred())
			_, err = enrollment.LinkSpeakerID(ctx, alice.ID, 1)
			Expect(err).NotTo(HaveOccurred())

			res, err := bridge.AddSegments(ctx, "s1", "dev-1", []model.TranscriptSegment{
				seg(1, "Speaker 1", "hi", 0, false),
				seg(2, "Speaker 2", "hey", 2, false),
				seg(0, "Me", "hello both", 4, true),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Session.SpeakerProfiles).To(Equal(map[int]string{1: "Alice"}))
			Expect(res.Session.Unlinked()).To(Equal([]int{2}))
			Expect(res.Session.Transcript).To(Equal("Alice: hi\nSpeaker 2: hey\nMe: hello both"))
		})

		It("never resolves the owner's own segments", func() {
			res, err := bridge.AddSegments(ctx, "s1", "dev-1", []model.TranscriptSegment{
				seg(5, "Me", "talking to myself", 0, true),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Session.SpeakerProfiles).To(BeEmpty())
			Expect(res.Session.UnlinkedSpeakerIDs).To(BeEmpty())
		})

		It("keeps in-memory state when persistence fails", func() {
			sessions.setFail(true)
			res, err := bridge.AddSegments(ctx, "s1", "dev-1", []model.TranscriptSegment{
				seg(1, "Speaker 1", "will this survive", 0, false),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Persisted).To(BeFalse())

			sessions.setFail(false)
			res, err = bridge.AddSegments(ctx, "s1", "dev-1", []model.TranscriptSegment{
				seg(1, "Speaker 1", "yes it does", 2, false),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Persisted).To(BeTrue())

			stored, err := stores.Sessions().Get(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Segments).To(HaveLen(2))
		})

		It("rejects segments once the session has ended", func() {
			_, _ = bridge.AddSegments(ctx, "s1", "dev-1", []model.TranscriptSegment{seg(1, "A", "short", 0, false)})
			_, err := bridge.EndConversation(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())

			_, err = bridge.AddSegments(ctx, "s1", "dev-1", []model.TranscriptSegment{seg(1, "A", "late", 9, false)})
			Expect(errors.Is(err, conversation.ErrSessionEnded)).To(BeTrue())
		})

		It("serialises concurrent batches for one session", func() {
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					_, err := bridge.AddSegments(ctx, "s1", "dev-1", []model.TranscriptSegment{
						seg(1, "A", "same line", 0, false),
						seg(1, "A", "line", float64(i+1)*10, false),
					})
					Expect(err).NotTo(HaveOccurred())
				}(i)
			}
			wg.Wait()

			s, err := bridge.Get(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Segments).To(HaveLen(21))
		})
	})

	Describe("EndConversation", func() {
		It("drops a 40 character transcript as noise", func() {
			text := strings.Repeat("x", 37) // "A: " + 37 = 40
			_, _ = bridge.AddSegments(ctx, "s1", "dev-1", []model.TranscriptSegment{seg(1, "A", text, 0, false)})

			res, err := bridge.EndConversation(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Memory).To(BeNil())
			Expect(res.Reason).To(Equal(conversation.ReasonTooShort))
			Expect(res.Session.Status).To(Equal(model.SessionStatusCompleted))
			Expect(res.Session.EndTime).NotTo(BeNil())
			Expect(memories.calls()).To(BeEmpty())
		})

		It("creates a memory from a 200 character transcript", func() {
			text := strings.Repeat("y", 197)
			_, _ = bridge.AddSegments(ctx, "s1", "dev-1", []model.TranscriptSegment{seg(1, "A", text, 0, false)})

			res, err := bridge.EndConversation(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Memory.ID).To(Equal("mem-1"))
			Expect(res.Session.Status).To(Equal(model.SessionStatusProcessed))
			Expect(*res.Session.MemoryID).To(Equal("mem-1"))

			calls := memories.calls()
			Expect(calls).To(HaveLen(1))
			Expect(calls[0].Type).To(Equal(model.MemoryTypeConversation))
			Expect(calls[0].Metadata.SessionID).To(Equal("s1"))
			Expect(calls[0].Metadata.SegmentCount).To(Equal(1))
			Expect(calls[0].Metadata.Speakers).To(BeEmpty())

			stored, _ := stores.Sessions().Get(ctx, "s1")
			Expect(stored.Status).To(Equal(model.SessionStatusProcessed))
		})

		It("leaves the session completed when the memory api fails", func() {
			memories.createFn = func(context.Context, model.CreateMemoryRequest) (*model.Memory, error) {
				return nil, errors.New("503 service unavailable")
			}
			_, _ = bridge.AddSegments(ctx, "s1", "dev-1", []model.TranscriptSegment{seg(1, "A", strings.Repeat("z", 150), 0, false)})

			_, err := bridge.EndConversation(ctx, "s1")
			Expect(err).To(MatchError(conversation.ErrMemoryCreation))
			Expect(err).To(MatchError(ContainSubstring("503 service unavailable")))

			s, _ := bridge.Get(ctx, "s1")
			Expect(s.Status).To(Equal(model.SessionStatusCompleted))
			Expect(s.MemoryID).To(BeNil())
		})

		It("sets the end time only once", func() {
			_, _ = bridge.AddSegments(ctx, "s1", "dev-1", []model.TranscriptSegment{seg(1, "A", "tiny", 0, false)})
			first, _ := bridge.EndConversation(ctx, "s1")
			second, _ := bridge.EndConversation(ctx, "s1")
			Expect(second.Session.EndTime.Equal(*first.Session.EndTime)).To(BeTrue())
		})

		It("does not create a second memory for a processed session", func() {
			_, _ = bridge.AddSegments(ctx, "s1", "dev-1", []model.TranscriptSegment{seg(1, "A", strings.Repeat("w", 150), 0, false)})
			_, err := bridge.EndConversation(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())

			res, err := bridge.EndConversation(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Reason).To(Equal(conversation.ReasonAlreadyProcessed))
			Expect(memories.calls()).To(HaveLen(1))
		})

		It("links resolved speakers to the owner and tolerates graph failures", func() {
			bob, _ := enrollment.Enroll(ctx, "dev-1", "Bob", model.Embedding{Vector: []float64{1}})
			_, _ = enrollment.LinkSpeakerID(ctx, bob.ID, 3)
			graph.updateFn = func(context.Context, model.GraphUpdate) error { return errors.New("graph down") }

			_, _ = bridge.AddSegments(ctx, "s1", "dev-1", []model.TranscriptSegment{seg(3, "Speaker 3", strings.Repeat("b", 120), 0, false)})
			res, err := bridge.EndConversation(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Memory).NotTo(BeNil())
			Expect(res.GraphUpdated).To(BeFalse())

			updates := graph.calls()
			Expect(updates).To(HaveLen(1))
			Expect(updates[0].Relationships).To(ConsistOf(model.Relationship{
				Source: "user", Target: "Bob", Type: model.RelationshipSpokeWith, Context: "conversation s1",
			}))
		})

		It("returns ErrSessionNotFound for an unknown session", func() {
			_, err := bridge.EndConversation(ctx, "nope")
			Expect(errors.Is(err, conversation.ErrSessionNotFound)).To(BeTrue())
		})
	})

	Describe("ReconcileSession", func() {
		It("resolves speakers enrolled after the conversation ended", func() {
			_, err := bridge.AddSegments(ctx, "session-1", "dev-1", []model.TranscriptSegment{
				seg(1, "Speaker 1", "Did you book the flights for the conference next month yet?", 0, false),
				seg(0, "Me", "Not yet, I will do it tonight after dinner.", 3, true),
				seg(1, "Speaker 1", "Great, remember the hotel near the venue too.", 6, false),
			})
			Expect(err).NotTo(HaveOccurred())

			end, err := bridge.EndConversation(ctx, "session-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(end.Memory).NotTo(BeNil())
			Expect(memories.calls()[0].Metadata.Speakers).To(BeEmpty())
			Expect(graph.calls()).To(BeEmpty())

			alice, _ := enrollment.Enroll(ctx, "dev-1", "Alice", model.Embedding{Vector: []float64{0.2, 0.8}})
			_, err = enrollment.LinkSpeakerID(ctx, alice.ID, 1)
			Expect(err).NotTo(HaveOccurred())

			res, err := bridge.ReconcileSession(ctx, "session-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Changed).To(BeTrue())
			Expect(res.Unlinked).To(BeEmpty())
			Expect(res.Resolved).To(Equal(map[int]string{1: "Alice"}))
			Expect(res.GraphUpdated).To(BeTrue())
			Expect(res.Session.Transcript).To(ContainSubstring("Alice: Did you book the flights"))
			Expect(res.Session.Transcript).To(ContainSubstring("Alice: Great, remember the hotel"))
			Expect(res.Session.Transcript).To(ContainSubstring("Me: Not yet"))

			updates := graph.calls()
			Expect(updates).To(HaveLen(1))
			Expect(updates[0].Relationships).To(ConsistOf(model.Relationship{
				Source: "user", Target: "Alice", Type: model.RelationshipSpokeWith, Context: "conversation session-1",
			}))

			stored, _ := stores.Sessions().Get(ctx, "session-1")
			Expect(stored.Transcript).To(Equal(res.Session.Transcript))
			Expect(stored.Status).To(Equal(model.SessionStatusProcessed))
		})

		It("skips the graph while any speaker is unlinked", func() {
			alice, _ := enrollment.Enroll(ctx, "dev-1", "Alice", model.Embedding{Vector: []float64{1}})
			_, _ = enrollment.LinkSpeakerID(ctx, alice.ID, 1)

			_, _ = bridge.AddSegments(ctx, "s1", "dev-1", []model.TranscriptSegment{
				seg(1, "Speaker 1", "hi", 0, false),
				seg(2, "Speaker 2", "hello", 2, false),
			})

			res, err := bridge.ReconcileSession(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Unlinked).To(Equal([]int{2}))
			Expect(res.GraphUpdated).To(BeFalse())
			Expect(graph.calls()).To(BeEmpty())
		})

		It("rebuilds the speaker map from scratch", func() {
			alice, _ := enrollment.Enroll(ctx, "dev-1", "Alice", model.Embedding{Vector: []float64{1}})
			bob, _ := enrollment.Enroll(ctx, "dev-1", "Bob", model.Embedding{Vector: []float64{1}})
			_, _ = enrollment.LinkSpeakerID(ctx, alice.ID, 1)

			_, _ = bridge.AddSegments(ctx, "s1", "dev-1", []model.TranscriptSegment{seg(1, "Speaker 1", "hi", 0, false)})

			// Speaker 1 turns out to be Bob.
			_, _ = enrollment.LinkSpeakerID(ctx, bob.ID, 1)

			res, err := bridge.ReconcileSession(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Resolved).To(Equal(map[int]string{1: "Bob"}))
			Expect(res.Session.Transcript).To(Equal("Bob: hi"))
		})

		It("updates the graph once after both unresolved speakers are linked", func() {
			_, _ = bridge.AddSegments(ctx, "s1", "dev-1", []model.TranscriptSegment{
				seg(1, "Speaker 1", strings.Repeat("a", 60), 0, false),
				seg(2, "Speaker 2", strings.Repeat("b", 60), 2, false),
			})
			end, err := bridge.EndConversation(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(end.Memory).NotTo(BeNil())
			Expect(end.GraphUpdated).To(BeFalse())

			alice, _ := enrollment.Enroll(ctx, "dev-1", "Alice", model.Embedding{Vector: []float64{1}})
			carol, _ := enrollment.Enroll(ctx, "dev-1", "Carol", model.Embedding{Vector: []float64{1}})
			_, _ = enrollment.LinkSpeakerID(ctx, alice.ID, 1)
			_, _ = enrollment.LinkSpeakerID(ctx, carol.ID, 2)

			first, err := bridge.ReconcileSession(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(first.Unlinked).To(BeEmpty())
			Expect(first.GraphUpdated).To(BeTrue())

			second, err := bridge.ReconcileSession(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(second.Changed).To(BeFalse())
			Expect(second.GraphUpdated).To(BeFalse())

			updates := graph.calls()
			Expect(updates).To(HaveLen(1))
			Expect(updates[0].Relationships).To(HaveLen(2))

			stored, _ := stores.Sessions().Get(ctx, "s1")
			Expect(stored.GraphSpeakers).To(Equal([]string{"Alice", "Carol"}))
		})

		It("leaves the graph of an active session to EndConversation", func() {
			alice, _ := enrollment.Enroll(ctx, "dev-1", "Alice", model.Embedding{Vector: []float64{1}})
			_, _ = enrollment.LinkSpeakerID(ctx, alice.ID, 1)
			_, _ = bridge.AddSegments(ctx, "s1", "dev-1", []model.TranscriptSegment{
				seg(1, "Speaker 1", strings.Repeat("c", 120), 0, false),
			})

			res, err := bridge.ReconcileSession(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Session.Status).To(Equal(model.SessionStatusActive))
			Expect(res.GraphUpdated).To(BeFalse())
			Expect(graph.calls()).To(BeEmpty())

			end, err := bridge.EndConversation(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(end.GraphUpdated).To(BeTrue())

			again, err := bridge.ReconcileSession(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(again.GraphUpdated).To(BeFalse())
			Expect(graph.calls()).To(HaveLen(1))
		})

		It("retries the graph on the next reconcile after a failed update", func() {
			_, _ = bridge.AddSegments(ctx, "s1", "dev-1", []model.TranscriptSegment{
				seg(1, "Speaker 1", strings.Repeat("d", 120), 0, false),
			})
			_, err := bridge.EndConversation(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())

			alice, _ := enrollment.Enroll(ctx, "dev-1", "Alice", model.Embedding{Vector: []float64{1}})
			_, _ = enrollment.LinkSpeakerID(ctx, alice.ID, 1)

			graph.updateFn = func(context.Context, model.GraphUpdate) error { return errors.New("graph down") }
			failed, err := bridge.ReconcileSession(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(failed.GraphUpdated).To(BeFalse())

			graph.updateFn = nil
			retried, err := bridge.ReconcileSession(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(retried.GraphUpdated).To(BeTrue())
			Expect(graph.calls()).To(HaveLen(2))
		})

		It("writes the graph again when a speaker is relinked to someone else", func() {
			alice, _ := enrollment.Enroll(ctx, "dev-1", "Alice", model.Embedding{Vector: []float64{1}})
			bob, _ := enrollment.Enroll(ctx, "dev-1", "Bob", model.Embedding{Vector: []float64{1}})
			_, _ = enrollment.LinkSpeakerID(ctx, alice.ID, 1)
			_, _ = bridge.AddSegments(ctx, "s1", "dev-1", []model.TranscriptSegment{
				seg(1, "Speaker 1", strings.Repeat("e", 120), 0, false),
			})
			_, err := bridge.EndConversation(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())

			_, _ = enrollment.LinkSpeakerID(ctx, bob.ID, 1)
			res, err := bridge.ReconcileSession(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.GraphUpdated).To(BeTrue())

			updates := graph.calls()
			Expect(updates).To(HaveLen(2))
			Expect(updates[1].Relationships[0].Target).To(Equal("Bob"))
		})

		It("returns ErrSessionNotFound for an unknown session", func() {
			_, err := bridge.ReconcileSession(ctx, "nope")
			Expect(errors.Is(err, conversation.ErrSessionNotFound)).To(BeTrue())
		})
	})

	Describe("session cache", func() {
		longText := strings.Repeat("f", 120)

		It("does not cache ended sessions read back from the store", func() {
			for i := range 5 {
				id := "done-" + strconv.Itoa(i)
				_, _ = bridge.AddSegments(ctx, id, "dev-1", []model.TranscriptSegment{seg(1, "A", longText, 0, false)})
				_, err := bridge.EndConversation(ctx, id)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(bridge.CachedSessions()).To(Equal(0))

			ids, err := bridge.SessionIDsForDevice(ctx, "dev-1")
			Expect(err).NotTo(HaveOccurred())
			for _, id := range ids {
				_, err := bridge.Get(ctx, id)
				Expect(err).NotTo(HaveOccurred())
			}
			Expect(bridge.CachedSessions()).To(Equal(0))
		})

		It("evicts sessions dropped as too short", func() {
			_, _ = bridge.AddSegments(ctx, "short", "dev-1", []model.TranscriptSegment{seg(1, "A", "hm", 0, false)})
			Expect(bridge.CachedSessions()).To(Equal(1))

			res, err := bridge.EndConversation(ctx, "short")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Reason).To(Equal(conversation.ReasonTooShort))
			Expect(res.Persisted).To(BeTrue())
			Expect(bridge.CachedSessions()).To(Equal(0))

			_, err = bridge.AddSegments(ctx, "short", "dev-1", []model.TranscriptSegment{seg(1, "A", "late", 5, false)})
			Expect(errors.Is(err, conversation.ErrSessionEnded)).To(BeTrue())
			Expect(bridge.CachedSessions()).To(Equal(0))
		})

		It("keeps an ended session cached until its write goes through", func() {
			_, _ = bridge.AddSegments(ctx, "s1", "dev-1", []model.TranscriptSegment{seg(1, "A", longText, 0, false)})

			sessions.setFail(true)
			res, err := bridge.EndConversation(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(res.Session.Status).To(Equal(model.SessionStatusProcessed))
			Expect(res.Persisted).To(BeFalse())
			Expect(bridge.CachedSessions()).To(Equal(1))

			sessions.setFail(false)
			s, err := bridge.Get(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Status).To(Equal(model.SessionStatusProcessed))
			Expect(bridge.CachedSessions()).To(Equal(0))

			stored, err := stores.Sessions().Get(ctx, "s1")
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.Status).To(Equal(model.SessionStatusProcessed))
			Expect(memories.calls()).To(HaveLen(1))
		})
	})

	Describe("SessionIDsForDevice", func() {
		It("merges cached and stored sessions", func() {
			sessions.setFail(true)
			_, _ = bridge.AddSegments(ctx, "cached", "dev-1", []model.TranscriptSegment{seg(1, "A", "x", 0, false)})
			sessions.setFail(false)
			_, _ = bridge.StartConversation(ctx, "stored", "dev-1", model.SourceOmi)
			_, _ = bridge.StartConversation(ctx, "other", "dev-2", model.SourceOmi)

			ids, err := bridge.SessionIDsForDevice(ctx, "dev-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(ids).To(Equal([]string{"cached", "stored"}))
		})
	})
})
