package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"companion.app/relay/internal/model"
	"companion.app/relay/internal/store"
)

var _ = Describe("SessionStore", func() {
	var (
		ctx      context.Context
		sessions store.SessionStore
		now      time.Time
	)

	BeforeEach(func() {
		ctx = context.Background()
		sessions = newStores(ctx).Sessions()
		now = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	})

	It("returns ErrNotFound for an unknown session", func() {
		_, err := sessions.Get(ctx, "missing")
		Expect(err).To(MatchError(store.ErrNotFound))
	})

	It("round-trips segments, speaker map and unlinked set", func() {
		session := model.NewConversationSession("sess-1", "device-1", model.SourceOmi, now)
		session.Segments = []model.TranscriptSegment{
			{Text: "Morning", SpeakerID: 0, IsUser: true, Start: 0, End: 1.5},
			{Text: "Hi there", SpeakerID: 2, Start: 1.5, End: 3},
			{Text: "Who's that?", SpeakerID: 7, Start: 3, End: 4.25},
		}
		session.SpeakerProfiles = map[int]string{2: "Alice"}
		session.UnlinkedSpeakerIDs = map[int]struct{}{7: {}}
		session.Transcript = "User: Morning\nAlice: Hi there\nSpeaker 7: Who's that?"

		Expect(sessions.Upsert(ctx, session)).To(Succeed())

		loaded, err := sessions.Get(ctx, "sess-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.DeviceID).To(Equal("device-1"))
		Expect(loaded.Source).To(Equal(model.SourceOmi))
		Expect(loaded.Status).To(Equal(model.SessionStatusActive))
		Expect(loaded.Segments).To(Equal(session.Segments))
		Expect(loaded.SpeakerProfiles).To(Equal(map[int]string{2: "Alice"}))
		Expect(loaded.UnlinkedSpeakerIDs).To(HaveKey(7))
		Expect(loaded.Transcript).To(Equal(session.Transcript))
		Expect(loaded.StartTime).To(BeTemporally("==", now))
		Expect(loaded.EndTime).To(BeNil())
		Expect(loaded.MemoryID).To(BeNil())
	})

	It("overwrites the record on a second upsert", func() {
		session := model.NewConversationSession("sess-2", "device-1", model.SourceLimitless, now)
		Expect(sessions.Upsert(ctx, session)).To(Succeed())

		end := now.Add(10 * time.Minute)
		memoryID := "mem-42"
		session.EndTime = &end
		session.Status = model.SessionStatusProcessed
		session.MemoryID = &memoryID
		Expect(sessions.Upsert(ctx, session)).To(Succeed())

		loaded, err := sessions.Get(ctx, "sess-2")
		Expect(err).NotTo(HaveOccurred())
		Expect(loaded.Status).To(Equal(model.SessionStatusProcessed))
		Expect(loaded.MemoryID).To(HaveValue(Equal("mem-42")))
		Expect(loaded.EndTime).To(HaveValue(BeTemporally("==", end)))
	})

	It("lists a device's sessions oldest first", func() {
		later := model.NewConversationSession("sess-b", "device-1", model.SourceOmi, now.Add(time.Hour))
		earlier := model.NewConversationSession("sess-a", "device-1", model.SourceOmi, now)
		other := model.NewConversationSession("sess-c", "device-2", model.SourceOmi, now)
		for _, s := range []*model.ConversationSession{later, earlier, other} {
			Expect(sessions.Upsert(ctx, s)).To(Succeed())
		}

		ids, err := sessions.ListIDsByDevice(ctx, "device-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(ids).To(Equal([]string{"sess-a", "sess-b"}))
	})
})
