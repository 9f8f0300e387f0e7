package store_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"companion.app/relay/internal/model"
	"companion.app/relay/internal/store"
)

var _ = Describe("VoiceProfileStore", func() {
	var (
		ctx      context.Context
		profiles store.VoiceProfileStore
	)

	create := func(id int64, deviceID, name string) {
		Expect(profiles.Create(ctx, &model.VoiceProfile{
			ID:       id,
			DeviceID: deviceID,
			Name:     name,
			Embedding: model.Embedding{
				Vector:  []float64{0.1, 0.2, 0.3},
				Quality: model.EmbeddingQualityHigh,
			},
		})).To(Succeed())
	}

	BeforeEach(func() {
		ctx = context.Background()
		profiles = newStores(ctx).VoiceProfiles()
	})

	It("stores and loads the embedding", func() {
		create(1, "device-1", "Alice")

		p, err := profiles.GetByID(ctx, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Name).To(Equal("Alice"))
		Expect(p.Embedding.Vector).To(Equal([]float64{0.1, 0.2, 0.3}))
		Expect(p.Embedding.Quality).To(Equal(model.EmbeddingQualityHigh))
		Expect(p.ExternalSpeakerID).To(BeNil())
	})

	It("returns ErrNotFound for an unlinked speaker ID", func() {
		create(1, "device-1", "Alice")

		_, err := profiles.GetProfileBySpeakerID(ctx, "device-1", 3)
		Expect(err).To(MatchError(store.ErrNotFound))
	})

	It("resolves a linked speaker ID on the same device only", func() {
		create(1, "device-1", "Alice")

		linked, err := profiles.LinkSpeakerID(ctx, 1, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(linked.ExternalSpeakerID).To(HaveValue(Equal(3)))

		p, err := profiles.GetProfileBySpeakerID(ctx, "device-1", 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Name).To(Equal("Alice"))

		_, err = profiles.GetProfileBySpeakerID(ctx, "device-2", 3)
		Expect(err).To(MatchError(store.ErrNotFound))
	})

	It("moves a speaker ID away from its previous holder", func() {
		create(1, "device-1", "Alice")
		create(2, "device-1", "Bob")

		_, err := profiles.LinkSpeakerID(ctx, 1, 3)
		Expect(err).NotTo(HaveOccurred())
		_, err = profiles.LinkSpeakerID(ctx, 2, 3)
		Expect(err).NotTo(HaveOccurred())

		p, err := profiles.GetProfileBySpeakerID(ctx, "device-1", 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(p.Name).To(Equal("Bob"))

		alice, err := profiles.GetByID(ctx, 1)
		Expect(err).NotTo(HaveOccurred())
		Expect(alice.ExternalSpeakerID).To(BeNil())
	})

	It("fails to link an unknown profile", func() {
		_, err := profiles.LinkSpeakerID(ctx, 99, 1)
		Expect(err).To(MatchError(store.ErrNotFound))
	})

	It("lists profiles per device", func() {
		create(1, "device-1", "Alice")
		create(2, "device-1", "Bob")
		create(3, "device-2", "Carol")

		list, err := profiles.ListByDevice(ctx, "device-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(HaveLen(2))
		Expect([]string{list[0].Name, list[1].Name}).To(ConsistOf("Alice", "Bob"))
	})
})
