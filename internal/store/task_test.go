package store_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"companion.app/relay/internal/model"
	"companion.app/relay/internal/store"
)

var _ = Describe("TaskStore", func() {
	var (
		ctx   context.Context
		tasks store.TaskStore
	)

	BeforeEach(func() {
		ctx = context.Background()
		tasks = newStores(ctx).Tasks()
	})

	It("replaces a memory's task set instead of appending", func() {
		due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
		assignee := "Alice"
		first := []model.ExtractedTask{
			{ID: 1, Title: "Send the report", Priority: model.PriorityHigh, Source: model.ExtractionSourceLLM, DueDate: &due, Assignee: &assignee},
			{ID: 2, Title: "Book flights", Priority: model.PriorityNormal, Source: model.ExtractionSourceLLM},
		}
		Expect(tasks.ReplaceForMemory(ctx, "mem-1", first)).To(Succeed())

		retry := []model.ExtractedTask{
			{ID: 3, Title: "Send the report", Priority: model.PriorityHigh, Source: model.ExtractionSourcePattern},
		}
		Expect(tasks.ReplaceForMemory(ctx, "mem-1", retry)).To(Succeed())

		list, err := tasks.ListByMemory(ctx, "mem-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(HaveLen(1))
		Expect(list[0].ID).To(Equal(int64(3)))
		Expect(list[0].MemoryID).To(Equal("mem-1"))
		Expect(list[0].Source).To(Equal(model.ExtractionSourcePattern))
	})

	It("keeps optional fields", func() {
		due := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
		assignee := "Bob"
		Expect(tasks.Create(ctx, &model.ExtractedTask{
			ID:       10,
			Title:    "Call the plumber",
			Priority: model.PriorityUrgent,
			Source:   model.ExtractionSourceLLM,
			DueDate:  &due,
			Assignee: &assignee,
			MemoryID: "mem-2",
		})).To(Succeed())

		list, err := tasks.ListByMemory(ctx, "mem-2")
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(HaveLen(1))
		Expect(list[0].DueDate).To(HaveValue(BeTemporally("==", due)))
		Expect(list[0].Assignee).To(HaveValue(Equal("Bob")))
		Expect(list[0].Priority).To(Equal(model.PriorityUrgent))
	})

	It("returns nothing for an unknown memory", func() {
		list, err := tasks.ListByMemory(ctx, "mem-none")
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(BeEmpty())
	})
})

var _ = Describe("ContactStore", func() {
	It("ignores duplicate names per device", func() {
		ctx := context.Background()
		contacts := newStores(ctx).Contacts()

		Expect(contacts.Upsert(ctx, &model.Contact{ID: 1, DeviceID: "device-1", Name: "Zoe"})).To(Succeed())
		Expect(contacts.Upsert(ctx, &model.Contact{ID: 2, DeviceID: "device-1", Name: "Zoe"})).To(Succeed())
		Expect(contacts.Upsert(ctx, &model.Contact{ID: 3, DeviceID: "device-1", Name: "Adam"})).To(Succeed())
		Expect(contacts.Upsert(ctx, &model.Contact{ID: 4, DeviceID: "device-2", Name: "Zoe"})).To(Succeed())

		list, err := contacts.ListByDevice(ctx, "device-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(list).To(HaveLen(2))
		Expect(list[0].Name).To(Equal("Adam"))
		Expect(list[1].Name).To(Equal("Zoe"))
	})
})
