package model_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"companion.app/relay/internal/model"
)

var _ = Describe("Priority", func() {
	It("ranks urgent first and treats unknown values as normal", func() {
		Expect(model.PriorityUrgent.Rank()).To(BeNumerically("<", model.PriorityHigh.Rank()))
		Expect(model.PriorityHigh.Rank()).To(BeNumerically("<", model.PriorityNormal.Rank()))
		Expect(model.PriorityNormal.Rank()).To(BeNumerically("<", model.PriorityLow.Rank()))
		Expect(model.Priority("whenever").Rank()).To(Equal(model.PriorityNormal.Rank()))
		Expect(model.Priority("whenever").Valid()).To(BeFalse())
	})
})

var _ = Describe("DecodePayload", func() {
	It("restores the extraction kind from the job type", func() {
		raw, err := json.Marshal(model.MemoryPayload{MemoryID: "mem-1", SessionID: "sess-1", Content: "hello"})
		Expect(err).NotTo(HaveOccurred())

		payload, err := model.DecodePayload(model.JobTypeCommitmentTracking, raw)
		Expect(err).NotTo(HaveOccurred())
		Expect(payload.JobType()).To(Equal(model.JobTypeCommitmentTracking))
		Expect(payload).To(BeAssignableToTypeOf(model.MemoryPayload{}))
		Expect(payload.(model.MemoryPayload).MemoryID).To(Equal("mem-1"))
	})

	It("decodes reconciliation payloads", func() {
		payload, err := model.DecodePayload(model.JobTypeSpeakerReconciliation, json.RawMessage(`{"session_id":"sess-9"}`))
		Expect(err).NotTo(HaveOccurred())
		Expect(payload).To(Equal(model.ReconcilePayload{SessionID: "sess-9"}))
	})

	It("rejects unknown job types", func() {
		_, err := model.DecodePayload("transcode", json.RawMessage(`{}`))
		Expect(err).To(MatchError(ContainSubstring("unknown job type")))
	})

	It("rejects malformed bodies", func() {
		_, err := model.DecodePayload(model.JobTypeMemoryProcessing, json.RawMessage(`[1,2]`))
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("Job", func() {
	It("defaults a memory payload without kind to memory processing", func() {
		p := model.MemoryPayload{MemoryID: "mem-1"}
		Expect(p.JobType()).To(Equal(model.JobTypeMemoryProcessing))
		Expect(p.As(model.JobTypeTaskExtraction).JobType()).To(Equal(model.JobTypeTaskExtraction))
		Expect(p.Kind).To(BeEmpty())
	})

	It("clones timestamps by value", func() {
		at := time.Now()
		job := &model.Job{ID: "j1", LastAttemptAt: &at}
		c := job.Clone()
		*c.LastAttemptAt = at.Add(time.Hour)
		Expect(*job.LastAttemptAt).To(Equal(at))
	})

	It("reports a pending job with attempts as failed", func() {
		Expect((&model.Job{Status: model.JobStatusPending, Attempts: 1}).Failed()).To(BeTrue())
		Expect((&model.Job{Status: model.JobStatusPending}).Failed()).To(BeFalse())
		Expect((&model.Job{Status: model.JobStatusDead, Attempts: 3}).Terminal()).To(BeTrue())
	})
})
