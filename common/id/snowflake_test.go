package id_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"companion.app/relay/common/id"
)

var _ = Describe("Snowflake IDs", func() {
	It("rejects node IDs outside the snowflake range", func() {
		Expect(id.Init(-1)).To(MatchError(ContainSubstring("out of range")))
		Expect(id.Init(id.MaxNodeID + 1)).To(MatchError(ContainSubstring("out of range")))
	})

	It("issues increasing unique IDs", func() {
		Expect(id.Init(3)).To(Succeed())

		seen := make(map[int64]bool)
		prev := int64(0)
		for range 1000 {
			next := id.New()
			Expect(next).To(BeNumerically(">", prev))
			Expect(seen).NotTo(HaveKey(next))
			seen[next] = true
			prev = next
		}
	})

	It("ignores a second Init", func() {
		Expect(id.Init(3)).To(Succeed())
		Expect(id.Init(4)).To(Succeed())
	})
})
