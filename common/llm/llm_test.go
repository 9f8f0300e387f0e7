package llm_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/openai/openai-go"

	"companion.app/relay/common/llm"
)

type sampleOutput struct {
	Title    string `json:"title" jsonschema:"description=Short title"`
	Priority string `json:"priority" jsonschema:"enum=low,enum=high"`
}

var _ = Describe("New", func() {
	It("requires an API key", func() {
		_, err := llm.New(llm.Config{Provider: llm.ProviderOpenAI})
		Expect(errors.Is(err, llm.ErrNotConfigured)).To(BeTrue())
	})

	It("rejects unknown providers", func() {
		_, err := llm.New(llm.Config{Provider: "mystery", APIKey: "k"})
		Expect(err).To(MatchError(ContainSubstring("unsupported LLM provider")))
	})

	DescribeTable("selects a provider with its default model",
		func(provider, model string) {
			client, err := llm.New(llm.Config{Provider: provider, APIKey: "k"})
			Expect(err).NotTo(HaveOccurred())
			Expect(client.Model()).To(Equal(model))
		},
		Entry("default", "", "gpt-4o-mini"),
		Entry("openai", llm.ProviderOpenAI, "gpt-4o-mini"),
		Entry("anthropic", llm.ProviderAnthropic, "claude-sonnet-4-5-20250514"),
	)
})

var _ = Describe("GenerateSchema", func() {
	It("reflects an inline object schema", func() {
		raw, err := json.Marshal(llm.GenerateSchema[sampleOutput]())
		Expect(err).NotTo(HaveOccurred())

		var schema map[string]any
		Expect(json.Unmarshal(raw, &schema)).To(Succeed())
		Expect(schema["type"]).To(Equal("object"))
		Expect(schema["additionalProperties"]).To(Equal(false))
		Expect(schema["properties"]).To(HaveKey("title"))
		Expect(schema["required"]).To(ConsistOf("title", "priority"))
	})
})

var _ = Describe("IsRetryable", func() {
	ctx := context.Background()

	DescribeTable("classifies errors",
		func(err error, retryable bool) {
			Expect(llm.IsRetryable(ctx, err)).To(Equal(retryable))
		},
		Entry("nil", nil, false),
		Entry("cancelled", fmt.Errorf("openai chat: %w", context.Canceled), false),
		Entry("deadline", context.DeadlineExceeded, false),
		Entry("not configured", llm.ErrNotConfigured, false),
		Entry("malformed output", fmt.Errorf("%w: bad json", llm.ErrMalformedOutput), false),
		Entry("network error", errors.New("connection reset by peer"), true),
		Entry("openai rate limit", &openai.Error{StatusCode: 429}, true),
		Entry("openai server error", &openai.Error{StatusCode: 503}, true),
		Entry("openai bad request", &openai.Error{StatusCode: 400}, false),
		Entry("anthropic overloaded", &anthropic.Error{StatusCode: 529}, true),
		Entry("anthropic unauthorized", &anthropic.Error{StatusCode: 401}, false),
	)
})
