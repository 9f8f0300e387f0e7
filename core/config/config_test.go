package config_test

import (
	"os"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"companion.app/relay/core/config"
)

// setEnv sets key for the current test and restores the previous value after.
func setEnv(key, value string) {
	prev, had := os.LookupEnv(key)
	Expect(os.Setenv(key, value)).To(Succeed())
	DeferCleanup(func() {
		if had {
			os.Setenv(key, prev)
		} else {
			os.Unsetenv(key)
		}
	})
}

var _ = Describe("Load", func() {
	BeforeEach(func() {
		// Skip .env loading; tests must not depend on the working directory.
		setEnv("RELAY_ENV", "test")
	})

	It("requires the memory API URL", func() {
		setEnv("MEMORY_API_URL", "")

		_, err := config.Load(config.ServiceTypeRelay)
		Expect(err).To(MatchError(ContainSubstring("MEMORY_API_URL")))
	})

	It("rejects a non-positive worker count", func() {
		setEnv("MEMORY_API_URL", "http://memory.local")
		setEnv("QUEUE_WORKERS", "0")

		_, err := config.Load(config.ServiceTypeRelay)
		Expect(err).To(MatchError(ContainSubstring("QUEUE_WORKERS")))
	})

	It("reads overrides and typed values", func() {
		setEnv("MEMORY_API_URL", "http://memory.local")
		setEnv("QUEUE_WORKERS", "8")
		setEnv("QUEUE_BASE_BACKOFF", "250ms")
		setEnv("REALTIME_EXTRACTION", "true")
		setEnv("MIN_TRANSCRIPT_LENGTH", "40")

		cfg, err := config.Load(config.ServiceTypeRelay)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Env).To(Equal("test"))
		Expect(cfg.MemoryAPI.BaseURL).To(Equal("http://memory.local"))
		Expect(cfg.Pipeline.Workers).To(Equal(8))
		Expect(cfg.Pipeline.BaseBackoff).To(Equal(250 * time.Millisecond))
		Expect(cfg.Conversation.RealtimeExtraction).To(BeTrue())
		Expect(cfg.Conversation.MinTranscriptLength).To(Equal(40))
	})

	It("falls back to defaults on malformed values", func() {
		setEnv("MEMORY_API_URL", "http://memory.local")
		setEnv("QUEUE_WORKERS", "many")
		setEnv("QUEUE_MAX_BACKOFF", "soon")

		cfg, err := config.Load(config.ServiceTypeRelay)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Pipeline.Workers).To(Equal(4))
		Expect(cfg.Pipeline.MaxBackoff).To(Equal(time.Minute))
	})

	It("carries the environment and sampling ratio into telemetry", func() {
		setEnv("MEMORY_API_URL", "http://memory.local")
		setEnv("RELAY_ENV", "staging")
		setEnv("OTEL_TRACES_SAMPLER_ARG", "0.1")

		cfg, err := config.Load(config.ServiceTypeRelay)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.OTel.Environment).To(Equal("staging"))
		Expect(cfg.OTel.SampleRatio).To(BeNumerically("~", 0.1))
	})
})

var _ = Describe("Enabled", func() {
	It("needs a supported provider and key for the LLM", func() {
		Expect(config.LLMConfig{Provider: "openai", APIKey: "sk"}.Enabled()).To(BeTrue())
		Expect(config.LLMConfig{Provider: "anthropic", APIKey: "sk"}.Enabled()).To(BeTrue())
		Expect(config.LLMConfig{Provider: "openai"}.Enabled()).To(BeFalse())
		Expect(config.LLMConfig{Provider: "cohere", APIKey: "sk"}.Enabled()).To(BeFalse())
	})

	It("needs URL, user and database for ArangoDB", func() {
		Expect(config.ArangoDBConfig{URL: "http://arango:8529", Username: "root", Database: "companion"}.Enabled()).To(BeTrue())
		Expect(config.ArangoDBConfig{URL: "http://arango:8529", Username: "root"}.Enabled()).To(BeFalse())
	})

	It("enables the journal only with a redis URL", func() {
		Expect(config.PipelineConfig{RedisURL: "redis://localhost:6379"}.JournalEnabled()).To(BeTrue())
		Expect(config.PipelineConfig{}.JournalEnabled()).To(BeFalse())
	})
})

var _ = Describe("Load for the MCP server", func() {
	It("does not need the memory API and logs to stderr", func() {
		setEnv("RELAY_ENV", "test")
		setEnv("MEMORY_API_URL", "")

		cfg, err := config.Load(config.ServiceTypeMCP)
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Service).To(Equal(config.ServiceTypeMCP))
		Expect(cfg.LogToStderr()).To(BeTrue())
	})
})
