package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Service      ServiceType
	OTel         OTelConfig
	Pipeline     PipelineConfig
	Conversation ConversationConfig
	MemoryAPI    MemoryAPIConfig
	LLM          LLMConfig
	ArangoDB     ArangoDBConfig
	Env          string
	Port         string
	NodeID       int64 // Snowflake node for stored row IDs, unique per instance
	AdminAPIKey  string
	DB           DBConfig
}

type OTelConfig struct {
	Endpoint       string
	Headers        string
	ServiceName    string
	ServiceVersion string
	Environment    string
	SampleRatio    float64 // Root span sampling ratio; 0 or >= 1 samples everything
}

type DBConfig struct {
	// postgres:// DSNs use pgx, anything else is treated as a SQLite path.
	DSN      string
	MaxConns int
}

type PipelineConfig struct {
	Workers         int
	MaxAttempts     int
	BaseBackoff     time.Duration
	MaxBackoff      time.Duration
	AgingInterval   time.Duration
	JobTimeout      time.Duration
	RedisURL        string // optional job journal
	RedisJobsKey    string
	RedisDLQStream  string
	TraceHeaderName string
}

type ConversationConfig struct {
	MinTranscriptLength int
	OwnerName           string
	RealtimeExtraction  bool
}

type MemoryAPIConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type LLMConfig struct {
	Provider string // "openai" or "anthropic"
	APIKey   string
	BaseURL  string
	Model    string
	Timeout  time.Duration
}

type ArangoDBConfig struct {
	URL      string
	Username string
	Password string
	Database string
}

type ServiceType string

const (
	ServiceTypeRelay ServiceType = "relay"
	// ServiceTypeMCP is the stdio MCP server. Its stdout carries the
	// protocol, so it logs to stderr and never calls the memory API.
	ServiceTypeMCP ServiceType = "mcp"
)

// Load loads configuration from environment variables.
// In development it first loads .env.<service>, falling back to .env.
func Load(serviceType ServiceType) (Config, error) {
	if getEnv("RELAY_ENV", "development") == "development" {
		envFile := fmt.Sprintf(".env.%s", serviceType)
		if err := godotenv.Load(envFile); err != nil {
			_ = godotenv.Load(".env")
		}
	}

	env := getEnv("RELAY_ENV", "development")
	cfg := Config{
		Service:     serviceType,
		Env:         env,
		Port:        getEnv("PORT", "8080"),
		NodeID:      int64(getEnvInt("RELAY_NODE_ID", 1)),
		AdminAPIKey: getEnv("ADMIN_API_KEY", ""),
		DB: DBConfig{
			DSN:      getEnv("DATABASE_URL", "relay.sqlite"),
			MaxConns: getEnvInt("DB_MAX_CONNS", 10),
		},
		OTel: OTelConfig{
			Endpoint:       getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
			Headers:        getEnv("OTEL_EXPORTER_OTLP_HEADERS", ""),
			ServiceName:    getEnv("OTEL_SERVICE_NAME", "companion-relay"),
			ServiceVersion: getEnv("OTEL_SERVICE_VERSION", "dev"),
			Environment:    env,
			SampleRatio:    getEnvFloat("OTEL_TRACES_SAMPLER_ARG", 1),
		},
		Pipeline: PipelineConfig{
			Workers:         getEnvInt("QUEUE_WORKERS", 4),
			MaxAttempts:     getEnvInt("QUEUE_MAX_ATTEMPTS", 3),
			BaseBackoff:     getEnvDuration("QUEUE_BASE_BACKOFF", time.Second),
			MaxBackoff:      getEnvDuration("QUEUE_MAX_BACKOFF", time.Minute),
			AgingInterval:   getEnvDuration("QUEUE_AGING_INTERVAL", 2*time.Minute),
			JobTimeout:      getEnvDuration("QUEUE_JOB_TIMEOUT", 90*time.Second),
			RedisURL:        getEnv("REDIS_URL", ""),
			RedisJobsKey:    getEnv("REDIS_JOBS_KEY", "relay:jobs"),
			RedisDLQStream:  getEnv("REDIS_DLQ_STREAM", "relay:jobs:dlq"),
			TraceHeaderName: getEnv("TRACE_HEADER_NAME", "X-Trace-Id"),
		},
		Conversation: ConversationConfig{
			MinTranscriptLength: getEnvInt("MIN_TRANSCRIPT_LENGTH", 100),
			OwnerName:           getEnv("OWNER_ENTITY_NAME", "user"),
			RealtimeExtraction:  getEnvBool("REALTIME_EXTRACTION", false),
		},
		MemoryAPI: MemoryAPIConfig{
			BaseURL: getEnv("MEMORY_API_URL", ""),
			APIKey:  getEnv("MEMORY_API_KEY", ""),
			Timeout: getEnvDuration("MEMORY_API_TIMEOUT", 15*time.Second),
		},
		LLM: LLMConfig{
			Provider: getEnv("LLM_PROVIDER", "openai"),
			APIKey:   getEnv("LLM_API_KEY", getEnv("OPENAI_API_KEY", "")),
			BaseURL:  getEnv("LLM_BASE_URL", ""),
			Model:    getEnv("LLM_MODEL", "gpt-4o-mini"),
			Timeout:  getEnvDuration("LLM_TIMEOUT", 30*time.Second),
		},
		ArangoDB: ArangoDBConfig{
			URL:      getEnv("ARANGO_URL", ""),
			Username: getEnv("ARANGO_USERNAME", ""),
			Password: getEnv("ARANGO_PASSWORD", ""),
			Database: getEnv("ARANGO_DATABASE", ""),
		},
	}

	if serviceType == ServiceTypeRelay && cfg.MemoryAPI.BaseURL == "" {
		return Config{}, fmt.Errorf("MEMORY_API_URL is required")
	}
	if cfg.Pipeline.Workers <= 0 {
		return Config{}, fmt.Errorf("QUEUE_WORKERS must be positive")
	}

	return cfg, nil
}

func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// LogToStderr reports whether stdout is reserved for a protocol stream.
func (c Config) LogToStderr() bool {
	return c.Service == ServiceTypeMCP
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

// Enabled reports whether the classification service can be called.
// Without it every extractor runs its pattern fallback.
func (c LLMConfig) Enabled() bool {
	return c.APIKey != "" && (c.Provider == "openai" || c.Provider == "anthropic")
}

func (c ArangoDBConfig) Enabled() bool {
	return c.URL != "" && c.Username != "" && c.Database != ""
}

func (c PipelineConfig) JournalEnabled() bool {
	return c.RedisURL != ""
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
