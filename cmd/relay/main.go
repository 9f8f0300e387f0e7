package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"companion.app/relay/common/id"
	"companion.app/relay/common/llm"
	"companion.app/relay/common/logger"
	"companion.app/relay/common/otel"
	"companion.app/relay/core/config"
	"companion.app/relay/core/db"
	"companion.app/relay/internal/brain"
	"companion.app/relay/internal/conversation"
	"companion.app/relay/internal/graph"
	"companion.app/relay/internal/http/middleware"
	httprouter "companion.app/relay/internal/http/router"
	"companion.app/relay/internal/memoryapi"
	"companion.app/relay/internal/pipeline"
	"companion.app/relay/internal/queue"
	"companion.app/relay/internal/speaker"
	"companion.app/relay/internal/store"
	"companion.app/relay/internal/worker"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeRelay)
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before logger (logger uses OTel provider in production)
	telemetry, err := otel.Setup(ctx, cfg.OTel)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "relay"})

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint, "sample_ratio", cfg.OTel.SampleRatio)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "relay starting", "env", cfg.Env, "service", cfg.OTel.ServiceName)
	if err := id.Init(cfg.NodeID); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	if err := run(ctx, cfg, telemetry); err != nil {
		slog.ErrorContext(ctx, "relay exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, telemetry *otel.Telemetry) error {
	database, err := db.New(ctx, db.Config{DSN: cfg.DB.DSN, MaxConns: cfg.DB.MaxConns})
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer database.Close()
	slog.InfoContext(ctx, "database connected", "dialect", database.Dialect())

	stores := store.NewStores(database)

	journal, closeJournal, err := setupJournal(ctx, cfg.Pipeline)
	if err != nil {
		return err
	}
	defer closeJournal()

	llmClient, err := setupLLM(ctx, cfg.LLM)
	if err != nil {
		return err
	}

	memories, err := memoryapi.New(memoryapi.Config{
		BaseURL: cfg.MemoryAPI.BaseURL,
		APIKey:  cfg.MemoryAPI.APIKey,
		Timeout: cfg.MemoryAPI.Timeout,
	})
	if err != nil {
		return fmt.Errorf("creating memory api client: %w", err)
	}

	knowledgeGraph, err := setupGraph(ctx, cfg.ArangoDB, memories)
	if err != nil {
		return err
	}

	enrollment := speaker.NewEnrollment(stores.VoiceProfiles(), speaker.NewMatcher(speaker.DefaultMatchThreshold))
	bridge := conversation.NewBridge(conversation.Config{
		MinTranscriptLength: cfg.Conversation.MinTranscriptLength,
		OwnerName:           cfg.Conversation.OwnerName,
	}, stores.Sessions(), speaker.NewResolver(stores.VoiceProfiles()), memories, knowledgeGraph)

	tasks := brain.NewTaskExtractor(llmClient, stores.Tasks(), cfg.LLM.Timeout)
	commitments := brain.NewCommitmentTracker(llmClient, cfg.LLM.Timeout)
	relationships := brain.NewRelationshipAnalyzer(llmClient, stores.Contacts(), knowledgeGraph, cfg.LLM.Timeout)

	jobs := queue.New(queue.Config{
		Workers:       cfg.Pipeline.Workers,
		MaxAttempts:   cfg.Pipeline.MaxAttempts,
		BaseBackoff:   cfg.Pipeline.BaseBackoff,
		MaxBackoff:    cfg.Pipeline.MaxBackoff,
		AgingInterval: cfg.Pipeline.AgingInterval,
		JobTimeout:    cfg.Pipeline.JobTimeout,
		Journal:       journal,
	})
	if err := worker.NewHandlers(jobs, tasks, commitments, relationships, bridge).Register(jobs); err != nil {
		return fmt.Errorf("registering job handlers: %w", err)
	}
	if err := jobs.Start(ctx); err != nil {
		return fmt.Errorf("starting job queue: %w", err)
	}

	relay := pipeline.New(bridge, jobs, enrollment, pipeline.Config{
		RealtimeExtraction: cfg.Conversation.RealtimeExtraction,
	})

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := setupRouter(cfg, httprouter.Services{
		Conversations: relay,
		Voice:         relay,
		Commitments:   commitments,
		Tasks:         stores.Tasks(),
		Contacts:      stores.Contacts(),
		Queue:         relay,
	})
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.InfoContext(ctx, "shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()

		// Stop intake first so no request enqueues into a draining queue.
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
		}
		if err := jobs.Stop(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "queue shutdown error", "error", err)
		}
		if telemetry != nil {
			if err := telemetry.Shutdown(shutdownCtx); err != nil {
				slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
			}
		}
		return nil
	})

	err = g.Wait()
	slog.InfoContext(ctx, "shutdown complete")
	return err
}

func setupJournal(ctx context.Context, cfg config.PipelineConfig) (queue.Journal, func(), error) {
	if !cfg.JournalEnabled() {
		slog.InfoContext(ctx, "job journal disabled (no redis url configured)")
		return queue.NopJournal{}, func() {}, nil
	}

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(redisOpts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("connecting to redis: %w", err)
	}
	slog.InfoContext(ctx, "redis connected", "jobs_key", cfg.RedisJobsKey, "dlq_stream", cfg.RedisDLQStream)

	journal := queue.NewRedisJournal(client, queue.RedisJournalConfig{
		JobsKey:   cfg.RedisJobsKey,
		DLQStream: cfg.RedisDLQStream,
	})
	return journal, func() { client.Close() }, nil
}

// setupLLM returns a nil client when no provider is configured, which puts
// every extractor on its pattern fallback.
func setupLLM(ctx context.Context, cfg config.LLMConfig) (llm.Client, error) {
	if !cfg.Enabled() {
		slog.InfoContext(ctx, "llm disabled, extractors will use pattern fallbacks")
		return nil, nil
	}

	client, err := llm.New(llm.Config{
		Provider: cfg.Provider,
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Model:    cfg.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}
	slog.InfoContext(ctx, "llm configured", "provider", cfg.Provider, "model", client.Model())
	return client, nil
}

type knowledgeGraph interface {
	brain.EntityGraph
	conversation.GraphClient
}

// setupGraph writes the knowledge graph straight to ArangoDB when it is
// configured and through the memory API otherwise.
func setupGraph(ctx context.Context, cfg config.ArangoDBConfig, memories *memoryapi.Client) (knowledgeGraph, error) {
	if !cfg.Enabled() {
		slog.InfoContext(ctx, "knowledge graph via memory api")
		return memories, nil
	}

	g, err := graph.NewArango(graph.Config{
		URL:      cfg.URL,
		Username: cfg.Username,
		Password: cfg.Password,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, fmt.Errorf("creating arangodb graph: %w", err)
	}
	if err := g.Setup(ctx); err != nil {
		return nil, fmt.Errorf("setting up arangodb graph: %w", err)
	}
	slog.InfoContext(ctx, "knowledge graph via arangodb", "url", cfg.URL, "database", cfg.Database)
	return g, nil
}

func setupRouter(cfg config.Config, services httprouter.Services) *gin.Engine {
	router := gin.New()

	// Order matters: OTel creates span → Recovery catches panics → Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, services, httprouter.RouterConfig{
		AdminAPIKey:     cfg.AdminAPIKey,
		TraceHeaderName: cfg.Pipeline.TraceHeaderName,
	})

	return router
}

const banner = `
  ___ ___  __  __ ___  _   _  _ ___ ___  _  _   ___ ___ _      ___   __
 / __/ _ \|  \/  | _ \/_\ | \| |_ _/ _ \| \| | | _ \ __| |    /_\ \ / /
| (__ (_) | |\/| |  _/ _ \| .' || | (_) | .' | |   / _|| |__ / _ \ V /
 \___\___/|_|  |_|_|/_/ \_\_|\_|___\___/|_|\_| |_|_\___|____/_/ \_\_|
`
