// Command relay-mcp serves the relay's stored conversations to MCP clients
// over stdio. It reads the same database as the relay and writes nothing.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"companion.app/relay/common/logger"
	"companion.app/relay/core/config"
	"companion.app/relay/core/db"
	"companion.app/relay/internal/mcptools"
	"companion.app/relay/internal/store"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	ctx := context.Background()

	cfg, err := config.Load(config.ServiceTypeMCP)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)
	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "relay.mcp"})

	database, err := db.New(ctx, db.Config{DSN: cfg.DB.DSN, MaxConns: cfg.DB.MaxConns})
	if err != nil {
		slog.ErrorContext(ctx, "failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer database.Close()

	s := mcptools.NewServer(store.NewStores(database), Version)

	slog.InfoContext(ctx, "mcp server starting on stdio", "version", Version)
	if err := server.ServeStdio(s); err != nil {
		slog.ErrorContext(ctx, "mcp server error", "error", err)
		os.Exit(1)
	}
}
