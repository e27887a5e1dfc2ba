// Package main is the entry point for the standalone MCP server binary.
// mcp-server exposes the Taskloop agent tools to MCP-compatible clients
// (Claude Desktop, Cursor, Codex, etc.)
//
// The server supports two transports:
//   - SSE (Server-Sent Events) at /sse for Claude Desktop, Cursor
//   - Streamable HTTP at /mcp for Codex
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/taskloop/taskloop/internal/common/config"
	"github.com/taskloop/taskloop/internal/common/logger"
	"github.com/taskloop/taskloop/internal/mcpserver"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	if cfg.MCP.APIToken == "" {
		log.Warn("mcp.apiToken not configured; tool calls will be rejected by the task API")
	}

	srv := mcpserver.New(mcpserver.Config{
		Port:     cfg.MCP.Port,
		APIURL:   cfg.MCP.APIURL,
		APIToken: cfg.MCP.APIToken,
	}, log)

	ctx := context.Background()
	if err := srv.Start(ctx); err != nil {
		log.Fatal("failed to start MCP server", zap.Error(err))
	}

	log.Info("MCP server started",
		zap.Int("port", srv.Port()),
		zap.String("api_url", cfg.MCP.APIURL))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down mcp-server")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Stop(stopCtx); err != nil {
		log.Error("error during shutdown", zap.Error(err))
	}
	log.Info("mcp-server stopped")
}
