package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mark3labs/mcp-go/server"

	mcpadapter "github.com/kirillkom/filings-rag-assistant/internal/adapters/mcp"
	"github.com/kirillkom/filings-rag-assistant/internal/bootstrap"
	"github.com/kirillkom/filings-rag-assistant/internal/config"
	"github.com/kirillkom/filings-rag-assistant/internal/observability/logging"
)

// Stdout carries the MCP protocol, so logs go to stderr.
func main() {
	cfg := config.Load()
	logger := logging.NewJSONLoggerTo(os.Stderr, "mcp", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	s := mcpadapter.NewServer(mcpadapter.NewTools(app.QueryUC, logger))
	logger.Info("mcp_stdio_serving")
	if err := server.ServeStdio(s); err != nil {
		logger.Error("mcp_stdio_failed", "error", err)
	}
}
