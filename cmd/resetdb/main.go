package main

import (
	"context"
	"os"
	"time"

	"github.com/kirillkom/filings-rag-assistant/internal/config"
	"github.com/kirillkom/filings-rag-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/filings-rag-assistant/internal/observability/logging"
)

// resetdb drops and recreates the chat session tables.
func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("resetdb", cfg.LogLevel)

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	db, err := postgres.OpenDB(ctx, cfg.PostgresDSN, postgres.PoolOptions{MaxOpenConns: 1})
	if err != nil {
		logger.Error("resetdb_connect_failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := postgres.NewSessionRepository(db).Purge(ctx); err != nil {
		logger.Error("resetdb_purge_failed", "error", err)
		os.Exit(1)
	}
	logger.Info("resetdb_done")
}
