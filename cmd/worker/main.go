package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kirillkom/filings-rag-assistant/internal/bootstrap"
	"github.com/kirillkom/filings-rag-assistant/internal/config"
	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
	"github.com/kirillkom/filings-rag-assistant/internal/observability/logging"
	"github.com/kirillkom/filings-rag-assistant/internal/observability/metrics"
)

const consumerGroup = "turn-audit"

// The worker consumes chat.turns.recorded and keeps an audit trail of answered
// turns in the log plus per-source counters on its own metrics port.
func main() {
	cfg := config.Load()
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg.TurnEventsEnabled = true
	m := metrics.NewWorkerMetrics("worker")
	executor := bootstrap.NewExecutor(cfg, logger, nil)
	queue := bootstrap.ConnectTurnQueue(cfg, executor, logger)
	if queue == nil {
		logger.Error("worker_queue_unavailable", "url", cfg.NATSURL)
		os.Exit(1)
	}
	defer queue.Close()

	metricsServer := &http.Server{
		Addr:              ":" + cfg.WorkerMetricsPort,
		Handler:           m.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("worker_metrics_server_failed", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker_subscribed", "subject", cfg.NATSSubject, "group", consumerGroup)
	err := queue.SubscribeTurnRecorded(ctx, consumerGroup, func(_ context.Context, event domain.TurnRecorded) error {
		start := time.Now()
		m.StartEvent()
		err := auditTurn(logger, event)
		m.FinishEvent(event.Source, time.Since(start), err)
		if !event.Turn.Timestamp.IsZero() {
			m.ObserveEventLag(time.Since(event.Turn.Timestamp))
		}
		return err
	})
	if err != nil {
		logger.Error("worker_subscribe_failed", "error", err)
	}
}

func auditTurn(logger *slog.Logger, event domain.TurnRecorded) error {
	if event.SessionID == "" {
		return errors.New("turn event without session id")
	}
	logger.Info("turn_recorded",
		"event_id", event.EventID,
		"session_id", event.SessionID,
		"source", string(event.Source),
		"question_chars", len(event.Turn.User),
		"answer_chars", len(event.Turn.Assistant),
	)
	return nil
}
