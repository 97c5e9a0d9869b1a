package usecase

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
	"github.com/kirillkom/filings-rag-assistant/internal/core/ports"
)

// InstrumentedRouter times routing and reports the chosen source.
type InstrumentedRouter struct {
	next     ports.QueryRouter
	logger   *slog.Logger
	observer ports.PipelineObserver
}

func NewInstrumentedRouter(next ports.QueryRouter, logger *slog.Logger, observer ports.PipelineObserver) *InstrumentedRouter {
	return &InstrumentedRouter{next: next, logger: loggerOrDiscard(logger), observer: observer}
}

func (r *InstrumentedRouter) Route(ctx context.Context, query, sessionID string, history []domain.ChatTurn) domain.RetrievalOutcome {
	start := time.Now()
	outcome := r.next.Route(ctx, query, sessionID, history)
	elapsed := time.Since(start)

	logExecutionTime(r.logger, "route_query", elapsed)
	if r.observer != nil {
		r.observer.ObserveStage("route_query", elapsed)
		r.observer.RecordRoutingOutcome(outcome.Source, len(domain.UsableEvidence(outcome.Results)))
	}
	return outcome
}

// InstrumentedGenerator times answer generation and counts clarification fallbacks.
type InstrumentedGenerator struct {
	next     ports.AnswerGenerator
	logger   *slog.Logger
	observer ports.PipelineObserver
}

func NewInstrumentedGenerator(next ports.AnswerGenerator, logger *slog.Logger, observer ports.PipelineObserver) *InstrumentedGenerator {
	return &InstrumentedGenerator{next: next, logger: loggerOrDiscard(logger), observer: observer}
}

func (g *InstrumentedGenerator) Generate(
	ctx context.Context,
	query string,
	outcome domain.RetrievalOutcome,
	sessionID string,
	history []domain.ChatTurn,
) domain.Answer {
	start := time.Now()
	answer := g.next.Generate(ctx, query, outcome, sessionID, history)
	elapsed := time.Since(start)

	logExecutionTime(g.logger, "generate_answer", elapsed)
	if g.observer != nil {
		g.observer.ObserveStage("generate_answer", elapsed)
		g.observer.RecordAnswer(answer.Source, IsClarification(answer))
	}
	return answer
}

func logExecutionTime(logger *slog.Logger, function string, elapsed time.Duration) {
	seconds := math.Round(elapsed.Seconds()*1000) / 1000
	logger.Info("execution_time", "function", function, "time_taken_seconds", seconds)
}
