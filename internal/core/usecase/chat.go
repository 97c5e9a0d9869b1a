package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
	"github.com/kirillkom/filings-rag-assistant/internal/core/ports"
)

// QueryUseCase runs the request pipeline: history, routing, generation, persistence.
type QueryUseCase struct {
	retriever     ports.EvidenceRetriever
	router        ports.QueryRouter
	generator     ports.AnswerGenerator
	sessions      ports.SessionStore
	publisher     ports.TurnEventPublisher
	historyWindow int
	logger        *slog.Logger
	now           func() time.Time
}

func NewQueryUseCase(
	retriever ports.EvidenceRetriever,
	router ports.QueryRouter,
	generator ports.AnswerGenerator,
	sessions ports.SessionStore,
	publisher ports.TurnEventPublisher,
	historyWindow int,
	logger *slog.Logger,
) *QueryUseCase {
	if historyWindow <= 0 {
		historyWindow = domain.DefaultHistoryWindow
	}
	return &QueryUseCase{
		retriever:     retriever,
		router:        router,
		generator:     generator,
		sessions:      sessions,
		publisher:     publisher,
		historyWindow: historyWindow,
		logger:        loggerOrDiscard(logger),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// Search queries the evidence retriever directly, without routing or grading.
func (uc *QueryUseCase) Search(ctx context.Context, query string) ([]domain.EvidenceItem, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search", fmt.Errorf("query is required"))
	}
	return uc.retriever.Retrieve(ctx, query), nil
}

func (uc *QueryUseCase) Generate(ctx context.Context, query, sessionID string) (*domain.ChatResult, error) {
	query = strings.TrimSpace(query)
	sessionID = strings.TrimSpace(sessionID)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "generate", fmt.Errorf("query is required"))
	}
	if sessionID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "generate", fmt.Errorf("session_id is required"))
	}

	history := uc.recentTurns(ctx, sessionID)
	outcome := uc.router.Route(ctx, query, sessionID, history)
	answer := uc.generator.Generate(ctx, query, outcome, sessionID, history)

	turn := domain.ChatTurn{User: query, Assistant: answer.Response, Timestamp: uc.now()}
	updated := uc.recordTurn(ctx, sessionID, outcome.Source, turn, history)

	return &domain.ChatResult{
		Query:       query,
		Source:      outcome.Source,
		Response:    answer.Response,
		References:  answer.References,
		ChatHistory: updated,
	}, nil
}

func (uc *QueryUseCase) recentTurns(ctx context.Context, sessionID string) []domain.ChatTurn {
	turns, err := uc.sessions.RecentTurns(ctx, sessionID, uc.historyWindow)
	if err != nil {
		uc.logger.Warn("chat_history_read_failed", "session_id", sessionID, "error", err)
		return []domain.ChatTurn{}
	}
	if turns == nil {
		return []domain.ChatTurn{}
	}
	return turns
}

// recordTurn persists the turn and returns the refreshed history window.
// Store or publish failures are logged; the answer is still returned.
func (uc *QueryUseCase) recordTurn(ctx context.Context, sessionID string, source domain.DataSource, turn domain.ChatTurn, history []domain.ChatTurn) []domain.ChatTurn {
	if err := uc.sessions.AppendTurn(ctx, sessionID, turn); err != nil {
		uc.logger.Error("chat_turn_append_failed", "session_id", sessionID, "error", err)
		return history
	}

	if uc.publisher != nil {
		event := domain.TurnRecorded{
			EventID:   uuid.NewString(),
			SessionID: sessionID,
			Source:    source,
			Turn:      turn,
		}
		if err := uc.publisher.PublishTurnRecorded(ctx, event); err != nil {
			uc.logger.Warn("chat_turn_publish_failed", "session_id", sessionID, "error", err)
		}
	}

	updated, err := uc.sessions.RecentTurns(ctx, sessionID, uc.historyWindow)
	if err != nil {
		uc.logger.Warn("chat_history_read_failed", "session_id", sessionID, "error", err)
		return appendWindow(history, turn, uc.historyWindow)
	}
	return updated
}

func appendWindow(history []domain.ChatTurn, turn domain.ChatTurn, window int) []domain.ChatTurn {
	out := append(append([]domain.ChatTurn(nil), history...), turn)
	if len(out) > window {
		out = out[len(out)-window:]
	}
	return out
}
