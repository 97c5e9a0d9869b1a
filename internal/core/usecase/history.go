package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
	"github.com/kirillkom/filings-rag-assistant/internal/core/ports"
)

type HistoryUseCase struct {
	sessions ports.SessionStore
}

func NewHistoryUseCase(sessions ports.SessionStore) *HistoryUseCase {
	return &HistoryUseCase{sessions: sessions}
}

func (uc *HistoryUseCase) ListSessions(ctx context.Context) ([]domain.SessionSummary, error) {
	sessions, err := uc.sessions.ListSessions(ctx)
	if err != nil {
		return nil, storeError("list sessions", err)
	}
	return sessions, nil
}

// History returns every turn of a session in chronological order.
func (uc *HistoryUseCase) History(ctx context.Context, sessionID string) ([]domain.ChatTurn, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "history", fmt.Errorf("session_id is required"))
	}
	turns, err := uc.sessions.Turns(ctx, sessionID)
	if err != nil {
		return nil, storeError("load session turns", err)
	}
	return turns, nil
}

func (uc *HistoryUseCase) Clear(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.WrapError(domain.ErrInvalidInput, "clear history", fmt.Errorf("session_id is required"))
	}
	if err := uc.sessions.DeleteSession(ctx, sessionID); err != nil {
		return storeError("delete session", err)
	}
	return nil
}

// storeError keeps typed failures and marks everything else temporary so the
// history endpoints answer 503 on store outages.
func storeError(operation string, err error) error {
	if domain.IsKind(err, domain.ErrSessionNotFound) || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	return domain.WrapError(domain.ErrTemporary, operation, err)
}
