package ports

import (
	"context"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
)

// QueryService is the inbound contract for retrieval and answer generation.
type QueryService interface {
	Search(ctx context.Context, query string) ([]domain.EvidenceItem, error)
	Generate(ctx context.Context, query, sessionID string) (*domain.ChatResult, error)
}

// AgentService answers through the planner loop instead of the fixed cascade.
type AgentService interface {
	Run(ctx context.Context, query, sessionID string) (*domain.AgentRunResult, error)
}

// HistoryService is the read and purge model for chat sessions.
type HistoryService interface {
	ListSessions(ctx context.Context) ([]domain.SessionSummary, error)
	History(ctx context.Context, sessionID string) ([]domain.ChatTurn, error)
	Clear(ctx context.Context, sessionID string) error
}

// Authenticator issues and verifies bearer tokens.
type Authenticator interface {
	Login(ctx context.Context, username, password string) (string, error)
	Verify(ctx context.Context, token string) (string, error)
}
