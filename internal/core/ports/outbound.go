package ports

import (
	"context"
	"encoding/json"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
)

// LanguageModel is the oracle used for routing, grading, filter inference and answers.
type LanguageModel interface {
	Complete(ctx context.Context, messages []domain.OracleMessage) (string, error)
	// CompleteJSON constrains output to the given JSON schema. A nil schema means free-form JSON.
	CompleteJSON(ctx context.Context, messages []domain.OracleMessage, schema json.RawMessage) (string, error)
}

// Embedder builds vectors for query text.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore performs filtered semantic search over pre-indexed passages.
type VectorStore interface {
	Search(ctx context.Context, queryVector []float32, limit int, filter domain.SearchFilter) ([]domain.EvidenceItem, error)
}

// SessionStore persists chat sessions as append-only turn sequences.
type SessionStore interface {
	AppendTurn(ctx context.Context, sessionID string, turn domain.ChatTurn) error
	RecentTurns(ctx context.Context, sessionID string, limit int) ([]domain.ChatTurn, error)
	Turns(ctx context.Context, sessionID string) ([]domain.ChatTurn, error)
	ListSessions(ctx context.Context) ([]domain.SessionSummary, error)
	DeleteSession(ctx context.Context, sessionID string) error
	Purge(ctx context.Context) error
}

// TurnEventPublisher announces persisted turns to downstream consumers.
type TurnEventPublisher interface {
	PublishTurnRecorded(ctx context.Context, event domain.TurnRecorded) error
}

// CompanyTable is the structured company metadata source.
type CompanyTable interface {
	FindByCompany(ctx context.Context, query string) ([]domain.CompanyRow, error)
}

// PageFetcher retrieves the readable text of a report page. Failures are carried in the result.
type PageFetcher interface {
	Fetch(ctx context.Context, url string) domain.FetchResult
}

// SearchProvider is a live web search backend.
type SearchProvider interface {
	Search(ctx context.Context, query string) ([]domain.EvidenceItem, error)
}
