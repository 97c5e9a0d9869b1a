package ports

import (
	"context"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
)

type DocumentGrader interface {
	Grade(ctx context.Context, query string, candidates []domain.EvidenceItem) []domain.EvidenceItem
}

type EvidenceRetriever interface {
	Retrieve(ctx context.Context, query string) []domain.EvidenceItem
}

type MetadataLookup interface {
	Lookup(ctx context.Context, query string) []domain.EvidenceItem
}

type WebSearcher interface {
	Search(ctx context.Context, query string) []domain.EvidenceItem
}

// QueryRouter picks a data source and returns the evidence it produced.
type QueryRouter interface {
	Route(ctx context.Context, query, sessionID string, history []domain.ChatTurn) domain.RetrievalOutcome
}

type AnswerGenerator interface {
	Generate(ctx context.Context, query string, outcome domain.RetrievalOutcome, sessionID string, history []domain.ChatTurn) domain.Answer
}
