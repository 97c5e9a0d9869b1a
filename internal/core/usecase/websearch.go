package usecase

import (
	"context"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
	"github.com/kirillkom/filings-rag-assistant/internal/core/ports"
)

// WebSearchFallback is the terminal evidence tier.
type WebSearchFallback struct {
	provider ports.SearchProvider
}

func NewWebSearchFallback(provider ports.SearchProvider) *WebSearchFallback {
	return &WebSearchFallback{provider: provider}
}

// Search returns the provider results, or a single error-shaped item on failure.
func (w *WebSearchFallback) Search(ctx context.Context, query string) []domain.EvidenceItem {
	results, err := w.provider.Search(ctx, query)
	if err != nil {
		return []domain.EvidenceItem{domain.ErrorEvidence("Web search failed: %v", err)}
	}
	if results == nil {
		return []domain.EvidenceItem{}
	}
	return results
}
