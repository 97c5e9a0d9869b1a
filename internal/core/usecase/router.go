package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
	"github.com/kirillkom/filings-rag-assistant/internal/core/ports"
)

const (
	metadataKeyAnnualReport   = "annualreport"
	metadataKeyProxyStatement = "proxystatement"
)

// CascadeRouter refines the query with the oracle and walks the fixed source cascade:
// vector store (graded), then metadata, then web search.
type CascadeRouter struct {
	llm       ports.LanguageModel
	retriever ports.EvidenceRetriever
	grader    ports.DocumentGrader
	metadata  ports.MetadataLookup
	web       ports.WebSearcher
	logger    *slog.Logger
}

func NewCascadeRouter(
	llm ports.LanguageModel,
	retriever ports.EvidenceRetriever,
	grader ports.DocumentGrader,
	metadata ports.MetadataLookup,
	web ports.WebSearcher,
	logger *slog.Logger,
) *CascadeRouter {
	return &CascadeRouter{
		llm:       llm,
		retriever: retriever,
		grader:    grader,
		metadata:  metadata,
		web:       web,
		logger:    loggerOrDiscard(logger),
	}
}

func (r *CascadeRouter) Route(ctx context.Context, query, sessionID string, history []domain.ChatTurn) domain.RetrievalOutcome {
	decision := r.decide(ctx, query, history)
	r.logger.Info("routing_decision",
		"session_id", sessionID,
		"query", query,
		"chosen_source", decision.DataSource,
		"updated_query", decision.UpdatedQuery,
	)

	if decision.DataSource == domain.SourceGeneralResponse && strings.TrimSpace(decision.GeneralResponse) != "" {
		return domain.GeneralResponseOutcome(decision.UpdatedQuery, decision.GeneralResponse)
	}

	// The advisory tag only matters for the short-circuit above; every other query walks the cascade.
	return r.cascade(ctx, decision.UpdatedQuery)
}

func (r *CascadeRouter) cascade(ctx context.Context, query string) domain.RetrievalOutcome {
	candidates := r.retriever.Retrieve(ctx, query)
	relevant := r.grader.Grade(ctx, query, candidates)
	if len(relevant) > 0 {
		annual, proxy := collectReportLinks(relevant)
		return domain.VectorStoreOutcome(query, relevant, annual, proxy)
	}

	if records := r.metadata.Lookup(ctx, query); len(records) > 0 {
		return domain.MetadataOutcome(query, records)
	}

	return domain.WebSearchOutcome(query, r.web.Search(ctx, query))
}

// decide never fails; any oracle or parse problem yields the vectorstore default.
func (r *CascadeRouter) decide(ctx context.Context, query string, history []domain.ChatTurn) domain.RoutingDecision {
	fallback := domain.RoutingDecision{DataSource: domain.SourceVectorStore, UpdatedQuery: query}

	raw, err := r.llm.CompleteJSON(ctx, []domain.OracleMessage{
		domain.SystemMessage(routerInstructions),
		domain.UserMessage(buildRouterUserPrompt(query, history)),
	}, routingSchema)
	if err != nil {
		r.logger.Warn("routing_oracle_failed", "query", query, "error", err)
		return fallback
	}

	decision, ok := parseRoutingDecision(raw, query)
	if !ok {
		return fallback
	}
	return decision
}

// parseRoutingDecision requires a datasource; a missing updated_query keeps the original query.
func parseRoutingDecision(raw, query string) (domain.RoutingDecision, bool) {
	var reply routingReply
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &reply); err != nil {
		return domain.RoutingDecision{}, false
	}
	if strings.TrimSpace(reply.DataSource) == "" {
		return domain.RoutingDecision{}, false
	}
	updated := strings.TrimSpace(reply.UpdatedQuery)
	if updated == "" {
		updated = query
	}
	source, known := domain.ParseDataSource(reply.DataSource)
	if !known {
		source = domain.SourceVectorStore
	}
	return domain.RoutingDecision{
		DataSource:      source,
		UpdatedQuery:    updated,
		GeneralResponse: strings.TrimSpace(reply.GeneralResponse),
	}, true
}

func collectReportLinks(items []domain.EvidenceItem) ([]string, []string) {
	annual := make([]string, 0)
	proxy := make([]string, 0)
	for _, item := range items {
		if link, ok := item.MetadataString(metadataKeyAnnualReport); ok {
			annual = append(annual, link)
		}
		if link, ok := item.MetadataString(metadataKeyProxyStatement); ok {
			proxy = append(proxy, link)
		}
	}
	return annual, proxy
}
