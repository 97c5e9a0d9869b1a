package usecase

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
	"github.com/kirillkom/filings-rag-assistant/internal/core/ports"
)

const defaultRetrieverTopK = 4

// Self-query attributes and how their values are typed.
var selfQueryAttributes = map[string]string{
	"company":              "string",
	"date":                 "string",
	"year":                 "integer",
	"tic":                  "string",
	"sale":                 "float",
	"cik":                  "integer",
	"sic":                  "integer",
	"annual_report_link":   "string",
	"proxy_statement_link": "string",
}

// SelfQueryRetriever infers metadata filters from the query, then runs a filtered vector search.
type SelfQueryRetriever struct {
	llm      ports.LanguageModel
	embedder ports.Embedder
	vectorDB ports.VectorStore
	topK     int
	logger   *slog.Logger
}

func NewSelfQueryRetriever(
	llm ports.LanguageModel,
	embedder ports.Embedder,
	vectorDB ports.VectorStore,
	topK int,
	logger *slog.Logger,
) *SelfQueryRetriever {
	if topK <= 0 {
		topK = defaultRetrieverTopK
	}
	return &SelfQueryRetriever{
		llm:      llm,
		embedder: embedder,
		vectorDB: vectorDB,
		topK:     topK,
		logger:   loggerOrDiscard(logger),
	}
}

// Retrieve never fails: retrieval errors become a single error-shaped item.
func (r *SelfQueryRetriever) Retrieve(ctx context.Context, query string) []domain.EvidenceItem {
	searchText, filter := r.inferFilter(ctx, query)

	vector, err := r.embedder.EmbedQuery(ctx, searchText)
	if err != nil {
		return []domain.EvidenceItem{domain.ErrorEvidence("Retrieval failed: %v", err)}
	}
	items, err := r.vectorDB.Search(ctx, vector, r.topK, filter)
	if err != nil {
		return []domain.EvidenceItem{domain.ErrorEvidence("Retrieval failed: %v", err)}
	}
	if items == nil {
		items = []domain.EvidenceItem{}
	}
	return items
}

// inferFilter falls back to the original query without filters when the oracle output is unusable.
func (r *SelfQueryRetriever) inferFilter(ctx context.Context, query string) (string, domain.SearchFilter) {
	raw, err := r.llm.CompleteJSON(ctx, []domain.OracleMessage{
		domain.SystemMessage(selfQueryInstructions),
		domain.UserMessage(query),
	}, selfQuerySchema)
	if err != nil {
		r.logger.Warn("self_query_failed", "query", query, "error", err)
		return query, domain.SearchFilter{}
	}

	var reply selfQueryReply
	if err := json.Unmarshal([]byte(raw), &reply); err != nil {
		r.logger.Warn("self_query_invalid_json", "query", query, "error", err)
		return query, domain.SearchFilter{}
	}

	filter := domain.SearchFilter{}
	for _, f := range reply.Filters {
		cond, ok := normalizeFilter(f)
		if !ok {
			continue
		}
		filter.Conditions = append(filter.Conditions, cond)
	}

	searchText := strings.TrimSpace(reply.Query)
	if searchText == "" {
		searchText = query
	}
	return searchText, filter
}

func normalizeFilter(f selfQueryFilter) (domain.FilterCondition, bool) {
	attr := strings.ToLower(strings.TrimSpace(f.Attribute))
	kind, known := selfQueryAttributes[attr]
	if !known || f.Value == nil {
		return domain.FilterCondition{}, false
	}

	op := domain.FilterOp(strings.ToLower(strings.TrimSpace(f.Comparator)))
	switch op {
	case "":
		op = domain.FilterEq
	case domain.FilterEq, domain.FilterGt, domain.FilterGte, domain.FilterLt, domain.FilterLte:
	default:
		return domain.FilterCondition{}, false
	}

	value, ok := coerceFilterValue(kind, f.Value)
	if !ok {
		return domain.FilterCondition{}, false
	}
	if kind == "string" && op != domain.FilterEq {
		return domain.FilterCondition{}, false
	}
	return domain.FilterCondition{Field: attr, Op: op, Value: value}, true
}

func coerceFilterValue(kind string, v any) (any, bool) {
	switch kind {
	case "string":
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		s = strings.TrimSpace(s)
		return s, s != ""
	case "integer":
		n, ok := toFloat(v)
		if !ok {
			return nil, false
		}
		return int64(n), true
	case "float":
		return toFloat(v)
	default:
		return nil, false
	}
}

func toFloat(v any) (float64, bool) {
	switch typed := v.(type) {
	case float64:
		return typed, true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case json.Number:
		f, err := typed.Float64()
		return f, err == nil
	case string:
		var f float64
		if err := json.Unmarshal([]byte(strings.TrimSpace(typed)), &f); err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
