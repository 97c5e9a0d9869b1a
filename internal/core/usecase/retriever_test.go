package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
)

func TestSelfQueryRetrieverAppliesInferredFilters(t *testing.T) {
	llm := &scriptedLLM{jsonReplies: []string{
		`{"query":"board members","filters":[{"attribute":"company","comparator":"eq","value":"Tesla"},{"attribute":"year","comparator":"gte","value":"2021"},{"attribute":"bogus","comparator":"eq","value":"x"}]}`,
	}}
	embedder := &fakeEmbedder{}
	vector := &fakeVectorStore{items: []domain.EvidenceItem{{Content: "Elon Musk"}}}
	retriever := NewSelfQueryRetriever(llm, embedder, vector, 0, nil)

	items := retriever.Retrieve(context.Background(), "Tesla board members since 2021")

	if len(items) != 1 {
		t.Fatalf("expected one item, got %d", len(items))
	}
	if embedder.text != "board members" {
		t.Fatalf("expected residual query to be embedded, got %q", embedder.text)
	}
	if vector.limit != defaultRetrieverTopK {
		t.Fatalf("expected default top-k, got %d", vector.limit)
	}
	if len(vector.filter.Conditions) != 2 {
		t.Fatalf("expected two valid conditions, got %#v", vector.filter.Conditions)
	}
	year := vector.filter.Conditions[1]
	if year.Field != "year" || year.Op != domain.FilterGte || year.Value != int64(2021) {
		t.Fatalf("unexpected year condition %#v", year)
	}
}

func TestSelfQueryRetrieverDegradesToUnfilteredSearch(t *testing.T) {
	llm := &scriptedLLM{jsonErr: errors.New("no model")}
	embedder := &fakeEmbedder{}
	vector := &fakeVectorStore{}
	retriever := NewSelfQueryRetriever(llm, embedder, vector, 3, nil)

	items := retriever.Retrieve(context.Background(), "acme sales")

	if items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil result, got %#v", items)
	}
	if embedder.text != "acme sales" {
		t.Fatalf("expected original query, got %q", embedder.text)
	}
	if !vector.filter.IsEmpty() {
		t.Fatalf("expected no filter, got %#v", vector.filter)
	}
}

func TestSelfQueryRetrieverReturnsErrorShapedItem(t *testing.T) {
	retriever := NewSelfQueryRetriever(&scriptedLLM{}, &fakeEmbedder{}, &fakeVectorStore{err: errors.New("qdrant unavailable")}, 4, nil)

	items := retriever.Retrieve(context.Background(), "q")

	if len(items) != 1 || !items[0].IsError() {
		t.Fatalf("expected single error item, got %#v", items)
	}
	if !strings.HasPrefix(items[0].Error, "Retrieval failed: ") {
		t.Fatalf("unexpected error text %q", items[0].Error)
	}
}

func TestNormalizeFilterRejectsRangeOnStrings(t *testing.T) {
	if _, ok := normalizeFilter(selfQueryFilter{Attribute: "company", Comparator: "gt", Value: "A"}); ok {
		t.Fatalf("expected range comparator on string attribute to be rejected")
	}
	cond, ok := normalizeFilter(selfQueryFilter{Attribute: "SALE", Value: 12.5})
	if !ok || cond.Op != domain.FilterEq || cond.Value != 12.5 {
		t.Fatalf("unexpected condition %#v ok=%v", cond, ok)
	}
}
