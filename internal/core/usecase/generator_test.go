package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
)

func TestGeneratorEmptyEvidenceReturnsClarificationWithoutOracle(t *testing.T) {
	llm := &scriptedLLM{}
	gen := NewGroundedAnswerGenerator(llm, nil)

	answer := gen.Generate(context.Background(), "Zyzzx", domain.WebSearchOutcome("Zyzzx", nil), "s-1", nil)

	if answer.Response != clarificationMessage {
		t.Fatalf("expected clarification, got %q", answer.Response)
	}
	if len(answer.References) != 0 {
		t.Fatalf("expected no references, got %#v", answer.References)
	}
	if llm.textCalls != 0 {
		t.Fatalf("expected no oracle call, got %d", llm.textCalls)
	}
	if answer.Source != domain.SourceWebSearch {
		t.Fatalf("expected source to be carried, got %q", answer.Source)
	}
}

func TestGeneratorErrorOnlyEvidenceReturnsClarification(t *testing.T) {
	llm := &scriptedLLM{}
	gen := NewGroundedAnswerGenerator(llm, nil)

	outcome := domain.WebSearchOutcome("q", []domain.EvidenceItem{domain.ErrorEvidence("Web search failed: 500")})
	answer := gen.Generate(context.Background(), "q", outcome, "s-1", nil)
	if answer.Response != clarificationMessage || llm.textCalls != 0 {
		t.Fatalf("expected clarification without oracle call, got %q calls=%d", answer.Response, llm.textCalls)
	}
}

func TestGeneratorAppendsReferences(t *testing.T) {
	llm := &scriptedLLM{textReplies: []string{"Revenue grew."}}
	gen := NewGroundedAnswerGenerator(llm, nil)

	outcome := domain.VectorStoreOutcome("q", []domain.EvidenceItem{
		{Content: "passage", Metadata: map[string]any{"annualreport": "http://x/report.pdf", "year": 2023}},
	}, []string{"http://x/report.pdf"}, nil)

	answer := gen.Generate(context.Background(), "q", outcome, "s-1", nil)

	want := "Revenue grew.\n\n**References:**\nhttp://x/report.pdf"
	if answer.Response != want {
		t.Fatalf("unexpected response:\n%q\nwant\n%q", answer.Response, want)
	}
	if !strings.HasSuffix(answer.Response, "http://x/report.pdf") {
		t.Fatalf("expected response to end with the reference link")
	}
}

func TestGeneratorReferencesAreNotDeduplicated(t *testing.T) {
	llm := &scriptedLLM{textReplies: []string{"ok"}}
	gen := NewGroundedAnswerGenerator(llm, nil)

	outcome := domain.WebSearchOutcome("q", []domain.EvidenceItem{
		{Content: "a", Metadata: map[string]any{"url": "https://same"}},
		{Content: "b", Metadata: map[string]any{"url": "https://same"}},
	})
	answer := gen.Generate(context.Background(), "q", outcome, "s-1", nil)
	if len(answer.References) != 2 {
		t.Fatalf("expected duplicate references kept, got %#v", answer.References)
	}
}

func TestGeneratorPromptCarriesHistoryAndNumberedContext(t *testing.T) {
	llm := &scriptedLLM{textReplies: []string{"ok"}}
	gen := NewGroundedAnswerGenerator(llm, nil)

	history := []domain.ChatTurn{{User: "hi", Assistant: "hello"}}
	outcome := domain.MetadataOutcome("q", []domain.EvidenceItem{{Metadata: map[string]any{"ticker": "ACME"}}})
	gen.Generate(context.Background(), "q", outcome, "s-1", history)

	prompt := llm.lastMessages[0].Content
	for _, part := range []string{"User: hi\nAssistant: hello", "[1] No content available", `"ticker": "ACME"`} {
		if !strings.Contains(prompt, part) {
			t.Fatalf("expected prompt to contain %q, got:\n%s", part, prompt)
		}
	}
}

func TestGeneratorOracleFailureDegradesToClarification(t *testing.T) {
	gen := NewGroundedAnswerGenerator(&scriptedLLM{textErr: errors.New("model crashed")}, nil)

	outcome := domain.MetadataOutcome("q", []domain.EvidenceItem{{Content: "x"}})
	answer := gen.Generate(context.Background(), "q", outcome, "s-1", nil)
	if answer.Response != clarificationMessage {
		t.Fatalf("expected clarification on oracle failure, got %q", answer.Response)
	}
}

func TestGeneratorGeneralResponsePassesThrough(t *testing.T) {
	llm := &scriptedLLM{}
	gen := NewGroundedAnswerGenerator(llm, nil)

	answer := gen.Generate(context.Background(), "hi", domain.GeneralResponseOutcome("hi", "Hello!"), "s-1", nil)
	if answer.Response != "Hello!" || llm.textCalls != 0 {
		t.Fatalf("expected pass-through without oracle call, got %q calls=%d", answer.Response, llm.textCalls)
	}
}

func TestFormatEvidenceSkipsErrorItemsAndNumbersUsable(t *testing.T) {
	text, refs := formatEvidence([]domain.EvidenceItem{
		domain.ErrorEvidence("boom"),
		{Content: "first", Metadata: map[string]any{"link": "http://a", "note": "ftp://b"}},
	})
	if !strings.HasPrefix(text, "[1] first\nMetadata: {") {
		t.Fatalf("unexpected context block %q", text)
	}
	if len(refs) != 1 || refs[0] != "http://a" {
		t.Fatalf("unexpected references %#v", refs)
	}
}
