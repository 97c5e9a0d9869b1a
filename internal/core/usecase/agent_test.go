package usecase

import (
	"context"
	"testing"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
)

type countingAgentObserver struct {
	runs      []string
	toolCalls []string
}

func (o *countingAgentObserver) RecordAgentRun(status string, _ int) {
	o.runs = append(o.runs, status)
}

func (o *countingAgentObserver) RecordAgentToolCall(tool, status string) {
	o.toolCalls = append(o.toolCalls, tool+":"+status)
}

type agentFixture struct {
	llm       *scriptedLLM
	retriever *fakeRetriever
	metadata  *fakeMetadataLookup
	web       *fakeWebSearcher
	router    *stubRouter
	generator *stubGenerator
	sessions  *fakeSessionStore
	observer  *countingAgentObserver
	uc        *AgentUseCase
}

func newAgentFixture(replies []string, limits domain.AgentLimits) *agentFixture {
	f := &agentFixture{
		llm:       &scriptedLLM{jsonReplies: replies},
		retriever: &fakeRetriever{},
		metadata:  &fakeMetadataLookup{},
		web:       &fakeWebSearcher{},
		router:    &stubRouter{outcome: domain.WebSearchOutcome("q", nil)},
		generator: &stubGenerator{answer: domain.Answer{Response: "cascade answer"}},
		sessions:  newFakeSessionStore(),
		observer:  &countingAgentObserver{},
	}
	f.uc = NewAgentUseCase(AgentDeps{
		LLM:       f.llm,
		Retriever: f.retriever,
		Grader:    &passGrader{},
		Metadata:  f.metadata,
		Web:       f.web,
		Router:    f.router,
		Generator: f.generator,
		Sessions:  f.sessions,
	}, limits, nil, f.observer)
	return f
}

func TestAgentSimpleResponseOnFirstStep(t *testing.T) {
	f := newAgentFixture([]string{
		`{"Thought":"greeting","Action":"Generate Simple Response","Action Input":"Hi! Ask me about a company."}`,
	}, domain.AgentLimits{})

	result, err := f.uc.Run(context.Background(), "hello", "s-1")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Response != "Hi! Ask me about a company." {
		t.Fatalf("unexpected response %q", result.Response)
	}
	if result.Iterations != 1 || result.FallbackReason != "" {
		t.Fatalf("unexpected run stats %#v", result)
	}
	if len(f.sessions.turns) != 0 {
		t.Fatalf("expected agent runs not to be persisted")
	}
}

func TestAgentToolThenFinalAnswer(t *testing.T) {
	f := newAgentFixture([]string{
		`{"Thought":"need ticker","Action":"Metadata Lookup","Action Input":"Acme"}`,
		`{"Thought":"done","Action":"Final Answer","Action Input":"ACME trades as ACME."}`,
	}, domain.AgentLimits{})
	f.metadata.items = []domain.EvidenceItem{{Content: "ACME CORP (ACME)"}}

	result, err := f.uc.Run(context.Background(), "acme ticker", "s-1")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Response != "ACME trades as ACME." {
		t.Fatalf("unexpected response %q", result.Response)
	}
	if result.Source != domain.SourceMetadata {
		t.Fatalf("expected metadata source, got %q", result.Source)
	}
	if len(result.ToolEvents) != 1 || result.ToolEvents[0].Tool != "Metadata Lookup" || result.ToolEvents[0].Status != "ok" {
		t.Fatalf("unexpected tool events %#v", result.ToolEvents)
	}
	if len(f.observer.toolCalls) != 1 || f.observer.runs[0] != "ok" {
		t.Fatalf("unexpected observer records runs=%#v tools=%#v", f.observer.runs, f.observer.toolCalls)
	}
}

func TestAgentRepairsInvalidPlannerJSONOnce(t *testing.T) {
	f := newAgentFixture([]string{
		"Action: Generate Simple Response",
		`{"Thought":"fixed","Action":"Generate Simple Response","Action Input":"repaired"}`,
	}, domain.AgentLimits{})

	result, err := f.uc.Run(context.Background(), "hello", "s-1")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.Response != "repaired" {
		t.Fatalf("expected repaired step to be used, got %q", result.Response)
	}
	if f.llm.jsonCalls != 2 {
		t.Fatalf("expected planner + repair calls, got %d", f.llm.jsonCalls)
	}
}

func TestAgentFallsBackToCascadeOnInvalidPlanner(t *testing.T) {
	f := newAgentFixture([]string{"garbage", "still garbage"}, domain.AgentLimits{})

	result, err := f.uc.Run(context.Background(), "acme", "s-1")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.FallbackReason != "planner_invalid_json" {
		t.Fatalf("expected planner_invalid_json, got %q", result.FallbackReason)
	}
	if result.Response != "cascade answer" {
		t.Fatalf("expected cascade answer, got %q", result.Response)
	}
	if f.observer.runs[0] != "fallback" {
		t.Fatalf("expected fallback run status, got %#v", f.observer.runs)
	}
}

func TestAgentMaxIterationsAnswersFromGatheredEvidence(t *testing.T) {
	step := `{"Thought":"search","Action":"Web Search","Action Input":"acme news"}`
	f := newAgentFixture([]string{step, step}, domain.AgentLimits{MaxIterations: 2})
	f.web.items = []domain.EvidenceItem{{Content: "news", Metadata: map[string]any{"url": "https://news"}}}

	result, err := f.uc.Run(context.Background(), "acme news", "s-1")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if result.FallbackReason != "max_iterations" {
		t.Fatalf("expected max_iterations, got %q", result.FallbackReason)
	}
	if result.Source != domain.SourceWebSearch {
		t.Fatalf("expected gathered websearch evidence to be used, got %q", result.Source)
	}
	if f.web.calls != 2 {
		t.Fatalf("expected two web searches, got %d", f.web.calls)
	}
}

func TestAgentRequiresSession(t *testing.T) {
	f := newAgentFixture(nil, domain.AgentLimits{})
	if _, err := f.uc.Run(context.Background(), "q", ""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestNormalizeAgentAction(t *testing.T) {
	cases := map[string]string{
		"VectorStore Retriever":    agentActionVectorStore,
		"vectorstore":              agentActionVectorStore,
		" Metadata Lookup ":        agentActionMetadata,
		"Web Search":               agentActionWebSearch,
		"Generate Simple Response": agentActionSimple,
		"Final Answer":             agentActionFinal,
		"something else":           "something else",
	}
	for in, want := range cases {
		if got := normalizeAgentAction(in); got != want {
			t.Fatalf("normalizeAgentAction(%q) = %q, want %q", in, got, want)
		}
	}
}
