package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
)

// scriptedLLM replays queued responses per call kind.
type scriptedLLM struct {
	mu           sync.Mutex
	jsonReplies  []string
	jsonErr      error
	textReplies  []string
	textErr      error
	jsonCalls    int
	textCalls    int
	lastMessages []domain.OracleMessage
}

func (f *scriptedLLM) Complete(_ context.Context, messages []domain.OracleMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.textCalls++
	f.lastMessages = messages
	if f.textErr != nil {
		return "", f.textErr
	}
	if len(f.textReplies) == 0 {
		return "answer", nil
	}
	out := f.textReplies[0]
	f.textReplies = f.textReplies[1:]
	return out, nil
}

func (f *scriptedLLM) CompleteJSON(_ context.Context, messages []domain.OracleMessage, _ json.RawMessage) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jsonCalls++
	f.lastMessages = messages
	if f.jsonErr != nil {
		return "", f.jsonErr
	}
	if len(f.jsonReplies) == 0 {
		return "{}", nil
	}
	out := f.jsonReplies[0]
	f.jsonReplies = f.jsonReplies[1:]
	return out, nil
}

// gradeByContentLLM answers grading prompts by matching the document text.
type gradeByContentLLM struct {
	relevant map[string]bool
	calls    int
}

func (f *gradeByContentLLM) Complete(context.Context, []domain.OracleMessage) (string, error) {
	return "", errors.New("not used")
}

func (f *gradeByContentLLM) CompleteJSON(_ context.Context, messages []domain.OracleMessage, _ json.RawMessage) (string, error) {
	f.calls++
	prompt := messages[len(messages)-1].Content
	for content, ok := range f.relevant {
		if strings.Contains(prompt, content) {
			if ok {
				return `{"binary_score":"YES","relevance_score":0.9}`, nil
			}
			return `{"binary_score":"no","relevance_score":0.1}`, nil
		}
	}
	return "not json", nil
}

type fakeRetriever struct {
	items   []domain.EvidenceItem
	queries []string
}

func (f *fakeRetriever) Retrieve(_ context.Context, query string) []domain.EvidenceItem {
	f.queries = append(f.queries, query)
	return f.items
}

type passGrader struct {
	keep  func(domain.EvidenceItem) bool
	calls int
}

func (f *passGrader) Grade(_ context.Context, _ string, candidates []domain.EvidenceItem) []domain.EvidenceItem {
	f.calls++
	out := make([]domain.EvidenceItem, 0, len(candidates))
	for _, c := range candidates {
		if c.IsError() {
			continue
		}
		if f.keep == nil || f.keep(c) {
			out = append(out, c)
		}
	}
	return out
}

type fakeMetadataLookup struct {
	items []domain.EvidenceItem
	calls int
}

func (f *fakeMetadataLookup) Lookup(context.Context, string) []domain.EvidenceItem {
	f.calls++
	return f.items
}

type fakeWebSearcher struct {
	items []domain.EvidenceItem
	calls int
}

func (f *fakeWebSearcher) Search(context.Context, string) []domain.EvidenceItem {
	f.calls++
	return f.items
}

type fakeSessionStore struct {
	mu        sync.Mutex
	turns     map[string][]domain.ChatTurn
	readErr   error
	appendErr error
	deleted   []string
}

func newFakeSessionStore() *fakeSessionStore {
	return &fakeSessionStore{turns: make(map[string][]domain.ChatTurn)}
}

func (f *fakeSessionStore) AppendTurn(_ context.Context, sessionID string, turn domain.ChatTurn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return f.appendErr
	}
	f.turns[sessionID] = append(f.turns[sessionID], turn)
	return nil
}

func (f *fakeSessionStore) RecentTurns(_ context.Context, sessionID string, limit int) ([]domain.ChatTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	turns := f.turns[sessionID]
	if len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return append([]domain.ChatTurn(nil), turns...), nil
}

func (f *fakeSessionStore) Turns(_ context.Context, sessionID string) ([]domain.ChatTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	return append([]domain.ChatTurn(nil), f.turns[sessionID]...), nil
}

func (f *fakeSessionStore) ListSessions(context.Context) ([]domain.SessionSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := make([]domain.SessionSummary, 0, len(f.turns))
	for id, turns := range f.turns {
		last := turns[len(turns)-1].Timestamp
		out = append(out, domain.SessionSummary{SessionID: id, Title: turns[0].User, LastUpdated: &last})
	}
	return out, nil
}

func (f *fakeSessionStore) DeleteSession(_ context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.turns[sessionID]; !ok {
		return domain.WrapError(domain.ErrSessionNotFound, "delete session", errors.New(sessionID))
	}
	delete(f.turns, sessionID)
	f.deleted = append(f.deleted, sessionID)
	return nil
}

func (f *fakeSessionStore) Purge(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = make(map[string][]domain.ChatTurn)
	return nil
}

type fakePublisher struct {
	events []domain.TurnRecorded
	err    error
}

func (f *fakePublisher) PublishTurnRecorded(_ context.Context, event domain.TurnRecorded) error {
	if f.err != nil {
		return f.err
	}
	f.events = append(f.events, event)
	return nil
}

type fakeEmbedder struct {
	text string
	err  error
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, text string) ([]float32, error) {
	f.text = text
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeVectorStore struct {
	items  []domain.EvidenceItem
	err    error
	limit  int
	filter domain.SearchFilter
}

func (f *fakeVectorStore) Search(_ context.Context, _ []float32, limit int, filter domain.SearchFilter) ([]domain.EvidenceItem, error) {
	f.limit = limit
	f.filter = filter
	if f.err != nil {
		return nil, f.err
	}
	return f.items, nil
}

type recordingObserver struct {
	stages         []string
	sources        []domain.DataSource
	gradeTotal     int
	gradeRelevant  int
	clarifications int
}

func (o *recordingObserver) ObserveStage(stage string, _ time.Duration) {
	o.stages = append(o.stages, stage)
}

func (o *recordingObserver) RecordRoutingOutcome(source domain.DataSource, _ int) {
	o.sources = append(o.sources, source)
}

func (o *recordingObserver) RecordGrading(total, relevant int) {
	o.gradeTotal += total
	o.gradeRelevant += relevant
}

func (o *recordingObserver) RecordAnswer(_ domain.DataSource, clarification bool) {
	if clarification {
		o.clarifications++
	}
}
