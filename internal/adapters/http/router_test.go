package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/filings-rag-assistant/internal/config"
	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
	"github.com/kirillkom/filings-rag-assistant/internal/observability/metrics"
)

type fakeQueryService struct {
	searchErr   error
	generateErr error
	lastQuery   string
	lastSession string
}

func (f *fakeQueryService) Search(_ context.Context, query string) ([]domain.EvidenceItem, error) {
	f.lastQuery = query
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return []domain.EvidenceItem{{Content: "Tesla 10-K excerpt", Metadata: map[string]any{"company": "Tesla"}}}, nil
}

func (f *fakeQueryService) Generate(_ context.Context, query, sessionID string) (*domain.ChatResult, error) {
	f.lastQuery = query
	f.lastSession = sessionID
	if f.generateErr != nil {
		return nil, f.generateErr
	}
	return &domain.ChatResult{
		Query:    query,
		Source:   domain.SourceVectorStore,
		Response: "Revenue grew.",
		ChatHistory: []domain.ChatTurn{
			{User: query, Assistant: "Revenue grew.", Timestamp: time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)},
		},
	}, nil
}

type fakeAgentService struct{}

func (fakeAgentService) Run(_ context.Context, query, _ string) (*domain.AgentRunResult, error) {
	return &domain.AgentRunResult{Query: query, Response: "agent answer", Iterations: 2}, nil
}

type fakeHistoryService struct {
	sessions []domain.SessionSummary
	turns    map[string][]domain.ChatTurn
	err      error
	cleared  []string
}

func (f *fakeHistoryService) ListSessions(context.Context) ([]domain.SessionSummary, error) {
	return f.sessions, f.err
}

func (f *fakeHistoryService) History(_ context.Context, sessionID string) ([]domain.ChatTurn, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.turns[sessionID], nil
}

func (f *fakeHistoryService) Clear(_ context.Context, sessionID string) error {
	if _, ok := f.turns[sessionID]; !ok {
		return domain.WrapError(domain.ErrSessionNotFound, "clear", errors.New(sessionID))
	}
	f.cleared = append(f.cleared, sessionID)
	return nil
}

type fakeAuthenticator struct{}

func (fakeAuthenticator) Login(_ context.Context, username, password string) (string, error) {
	if username == "admin" && password == "admin" {
		return "token-admin", nil
	}
	return "", domain.WrapError(domain.ErrUnauthorized, "login", errors.New("bad credentials"))
}

func (fakeAuthenticator) Verify(_ context.Context, token string) (string, error) {
	if token == "token-admin" {
		return "admin", nil
	}
	return "", domain.WrapError(domain.ErrUnauthorized, "verify", errors.New("bad token"))
}

type routerFixture struct {
	query   *fakeQueryService
	history *fakeHistoryService
	handler http.Handler
}

func newRouterFixture(cfg config.Config) *routerFixture {
	f := &routerFixture{
		query: &fakeQueryService{},
		history: &fakeHistoryService{
			turns: map[string][]domain.ChatTurn{
				"s-1": {{User: "q1", Assistant: "a1"}, {User: "q2", Assistant: "a2"}},
			},
		},
	}
	f.handler = NewRouter(cfg, Services{
		Query:   f.query,
		Agent:   fakeAgentService{},
		History: f.history,
		Auth:    fakeAuthenticator{},
	}, metrics.NewHTTPServerMetrics("api-test"), nil).Handler()
	return f
}

func (f *routerFixture) do(t *testing.T, method, target string, body []byte, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	res := httptest.NewRecorder()
	f.handler.ServeHTTP(res, req)
	return res
}

func decodeBody(t *testing.T, res *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, res.Body.String())
	}
	return out
}

func TestGenerateReturnsAnswerAndHistory(t *testing.T) {
	f := newRouterFixture(config.Config{})

	res := f.do(t, http.MethodGet, "/api/v1/query/generate?query=Tesla+revenue&session_id=s-9", nil, nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	body := decodeBody(t, res)
	if body["source"] != "vectorstore" || body["response"] != "Revenue grew." || body["query"] != "Tesla revenue" {
		t.Fatalf("unexpected body %#v", body)
	}
	if history, ok := body["chat_history"].([]any); !ok || len(history) != 1 {
		t.Fatalf("expected one history turn, got %#v", body["chat_history"])
	}
	if f.query.lastSession != "s-9" {
		t.Fatalf("expected session id to be forwarded, got %q", f.query.lastSession)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestGenerateRequiresSessionID(t *testing.T) {
	f := newRouterFixture(config.Config{})

	res := f.do(t, http.MethodGet, "/api/v1/query/generate?query=Tesla", nil, nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
	if body := decodeBody(t, res); body["error"] == "" || body["error"] == nil {
		t.Fatalf("expected error message, got %#v", body)
	}
}

func TestSearchMapsDomainInvalidInputTo400(t *testing.T) {
	f := newRouterFixture(config.Config{})
	f.query.searchErr = domain.WrapError(domain.ErrInvalidInput, "search", errors.New("query is required"))

	res := f.do(t, http.MethodGet, "/api/v1/query/search?query=%20", nil, nil)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestSearchHidesInternalErrors(t *testing.T) {
	f := newRouterFixture(config.Config{})
	f.query.searchErr = errors.New("pq: password authentication failed")

	res := f.do(t, http.MethodGet, "/api/v1/query/search?query=tesla", nil, nil)
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if strings.Contains(res.Body.String(), "password") {
		t.Fatalf("internal detail leaked: %s", res.Body.String())
	}
}

func TestAgenticRAGAcceptsTrailingSlash(t *testing.T) {
	f := newRouterFixture(config.Config{})

	for _, target := range []string{
		"/api/v1/query/agentic_rag?query=q&session_id=s",
		"/api/v1/query/agentic_rag/?query=q&session_id=s",
	} {
		res := f.do(t, http.MethodGet, target, nil, nil)
		if res.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", target, res.Code)
		}
		if body := decodeBody(t, res); body["response"] != "agent answer" {
			t.Fatalf("%s: unexpected body %#v", target, body)
		}
	}
}

func TestChatHistoryEndpoints(t *testing.T) {
	f := newRouterFixture(config.Config{})

	res := f.do(t, http.MethodGet, "/api/v1/query/chat-history", nil, nil)
	body := decodeBody(t, res)
	if res.Code != http.StatusOK || body["message"] != "No chat history available" {
		t.Fatalf("unexpected empty list response %d %#v", res.Code, body)
	}

	res = f.do(t, http.MethodGet, "/api/v1/query/chat-history/s-1", nil, nil)
	body = decodeBody(t, res)
	if body["session_id"] != "s-1" {
		t.Fatalf("unexpected history body %#v", body)
	}
	if turns, _ := body["chat_history"].([]any); len(turns) != 2 {
		t.Fatalf("expected 2 turns, got %#v", body["chat_history"])
	}

	res = f.do(t, http.MethodGet, "/api/v1/query/chat-history/unknown", nil, nil)
	body = decodeBody(t, res)
	if body["message"] != "No messages found for this session" {
		t.Fatalf("unexpected unknown-session body %#v", body)
	}

	res = f.do(t, http.MethodDelete, "/api/v1/query/chat-history/s-1", nil, nil)
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", res.Code)
	}
	res = f.do(t, http.MethodDelete, "/api/v1/query/chat-history/missing", nil, nil)
	if res.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", res.Code)
	}
}

func TestChatHistoryStoreOutageMapsTo503(t *testing.T) {
	f := newRouterFixture(config.Config{})
	f.history.err = domain.WrapError(domain.ErrTemporary, "list sessions", errors.New("dial tcp: refused"))

	res := f.do(t, http.MethodGet, "/api/v1/query/chat-history", nil, nil)
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestLoginAndBearerEnforcement(t *testing.T) {
	f := newRouterFixture(config.Config{AuthRequired: true})

	res := f.do(t, http.MethodGet, "/api/v1/query/search?query=tesla", nil, nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", res.Code)
	}

	res = f.do(t, http.MethodPost, "/api/v1/auth/login", []byte(`{"username":"admin","password":"nope"}`), nil)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad credentials, got %d", res.Code)
	}

	res = f.do(t, http.MethodPost, "/api/v1/auth/login", []byte(`{"username":"admin","password":"admin"}`), nil)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 for login, got %d: %s", res.Code, res.Body.String())
	}
	token, _ := decodeBody(t, res)["access_token"].(string)
	if token == "" {
		t.Fatalf("expected access token")
	}

	res = f.do(t, http.MethodGet, "/api/v1/query/search?query=tesla", nil, map[string]string{"Authorization": "Bearer " + token})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", res.Code)
	}
}

func TestCORSPreflightForConfiguredOrigin(t *testing.T) {
	f := newRouterFixture(config.Config{CORSAllowedOrigins: "http://localhost:3000"})

	res := f.do(t, http.MethodOptions, "/api/v1/query/generate", nil, map[string]string{
		"Origin":                        "http://localhost:3000",
		"Access-Control-Request-Method": "GET",
	})
	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", res.Code)
	}
	if res.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Fatalf("missing allow-origin header")
	}

	res = f.do(t, http.MethodGet, "/healthz", nil, map[string]string{"Origin": "http://evil.example"})
	if res.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unexpected allow-origin for foreign origin")
	}
}

func TestOperationalEndpoints(t *testing.T) {
	f := newRouterFixture(config.Config{})

	if res := f.do(t, http.MethodGet, "/", nil, nil); res.Code != http.StatusOK {
		t.Fatalf("root expected 200, got %d", res.Code)
	}
	res := f.do(t, http.MethodGet, "/openapi.yaml", nil, nil)
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "/api/v1/query/generate") {
		t.Fatalf("unexpected openapi response %d", res.Code)
	}
	res = f.do(t, http.MethodGet, "/metrics", nil, nil)
	if res.Code != http.StatusOK || !strings.Contains(res.Body.String(), "filings_http_requests_total") {
		t.Fatalf("expected http metrics in scrape, got %d", res.Code)
	}
}
