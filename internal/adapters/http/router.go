package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/kirillkom/filings-rag-assistant/internal/config"
	"github.com/kirillkom/filings-rag-assistant/internal/core/ports"
	"github.com/kirillkom/filings-rag-assistant/internal/observability/metrics"
)

type Services struct {
	Query   ports.QueryService
	Agent   ports.AgentService
	History ports.HistoryService
	Auth    ports.Authenticator
}

type Router struct {
	cfg       config.Config
	query     ports.QueryService
	agent     ports.AgentService
	history   ports.HistoryService
	auth      ports.Authenticator
	metrics   *metrics.HTTPServerMetrics
	logger    *slog.Logger
	validator *requestValidator
}

// NewRouter wires handlers; metrics may be nil.
func NewRouter(cfg config.Config, services Services, m *metrics.HTTPServerMetrics, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Router{
		cfg:       cfg,
		query:     services.Query,
		agent:     services.Agent,
		history:   services.History,
		auth:      services.Auth,
		metrics:   m,
		logger:    logger,
		validator: mustRequestValidator(),
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", rt.root)
	mux.HandleFunc("GET /healthz", rt.healthz)
	mux.HandleFunc("GET /openapi.yaml", serveOpenAPI)
	if rt.metrics != nil {
		mux.Handle("GET /metrics", rt.metrics.Handler())
	}

	mux.Handle("GET /api/v1/query/search", rt.protect(rt.searchDocuments))
	mux.Handle("GET /api/v1/query/generate", rt.protect(rt.generateAnswer))
	mux.Handle("GET /api/v1/query/agentic_rag", rt.protect(rt.agenticRAG))
	mux.Handle("GET /api/v1/query/agentic_rag/", rt.protect(rt.agenticRAG))
	mux.Handle("GET /api/v1/query/chat-history", rt.protect(rt.listChatSessions))
	mux.Handle("GET /api/v1/query/chat-history/{session_id}", rt.protect(rt.getChatHistory))
	mux.Handle("DELETE /api/v1/query/chat-history/{session_id}", rt.protect(rt.clearChatHistory))
	mux.HandleFunc("POST /api/v1/auth/login", rt.login)

	var handler http.Handler = rt.validator.middleware(mux)
	handler = backpressureMiddleware(
		handler,
		rt.cfg.APIBackpressureMaxInFlight,
		time.Duration(rt.cfg.APIBackpressureWaitMillis)*time.Millisecond,
	)
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	handler = corsMiddleware(rt.cfg.AllowedOrigins(), handler)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "RAG Backend is running"})
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func (rt *Router) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		rt.logger.Error("request_failed",
			"request_id", requestIDFromContext(r.Context()),
			"path", r.URL.Path,
			"error", err,
		)
	}
	writeError(w, status, publicErrorMessage(status, err))
}
