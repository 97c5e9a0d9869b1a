package httpadapter

import (
	"net/http"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
)

type searchResponse struct {
	Query   string                `json:"query"`
	Results []domain.EvidenceItem `json:"results"`
}

type generateResponse struct {
	Query       string            `json:"query"`
	Source      domain.DataSource `json:"source"`
	Response    string            `json:"response"`
	ChatHistory []domain.ChatTurn `json:"chat_history"`
}

type agentResponse struct {
	Query    string `json:"query"`
	Response string `json:"response"`
}

func (rt *Router) searchDocuments(w http.ResponseWriter, r *http.Request) {
	var query string
	if err := runtime.BindQueryParameter("form", true, true, "query", r.URL.Query(), &query); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	results, err := rt.query.Search(r.Context(), query)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	if results == nil {
		results = []domain.EvidenceItem{}
	}
	writeJSON(w, http.StatusOK, searchResponse{Query: query, Results: results})
}

func (rt *Router) generateAnswer(w http.ResponseWriter, r *http.Request) {
	query, sessionID, ok := bindQueryAndSession(w, r)
	if !ok {
		return
	}

	result, err := rt.query.Generate(r.Context(), query, sessionID)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	history := result.ChatHistory
	if history == nil {
		history = []domain.ChatTurn{}
	}
	writeJSON(w, http.StatusOK, generateResponse{
		Query:       result.Query,
		Source:      result.Source,
		Response:    result.Response,
		ChatHistory: history,
	})
}

func (rt *Router) agenticRAG(w http.ResponseWriter, r *http.Request) {
	query, sessionID, ok := bindQueryAndSession(w, r)
	if !ok {
		return
	}
	if rt.agent == nil {
		writeError(w, http.StatusNotImplemented, "agentic routing is disabled")
		return
	}

	result, err := rt.agent.Run(r.Context(), query, sessionID)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agentResponse{Query: query, Response: result.Response})
}

func bindQueryAndSession(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	params := r.URL.Query()
	var query, sessionID string
	if err := runtime.BindQueryParameter("form", true, true, "query", params, &query); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	if err := runtime.BindQueryParameter("form", true, true, "session_id", params, &sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", "", false
	}
	return query, sessionID, true
}
