package httpadapter

import (
	"net/http"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/filings-rag-assistant/internal/core/domain"
)

type sessionListResponse struct {
	Message      string                  `json:"message,omitempty"`
	ChatSessions []domain.SessionSummary `json:"chat_sessions"`
}

type sessionHistoryResponse struct {
	Message     string            `json:"message,omitempty"`
	SessionID   string            `json:"session_id,omitempty"`
	ChatHistory []domain.ChatTurn `json:"chat_history"`
}

func (rt *Router) listChatSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := rt.history.ListSessions(r.Context())
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	if len(sessions) == 0 {
		writeJSON(w, http.StatusOK, sessionListResponse{
			Message:      "No chat history available",
			ChatSessions: []domain.SessionSummary{},
		})
		return
	}
	writeJSON(w, http.StatusOK, sessionListResponse{ChatSessions: sessions})
}

func (rt *Router) getChatHistory(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := bindSessionPath(w, r)
	if !ok {
		return
	}

	turns, err := rt.history.History(r.Context(), sessionID)
	if err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	if len(turns) == 0 {
		writeJSON(w, http.StatusOK, sessionHistoryResponse{
			Message:     "No messages found for this session",
			ChatHistory: []domain.ChatTurn{},
		})
		return
	}
	writeJSON(w, http.StatusOK, sessionHistoryResponse{SessionID: sessionID, ChatHistory: turns})
}

func (rt *Router) clearChatHistory(w http.ResponseWriter, r *http.Request) {
	sessionID, ok := bindSessionPath(w, r)
	if !ok {
		return
	}
	if err := rt.history.Clear(r.Context(), sessionID); err != nil {
		rt.writeDomainError(w, r, err)
		return
	}
	rt.logger.Info("chat_history_cleared", "session_id", sessionID, "request_id", requestIDFromContext(r.Context()))
	w.WriteHeader(http.StatusNoContent)
}

func bindSessionPath(w http.ResponseWriter, r *http.Request) (string, bool) {
	var sessionID string
	err := runtime.BindStyledParameterWithOptions("simple", "session_id", r.PathValue("session_id"), &sessionID, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return sessionID, true
}
