package httpadapter

import (
	"encoding/json"
	"net/http"
	"strings"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (rt *Router) login(w http.ResponseWriter, r *http.Request) {
	if rt.auth == nil {
		writeError(w, http.StatusServiceUnavailable, "authentication is not configured")
		return
	}

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}

	token, err := rt.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		rt.logger.Warn("login_failed", "username", req.Username, "request_id", requestIDFromContext(r.Context()))
		writeError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{AccessToken: token, TokenType: "bearer"})
}

// protect enforces bearer tokens on query routes when AUTH_REQUIRED is set.
func (rt *Router) protect(next http.HandlerFunc) http.Handler {
	if !rt.cfg.AuthRequired {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok || rt.auth == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		subject, err := rt.auth.Verify(r.Context(), token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		rt.logger.Debug("bearer_verified", "subject", subject, "request_id", requestIDFromContext(r.Context()))
		next.ServeHTTP(w, r)
	})
}

func bearerToken(headerValue string) (string, bool) {
	headerValue = strings.TrimSpace(headerValue)
	const bearerPrefix = "Bearer "
	if len(headerValue) <= len(bearerPrefix) || !strings.EqualFold(headerValue[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(headerValue[len(bearerPrefix):])
	return token, token != ""
}
