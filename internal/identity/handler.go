package identity

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"
)

type Handler struct {
	provider *Provider
	logger   *zap.SugaredLogger
}

func NewHandler(p *Provider, logger *zap.SugaredLogger) *Handler {
	return &Handler{provider: p, logger: logger}
}

func (h *Handler) JWKS(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(h.provider.JWKS())
}

// Token implements the password grant with form-encoded credentials.
func (h *Handler) Token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	if r.Form.Get("grant_type") != "password" {
		http.Error(w, "unsupported_grant_type", http.StatusBadRequest)
		return
	}
	id, err := h.provider.Authenticate(r.Context(), r.Form.Get("username"), r.Form.Get("password"))
	if err != nil {
		h.logger.Debugw("token: authentication failed", "err", err)
		http.Error(w, "invalid_grant", http.StatusUnauthorized)
		return
	}
	tok, ttl, err := h.provider.IssueAccessToken(id)
	if err != nil {
		h.logger.Warnw("token: signing failed", "err", err)
		http.Error(w, "server_error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token": tok,
		"token_type":   "Bearer",
		"expires_in":   int(ttl.Seconds()),
	})
}
