package household

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	identity "github.com/ovaphlow/pitchfork/service-household-identity/internal/identity/entity"
)

// BearerVerifier resolves a bearer credential to its identity.
type BearerVerifier interface {
	VerifyBearer(ctx context.Context, token string) (*identity.Identity, error)
}

type Handler struct {
	svc      *Service
	verifier BearerVerifier
	logger   *zap.SugaredLogger
}

func NewHandler(svc *Service, verifier BearerVerifier, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, verifier: verifier, logger: logger}
}

type joinRequest struct {
	JoinCode string `json:"join_code"`
}

// Join adds the caller identified by the bearer credential to a household.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	token, ok := Bearer(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "missing bearer token"})
		return
	}
	who, err := h.verifier.VerifyBearer(r.Context(), token)
	if err != nil {
		h.logger.Debugw("join: bearer rejected", "err", err)
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": "invalid token"})
		return
	}
	var req joinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid payload"})
		return
	}
	hh, created, err := h.svc.JoinByCode(r.Context(), who.ID, req.JoinCode)
	switch {
	case errors.Is(err, ErrUnknownJoinCode):
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": err.Error()})
	case err != nil && hh == nil:
		h.logger.Warnw("join household failed", "err", err, "user_id", who.ID)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "join failed"})
	case err != nil:
		h.logger.Warnw("join household partially applied", "err", err, "user_id", who.ID)
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "household_id": hh.ID, "created": created, "warning": "household membership added but profile not updated"})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "household_id": hh.ID, "created": created})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
