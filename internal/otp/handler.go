package otp

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type codeRequest struct {
	MobileNumber string `json:"mobile_number"`
	Code         string `json:"code"`
}

func (h *Handler) Request(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid payload"})
		return
	}
	out, err := h.svc.RequestCode(r.Context(), req.MobileNumber)
	switch {
	case errors.Is(err, ErrInvalidMobile):
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
	case errors.Is(err, ErrCooldown):
		writeJSON(w, http.StatusTooManyRequests, map[string]any{"success": false, "error": err.Error()})
	case err != nil:
		h.logger.Warnw("otp request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "could not request code"})
	default:
		writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "expires_at": out.ExpiresAt})
	}
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	var req codeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid payload"})
		return
	}
	err := h.svc.VerifyCode(r.Context(), req.MobileNumber, req.Code)
	switch {
	case errors.Is(err, ErrInvalidMobile), errors.Is(err, ErrInvalidCode):
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
	case err != nil:
		h.logger.Warnw("otp verify failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "could not verify code"})
	default:
		writeJSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
