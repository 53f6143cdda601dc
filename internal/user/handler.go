package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/household"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/user/entity"
)

// Handler exposes HTTP endpoints for placeholder reservations.
type Handler struct {
	svc    *UserService
	authz  *household.Authorizer
	logger *zap.SugaredLogger
}

func NewHandler(svc *UserService, authz *household.Authorizer, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, authz: authz, logger: logger}
}

// ReserveRequest request body for the pending-users endpoint.
type ReserveRequest struct {
	Email        string `json:"email"`
	MobileNumber string `json:"mobile_number"`
	FullName     string `json:"full_name"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Nickname     string `json:"nickname"`
	Role         string `json:"role"`
	SpecificRole string `json:"specific_role"`
	HouseholdID  string `json:"household_id"`
	Color        string `json:"color"`
}

// Reserve creates a placeholder for an authenticated caller. A placeholder
// placed in a household needs the caller to own it.
func (h *Handler) Reserve(w http.ResponseWriter, r *http.Request) {
	who, err := h.authz.Caller(r)
	if err != nil {
		h.deny(w, err)
		return
	}
	var req ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid reserve payload", "err", err)
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid payload"})
		return
	}
	if hid := strings.TrimSpace(req.HouseholdID); hid != "" {
		if err := h.authz.RequireOwner(r.Context(), who.ID, hid); err != nil {
			h.deny(w, err)
			return
		}
	}
	role, err := entity.ParseRole(req.Role)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}
	u, err := h.svc.Reserve(r.Context(), ReserveInput{
		Email:        req.Email,
		MobileNumber: req.MobileNumber,
		FullName:     req.FullName,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Nickname:     req.Nickname,
		Role:         role,
		SpecificRole: req.SpecificRole,
		HouseholdID:  req.HouseholdID,
		Color:        req.Color,
	})
	switch {
	case errors.Is(err, ErrContactRequired):
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
	case errors.Is(err, ErrContactTaken):
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "error": err.Error()})
	case err != nil:
		h.logger.Warnw("reserve failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "reserve failed"})
	default:
		writeJSON(w, http.StatusCreated, map[string]any{"success": true, "data": u})
	}
}

func (h *Handler) deny(w http.ResponseWriter, err error) {
	status := household.AuthStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Warnw("reserve authorization failed", "err", err)
		writeJSON(w, status, map[string]any{"success": false, "error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
