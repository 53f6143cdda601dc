package invitation

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/household"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/invitation/entity"
	userentity "github.com/ovaphlow/pitchfork/service-household-identity/internal/user/entity"
)

// Handler exposes the ledger's remote contract. Issue and Consume need a
// bearer credential; Validate only needs the token.
type Handler struct {
	ledger *Ledger
	authz  *household.Authorizer
	logger *zap.SugaredLogger
}

func NewHandler(ledger *Ledger, authz *household.Authorizer, logger *zap.SugaredLogger) *Handler {
	return &Handler{ledger: ledger, authz: authz, logger: logger}
}

type tokenRequest struct {
	Token string `json:"token"`
}

// GrantView is the wire shape of a grant.
type GrantView struct {
	ID          string          `json:"id"`
	Email       *string         `json:"email,omitempty"`
	Name        string          `json:"name"`
	Role        userentity.Role `json:"role"`
	HouseholdID *string         `json:"household_id"`
	Status      entity.Status   `json:"status"`
	UserID      *string         `json:"user_id,omitempty"`
}

func viewOf(g *entity.Grant) *GrantView {
	return &GrantView{ID: g.ID, Email: g.Email, Name: g.Name, Role: g.Role, HouseholdID: g.HouseholdID, Status: g.Status, UserID: g.UserID}
}

type envelope struct {
	Success bool       `json:"success"`
	Data    *GrantView `json:"data,omitempty"`
	Token   string     `json:"token,omitempty"`
	Error   string     `json:"error,omitempty"`
}

func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Error: "invalid payload"})
		return
	}
	g, err := h.ledger.Validate(r.Context(), req.Token)
	h.respond(w, g, err)
}

// Consume burns a grant on behalf of its invitee or the owner of its
// household.
func (h *Handler) Consume(w http.ResponseWriter, r *http.Request) {
	who, err := h.authz.Caller(r)
	if err != nil {
		h.deny(w, err)
		return
	}
	var req tokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Error: "invalid payload"})
		return
	}
	g, err := h.ledger.Validate(r.Context(), req.Token)
	if err != nil {
		h.respond(w, nil, err)
		return
	}
	if !h.ledger.IsInvitee(g, who.Email, who.Phone) {
		if g.HouseholdID == nil {
			h.deny(w, household.ErrNotOwner)
			return
		}
		if err := h.authz.RequireOwner(r.Context(), who.ID, *g.HouseholdID); err != nil {
			h.deny(w, err)
			return
		}
	}
	g, err = h.ledger.Consume(r.Context(), req.Token)
	h.respond(w, g, err)
}

func (h *Handler) deny(w http.ResponseWriter, err error) {
	status := household.AuthStatus(err)
	if status == http.StatusInternalServerError {
		h.logger.Warnw("invitation authorization failed", "err", err)
		writeJSON(w, status, envelope{Error: "internal error"})
		return
	}
	writeJSON(w, status, envelope{Error: err.Error()})
}

func (h *Handler) respond(w http.ResponseWriter, g *entity.Grant, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeJSON(w, http.StatusNotFound, envelope{Error: err.Error()})
	case errors.Is(err, ErrAlreadyConsumed):
		writeJSON(w, http.StatusConflict, envelope{Error: err.Error()})
	case err != nil:
		h.logger.Warnw("invitation request failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Error: "internal error"})
	default:
		writeJSON(w, http.StatusOK, envelope{Success: true, Data: viewOf(g)})
	}
}

// IssueRequest request body for creating a grant.
type IssueRequest struct {
	Email         string `json:"email"`
	MobileNumber  string `json:"mobile_number"`
	Name          string `json:"name"`
	Nickname      string `json:"nickname"`
	Role          string `json:"role"`
	HouseholdID   string `json:"household_id"`
	PendingUserID string `json:"pending_user_id"`
}

// Issue creates a grant. Only the owner of the target household may issue
// into it.
func (h *Handler) Issue(w http.ResponseWriter, r *http.Request) {
	who, err := h.authz.Caller(r)
	if err != nil {
		h.deny(w, err)
		return
	}
	var req IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Error: "invalid payload"})
		return
	}
	if strings.TrimSpace(req.HouseholdID) != "" {
		if err := h.authz.RequireOwner(r.Context(), who.ID, strings.TrimSpace(req.HouseholdID)); err != nil {
			h.deny(w, err)
			return
		}
	}
	role := userentity.RoleKasambahay
	if req.Role != "" {
		parsed, err := userentity.ParseRole(req.Role)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, envelope{Error: err.Error()})
			return
		}
		role = parsed
	}
	g, token, err := h.ledger.Issue(r.Context(), IssueInput{
		Email:         req.Email,
		MobileNumber:  req.MobileNumber,
		Name:          req.Name,
		Nickname:      req.Nickname,
		Role:          role,
		HouseholdID:   req.HouseholdID,
		PendingUserID: req.PendingUserID,
	})
	switch {
	case errors.Is(err, ErrContactRequired):
		writeJSON(w, http.StatusBadRequest, envelope{Error: err.Error()})
	case err != nil:
		h.logger.Warnw("issue invitation failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, envelope{Error: "internal error"})
	default:
		writeJSON(w, http.StatusCreated, envelope{Success: true, Data: viewOf(g), Token: token})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
