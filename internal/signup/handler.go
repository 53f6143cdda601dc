package signup

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	userentity "github.com/ovaphlow/pitchfork/service-household-identity/internal/user/entity"
)

type Handler struct {
	svc    *Service
	logger *zap.SugaredLogger
}

func NewHandler(svc *Service, logger *zap.SugaredLogger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

// SignupRequest is the JSON body of the signup endpoint.
type SignupRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	MobileNumber     string `json:"mobile_number"`
	FullName         string `json:"full_name"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Nickname         string `json:"nickname"`
	Color            string `json:"color"`
	Role             string `json:"role"`
	InviteToken      string `json:"invite_token"`
	LinkExistingUser bool   `json:"link_existing_user"`
}

type signupResponse struct {
	Success     bool            `json:"success"`
	IdentityID  string          `json:"identity_id,omitempty"`
	Role        userentity.Role `json:"role,omitempty"`
	HouseholdID *string         `json:"household_id,omitempty"`
	Warning     string          `json:"warning,omitempty"`
	Error       string          `json:"error,omitempty"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Debugw("invalid signup payload", "err", err)
		writeJSON(w, http.StatusBadRequest, signupResponse{Error: "invalid payload"})
		return
	}
	bearer, ok := bearerToken(r)
	if !ok {
		writeJSON(w, http.StatusUnauthorized, signupResponse{Error: "malformed authorization header"})
		return
	}
	var role userentity.Role
	if strings.TrimSpace(req.Role) != "" {
		parsed, err := userentity.ParseRole(req.Role)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, signupResponse{Error: err.Error()})
			return
		}
		role = parsed
	}

	res, err := h.svc.Signup(r.Context(), Request{
		Email:            req.Email,
		Password:         req.Password,
		MobileNumber:     req.MobileNumber,
		FullName:         req.FullName,
		FirstName:        req.FirstName,
		LastName:         req.LastName,
		Nickname:         req.Nickname,
		Color:            req.Color,
		Role:             role,
		InviteToken:      req.InviteToken,
		LinkExistingUser: req.LinkExistingUser,
		Bearer:           bearer,
	})
	if err != nil {
		kind := KindOf(err)
		msg := "internal error"
		var e *Error
		if errors.As(err, &e) && kind != KindFatal {
			msg = e.Msg
		}
		writeJSON(w, kind.HTTPStatus(), signupResponse{Error: msg})
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeJSON(w, status, signupResponse{
		Success:     true,
		IdentityID:  res.IdentityID,
		Role:        res.Role,
		HouseholdID: res.HouseholdID,
		Warning:     res.Warning(),
	})
}

// bearerToken returns the credential of an Authorization: Bearer header. A
// missing header is fine; any other scheme is not.
func bearerToken(r *http.Request) (string, bool) {
	raw := strings.TrimSpace(r.Header.Get("Authorization"))
	if raw == "" {
		return "", true
	}
	token, ok := strings.CutPrefix(raw, "Bearer ")
	if !ok || strings.TrimSpace(token) == "" {
		return "", false
	}
	return strings.TrimSpace(token), true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
