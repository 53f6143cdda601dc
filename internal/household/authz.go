package household

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/household/entity"
	hhrepo "github.com/ovaphlow/pitchfork/service-household-identity/internal/household/repo"
	identity "github.com/ovaphlow/pitchfork/service-household-identity/internal/identity/entity"
)

var (
	ErrUnauthenticated = errors.New("missing or invalid bearer token")
	ErrNotOwner        = errors.New("caller does not own the household")
)

// OwnerLookup loads a household to check who owns it.
type OwnerLookup interface {
	GetByID(ctx context.Context, id string) (*entity.Household, error)
}

// Authorizer identifies the caller of a write endpoint and checks that it
// owns the household the request targets.
type Authorizer struct {
	verifier   BearerVerifier
	households OwnerLookup
	logger     *zap.SugaredLogger
}

func NewAuthorizer(verifier BearerVerifier, households OwnerLookup, logger *zap.SugaredLogger) *Authorizer {
	return &Authorizer{verifier: verifier, households: households, logger: logger}
}

// Bearer returns the credential of an Authorization: Bearer header.
func Bearer(r *http.Request) (string, bool) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	token = strings.TrimSpace(token)
	return token, ok && token != ""
}

// Caller resolves the identity behind the request's bearer credential.
func (a *Authorizer) Caller(r *http.Request) (*identity.Identity, error) {
	token, ok := Bearer(r)
	if !ok {
		return nil, ErrUnauthenticated
	}
	who, err := a.verifier.VerifyBearer(r.Context(), token)
	if err != nil {
		a.logger.Debugw("bearer rejected", "path", r.URL.Path, "err", err)
		return nil, ErrUnauthenticated
	}
	return who, nil
}

// RequireOwner fails with ErrNotOwner unless callerID owns householdID. An
// unknown household is owned by nobody.
func (a *Authorizer) RequireOwner(ctx context.Context, callerID, householdID string) error {
	h, err := a.households.GetByID(ctx, householdID)
	switch {
	case errors.Is(err, hhrepo.ErrNotFound):
		return ErrNotOwner
	case err != nil:
		return fmt.Errorf("load household: %w", err)
	}
	if h.OwnerID == nil || *h.OwnerID != callerID {
		return ErrNotOwner
	}
	return nil
}

// AuthStatus maps an authorization failure to its HTTP status.
func AuthStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrNotOwner):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
