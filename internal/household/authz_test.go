package household

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	hhrepo "github.com/ovaphlow/pitchfork/service-household-identity/internal/household/repo"
)

func TestAuthorizerOwnership(t *testing.T) {
	svc, db, users := setup(t)
	ctx := context.Background()
	addUser(t, users, "owner")
	hh, err := svc.Provision(ctx, "owner")
	require.NoError(t, err)

	authz := NewAuthorizer(stubVerifier{"tok": "owner", "other": "stranger"}, hhrepo.NewHouseholdRepo(db), zap.NewNop().Sugar())

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	_, err = authz.Caller(req)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	req.Header.Set("Authorization", "Basic dXNlcjpwdw==")
	_, err = authz.Caller(req)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	req.Header.Set("Authorization", "Bearer nope")
	_, err = authz.Caller(req)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	req.Header.Set("Authorization", "Bearer tok")
	who, err := authz.Caller(req)
	require.NoError(t, err)
	assert.Equal(t, "owner", who.ID)

	assert.NoError(t, authz.RequireOwner(ctx, "owner", hh.ID))
	assert.ErrorIs(t, authz.RequireOwner(ctx, "stranger", hh.ID), ErrNotOwner)
	assert.ErrorIs(t, authz.RequireOwner(ctx, "owner", "no-such-household"), ErrNotOwner)
}

func TestAuthStatus(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, AuthStatus(ErrUnauthenticated))
	assert.Equal(t, http.StatusForbidden, AuthStatus(ErrNotOwner))
	assert.Equal(t, http.StatusInternalServerError, AuthStatus(errors.New("db down")))
}
