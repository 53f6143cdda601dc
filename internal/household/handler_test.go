package household

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	identity "github.com/ovaphlow/pitchfork/service-household-identity/internal/identity/entity"
)

type stubVerifier map[string]string

func (s stubVerifier) VerifyBearer(_ context.Context, token string) (*identity.Identity, error) {
	if id, ok := s[token]; ok {
		return &identity.Identity{ID: id}, nil
	}
	return nil, errors.New("bad token")
}

func TestJoinHandler(t *testing.T) {
	svc, _, users := setup(t)
	addUser(t, users, "owner")
	addUser(t, users, "joiner")
	hh, err := svc.Provision(context.Background(), "owner")
	require.NoError(t, err)

	h := NewHandler(svc, stubVerifier{"tok": "joiner"}, zap.NewNop().Sugar())

	req := httptest.NewRequest(http.MethodPost, "/households/join", strings.NewReader(`{"join_code":"`+hh.JoinCode+`"}`))
	rec := httptest.NewRecorder()
	h.Join(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/households/join", strings.NewReader(`{"join_code":"`+hh.JoinCode+`"}`))
	req.Header.Set("Authorization", "Bearer tok")
	rec = httptest.NewRecorder()
	h.Join(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), hh.ID)

	req = httptest.NewRequest(http.MethodPost, "/households/join", strings.NewReader(`{"join_code":"NOPEXX"}`))
	req.Header.Set("Authorization", "Bearer tok")
	rec = httptest.NewRecorder()
	h.Join(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
