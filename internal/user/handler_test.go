package user

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/household"
	hhentity "github.com/ovaphlow/pitchfork/service-household-identity/internal/household/entity"
	hhrepo "github.com/ovaphlow/pitchfork/service-household-identity/internal/household/repo"
	identity "github.com/ovaphlow/pitchfork/service-household-identity/internal/identity/entity"
)

type stubVerifier map[string]string

func (s stubVerifier) VerifyBearer(_ context.Context, token string) (*identity.Identity, error) {
	if id, ok := s[token]; ok {
		return &identity.Identity{ID: id}, nil
	}
	return nil, errors.New("bad token")
}

type stubOwners map[string]string

func (s stubOwners) GetByID(_ context.Context, id string) (*hhentity.Household, error) {
	owner, ok := s[id]
	if !ok {
		return nil, hhrepo.ErrNotFound
	}
	return &hhentity.Household{ID: id, OwnerID: &owner}, nil
}

func TestReserveHandlerAuthorization(t *testing.T) {
	logger := zap.NewNop().Sugar()
	store := &stubStore{}
	authz := household.NewAuthorizer(stubVerifier{"owner-tok": "owner", "other-tok": "stranger"}, stubOwners{"h1": "owner"}, logger)
	h := NewHandler(NewUserService(store, logger, ""), authz, logger)

	cases := []struct {
		name   string
		bearer string
		body   string
		want   int
	}{
		{"no credential", "", `{"email":"a@example.com","household_id":"h1"}`, http.StatusUnauthorized},
		{"invalid credential", "forged", `{"email":"a@example.com"}`, http.StatusUnauthorized},
		{"not the owner", "other-tok", `{"email":"a@example.com","household_id":"h1"}`, http.StatusForbidden},
		{"unknown household", "owner-tok", `{"email":"a@example.com","household_id":"h404"}`, http.StatusForbidden},
		{"owner", "owner-tok", `{"email":"a@example.com","household_id":"h1"}`, http.StatusCreated},
		{"no household", "other-tok", `{"email":"b@example.com"}`, http.StatusCreated},
		{"bad role", "owner-tok", `{"email":"c@example.com","role":"boss"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/pending-users", strings.NewReader(tc.body))
			if tc.bearer != "" {
				req.Header.Set("Authorization", "Bearer "+tc.bearer)
			}
			rec := httptest.NewRecorder()
			h.Reserve(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
	assert.Len(t, store.inserted, 2)
}
