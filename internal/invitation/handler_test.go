package invitation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/household"
	hhentity "github.com/ovaphlow/pitchfork/service-household-identity/internal/household/entity"
	hhrepo "github.com/ovaphlow/pitchfork/service-household-identity/internal/household/repo"
	identity "github.com/ovaphlow/pitchfork/service-household-identity/internal/identity/entity"
)

type stubVerifier map[string]*identity.Identity

func (s stubVerifier) VerifyBearer(_ context.Context, token string) (*identity.Identity, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return nil, errors.New("bad token")
}

// stubOwners maps household ids to their owner.
type stubOwners map[string]string

func (s stubOwners) GetByID(_ context.Context, id string) (*hhentity.Household, error) {
	owner, ok := s[id]
	if !ok {
		return nil, hhrepo.ErrNotFound
	}
	return &hhentity.Household{ID: id, OwnerID: &owner}, nil
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var out envelope
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out))
	return out
}

func call(fn http.HandlerFunc, path, body, bearer string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	fn(rec, req)
	return rec
}

func newHandler(t *testing.T) *Handler {
	t.Helper()
	logger := zap.NewNop().Sugar()
	authz := household.NewAuthorizer(stubVerifier{
		"owner-tok":    {ID: "owner"},
		"stranger-tok": {ID: "stranger", Email: "stranger@example.com"},
		"invitee-tok":  {ID: "helper", Email: "HELPER@example.com"},
	}, stubOwners{"h9": "owner"}, logger)
	return NewHandler(newLedger(t), authz, logger)
}

func TestHandlerContract(t *testing.T) {
	h := newHandler(t)
	issueBody := `{"email":"Helper@Example.com","name":"Helper","household_id":"h9"}`

	rec := call(h.Issue, "/invitations", issueBody, "owner-tok")
	require.Equal(t, http.StatusCreated, rec.Code)
	issued := decode(t, rec)
	require.True(t, issued.Success)
	require.NotEmpty(t, issued.Token)

	body := `{"token":"` + issued.Token + `"}`
	rec = call(h.Validate, "/invitations/validate", body, "")
	require.Equal(t, http.StatusOK, rec.Code)
	v := decode(t, rec)
	assert.Equal(t, "new", string(v.Data.Status))
	assert.Equal(t, "h9", *v.Data.HouseholdID)

	rec = call(h.Consume, "/invitations/consume", body, "invitee-tok")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "done", string(decode(t, rec).Data.Status))

	rec = call(h.Consume, "/invitations/consume", body, "owner-tok")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.False(t, decode(t, rec).Success)

	rec = call(h.Validate, "/invitations/validate", `{"token":"bogus"}`, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = call(h.Issue, "/invitations", `{"email":"a@b.c","role":"boss"}`, "owner-tok")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIssueRequiresHouseholdOwner(t *testing.T) {
	h := newHandler(t)
	body := `{"email":"helper@example.com","name":"Helper","household_id":"h9"}`

	assert.Equal(t, http.StatusUnauthorized, call(h.Issue, "/invitations", body, "").Code)
	assert.Equal(t, http.StatusUnauthorized, call(h.Issue, "/invitations", body, "forged").Code)
	assert.Equal(t, http.StatusForbidden, call(h.Issue, "/invitations", body, "stranger-tok").Code)
	assert.Equal(t, http.StatusForbidden,
		call(h.Issue, "/invitations", `{"email":"helper@example.com","household_id":"unknown"}`, "owner-tok").Code)
}

func TestConsumeRequiresInviteeOrOwner(t *testing.T) {
	h := newHandler(t)
	rec := call(h.Issue, "/invitations", `{"email":"helper@example.com","name":"Helper","household_id":"h9"}`, "owner-tok")
	require.Equal(t, http.StatusCreated, rec.Code)
	body := `{"token":"` + decode(t, rec).Token + `"}`

	assert.Equal(t, http.StatusUnauthorized, call(h.Consume, "/invitations/consume", body, "").Code)
	assert.Equal(t, http.StatusForbidden, call(h.Consume, "/invitations/consume", body, "stranger-tok").Code)

	rec = call(h.Validate, "/invitations/validate", body, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "new", string(decode(t, rec).Data.Status), "a rejected consume leaves the grant open")

	rec = call(h.Consume, "/invitations/consume", body, "owner-tok")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "done", string(decode(t, rec).Data.Status))
}
