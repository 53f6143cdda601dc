package signup

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestSignupHandlerStatusCodes(t *testing.T) {
	e := newEnv(t)
	h := NewHandler(e.svc, zap.NewNop().Sugar())

	cases := []struct {
		name   string
		body   string
		auth   string
		status int
	}{
		{"created", `{"email":"handler@example.com","password":"pw-123","full_name":"Handler"}`, "", http.StatusCreated},
		{"conflict", `{"email":"handler@example.com","password":"pw-123","full_name":"Again"}`, "", http.StatusConflict},
		{"bad json", `{"email":`, "", http.StatusBadRequest},
		{"missing password", `{"email":"x@example.com","full_name":"X"}`, "", http.StatusBadRequest},
		{"unknown role", `{"email":"x@example.com","password":"pw","full_name":"X","role":"boss"}`, "", http.StatusBadRequest},
		{"link not found", `{"email":"ghost@example.com","link_existing_user":true}`, "", http.StatusNotFound},
		{"bad bearer", `{}`, "Bearer nope", http.StatusUnauthorized},
		{"bad scheme", `{}`, "Basic Zm9vOmJhcg==", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/household-identity/signup", strings.NewReader(tc.body))
			if tc.auth != "" {
				req.Header.Set("Authorization", tc.auth)
			}
			rec := httptest.NewRecorder()
			h.Signup(rec, req)
			assert.Equal(t, tc.status, rec.Code, rec.Body.String())

			var body map[string]any
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tc.status < 300, body["success"])
			if tc.status == http.StatusCreated {
				assert.NotEmpty(t, body["identity_id"])
				assert.Equal(t, "amo", body["role"])
				assert.NotEmpty(t, body["household_id"])
			}
		})
	}
}

func TestKindHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, KindInput.HTTPStatus())
	assert.Equal(t, http.StatusUnauthorized, KindAuth.HTTPStatus())
	assert.Equal(t, http.StatusConflict, KindConflict.HTTPStatus())
	assert.Equal(t, http.StatusNotFound, KindNotFound.HTTPStatus())
	assert.Equal(t, http.StatusInternalServerError, KindFatal.HTTPStatus())
	assert.Equal(t, KindFatal, KindOf(assert.AnError))
}
