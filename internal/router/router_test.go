package router

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/otp"
	otprepo "github.com/ovaphlow/pitchfork/service-household-identity/internal/otp/repo"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/storetest"
)

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, path, strings.NewReader(body)))
	return rec
}

func TestRegisterRoutes(t *testing.T) {
	logger := zap.NewNop().Sugar()
	db := storetest.Open(t)
	otpSvc := otp.NewService(otprepo.NewOTPRepo(db), otp.LogSender{Logger: logger}, logger, otp.Config{BcryptCost: bcrypt.MinCost})
	h := RegisterRoutes(logger, "household-identity/", Handlers{
		OTP:     otp.NewHandler(otpSvc, logger),
		Metrics: metrics.New(),
	})

	rec := serve(h, http.MethodGet, "/household-identity/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))

	rec = serve(h, http.MethodPost, "/household-identity/otp/request", `{"mobile_number":"09171234567"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = serve(h, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")

	// handlers left nil are not mounted
	rec = serve(h, http.MethodPost, "/household-identity/signup", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h, http.MethodPost, "/household-identity/health", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
