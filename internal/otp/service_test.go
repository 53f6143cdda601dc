package otp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	otprepo "github.com/ovaphlow/pitchfork/service-household-identity/internal/otp/repo"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/storetest"
)

// captureSender keeps the last code per number.
type captureSender struct {
	mu    sync.Mutex
	codes map[string]string
}

func (c *captureSender) Send(_ context.Context, mobile, code string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.codes == nil {
		c.codes = map[string]string{}
	}
	c.codes[mobile] = code
	return nil
}

func (c *captureSender) last(mobile string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.codes[mobile]
}

func newService(t *testing.T, cfg Config) (*Service, *captureSender) {
	t.Helper()
	db := storetest.Open(t)
	sender := &captureSender{}
	cfg.BcryptCost = bcrypt.MinCost
	return NewService(otprepo.NewOTPRepo(db), sender, zap.NewNop().Sugar(), cfg), sender
}

func TestRequestAndVerifyCode(t *testing.T) {
	svc, sender := newService(t, Config{})
	ctx := context.Background()

	req, err := svc.RequestCode(ctx, "0917-123-4567")
	require.NoError(t, err)
	assert.Equal(t, "+639171234567", req.MobileNumber)
	code := sender.last("+639171234567")
	assert.Regexp(t, `^[0-9]{6}$`, code)
	assert.NotContains(t, req.CodeHash, code)

	assert.ErrorIs(t, svc.VerifyCode(ctx, "09171234567", "000000x"), ErrInvalidCode)
	require.NoError(t, svc.VerifyCode(ctx, "09171234567", code))
	assert.ErrorIs(t, svc.VerifyCode(ctx, "09171234567", code), ErrInvalidCode, "a code verifies once")
}

func TestRequestCodeCooldown(t *testing.T) {
	svc, _ := newService(t, Config{Cooldown: time.Minute})
	ctx := context.Background()
	_, err := svc.RequestCode(ctx, "+639170001111")
	require.NoError(t, err)
	_, err = svc.RequestCode(ctx, "+639170001111")
	assert.ErrorIs(t, err, ErrCooldown)

	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	_, err = svc.RequestCode(ctx, "+639170001111")
	assert.NoError(t, err)
}

func TestVerifyCodeExpiresAndLocksOut(t *testing.T) {
	svc, sender := newService(t, Config{TTL: time.Minute})
	ctx := context.Background()
	_, err := svc.RequestCode(ctx, "+639170002222")
	require.NoError(t, err)
	code := sender.last("+639170002222")

	for i := 0; i < MaxAttempts; i++ {
		assert.ErrorIs(t, svc.VerifyCode(ctx, "+639170002222", "wrong"), ErrInvalidCode)
	}
	assert.ErrorIs(t, svc.VerifyCode(ctx, "+639170002222", code), ErrInvalidCode, "locked after too many attempts")

	svc.now = func() time.Time { return time.Now().UTC().Add(2 * time.Minute) }
	_, err = svc.RequestCode(ctx, "+639170003333")
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Now().UTC().Add(5 * time.Minute) }
	assert.ErrorIs(t, svc.VerifyCode(ctx, "+639170003333", sender.last("+639170003333")), ErrInvalidCode, "expired")
}

func TestRequestCodeRejectsEmptyMobile(t *testing.T) {
	svc, _ := newService(t, Config{})
	_, err := svc.RequestCode(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrInvalidMobile)
	_, err = svc.RequestCode(context.Background(), "12345")
	assert.ErrorIs(t, err, ErrInvalidMobile)
}

func TestOTPHandlers(t *testing.T) {
	svc, sender := newService(t, Config{Cooldown: time.Minute})
	h := NewHandler(svc, zap.NewNop().Sugar())

	do := func(fn http.HandlerFunc, body string) int {
		rec := httptest.NewRecorder()
		fn(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body)))
		return rec.Code
	}
	assert.Equal(t, http.StatusAccepted, do(h.Request, `{"mobile_number":"09175556666"}`))
	assert.Equal(t, http.StatusTooManyRequests, do(h.Request, `{"mobile_number":"09175556666"}`))
	assert.Equal(t, http.StatusBadRequest, do(h.Request, `{"mobile_number":""}`))
	assert.Equal(t, http.StatusBadRequest, do(h.Verify, `{"mobile_number":"09175556666","code":"nope"}`))
	code := sender.last("+639175556666")
	assert.Equal(t, http.StatusOK, do(h.Verify, `{"mobile_number":"09175556666","code":"`+code+`"}`))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "*********4567", mask("+639171234567"))
	assert.Equal(t, "****", mask("12"))
}
