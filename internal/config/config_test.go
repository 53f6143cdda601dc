package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/household"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/otp"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"HTTP_ADDR", "PUBLIC_BASE_PATH", "DATABASE_AUTO_MIGRATE", "IDENTITY_PROVIDER",
		"AUTH_ISSUER", "AUTH_TOKEN_TTL", "DEFAULT_COUNTRY_CODE", "JOIN_CODE_ATTEMPTS",
		"OTP_TTL", "OTP_COOLDOWN",
	} {
		t.Setenv(k, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	cfg := FromEnv()
	assert.Equal(t, "0.0.0.0:8431", cfg.HTTPAddr)
	assert.Equal(t, "/household-identity", cfg.BasePath)
	assert.False(t, cfg.AutoMigrate)
	assert.Equal(t, ProviderLocal, cfg.IdentityProvider)
	assert.Equal(t, 15*time.Minute, cfg.AuthTokenTTL)
	assert.Equal(t, household.DefaultJoinCodeAttempts, cfg.JoinCodeAttempts)
	assert.Equal(t, otp.DefaultTTL, cfg.OTPTTL)
	assert.Equal(t, otp.DefaultCooldown, cfg.OTPCooldown)
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("PUBLIC_BASE_PATH", "/api/v1/")
	t.Setenv("DATABASE_AUTO_MIGRATE", "true")
	t.Setenv("IDENTITY_PROVIDER", "Firebase")
	t.Setenv("AUTH_TOKEN_TTL", "90")
	t.Setenv("JOIN_CODE_ATTEMPTS", "3")
	t.Setenv("OTP_TTL", "2m")
	t.Setenv("OTP_COOLDOWN", "not-a-duration")

	cfg := FromEnv()
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTPAddr)
	assert.Equal(t, "/api/v1", cfg.BasePath)
	assert.True(t, cfg.AutoMigrate)
	assert.Equal(t, ProviderFirebase, cfg.IdentityProvider)
	assert.Equal(t, 90*time.Second, cfg.AuthTokenTTL)
	assert.Equal(t, 3, cfg.JoinCodeAttempts)
	assert.Equal(t, 2*time.Minute, cfg.OTPTTL)
	assert.Equal(t, otp.DefaultCooldown, cfg.OTPCooldown)
}
