// Package config gathers the service's environment into one struct. The
// database and logger blocks reuse the readers of their own packages.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/household"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/normalize"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/otp"
	"github.com/ovaphlow/pitchfork/service-household-identity/pkg/database"
	"github.com/ovaphlow/pitchfork/service-household-identity/pkg/utilities"
)

const (
	ProviderLocal    = "local"
	ProviderFirebase = "firebase"
)

type Config struct {
	HTTPAddr    string
	// BasePath prefixes every route, "/household-identity" by default.
	BasePath    string
	AutoMigrate bool

	Database database.Config
	Log      utilities.Config

	IdentityProvider    string
	AuthIssuer          string
	AuthSigningKeyFile  string
	AuthTokenTTL        time.Duration
	FirebaseProjectID   string
	FirebaseCredentials string
	DefaultCountryCode  string
	JoinCodeAttempts    int
	OTPTTL              time.Duration
	OTPCooldown         time.Duration
}

// FromEnv reads the configuration from environment variables, applying
// defaults for anything unset or unparsable.
func FromEnv() Config {
	return Config{
		HTTPAddr:            envString("HTTP_ADDR", "0.0.0.0:8431"),
		BasePath:            "/" + strings.Trim(envString("PUBLIC_BASE_PATH", "household-identity"), "/"),
		AutoMigrate:         envBool("DATABASE_AUTO_MIGRATE", false),
		Database:            database.ConfigFromEnv(),
		Log:                 utilities.ConfigFromEnv(),
		IdentityProvider:    strings.ToLower(envString("IDENTITY_PROVIDER", ProviderLocal)),
		AuthIssuer:          envString("AUTH_ISSUER", "household-identity"),
		AuthSigningKeyFile:  os.Getenv("AUTH_SIGNING_KEY_FILE"),
		AuthTokenTTL:        envDuration("AUTH_TOKEN_TTL", 15*time.Minute),
		FirebaseProjectID:   os.Getenv("FIREBASE_PROJECT_ID"),
		FirebaseCredentials: os.Getenv("FIREBASE_CREDENTIALS_FILE"),
		DefaultCountryCode:  envString("DEFAULT_COUNTRY_CODE", normalize.DefaultCountryCode),
		JoinCodeAttempts:    envInt("JOIN_CODE_ATTEMPTS", household.DefaultJoinCodeAttempts),
		OTPTTL:              envDuration("OTP_TTL", otp.DefaultTTL),
		OTPCooldown:         envDuration("OTP_COOLDOWN", otp.DefaultCooldown),
	}
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(os.Getenv(key)); err == nil && v > 0 {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	if v, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return v
	}
	return def
}

// envDuration accepts Go durations ("90s") or plain seconds ("90").
func envDuration(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return def
}
