package router

import (
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/household"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/identity"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/invitation"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/otp"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/signup"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/user"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware logs every request; server errors at warn, the rest at debug.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			// ensure status is set
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			log := logger.Debugw
			if status >= http.StatusInternalServerError {
				log = logger.Warnw
			}
			log("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers. Responses are
// JSON only, so the CSP denies everything.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "no-referrer")
			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")
			w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			w.Header().Set("Cache-Control", "no-store")

			if r.TLS != nil {
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Handlers are the domain endpoints mounted under the base path. A nil
// handler leaves its routes unmounted.
type Handlers struct {
	Signup     *signup.Handler
	Users      *user.Handler
	Invitation *invitation.Handler
	Household  *household.Handler
	Identity   *identity.Handler
	OTP        *otp.Handler
	Metrics    *metrics.Metrics
}

// RegisterRoutes mounts HTTP handlers using the standard library's http.ServeMux.
func RegisterRoutes(logger *zap.SugaredLogger, basePath string, h Handlers) http.Handler {
	mux := http.NewServeMux()
	base := "/" + strings.Trim(basePath, "/")

	// health
	mux.HandleFunc("GET "+base+"/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if h.Signup != nil {
		mux.HandleFunc("POST "+base+"/signup", h.Signup.Signup)
	}
	if h.Users != nil {
		mux.HandleFunc("POST "+base+"/pending-users", h.Users.Reserve)
	}
	if h.Invitation != nil {
		mux.HandleFunc("POST "+base+"/invitations", h.Invitation.Issue)
		mux.HandleFunc("POST "+base+"/invitations/validate", h.Invitation.Validate)
		mux.HandleFunc("POST "+base+"/invitations/consume", h.Invitation.Consume)
	}
	if h.Household != nil {
		mux.HandleFunc("POST "+base+"/households/join", h.Household.Join)
	}
	if h.Identity != nil {
		mux.HandleFunc("POST "+base+"/auth/token", h.Identity.Token)
		mux.HandleFunc("GET "+base+"/auth/jwks.json", h.Identity.JWKS)
	}
	if h.OTP != nil {
		mux.HandleFunc("POST "+base+"/otp/request", h.OTP.Request)
		mux.HandleFunc("POST "+base+"/otp/verify", h.OTP.Verify)
	}
	mux.Handle("GET /metrics", h.Metrics.Handler())

	// wrap with security headers middleware then logging middleware
	handler := LoggingMiddleware(logger)(SecurityHeadersMiddleware()(mux))
	return handler
}
