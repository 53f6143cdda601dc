package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/config"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/household"
	hhrepo "github.com/ovaphlow/pitchfork/service-household-identity/internal/household/repo"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/identity"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/identity/firebase"
	idrepo "github.com/ovaphlow/pitchfork/service-household-identity/internal/identity/repo"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/invitation"
	invrepo "github.com/ovaphlow/pitchfork/service-household-identity/internal/invitation/repo"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/migrate"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/otp"
	otprepo "github.com/ovaphlow/pitchfork/service-household-identity/internal/otp/repo"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/router"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/signup"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-household-identity/internal/user/repo"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := bootstrap()
		if err != nil {
			return err
		}
		defer rt.close()
		return serve(rt)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(rt *app) error {
	sugar := rt.sugar
	sugar.Infow("starting household-identity", "addr", rt.cfg.HTTPAddr, "driver", rt.cfg.Database.Driver)

	// graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if rt.cfg.AutoMigrate {
		runner, err := migrate.NewRunner(rt.db, sugar)
		if err != nil {
			return err
		}
		if _, err := runner.Up(ctx); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
	}

	handlers, err := wire(ctx, rt)
	if err != nil {
		return err
	}
	srv := &http.Server{
		Addr:              rt.cfg.HTTPAddr,
		Handler:           router.RegisterRoutes(sugar, rt.cfg.BasePath, handlers),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	sugar.Info("service is running; press Ctrl+C to stop")

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	}
	sugar.Info("shutting down")

	// give a short grace period for cleanup
	doneCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rt.db.PingContext(doneCtx); err != nil {
		sugar.Warnf("db ping on shutdown failed: %v", err)
	}
	if err := srv.Shutdown(doneCtx); err != nil {
		sugar.Warnf("http server shutdown failed: %v", err)
	}
	sugar.Info("goodbye")
	return nil
}

// wire builds every component on one database handle and metrics registry.
func wire(ctx context.Context, rt *app) (router.Handlers, error) {
	cfg, sugar := rt.cfg, rt.sugar
	m := metrics.New()
	users := userrepo.NewUserRepo(rt.db)
	hhRepo := hhrepo.NewHouseholdRepo(rt.db)
	ledger := invitation.NewLedger(invrepo.NewInvitationRepo(rt.db), sugar, m, cfg.DefaultCountryCode)
	households := household.NewService(hhRepo, users, sugar, m, cfg.JoinCodeAttempts)

	h := router.Handlers{
		OTP: otp.NewHandler(otp.NewService(otprepo.NewOTPRepo(rt.db), otp.LogSender{Logger: sugar}, sugar, otp.Config{
			TTL:         cfg.OTPTTL,
			Cooldown:    cfg.OTPCooldown,
			CountryCode: cfg.DefaultCountryCode,
		}), sugar),
		Metrics: m,
	}

	var idp signup.IdentityProvider
	var verifier household.BearerVerifier
	switch cfg.IdentityProvider {
	case config.ProviderFirebase:
		fb, err := firebase.New(ctx, cfg.FirebaseProjectID, cfg.FirebaseCredentials, sugar)
		if err != nil {
			return h, fmt.Errorf("init firebase: %w", err)
		}
		idp, verifier = fb, fb
	case config.ProviderLocal:
		local, err := identity.NewProvider(idrepo.NewIdentityRepo(rt.db), identity.Config{
			Issuer:         cfg.AuthIssuer,
			TokenTTL:       cfg.AuthTokenTTL,
			SigningKeyFile: cfg.AuthSigningKeyFile,
		}, sugar)
		if err != nil {
			return h, fmt.Errorf("init identity provider: %w", err)
		}
		idp, verifier = local, local
		h.Identity = identity.NewHandler(local, sugar)
	default:
		return h, fmt.Errorf("unknown identity provider %q", cfg.IdentityProvider)
	}

	authz := household.NewAuthorizer(verifier, hhRepo, sugar)
	h.Users = user.NewHandler(user.NewUserService(users, sugar, cfg.DefaultCountryCode), authz, sugar)
	h.Invitation = invitation.NewHandler(ledger, authz, sugar)
	h.Household = household.NewHandler(households, verifier, sugar)
	h.Signup = signup.NewHandler(signup.NewService(signup.Deps{
		Identities:  idp,
		Users:       users,
		Ledger:      ledger,
		Households:  households,
		Logger:      sugar,
		Metrics:     m,
		CountryCode: cfg.DefaultCountryCode,
	}), sugar)
	return h, nil
}
