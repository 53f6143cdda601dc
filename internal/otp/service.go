package otp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/normalize"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/otp/entity"
	otprepo "github.com/ovaphlow/pitchfork/service-household-identity/internal/otp/repo"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/security"
	"github.com/ovaphlow/pitchfork/service-household-identity/pkg/utilities"
)

const (
	CodeLength      = 6
	MaxAttempts     = 5
	DefaultTTL      = 5 * time.Minute
	DefaultCooldown = time.Minute
)

var (
	ErrInvalidMobile = errors.New("invalid mobile number")
	ErrCooldown      = errors.New("a code was requested too recently")
	ErrInvalidCode   = errors.New("invalid or expired code")
)

type Store interface {
	Insert(ctx context.Context, req *entity.Request) error
	Latest(ctx context.Context, mobile string) (*entity.Request, error)
	AddAttempt(ctx context.Context, id string) error
	Consume(ctx context.Context, id string, at time.Time, maxAttempts int) (bool, error)
}

// Sender hands a code to whatever delivers it.
type Sender interface {
	Send(ctx context.Context, mobile, code string) error
}

// LogSender records that a code was requested and delivers nothing.
type LogSender struct {
	Logger *zap.SugaredLogger
}

func (s LogSender) Send(_ context.Context, mobile, _ string) error {
	s.Logger.Infow("otp code requested", "mobile_number", mask(mobile))
	return nil
}

type Config struct {
	TTL         time.Duration
	Cooldown    time.Duration
	CountryCode string
	// BcryptCost zero means bcrypt.DefaultCost.
	BcryptCost int
}

// Service issues and checks one-time codes keyed by mobile number.
type Service struct {
	repo   Store
	sender Sender
	logger *zap.SugaredLogger
	cfg    Config
	now    func() time.Time
	code   func() (string, error)
}

func NewService(repo Store, sender Sender, logger *zap.SugaredLogger, cfg Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Cooldown < 0 {
		cfg.Cooldown = 0
	}
	if cfg.CountryCode == "" {
		cfg.CountryCode = normalize.DefaultCountryCode
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		repo:   repo,
		sender: sender,
		logger: logger,
		cfg:    cfg,
		now:    func() time.Time { return time.Now().UTC() },
		code:   func() (string, error) { return security.RandomString(CodeLength, security.DigitAlphabet) },
	}
}

// RequestCode stores a fresh code for the mobile number and passes it to the
// sender. Requests for the same number closer together than the cooldown are
// refused.
func (s *Service) RequestCode(ctx context.Context, rawMobile string) (*entity.Request, error) {
	mobile, ok := normalize.MobileWithCountry(rawMobile, s.cfg.CountryCode)
	if !ok || !strings.HasPrefix(mobile, "+") {
		return nil, ErrInvalidMobile
	}
	now := s.now()
	last, err := s.repo.Latest(ctx, mobile)
	switch {
	case err == nil:
		if now.Sub(last.CreatedAt) < s.cfg.Cooldown {
			return nil, ErrCooldown
		}
	case !errors.Is(err, otprepo.ErrNotFound):
		return nil, fmt.Errorf("load last otp request: %w", err)
	}

	code, err := s.code()
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("hash code: %w", err)
	}
	req := &entity.Request{
		ID:           utilities.NewKSUID(),
		MobileNumber: mobile,
		CodeHash:     string(hash),
		ExpiresAt:    now.Add(s.cfg.TTL),
		CreatedAt:    now,
	}
	if err := s.repo.Insert(ctx, req); err != nil {
		return nil, fmt.Errorf("insert otp request: %w", err)
	}
	if err := s.sender.Send(ctx, mobile, code); err != nil {
		return req, fmt.Errorf("send code: %w", err)
	}
	return req, nil
}

// VerifyCode checks code against the latest request for the number and uses
// it up. Each request verifies at most once.
func (s *Service) VerifyCode(ctx context.Context, rawMobile, code string) error {
	mobile, ok := normalize.MobileWithCountry(rawMobile, s.cfg.CountryCode)
	if !ok {
		return ErrInvalidMobile
	}
	req, err := s.repo.Latest(ctx, mobile)
	if errors.Is(err, otprepo.ErrNotFound) {
		return ErrInvalidCode
	}
	if err != nil {
		return fmt.Errorf("load otp request: %w", err)
	}
	now := s.now()
	if !req.Usable(now, MaxAttempts) {
		return ErrInvalidCode
	}
	if bcrypt.CompareHashAndPassword([]byte(req.CodeHash), []byte(strings.TrimSpace(code))) != nil {
		if err := s.repo.AddAttempt(ctx, req.ID); err != nil {
			s.logger.Warnw("record otp attempt failed", "otp_id", req.ID, "err", err)
		}
		return ErrInvalidCode
	}
	used, err := s.repo.Consume(ctx, req.ID, now, MaxAttempts)
	if err != nil {
		return fmt.Errorf("consume otp request: %w", err)
	}
	if !used {
		return ErrInvalidCode
	}
	s.logger.Infow("otp verified", "otp_id", req.ID)
	return nil
}

// mask keeps the last four digits of a number for logs.
func mask(mobile string) string {
	if len(mobile) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(mobile)-4) + mobile[len(mobile)-4:]
}
