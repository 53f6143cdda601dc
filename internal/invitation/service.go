package invitation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/invitation/entity"
	invrepo "github.com/ovaphlow/pitchfork/service-household-identity/internal/invitation/repo"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/normalize"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/security"
	userentity "github.com/ovaphlow/pitchfork/service-household-identity/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-household-identity/pkg/utilities"
)

var (
	ErrNotFound        = errors.New("invitation not found")
	ErrAlreadyConsumed = errors.New("invitation already consumed")
	ErrContactRequired = errors.New("invitation needs an email or mobile number")
)

// Store is the persistence the ledger runs on.
type Store interface {
	Insert(ctx context.Context, g *entity.Grant) error
	GetByID(ctx context.Context, id string) (*entity.Grant, error)
	GetByTokenHash(ctx context.Context, hash string) (*entity.Grant, error)
	ConsumeByTokenHash(ctx context.Context, hash string, at time.Time) (*entity.Grant, error)
	ConsumeByID(ctx context.Context, id string, at time.Time) (*entity.Grant, error)
	StampUser(ctx context.Context, id, userID string) error
	FindOpenByMobile(ctx context.Context, mobile string) (*entity.Grant, error)
	FindOpenByEmail(ctx context.Context, email string) (*entity.Grant, error)
}

// Ledger tracks invitation grants. Validation never writes; consumption is a
// single gated update so each grant is used at most once.
type Ledger struct {
	repo        Store
	logger      *zap.SugaredLogger
	metrics     *metrics.Metrics
	countryCode string
	now         func() time.Time
}

func NewLedger(repo Store, logger *zap.SugaredLogger, m *metrics.Metrics, countryCode string) *Ledger {
	if countryCode == "" {
		countryCode = normalize.DefaultCountryCode
	}
	return &Ledger{repo: repo, logger: logger, metrics: m, countryCode: countryCode, now: func() time.Time { return time.Now().UTC() }}
}

func mapNotFound(err error) error {
	if errors.Is(err, invrepo.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// Validate returns the grant behind token with its current status.
func (l *Ledger) Validate(ctx context.Context, token string) (*entity.Grant, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNotFound
	}
	g, err := l.repo.GetByTokenHash(ctx, security.HashToken(token))
	return g, mapNotFound(err)
}

// Consume transitions the grant behind token from new to done.
func (l *Ledger) Consume(ctx context.Context, token string) (*entity.Grant, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrNotFound
	}
	hash := security.HashToken(token)
	g, err := l.repo.ConsumeByTokenHash(ctx, hash, l.now())
	if err == nil {
		l.metrics.InvitationConsume("won")
		return g, nil
	}
	return nil, l.lost(ctx, err, func() error {
		_, err := l.repo.GetByTokenHash(ctx, hash)
		return err
	})
}

// ConsumeByID is Consume keyed by grant id, for grants found by contact.
func (l *Ledger) ConsumeByID(ctx context.Context, id string) (*entity.Grant, error) {
	g, err := l.repo.ConsumeByID(ctx, id, l.now())
	if err == nil {
		l.metrics.InvitationConsume("won")
		return g, nil
	}
	return nil, l.lost(ctx, err, func() error {
		_, err := l.repo.GetByID(ctx, id)
		return err
	})
}

// lost tells an already-consumed grant apart from a missing one after the
// gated update matched nothing.
func (l *Ledger) lost(ctx context.Context, err error, exists func() error) error {
	if !errors.Is(err, invrepo.ErrNotFound) {
		return fmt.Errorf("consume invitation: %w", err)
	}
	if lookupErr := exists(); lookupErr == nil {
		l.metrics.InvitationConsume("already_consumed")
		return ErrAlreadyConsumed
	} else if !errors.Is(lookupErr, invrepo.ErrNotFound) {
		return fmt.Errorf("look up invitation: %w", lookupErr)
	}
	l.metrics.InvitationConsume("not_found")
	return ErrNotFound
}

// StampUser records the canonical user that consumed the grant.
func (l *Ledger) StampUser(ctx context.Context, id, userID string) error {
	return mapNotFound(l.repo.StampUser(ctx, id, userID))
}

// FindOpenByContact returns the newest new grant for mobile, else for email.
// Either argument may be nil.
func (l *Ledger) FindOpenByContact(ctx context.Context, mobile, email *string) (*entity.Grant, error) {
	if mobile != nil {
		g, err := l.repo.FindOpenByMobile(ctx, *mobile)
		if err == nil {
			return g, nil
		}
		if !errors.Is(err, invrepo.ErrNotFound) {
			return nil, err
		}
	}
	if email != nil {
		g, err := l.repo.FindOpenByEmail(ctx, *email)
		return g, mapNotFound(err)
	}
	return nil, ErrNotFound
}

// IsInvitee reports whether an identity with email and phone is the contact
// g was issued to.
func (l *Ledger) IsInvitee(g *entity.Grant, email, phone string) bool {
	if e := normalize.EmailPtr(email); e != nil && g.Email != nil && *e == *g.Email {
		return true
	}
	if m, ok := normalize.MobileWithCountry(phone, l.countryCode); ok && g.MobileNumber != nil && m == *g.MobileNumber {
		return true
	}
	return false
}

// IssueInput describes a new grant.
type IssueInput struct {
	Email        string
	MobileNumber string
	Name         string
	Nickname     string
	Role         userentity.Role
	HouseholdID  string
	// PendingUserID is the placeholder the grant is issued against, if any.
	PendingUserID string
}

// Issue creates a new grant and returns it with its opaque token. The token
// is not recoverable afterwards.
func (l *Ledger) Issue(ctx context.Context, in IssueInput) (*entity.Grant, string, error) {
	g := &entity.Grant{
		ID:       utilities.NewKSUID(),
		Email:    normalize.EmailPtr(in.Email),
		Name:     strings.TrimSpace(in.Name),
		Nickname: optional(in.Nickname),
		Role:     in.Role,
		Status:   entity.StatusNew,
		UserID:   optional(in.PendingUserID),
	}
	if m, ok := normalize.MobileWithCountry(in.MobileNumber, l.countryCode); ok {
		g.MobileNumber = &m
	}
	if g.Email == nil && g.MobileNumber == nil {
		return nil, "", ErrContactRequired
	}
	if !g.Role.Valid() {
		g.Role = userentity.RoleKasambahay
	}
	g.HouseholdID = optional(in.HouseholdID)

	token, err := security.OpaqueToken(32)
	if err != nil {
		return nil, "", fmt.Errorf("generate token: %w", err)
	}
	g.TokenHash = security.HashToken(token)
	now := l.now()
	g.CreatedAt, g.UpdatedAt = now, now
	if err := l.repo.Insert(ctx, g); err != nil {
		return nil, "", fmt.Errorf("insert invitation: %w", err)
	}
	l.logger.Infow("invitation issued", "invitation_id", g.ID, "household_id", g.HouseholdID, "role", g.Role)
	return g, token, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
