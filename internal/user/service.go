package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/normalize"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-household-identity/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-household-identity/pkg/database"
	"github.com/ovaphlow/pitchfork/service-household-identity/pkg/utilities"
)

var (
	ErrContactRequired = errors.New("email or mobile number required")
	ErrContactTaken    = errors.New("contact already belongs to a registered user")
)

// Store is the slice of the user repository the service needs.
type Store interface {
	FindSettledByContact(ctx context.Context, c entity.Contact) (*entity.User, error)
	InsertPending(ctx context.Context, u *entity.User) error
}

// UserService manages placeholder reservations made ahead of signup.
type UserService struct {
	repo        Store
	logger      *zap.SugaredLogger
	countryCode string
}

func NewUserService(repo Store, logger *zap.SugaredLogger, countryCode string) *UserService {
	if countryCode == "" {
		countryCode = normalize.DefaultCountryCode
	}
	return &UserService{repo: repo, logger: logger, countryCode: countryCode}
}

// ReserveInput describes a placeholder profile created before any credential exists.
type ReserveInput struct {
	Email        string
	MobileNumber string
	FullName     string
	FirstName    string
	LastName     string
	Nickname     string
	Role         entity.Role
	SpecificRole string
	HouseholdID  string
	Color        string
}

// Reserve creates a PendingUser. A contact already held by a settled user is
// rejected; one held by another pending user surfaces as a unique violation.
func (s *UserService) Reserve(ctx context.Context, in ReserveInput) (*entity.User, error) {
	u := &entity.User{
		ID:           utilities.NewKSUID(),
		Email:        normalize.EmailPtr(in.Email),
		FullName:     strings.TrimSpace(in.FullName),
		FirstName:    optional(in.FirstName),
		LastName:     optional(in.LastName),
		Nickname:     optional(in.Nickname),
		Role:         in.Role,
		SpecificRole: optional(in.SpecificRole),
		HouseholdID:  optional(in.HouseholdID),
		Color:        optional(in.Color),
	}
	if m, ok := normalize.MobileWithCountry(in.MobileNumber, s.countryCode); ok {
		u.MobileNumber = &m
	}
	if u.Email == nil && u.MobileNumber == nil {
		return nil, ErrContactRequired
	}
	if !u.Role.Valid() {
		u.Role = entity.RoleAmo
	}

	if _, err := s.repo.FindSettledByContact(ctx, u.Contact()); err == nil {
		return nil, ErrContactTaken
	} else if !errors.Is(err, userrepo.ErrNotFound) {
		return nil, fmt.Errorf("check contact: %w", err)
	}

	now := time.Now().UTC()
	u.CreatedAt, u.UpdatedAt = now, now
	if err := s.repo.InsertPending(ctx, u); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrContactTaken
		}
		return nil, fmt.Errorf("insert pending user: %w", err)
	}
	s.logger.Infow("pending user reserved", "pending_id", u.ID, "household_id", u.HouseholdID)
	return u, nil
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
