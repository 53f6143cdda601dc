package household

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/household/entity"
	hhrepo "github.com/ovaphlow/pitchfork/service-household-identity/internal/household/repo"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/security"
	"github.com/ovaphlow/pitchfork/service-household-identity/pkg/database"
	"github.com/ovaphlow/pitchfork/service-household-identity/pkg/utilities"
)

const (
	JoinCodeLength          = 6
	DefaultJoinCodeAttempts = 10
)

var (
	// ErrJoinCodeExhausted is the one provisioning failure that is never
	// swallowed silently.
	ErrJoinCodeExhausted = errors.New("could not generate a unique household join code")
	ErrUnknownJoinCode   = errors.New("no household with that join code")
	// ErrOwnerHasHousehold means the owner gained a household concurrently
	// and the freshly created one was not adopted.
	ErrOwnerHasHousehold = errors.New("owner already has a household")
)

// Store is the household persistence used by the service.
type Store interface {
	Insert(ctx context.Context, h *entity.Household) error
	GetByJoinCode(ctx context.Context, code string) (*entity.Household, error)
	JoinCodeExists(ctx context.Context, code string) (bool, error)
	MemberExists(ctx context.Context, householdID, userID string) (bool, error)
	InsertMember(ctx context.Context, householdID, userID string) (bool, error)
}

// UserLinker updates the household reference on a user row.
type UserLinker interface {
	SetHouseholdIfUnset(ctx context.Context, userID, householdID string) (bool, error)
}

// Service provisions households and assigns memberships.
type Service struct {
	repo     Store
	users    UserLinker
	logger   *zap.SugaredLogger
	metrics  *metrics.Metrics
	attempts int
	joinCode func() (string, error)
}

func NewService(repo Store, users UserLinker, logger *zap.SugaredLogger, m *metrics.Metrics, attempts int) *Service {
	if attempts <= 0 {
		attempts = DefaultJoinCodeAttempts
	}
	return &Service{
		repo:     repo,
		users:    users,
		logger:   logger,
		metrics:  m,
		attempts: attempts,
		joinCode: func() (string, error) { return security.RandomString(JoinCodeLength, security.UpperAlphabet) },
	}
}

// Provision creates a household owned by ownerID under a fresh join code,
// points the owner at it and makes the owner a member. When the household
// was created but linking the owner failed, the household is returned along
// with the error.
func (s *Service) Provision(ctx context.Context, ownerID string) (*entity.Household, error) {
	var h *entity.Household
	for attempt := 1; attempt <= s.attempts && h == nil; attempt++ {
		code, err := s.joinCode()
		if err != nil {
			s.metrics.HouseholdProvision("failed")
			return nil, fmt.Errorf("generate join code: %w", err)
		}
		exists, err := s.repo.JoinCodeExists(ctx, code)
		if err != nil {
			s.metrics.HouseholdProvision("failed")
			return nil, fmt.Errorf("check join code: %w", err)
		}
		if exists {
			s.logger.Debugw("join code collision", "attempt", attempt)
			continue
		}
		now := time.Now().UTC()
		candidate := &entity.Household{
			ID:        utilities.NewSnowflakeID(),
			Name:      entity.DefaultName,
			OwnerID:   &ownerID,
			JoinCode:  code,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := s.repo.Insert(ctx, candidate); err != nil {
			if database.IsUniqueViolation(err) {
				// lost the code to a concurrent insert
				s.logger.Debugw("join code taken on insert", "attempt", attempt)
				continue
			}
			s.metrics.HouseholdProvision("failed")
			return nil, fmt.Errorf("insert household: %w", err)
		}
		h = candidate
	}
	if h == nil {
		s.metrics.HouseholdProvision("exhausted")
		s.logger.Errorw("join code generation exhausted", "owner_id", ownerID, "attempts", s.attempts)
		return nil, ErrJoinCodeExhausted
	}

	linked, err := s.users.SetHouseholdIfUnset(ctx, ownerID, h.ID)
	if err != nil {
		s.metrics.HouseholdProvision("failed")
		return h, fmt.Errorf("link owner to household: %w", err)
	}
	if !linked {
		s.metrics.HouseholdProvision("superseded")
		s.logger.Warnw("owner gained a household while provisioning", "household_id", h.ID, "owner_id", ownerID)
		return h, ErrOwnerHasHousehold
	}
	if _, err := s.EnsureMember(ctx, h.ID, ownerID); err != nil {
		s.metrics.HouseholdProvision("failed")
		return h, fmt.Errorf("add owner membership: %w", err)
	}
	s.metrics.HouseholdProvision("created")
	s.logger.Infow("household provisioned", "household_id", h.ID, "owner_id", ownerID)
	return h, nil
}

// EnsureMember makes sure (householdID, userID) is a membership. created is
// false when the row already existed, including when a concurrent caller
// inserted it between the check and the insert.
func (s *Service) EnsureMember(ctx context.Context, householdID, userID string) (bool, error) {
	exists, err := s.repo.MemberExists(ctx, householdID, userID)
	if err != nil {
		return false, fmt.Errorf("check membership: %w", err)
	}
	if exists {
		return false, nil
	}
	created, err := s.repo.InsertMember(ctx, householdID, userID)
	if err != nil {
		return false, fmt.Errorf("insert membership: %w", err)
	}
	return created, nil
}

// JoinByCode adds userID to the household behind code and adopts it as the
// user's household when none is set yet.
func (s *Service) JoinByCode(ctx context.Context, userID, code string) (*entity.Household, bool, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != JoinCodeLength {
		return nil, false, ErrUnknownJoinCode
	}
	h, err := s.repo.GetByJoinCode(ctx, code)
	if err != nil {
		if errors.Is(err, hhrepo.ErrNotFound) {
			return nil, false, ErrUnknownJoinCode
		}
		return nil, false, err
	}
	created, err := s.EnsureMember(ctx, h.ID, userID)
	if err != nil {
		return nil, false, err
	}
	if _, err := s.users.SetHouseholdIfUnset(ctx, userID, h.ID); err != nil {
		return h, created, fmt.Errorf("adopt household: %w", err)
	}
	s.logger.Infow("joined household", "household_id", h.ID, "user_id", userID, "created", created)
	return h, created, nil
}
