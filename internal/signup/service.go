package signup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/household"
	hhentity "github.com/ovaphlow/pitchfork/service-household-identity/internal/household/entity"
	identityentity "github.com/ovaphlow/pitchfork/service-household-identity/internal/identity/entity"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/invitation"
	inventity "github.com/ovaphlow/pitchfork/service-household-identity/internal/invitation/entity"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-household-identity/internal/normalize"
	userentity "github.com/ovaphlow/pitchfork/service-household-identity/internal/user/entity"
	"github.com/ovaphlow/pitchfork/service-household-identity/pkg/database"
)

// maxFallbackGrants bounds how many contact-matched grants a signup tries
// after losing the consume of the one it resolved.
const maxFallbackGrants = 3

// IdentityProvider is the authentication collaborator. Both the local
// provider and the Firebase adapter satisfy it.
type IdentityProvider interface {
	CreatePasswordIdentity(ctx context.Context, in identityentity.NewIdentity) (*identityentity.Identity, error)
	VerifyBearer(ctx context.Context, token string) (*identityentity.Identity, error)
}

// UserStore is the user persistence a signup runs on.
type UserStore interface {
	UserFinder
	MergeStore
	Settle(ctx context.Context, u *userentity.User, overrideRole bool) (*userentity.User, error)
	ApplyInvitation(ctx context.Context, userID string, role userentity.Role, householdID *string) error
}

// InvitationLedger is the ledger as the orchestrator uses it.
type InvitationLedger interface {
	GrantFinder
	ConsumeByID(ctx context.Context, id string) (*inventity.Grant, error)
	StampUser(ctx context.Context, id, userID string) error
}

// Households provisions households and memberships.
type Households interface {
	Provision(ctx context.Context, ownerID string) (*hhentity.Household, error)
	EnsureMember(ctx context.Context, householdID, userID string) (bool, error)
}

// Result is a successful signup. Created is false when an existing user was
// linked instead of a new one being written.
type Result struct {
	IdentityID  string
	Role        userentity.Role
	HouseholdID *string
	Created     bool
	Warnings    []string
}

// Warning joins the non-fatal problems into one line, empty when none.
func (r *Result) Warning() string { return strings.Join(r.Warnings, "; ") }

func (r *Result) warn(msg string) { r.Warnings = append(r.Warnings, msg) }

// Service runs signups end to end.
type Service struct {
	identities  IdentityProvider
	users       UserStore
	ledger      InvitationLedger
	households  Households
	resolver    *Resolver
	reconciler  *Reconciler
	logger      *zap.SugaredLogger
	metrics     *metrics.Metrics
	countryCode string
	now         func() time.Time
}

// Deps are the collaborators of a Service.
type Deps struct {
	Identities  IdentityProvider
	Users       UserStore
	Ledger      InvitationLedger
	Households  Households
	Logger      *zap.SugaredLogger
	Metrics     *metrics.Metrics
	CountryCode string
}

// NewService builds a Service, defaulting the country code.
func NewService(d Deps) *Service {
	if d.CountryCode == "" {
		d.CountryCode = normalize.DefaultCountryCode
	}
	return &Service{
		identities:  d.Identities,
		users:       d.Users,
		ledger:      d.Ledger,
		households:  d.Households,
		resolver:    NewResolver(d.Users, d.Ledger, d.Logger),
		reconciler:  NewReconciler(d.Users, d.Logger, d.Metrics),
		logger:      d.Logger,
		metrics:     d.Metrics,
		countryCode: d.CountryCode,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Signup resolves req into exactly one canonical user. Failures of secondary
// steps come back as warnings on the result; only *Error values are returned.
func (s *Service) Signup(ctx context.Context, req Request) (*Result, error) {
	contact := requestContact(req, s.countryCode)
	flow, ferr := classify(req, contact)
	if ferr != nil {
		s.metrics.SignupRequest("unknown", ferr.Kind.String())
		return nil, ferr
	}
	res, err := s.run(ctx, flow, req, contact)
	if err != nil {
		s.metrics.SignupRequest(flow.Name(), KindOf(err).String())
		if KindOf(err) == KindFatal {
			s.logger.Errorw("signup failed", "flow", flow.Name(), "err", err)
		}
		return nil, err
	}
	outcome := "linked"
	if res.Created {
		outcome = "created"
	}
	s.metrics.SignupRequest(flow.Name(), outcome)
	s.logger.Infow("signup complete", "flow", flow.Name(), "identity_id", res.IdentityID,
		"role", res.Role, "household_id", res.HouseholdID, "warnings", len(res.Warnings))
	return res, nil
}

func (s *Service) run(ctx context.Context, flow Flow, req Request, contact userentity.Contact) (*Result, error) {
	var ident *identityentity.Identity
	switch f := flow.(type) {
	case OAuthExisting:
		id, err := s.verify(ctx, f.Bearer)
		if err != nil {
			return nil, err
		}
		ident = id
	case LinkExisting:
		if f.Bearer != "" {
			id, err := s.verify(ctx, f.Bearer)
			if err != nil {
				return nil, err
			}
			ident = id
		}
	}
	if ident != nil {
		contact = withIdentityContact(contact, ident.Email, ident.Phone, s.countryCode)
	}
	if contact.Email == nil && contact.MobileNumber == nil {
		return nil, inputError("email or mobile_number required")
	}

	grant, err := s.resolver.FindInvitation(ctx, req.InviteToken, contact)
	if err != nil {
		return nil, fatalError("resolve invitation", err)
	}
	settled, err := s.resolver.FindSettled(ctx, contact)
	if err != nil {
		return nil, fatalError("resolve existing user", err)
	}

	if _, ok := flow.(LinkExisting); ok {
		return s.linkExisting(ctx, ident, settled, grant)
	}

	if settled != nil && (ident == nil || settled.ID != ident.ID) {
		if grant == nil {
			return nil, conflictError("contact already belongs to a registered user")
		}
		res := &Result{IdentityID: settled.ID, Role: settled.Role, HouseholdID: settled.HouseholdID}
		if !s.applyGrant(ctx, res, settled, grant, contact) {
			return nil, conflictError("contact already belongs to a registered user")
		}
		res.warn("contact already registered; invitation linked to the existing account")
		s.logger.Warnw("invitation linked to settled user holding signup contact",
			"user_id", settled.ID, "invitation_id", grant.ID)
		return res, nil
	}

	pending, matches, err := s.resolver.FindPending(ctx, contact)
	if err != nil {
		return nil, fatalError("resolve pending user", err)
	}
	if matches > 1 {
		s.logger.Warnw("multiple pending users match contact", "pending_id", pending.ID, "matches", matches)
	}

	if f, ok := flow.(PasswordNew); ok {
		id, err := s.identities.CreatePasswordIdentity(ctx, identityentity.NewIdentity{
			Email:    deref(contact.Email),
			Phone:    deref(contact.MobileNumber),
			Password: f.Password,
			Name:     strings.TrimSpace(req.FullName),
		})
		switch {
		case errors.Is(err, identityentity.ErrIdentityExists):
			return nil, conflictError("an account with this email or mobile number already exists")
		case err != nil:
			return nil, fatalError("create identity", err)
		}
		ident = id
	}

	target := s.target(req, ident, contact, grant != nil)
	res := &Result{Created: settled == nil}
	var user *userentity.User
	if pending != nil {
		mr := s.reconciler.Merge(ctx, pending, target)
		if mr.Merged() {
			user = mr.Outcome.User
		} else {
			res.warn("pending profile could not be merged")
		}
	}
	if user == nil {
		u, err := s.create(ctx, target)
		if err != nil {
			return nil, err
		}
		user = u
	}
	res.IdentityID, res.Role, res.HouseholdID = user.ID, user.Role, user.HouseholdID

	applied := grant != nil && s.applyGrant(ctx, res, user, grant, contact)
	switch {
	case !applied && user.Role == userentity.RoleAmo && user.HouseholdID == nil:
		s.provision(ctx, res, user)
	case !applied && user.HouseholdID != nil:
		if _, err := s.households.EnsureMember(ctx, *user.HouseholdID, user.ID); err != nil {
			s.logger.Warnw("membership for inherited household failed", "user_id", user.ID, "err", err)
			res.warn("household membership could not be recorded")
		}
	}
	return res, nil
}

func (s *Service) verify(ctx context.Context, bearer string) (*identityentity.Identity, error) {
	id, err := s.identities.VerifyBearer(ctx, bearer)
	if err != nil {
		return nil, authError("invalid bearer credential", err)
	}
	return id, nil
}

// linkExisting attaches an invitation to a settled user. The grant is only
// consumed once the user is known to exist.
func (s *Service) linkExisting(ctx context.Context, ident *identityentity.Identity, settled *userentity.User, grant *inventity.Grant) (*Result, error) {
	if settled == nil {
		return nil, notFoundError("no existing user matches this contact")
	}
	if ident != nil && ident.ID != settled.ID {
		return nil, authError("credential does not belong to the matched user", nil)
	}
	if grant == nil {
		return nil, notFoundError("no open invitation for this user")
	}
	res := &Result{IdentityID: settled.ID, Role: settled.Role, HouseholdID: settled.HouseholdID}
	if !s.applyGrant(ctx, res, settled, grant, settled.Contact()) {
		res.warn("invitation was already used")
	}
	return res, nil
}

// target builds the canonical row from the caller's values. The caller's
// role is dropped when an invitation is in play; the grant decides it once
// consumed.
func (s *Service) target(req Request, ident *identityentity.Identity, c userentity.Contact, invited bool) *userentity.User {
	u := &userentity.User{
		ID:           ident.ID,
		Email:        c.Email,
		MobileNumber: c.MobileNumber,
		FullName:     strings.TrimSpace(req.FullName),
		FirstName:    optional(req.FirstName),
		LastName:     optional(req.LastName),
		Nickname:     optional(req.Nickname),
		Color:        optional(req.Color),
	}
	if u.FullName == "" {
		u.FullName = strings.TrimSpace(ident.Name)
	}
	if !invited {
		u.Role = req.Role
	}
	return u
}

// create writes target as a plain canonical row. A row already kept for the
// identity, possibly written by a concurrent merge, is only filled in, so its
// household and role survive.
func (s *Service) create(ctx context.Context, target *userentity.User) (*userentity.User, error) {
	u := *target
	overrideRole := u.Role != ""
	finalize(&u, s.now())
	stored, err := s.users.Settle(ctx, &u, overrideRole)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, conflictError("contact is held by another profile")
		}
		return nil, fatalError("write canonical user", err)
	}
	return stored, nil
}

// applyGrant consumes grant, or the next open grant for the contact when that
// one was taken first, and gives user its role and household. It reports
// whether a grant was applied; failures after the consume become warnings.
func (s *Service) applyGrant(ctx context.Context, res *Result, user *userentity.User, grant *inventity.Grant, c userentity.Contact) bool {
	won, err := s.consume(ctx, grant, c)
	if err != nil {
		s.logger.Warnw("invitation consume failed", "invitation_id", grant.ID, "err", err)
		res.warn("invitation could not be consumed")
		return false
	}
	if won == nil {
		s.logger.Infow("invitation taken by a concurrent signup", "invitation_id", grant.ID, "user_id", user.ID)
		return false
	}

	role := userentity.RoleKasambahay
	if err := s.users.ApplyInvitation(ctx, user.ID, role, won.HouseholdID); err != nil {
		s.logger.Warnw("apply invitation failed", "invitation_id", won.ID, "user_id", user.ID, "err", err)
		res.warn("invitation role and household could not be applied")
	} else {
		user.Role = role
		if won.HouseholdID != nil {
			user.HouseholdID = won.HouseholdID
		}
		res.Role, res.HouseholdID = user.Role, user.HouseholdID
	}
	if won.HouseholdID != nil {
		if _, err := s.households.EnsureMember(ctx, *won.HouseholdID, user.ID); err != nil {
			s.logger.Warnw("invitation membership failed", "invitation_id", won.ID, "user_id", user.ID, "err", err)
			res.warn("household membership could not be recorded")
		}
	}
	if err := s.ledger.StampUser(ctx, won.ID, user.ID); err != nil {
		s.logger.Warnw("stamp invitation user failed", "invitation_id", won.ID, "user_id", user.ID, "err", err)
		res.warn("invitation could not be linked to the user")
	}
	s.logger.Infow("invitation applied", "invitation_id", won.ID, "user_id", user.ID, "household_id", won.HouseholdID)
	return true
}

// consume takes grant and, while it keeps losing, the newest open grant for
// the contact. A nil grant with a nil error means every candidate was taken.
func (s *Service) consume(ctx context.Context, grant *inventity.Grant, c userentity.Contact) (*inventity.Grant, error) {
	candidate := grant
	for i := 0; i <= maxFallbackGrants && candidate != nil; i++ {
		won, err := s.ledger.ConsumeByID(ctx, candidate.ID)
		if err == nil {
			return won, nil
		}
		if !errors.Is(err, invitation.ErrAlreadyConsumed) && !errors.Is(err, invitation.ErrNotFound) {
			return nil, err
		}
		next, err := s.ledger.FindOpenByContact(ctx, c.MobileNumber, c.Email)
		switch {
		case errors.Is(err, invitation.ErrNotFound):
			return nil, nil
		case err != nil:
			return nil, fmt.Errorf("find fallback invitation: %w", err)
		}
		candidate = next
	}
	return nil, nil
}

// provision gives an owner without a household a fresh one.
func (s *Service) provision(ctx context.Context, res *Result, user *userentity.User) {
	h, err := s.households.Provision(ctx, user.ID)
	switch {
	case err == nil:
		user.HouseholdID = &h.ID
		res.HouseholdID = user.HouseholdID
	case errors.Is(err, household.ErrJoinCodeExhausted):
		res.warn("household could not be created: no free join code")
	case errors.Is(err, household.ErrOwnerHasHousehold):
		s.logger.Infow("owner got a household concurrently", "user_id", user.ID)
		if u, gerr := s.users.GetByID(ctx, user.ID); gerr == nil {
			res.HouseholdID = u.HouseholdID
		}
	default:
		s.logger.Warnw("household provisioning failed", "user_id", user.ID, "err", err)
		res.warn("household could not be created")
	}
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
