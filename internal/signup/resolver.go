package signup

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/invitation"
	inventity "github.com/ovaphlow/pitchfork/service-household-identity/internal/invitation/entity"
	userentity "github.com/ovaphlow/pitchfork/service-household-identity/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-household-identity/internal/user/repo"
)

// UserFinder is the read side of the user store the resolver needs.
type UserFinder interface {
	FindSettledByContact(ctx context.Context, c userentity.Contact) (*userentity.User, error)
	FindPendingByEmail(ctx context.Context, email string) ([]userentity.User, error)
	FindPendingByMobile(ctx context.Context, mobile string) ([]userentity.User, error)
}

// GrantFinder is the read-only side of the invitation ledger.
type GrantFinder interface {
	Validate(ctx context.Context, token string) (*inventity.Grant, error)
	FindOpenByContact(ctx context.Context, mobile, email *string) (*inventity.Grant, error)
}

// Resolver finds the invitation grant, placeholder and settled user a signup
// may collide with. It never writes.
type Resolver struct {
	users  UserFinder
	grants GrantFinder
	logger *zap.SugaredLogger
}

// NewResolver builds a Resolver over the user and invitation lookups.
func NewResolver(users UserFinder, grants GrantFinder, logger *zap.SugaredLogger) *Resolver {
	return &Resolver{users: users, grants: grants, logger: logger}
}

// FindInvitation validates token and falls back to the newest open grant for
// the contact when the token is absent, unknown or already used. A nil grant
// with a nil error means no invitation applies.
func (r *Resolver) FindInvitation(ctx context.Context, token string, c userentity.Contact) (*inventity.Grant, error) {
	if token = strings.TrimSpace(token); token != "" {
		g, err := r.grants.Validate(ctx, token)
		switch {
		case err == nil && g.Open():
			return g, nil
		case err == nil:
			r.logger.Infow("invitation token already used, trying contact", "invitation_id", g.ID)
		case errors.Is(err, invitation.ErrNotFound):
			r.logger.Infow("invitation token unknown, trying contact")
		default:
			return nil, fmt.Errorf("validate invitation: %w", err)
		}
	}
	if c.Email == nil && c.MobileNumber == nil {
		return nil, nil
	}
	g, err := r.grants.FindOpenByContact(ctx, c.MobileNumber, c.Email)
	if errors.Is(err, invitation.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find invitation by contact: %w", err)
	}
	return g, nil
}

// FindPending returns the newest unclaimed placeholder matching the contact,
// by email first and then by mobile, with the number of rows that matched on
// that key.
func (r *Resolver) FindPending(ctx context.Context, c userentity.Contact) (*userentity.User, int, error) {
	if c.Email != nil {
		rows, err := r.users.FindPendingByEmail(ctx, *c.Email)
		if err != nil {
			return nil, 0, fmt.Errorf("find pending by email: %w", err)
		}
		if len(rows) > 0 {
			return &rows[0], len(rows), nil
		}
	}
	if c.MobileNumber != nil {
		rows, err := r.users.FindPendingByMobile(ctx, *c.MobileNumber)
		if err != nil {
			return nil, 0, fmt.Errorf("find pending by mobile: %w", err)
		}
		if len(rows) > 0 {
			return &rows[0], len(rows), nil
		}
	}
	return nil, 0, nil
}

// FindSettled returns the canonical user holding the contact, or nil.
func (r *Resolver) FindSettled(ctx context.Context, c userentity.Contact) (*userentity.User, error) {
	if c.Email == nil && c.MobileNumber == nil {
		return nil, nil
	}
	u, err := r.users.FindSettledByContact(ctx, c)
	if errors.Is(err, userrepo.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find settled user: %w", err)
	}
	return u, nil
}
