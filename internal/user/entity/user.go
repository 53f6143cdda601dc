package entity

import (
	"errors"
	"strings"
	"time"
)

// Role is the closed set of household roles. It is parsed once at the
// boundary; everything past the handler works with the typed value.
type Role string

const (
	RoleAmo        Role = "amo"
	RoleKasambahay Role = "kasambahay"
)

var ErrUnknownRole = errors.New("unknown role")

// ParseRole accepts the wire spelling of a role. An empty value yields the
// owner role.
func ParseRole(raw string) (Role, error) {
	switch Role(strings.ToLower(strings.TrimSpace(raw))) {
	case "", RoleAmo:
		return RoleAmo, nil
	case RoleKasambahay:
		return RoleKasambahay, nil
	default:
		return "", ErrUnknownRole
	}
}

func (r Role) Valid() bool { return r == RoleAmo || r == RoleKasambahay }

// User is a row of the `users` table. Canonical rows carry IdentityID == ID;
// pending rows have IsPending set and no identity.
type User struct {
	ID                  string     `db:"id" json:"id"`
	IdentityID          *string    `db:"identity_id" json:"identity_id,omitempty"`
	IsPending           bool       `db:"is_pending" json:"is_pending"`
	Email               *string    `db:"email" json:"email,omitempty"`
	MobileNumber        *string    `db:"mobile_number" json:"mobile_number,omitempty"`
	FullName            string     `db:"full_name" json:"full_name"`
	FirstName           *string    `db:"first_name" json:"first_name,omitempty"`
	LastName            *string    `db:"last_name" json:"last_name,omitempty"`
	Nickname            *string    `db:"nickname" json:"nickname,omitempty"`
	Role                Role       `db:"role" json:"role"`
	SpecificRole        *string    `db:"specific_role" json:"specific_role,omitempty"`
	HouseholdID         *string    `db:"household_id" json:"household_id,omitempty"`
	OnboardingCompleted bool       `db:"onboarding_completed" json:"onboarding_completed"`
	Color               *string    `db:"color" json:"color,omitempty"`
	// ClaimedBy/ClaimedAt hold the lease a reconciliation takes on a pending row.
	ClaimedBy           *string    `db:"claimed_by" json:"-"`
	ClaimedAt           *time.Time `db:"claimed_at" json:"-"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
}

// Contact is the pair of uniqueness-constrained identifiers of a row.
type Contact struct {
	Email        *string
	MobileNumber *string
}

func (u *User) Contact() Contact {
	return Contact{Email: u.Email, MobileNumber: u.MobileNumber}
}
