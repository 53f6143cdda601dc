package entity

import (
	"errors"
	"time"

	userentity "github.com/ovaphlow/pitchfork/service-household-identity/internal/user/entity"
)

// Status of a grant. done is terminal.
type Status string

const (
	StatusNew  Status = "new"
	StatusDone Status = "done"
)

var ErrUnknownStatus = errors.New("unknown invitation status")

func ParseStatus(raw string) (Status, error) {
	switch Status(raw) {
	case StatusNew, StatusDone:
		return Status(raw), nil
	default:
		return "", ErrUnknownStatus
	}
}

// Grant is a row of the `invitations` table. The opaque token itself is never
// stored; TokenHash is its SHA-256.
type Grant struct {
	ID           string          `db:"id" json:"id"`
	TokenHash    string          `db:"token_hash" json:"-"`
	Email        *string         `db:"email" json:"email,omitempty"`
	MobileNumber *string         `db:"mobile_number" json:"mobile_number,omitempty"`
	Name         string          `db:"name" json:"name"`
	Nickname     *string         `db:"nickname" json:"nickname,omitempty"`
	Role         userentity.Role `db:"role" json:"role"`
	HouseholdID  *string         `db:"household_id" json:"household_id,omitempty"`
	Status       Status          `db:"status" json:"status"`
	UserID       *string         `db:"user_id" json:"user_id,omitempty"`
	ConsumedAt   *time.Time      `db:"consumed_at" json:"consumed_at,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

func (g *Grant) Open() bool { return g.Status == StatusNew }
