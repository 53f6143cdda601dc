package entity

import "time"

// DefaultName is given to automatically provisioned households.
const DefaultName = "My Household"

type Household struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	OwnerID   *string   `db:"owner_id" json:"owner_id,omitempty"`
	JoinCode  string    `db:"join_code" json:"join_code"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Member is a row of `household_members`. Memberships are additive only.
type Member struct {
	HouseholdID string    `db:"household_id" json:"household_id"`
	UserID      string    `db:"user_id" json:"user_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
