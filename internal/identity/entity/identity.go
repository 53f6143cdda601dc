package entity

import (
	"errors"
	"time"
)

var (
	ErrIdentityExists    = errors.New("identity already exists")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrBadCredentials    = errors.New("invalid credentials")
)

// Identity is an authenticated principal as reported by an identity provider.
// ID becomes the canonical user id.
type Identity struct {
	ID    string
	Email string
	Phone string
	Name  string
}

// NewIdentity is a password identity to be created.
type NewIdentity struct {
	Email    string
	Phone    string
	Password string
	Name     string
}

// Record is a row of `auth_identities` kept by the local provider.
type Record struct {
	ID           string    `db:"id"`
	Email        *string   `db:"email"`
	Phone        *string   `db:"phone"`
	DisplayName  string    `db:"display_name"`
	PasswordHash *string   `db:"password_hash"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}

func (r *Record) Identity() *Identity {
	id := &Identity{ID: r.ID, Name: r.DisplayName}
	if r.Email != nil {
		id.Email = *r.Email
	}
	if r.Phone != nil {
		id.Phone = *r.Phone
	}
	return id
}
