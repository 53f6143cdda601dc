package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/identity/entity"
)

var ErrNotFound = errors.New("identity not found")

const recordColumns = `id, email, phone, display_name, password_hash, created_at, updated_at`

// IdentityRepo stores local password identities in auth_identities.
type IdentityRepo struct {
	db *sqlx.DB
}

func NewIdentityRepo(db *sqlx.DB) *IdentityRepo { return &IdentityRepo{db: db} }

func (r *IdentityRepo) Insert(ctx context.Context, rec *entity.Record) error {
	const q = `INSERT INTO auth_identities (` + recordColumns + `)
		VALUES (:id, :email, :phone, :display_name, :password_hash, :created_at, :updated_at)`
	_, err := r.db.NamedExecContext(ctx, q, rec)
	return err
}

func (r *IdentityRepo) get(ctx context.Context, column, value string) (*entity.Record, error) {
	var rec entity.Record
	q := r.db.Rebind(`SELECT ` + recordColumns + ` FROM auth_identities WHERE ` + column + ` = ?`)
	if err := r.db.GetContext(ctx, &rec, q, value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

func (r *IdentityRepo) GetByID(ctx context.Context, id string) (*entity.Record, error) {
	return r.get(ctx, "id", id)
}

func (r *IdentityRepo) GetByEmail(ctx context.Context, email string) (*entity.Record, error) {
	return r.get(ctx, "email", email)
}

func (r *IdentityRepo) GetByPhone(ctx context.Context, phone string) (*entity.Record, error) {
	return r.get(ctx, "phone", phone)
}
