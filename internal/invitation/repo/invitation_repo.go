package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/invitation/entity"
)

var ErrNotFound = errors.New("invitation not found")

const grantColumns = `id, token_hash, email, mobile_number, name, nickname, role, household_id,
	status, user_id, consumed_at, created_at, updated_at`

type InvitationRepo struct {
	db *sqlx.DB
}

func NewInvitationRepo(db *sqlx.DB) *InvitationRepo { return &InvitationRepo{db: db} }

func (r *InvitationRepo) get(ctx context.Context, q string, args ...any) (*entity.Grant, error) {
	var g entity.Grant
	if err := r.db.GetContext(ctx, &g, r.db.Rebind(q), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (r *InvitationRepo) Insert(ctx context.Context, g *entity.Grant) error {
	const q = `INSERT INTO invitations (` + grantColumns + `)
		VALUES (:id, :token_hash, :email, :mobile_number, :name, :nickname, :role, :household_id,
			:status, :user_id, :consumed_at, :created_at, :updated_at)`
	_, err := r.db.NamedExecContext(ctx, q, g)
	return err
}

func (r *InvitationRepo) GetByID(ctx context.Context, id string) (*entity.Grant, error) {
	return r.get(ctx, `SELECT `+grantColumns+` FROM invitations WHERE id = ?`, id)
}

func (r *InvitationRepo) GetByTokenHash(ctx context.Context, hash string) (*entity.Grant, error) {
	return r.get(ctx, `SELECT `+grantColumns+` FROM invitations WHERE token_hash = ?`, hash)
}

// ConsumeByTokenHash flips new to done and returns the consumed row. A grant
// that is not new yields ErrNotFound, the same as a missing one.
func (r *InvitationRepo) ConsumeByTokenHash(ctx context.Context, hash string, at time.Time) (*entity.Grant, error) {
	return r.get(ctx, `UPDATE invitations SET status = 'done', consumed_at = ?, updated_at = ?
		WHERE token_hash = ? AND status = 'new' RETURNING `+grantColumns, at, at, hash)
}

// ConsumeByID is ConsumeByTokenHash keyed by grant id.
func (r *InvitationRepo) ConsumeByID(ctx context.Context, id string, at time.Time) (*entity.Grant, error) {
	return r.get(ctx, `UPDATE invitations SET status = 'done', consumed_at = ?, updated_at = ?
		WHERE id = ? AND status = 'new' RETURNING `+grantColumns, at, at, id)
}

// StampUser records the consuming canonical user on the grant.
func (r *InvitationRepo) StampUser(ctx context.Context, id, userID string) error {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE invitations SET user_id = ?, updated_at = ? WHERE id = ?`),
		userID, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// FindOpenByMobile returns the newest new grant for mobile.
func (r *InvitationRepo) FindOpenByMobile(ctx context.Context, mobile string) (*entity.Grant, error) {
	return r.get(ctx, `SELECT `+grantColumns+` FROM invitations
		WHERE mobile_number = ? AND status = 'new' ORDER BY created_at DESC, id DESC LIMIT 1`, mobile)
}

// FindOpenByEmail returns the newest new grant for email.
func (r *InvitationRepo) FindOpenByEmail(ctx context.Context, email string) (*entity.Grant, error) {
	return r.get(ctx, `SELECT `+grantColumns+` FROM invitations
		WHERE email = ? AND status = 'new' ORDER BY created_at DESC, id DESC LIMIT 1`, email)
}
