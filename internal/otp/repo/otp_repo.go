package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/otp/entity"
)

var ErrNotFound = errors.New("otp request not found")

type OTPRepo struct {
	db *sqlx.DB
}

func NewOTPRepo(db *sqlx.DB) *OTPRepo { return &OTPRepo{db: db} }

func (r *OTPRepo) Insert(ctx context.Context, req *entity.Request) error {
	const q = `INSERT INTO otp_requests (id, mobile_number, code_hash, attempts, expires_at, consumed_at, created_at)
		VALUES (:id, :mobile_number, :code_hash, :attempts, :expires_at, :consumed_at, :created_at)`
	_, err := r.db.NamedExecContext(ctx, q, req)
	return err
}

// Latest returns the most recent request for mobile.
func (r *OTPRepo) Latest(ctx context.Context, mobile string) (*entity.Request, error) {
	var req entity.Request
	q := r.db.Rebind(`SELECT id, mobile_number, code_hash, attempts, expires_at, consumed_at, created_at
		FROM otp_requests WHERE mobile_number = ? ORDER BY created_at DESC, id DESC LIMIT 1`)
	if err := r.db.GetContext(ctx, &req, q, mobile); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &req, nil
}

// AddAttempt counts a failed verification.
func (r *OTPRepo) AddAttempt(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`UPDATE otp_requests SET attempts = attempts + 1 WHERE id = ?`), id)
	return err
}

// Consume marks the request used. It only matches an unused, unexpired
// request below maxAttempts; false means another verification got there
// first or the code is no longer valid.
func (r *OTPRepo) Consume(ctx context.Context, id string, at time.Time, maxAttempts int) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE otp_requests SET consumed_at = ?
			WHERE id = ? AND consumed_at IS NULL AND expires_at > ? AND attempts < ?`),
		at, id, at, maxAttempts)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
