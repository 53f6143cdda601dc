package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/user/entity"
)

var (
	ErrNotFound = errors.New("user not found")
	// ErrRaceLost means a guarded statement matched zero rows because a
	// concurrent caller already claimed the row.
	ErrRaceLost = errors.New("pending user already claimed")
)

const userColumns = `id, identity_id, is_pending, email, mobile_number, full_name, first_name,
	last_name, nickname, role, specific_role, household_id, onboarding_completed, color,
	claimed_by, claimed_at, created_at, updated_at`

// pendingPredicate is the claim predicate every statement touching a pending
// row is gated on.
const pendingPredicate = `is_pending = TRUE AND identity_id IS NULL`

// Reference is a column elsewhere in the schema holding a users.id. Peers
// lists the sibling columns that form a unique key together with Column, so
// rows that would collide after re-pointing are dropped first.
type Reference struct {
	Table  string
	Column string
	Peers  []string
}

// References is every column re-pointed when a pending user is merged into
// its canonical row. New referencing tables are registered here.
var References = []Reference{
	{Table: "household_members", Column: "user_id", Peers: []string{"household_id"}},
	{Table: "households", Column: "owner_id"},
	{Table: "invitations", Column: "user_id"},
}

// UserRepo provides data access for users table using sqlx.
type UserRepo struct {
	db   *sqlx.DB
	refs []Reference
}

func NewUserRepo(db *sqlx.DB) *UserRepo { return &UserRepo{db: db, refs: References} }

func (r *UserRepo) get(ctx context.Context, q string, args ...any) (*entity.User, error) {
	var u entity.User
	if err := r.db.GetContext(ctx, &u, r.db.Rebind(q), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}

// GetByID fetches a full user row.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*entity.User, error) {
	return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
}

// FindSettledByContact returns the non-pending user holding email, else the
// one holding mobile.
func (r *UserRepo) FindSettledByContact(ctx context.Context, c entity.Contact) (*entity.User, error) {
	if c.Email != nil {
		u, err := r.get(ctx, `SELECT `+userColumns+` FROM users WHERE email = ? AND is_pending = FALSE`, *c.Email)
		if err == nil || !errors.Is(err, ErrNotFound) {
			return u, err
		}
	}
	if c.MobileNumber != nil {
		return r.get(ctx, `SELECT `+userColumns+` FROM users WHERE mobile_number = ? AND is_pending = FALSE`, *c.MobileNumber)
	}
	return nil, ErrNotFound
}

// FindPendingByEmail lists unclaimed pending users with email, newest first.
func (r *UserRepo) FindPendingByEmail(ctx context.Context, email string) ([]entity.User, error) {
	return r.selectPending(ctx, "email", email)
}

// FindPendingByMobile lists unclaimed pending users with mobile, newest first.
func (r *UserRepo) FindPendingByMobile(ctx context.Context, mobile string) ([]entity.User, error) {
	return r.selectPending(ctx, "mobile_number", mobile)
}

func (r *UserRepo) selectPending(ctx context.Context, column, value string) ([]entity.User, error) {
	q := `SELECT ` + userColumns + ` FROM users WHERE ` + column + ` = ? AND ` + pendingPredicate +
		` ORDER BY created_at DESC, id DESC`
	var out []entity.User
	if err := r.db.SelectContext(ctx, &out, r.db.Rebind(q), value); err != nil {
		return nil, err
	}
	return out, nil
}

// InsertPending creates a reservation row.
func (r *UserRepo) InsertPending(ctx context.Context, u *entity.User) error {
	u.IsPending = true
	u.IdentityID = nil
	const q = `INSERT INTO users (` + userColumns + `)
		VALUES (:id, :identity_id, :is_pending, :email, :mobile_number, :full_name, :first_name,
			:last_name, :nickname, :role, :specific_role, :household_id, :onboarding_completed, :color,
			:claimed_by, :claimed_at, :created_at, :updated_at)`
	_, err := r.db.NamedExecContext(ctx, q, u)
	return err
}

// Upsert inserts the canonical row keyed by id, or overwrites it when it exists.
func (r *UserRepo) Upsert(ctx context.Context, u *entity.User) error {
	u.IsPending = false
	u.ClaimedBy, u.ClaimedAt = nil, nil
	const q = `INSERT INTO users (` + userColumns + `)
		VALUES (:id, :identity_id, :is_pending, :email, :mobile_number, :full_name, :first_name,
			:last_name, :nickname, :role, :specific_role, :household_id, :onboarding_completed, :color,
			:claimed_by, :claimed_at, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			identity_id = excluded.identity_id,
			email = excluded.email,
			mobile_number = excluded.mobile_number,
			full_name = excluded.full_name,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			nickname = excluded.nickname,
			role = excluded.role,
			specific_role = excluded.specific_role,
			household_id = excluded.household_id,
			onboarding_completed = excluded.onboarding_completed,
			color = excluded.color,
			claimed_by = NULL,
			claimed_at = NULL,
			updated_at = excluded.updated_at`
	_, err := r.db.NamedExecContext(ctx, q, u)
	return err
}

// settleRow carries the flag Settle binds next to the user columns.
type settleRow struct {
	entity.User
	OverrideRole bool `db:"override_role"`
}

// Settle inserts the canonical row keyed by id or, when it already exists,
// only fills it: non-empty values of u win, blanks keep what is stored, a
// stored household is never replaced and the stored role is kept unless
// overrideRole is set. It returns the row as stored afterwards.
func (r *UserRepo) Settle(ctx context.Context, u *entity.User, overrideRole bool) (*entity.User, error) {
	u.IsPending = false
	u.ClaimedBy, u.ClaimedAt = nil, nil
	const q = `INSERT INTO users (` + userColumns + `)
		VALUES (:id, :identity_id, :is_pending, :email, :mobile_number, :full_name, :first_name,
			:last_name, :nickname, :role, :specific_role, :household_id, :onboarding_completed, :color,
			:claimed_by, :claimed_at, :created_at, :updated_at)
		ON CONFLICT (id) DO UPDATE SET
			identity_id = excluded.identity_id,
			is_pending = FALSE,
			email = COALESCE(excluded.email, users.email),
			mobile_number = COALESCE(excluded.mobile_number, users.mobile_number),
			full_name = CASE WHEN excluded.full_name <> '' THEN excluded.full_name ELSE users.full_name END,
			first_name = COALESCE(excluded.first_name, users.first_name),
			last_name = COALESCE(excluded.last_name, users.last_name),
			nickname = COALESCE(excluded.nickname, users.nickname),
			role = CASE WHEN :override_role THEN excluded.role ELSE users.role END,
			specific_role = COALESCE(excluded.specific_role, users.specific_role),
			household_id = COALESCE(users.household_id, excluded.household_id),
			onboarding_completed = (users.onboarding_completed OR excluded.onboarding_completed),
			color = COALESCE(excluded.color, users.color),
			claimed_by = NULL,
			claimed_at = NULL,
			updated_at = excluded.updated_at`
	if _, err := r.db.NamedExecContext(ctx, q, settleRow{User: *u, OverrideRole: overrideRole}); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, u.ID)
}

// Neutralize takes the claim lease on a pending row for claimant, clears its
// mobile and, when placeholder is set, swaps its email so the canonical row
// can take both. A lease older than staleBefore may be taken over. False means
// the row is gone or claimed by someone else.
func (r *UserRepo) Neutralize(ctx context.Context, pendingID, claimant string, placeholder *string, staleBefore time.Time) (bool, error) {
	now := time.Now().UTC()
	q := `UPDATE users SET mobile_number = NULL, email = COALESCE(?, email),
			claimed_by = ?, claimed_at = ?, updated_at = ?
		WHERE id = ? AND ` + pendingPredicate + ` AND (claimed_by IS NULL OR claimed_at < ?)`
	res, err := r.db.ExecContext(ctx, r.db.Rebind(q), placeholder, claimant, now, now, pendingID, staleBefore)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// RestoreContact writes a snapshot back onto a pending row still leased by
// claimant and releases the lease.
func (r *UserRepo) RestoreContact(ctx context.Context, pendingID, claimant string, c entity.Contact) (bool, error) {
	q := `UPDATE users SET email = ?, mobile_number = ?, claimed_by = NULL, claimed_at = NULL, updated_at = ?
		WHERE id = ? AND ` + pendingPredicate + ` AND claimed_by = ?`
	res, err := r.db.ExecContext(ctx, r.db.Rebind(q), c.Email, c.MobileNumber, time.Now().UTC(), pendingID, claimant)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// Delete removes a canonical row.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM users WHERE id = ? AND is_pending = FALSE`), id)
	return err
}

// SetHouseholdIfUnset sets the household only when the user has none.
func (r *UserRepo) SetHouseholdIfUnset(ctx context.Context, userID, householdID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE users SET household_id = ?, updated_at = ? WHERE id = ? AND household_id IS NULL`),
		householdID, time.Now().UTC(), userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ApplyInvitation gives the user the role and household of a consumed grant.
// A nil householdID leaves the current household in place.
func (r *UserRepo) ApplyInvitation(ctx context.Context, userID string, role entity.Role, householdID *string) error {
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind(`UPDATE users SET role = ?, household_id = COALESCE(?, household_id), updated_at = ? WHERE id = ?`),
		role, householdID, time.Now().UTC(), userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// MergePending re-points every registered reference from pendingID to
// canonicalID and deletes the pending row, in one transaction. The delete is
// gated on the claim predicate and claimant's lease; zero rows rolls
// everything back and yields ErrRaceLost. It returns the number of
// re-pointed rows.
func (r *UserRepo) MergePending(ctx context.Context, pendingID, claimant, canonicalID string) (int64, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin merge: %w", err)
	}
	defer tx.Rollback()

	var moved int64
	for _, ref := range r.refs {
		n, err := repoint(ctx, tx, ref, pendingID, canonicalID)
		if err != nil {
			return 0, fmt.Errorf("repoint %s.%s: %w", ref.Table, ref.Column, err)
		}
		moved += n
	}

	res, err := tx.ExecContext(ctx,
		tx.Rebind(`DELETE FROM users WHERE id = ? AND `+pendingPredicate+` AND claimed_by = ?`), pendingID, claimant)
	if err != nil {
		return 0, fmt.Errorf("delete pending: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, ErrRaceLost
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit merge: %w", err)
	}
	return moved, nil
}

func repoint(ctx context.Context, tx *sqlx.Tx, ref Reference, from, to string) (int64, error) {
	if len(ref.Peers) > 0 {
		// drop rows the canonical id already has under the same peer key
		where := ""
		for _, p := range ref.Peers {
			where += " AND " + p + " IN (SELECT " + p + " FROM " + ref.Table + " WHERE " + ref.Column + " = ?)"
		}
		args := []any{from}
		for range ref.Peers {
			args = append(args, to)
		}
		q := `DELETE FROM ` + ref.Table + ` WHERE ` + ref.Column + ` = ?` + where
		if _, err := tx.ExecContext(ctx, tx.Rebind(q), args...); err != nil {
			return 0, err
		}
	}
	q := `UPDATE ` + ref.Table + ` SET ` + ref.Column + ` = ? WHERE ` + ref.Column + ` = ?`
	res, err := tx.ExecContext(ctx, tx.Rebind(q), to, from)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
