package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-household-identity/internal/household/entity"
)

var ErrNotFound = errors.New("household not found")

const householdColumns = `id, name, owner_id, join_code, created_at, updated_at`

type HouseholdRepo struct {
	db *sqlx.DB
}

func NewHouseholdRepo(db *sqlx.DB) *HouseholdRepo { return &HouseholdRepo{db: db} }

func (r *HouseholdRepo) Insert(ctx context.Context, h *entity.Household) error {
	const q = `INSERT INTO households (` + householdColumns + `)
		VALUES (:id, :name, :owner_id, :join_code, :created_at, :updated_at)`
	_, err := r.db.NamedExecContext(ctx, q, h)
	return err
}

func (r *HouseholdRepo) get(ctx context.Context, q string, arg any) (*entity.Household, error) {
	var h entity.Household
	if err := r.db.GetContext(ctx, &h, r.db.Rebind(q), arg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &h, nil
}

func (r *HouseholdRepo) GetByID(ctx context.Context, id string) (*entity.Household, error) {
	return r.get(ctx, `SELECT `+householdColumns+` FROM households WHERE id = ?`, id)
}

func (r *HouseholdRepo) GetByJoinCode(ctx context.Context, code string) (*entity.Household, error) {
	return r.get(ctx, `SELECT `+householdColumns+` FROM households WHERE join_code = ?`, code)
}

func (r *HouseholdRepo) JoinCodeExists(ctx context.Context, code string) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one, r.db.Rebind(`SELECT 1 FROM households WHERE join_code = ?`), code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *HouseholdRepo) MemberExists(ctx context.Context, householdID, userID string) (bool, error) {
	var one int
	err := r.db.GetContext(ctx, &one,
		r.db.Rebind(`SELECT 1 FROM household_members WHERE household_id = ? AND user_id = ?`), householdID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// InsertMember adds the membership unless it exists; false means a concurrent
// insert got there first.
func (r *HouseholdRepo) InsertMember(ctx context.Context, householdID, userID string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		r.db.Rebind(`INSERT INTO household_members (household_id, user_id, created_at) VALUES (?, ?, ?)
			ON CONFLICT (household_id, user_id) DO NOTHING`),
		householdID, userID, time.Now().UTC())
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (r *HouseholdRepo) ListMembers(ctx context.Context, householdID string) ([]entity.Member, error) {
	var out []entity.Member
	err := r.db.SelectContext(ctx, &out,
		r.db.Rebind(`SELECT household_id, user_id, created_at FROM household_members WHERE household_id = ? ORDER BY created_at, user_id`),
		householdID)
	return out, err
}
