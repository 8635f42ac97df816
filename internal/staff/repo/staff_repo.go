package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/staff/entity"
	"github.com/ovaphlow/pitchfork/service-warranty-go/pkg/database"
)

const columns = `id, username, password_hash, role, shop_id, status, login_failed_attempts,
	locked_until, last_login_at, version, created_at, updated_at`

// StaffRepo provides data access for the staff table using sqlx.
type StaffRepo struct {
	db *sqlx.DB
}

func NewStaffRepo(db *sqlx.DB) *StaffRepo { return &StaffRepo{db: db} }

// EnsureTable creates the staff table if not exists (idempotent).
func (r *StaffRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS staff (
  id VARCHAR(32) PRIMARY KEY,
  username TEXT NOT NULL,
  password_hash TEXT NOT NULL,
  role TEXT NOT NULL DEFAULT 'staff',
  shop_id VARCHAR(32) NOT NULL DEFAULT '',
  status TEXT NOT NULL DEFAULT 'active',
  login_failed_attempts INT NOT NULL DEFAULT 0,
  locked_until TIMESTAMPTZ,
  last_login_at TIMESTAMPTZ,
  version BIGINT NOT NULL DEFAULT 1,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CONSTRAINT staff_username_key UNIQUE (username)
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts a staff row. A taken username is database.ErrDuplicateKey.
func (r *StaffRepo) Create(ctx context.Context, s *entity.Staff) error {
	const q = `INSERT INTO staff (` + columns + `)
		VALUES (:id, :username, :password_hash, :role, :shop_id, :status, :login_failed_attempts,
		:locked_until, :last_login_at, :version, :created_at, :updated_at)`
	_, err := r.db.NamedExecContext(ctx, q, s)
	return database.ClassifyUnique(err)
}

// GetByUsername fetches by username or returns sql.ErrNoRows.
func (r *StaffRepo) GetByUsername(ctx context.Context, username string) (*entity.Staff, error) {
	var s entity.Staff
	if err := r.db.GetContext(ctx, &s, `SELECT `+columns+` FROM staff WHERE username=$1`, username); err != nil {
		return nil, err
	}
	return &s, nil
}

// IncrementFailedLogin increments the failure counter atomically and returns new value.
func (r *StaffRepo) IncrementFailedLogin(ctx context.Context, id string) (int, error) {
	const q = `UPDATE staff SET login_failed_attempts = login_failed_attempts + 1, updated_at=NOW() WHERE id=$1 RETURNING login_failed_attempts`
	var v int
	if err := r.db.GetContext(ctx, &v, q, id); err != nil {
		return 0, err
	}
	return v, nil
}

// LockIfThreshold locks the account if attempts >= threshold and it is currently active.
func (r *StaffRepo) LockIfThreshold(ctx context.Context, id string, threshold, lockMinutes int) (bool, error) {
	const q = `UPDATE staff SET status='locked', locked_until = NOW() + make_interval(mins => $2), updated_at=NOW()
		WHERE id=$1 AND status='active' AND login_failed_attempts >= $3 RETURNING 1`
	var one int
	if err := r.db.GetContext(ctx, &one, q, id, lockMinutes, threshold); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// UnlockIfExpired sets status back to active if locked_until passed.
func (r *StaffRepo) UnlockIfExpired(ctx context.Context, id string) (bool, error) {
	const q = `UPDATE staff SET status='active', locked_until=NULL, login_failed_attempts=0, updated_at=NOW()
		WHERE id=$1 AND status='locked' AND locked_until IS NOT NULL AND locked_until < NOW() RETURNING 1`
	var one int
	if err := r.db.GetContext(ctx, &one, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ResetLoginSuccess resets failure metrics on successful authentication.
func (r *StaffRepo) ResetLoginSuccess(ctx context.Context, id string) error {
	const q = `UPDATE staff SET login_failed_attempts=0, last_login_at=NOW(), locked_until=NULL, updated_at=NOW() WHERE id=$1`
	_, err := r.db.ExecContext(ctx, q, id)
	return err
}
