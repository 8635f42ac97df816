package repo

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/warranty/entity"
	"github.com/ovaphlow/pitchfork/service-warranty-go/pkg/database"
)

const policyNumberConstraint = "warranties_policy_number_key"

const columns = `id, policy_number, member_id, shop_id, brand, model, serial_number, imei, stated_value,
	device_price, payment_method, schedule, installments_paid, used_coverage,
	approval_status, decided_by, decided_at, reject_reason, claim_status,
	starts_at, expires_at, version, created_at, updated_at`

// WarrantyRepo provides data access for the warranties table using sqlx.
type WarrantyRepo struct {
	db *sqlx.DB
}

func NewWarrantyRepo(db *sqlx.DB) *WarrantyRepo { return &WarrantyRepo{db: db} }

// EnsureTable creates the warranties table if not exists (idempotent).
// Unique constraints are the final arbiter for generated policy numbers and
// device natural keys.
func (r *WarrantyRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS warranties (
  id VARCHAR(32) PRIMARY KEY,
  policy_number CHAR(7) NOT NULL,
  member_id VARCHAR(32) NOT NULL,
  shop_id VARCHAR(32) NOT NULL DEFAULT '',
  brand TEXT NOT NULL DEFAULT '',
  model TEXT NOT NULL DEFAULT '',
  serial_number TEXT NOT NULL,
  imei TEXT NOT NULL,
  stated_value NUMERIC(14,2) NOT NULL DEFAULT 0,
  device_price NUMERIC(14,2) NOT NULL DEFAULT 0,
  payment_method TEXT NOT NULL,
  schedule JSONB NOT NULL DEFAULT '[]'::jsonb,
  installments_paid INT NOT NULL DEFAULT 0,
  used_coverage NUMERIC(14,2),
  approval_status TEXT NOT NULL DEFAULT 'pending',
  decided_by TEXT,
  decided_at TIMESTAMPTZ,
  reject_reason TEXT,
  claim_status TEXT NOT NULL DEFAULT 'normal',
  starts_at TIMESTAMPTZ NOT NULL,
  expires_at TIMESTAMPTZ NOT NULL,
  version BIGINT NOT NULL DEFAULT 1,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CONSTRAINT warranties_policy_number_key UNIQUE (policy_number),
  CONSTRAINT warranties_serial_number_key UNIQUE (serial_number),
  CONSTRAINT warranties_imei_key UNIQUE (imei)
);
CREATE INDEX IF NOT EXISTS idx_warranties_member_id ON warranties(member_id);
CREATE INDEX IF NOT EXISTS idx_warranties_approval_status ON warranties(approval_status);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts a new warranty. A policy number collision is reported as
// database.ErrIDCollision, any other unique violation as database.ErrDuplicateKey.
func (r *WarrantyRepo) Create(ctx context.Context, w *entity.Warranty) error {
	w.Derive()
	const q = `INSERT INTO warranties (` + columns + `)
		VALUES (:id, :policy_number, :member_id, :shop_id, :brand, :model, :serial_number, :imei, :stated_value,
		:device_price, :payment_method, :schedule, :installments_paid, :used_coverage,
		:approval_status, :decided_by, :decided_at, :reject_reason, :claim_status,
		:starts_at, :expires_at, :version, :created_at, :updated_at)`
	_, err := r.db.NamedExecContext(ctx, q, w)
	return database.ClassifyUnique(err, policyNumberConstraint)
}

// GetByID returns a warranty or sql.ErrNoRows.
func (r *WarrantyRepo) GetByID(ctx context.Context, id string) (*entity.Warranty, error) {
	var w entity.Warranty
	if err := r.db.GetContext(ctx, &w, `SELECT `+columns+` FROM warranties WHERE id=$1`, id); err != nil {
		return nil, err
	}
	return &w, nil
}

// GetByPolicyNumber returns a warranty or sql.ErrNoRows.
func (r *WarrantyRepo) GetByPolicyNumber(ctx context.Context, policyNumber string) (*entity.Warranty, error) {
	var w entity.Warranty
	if err := r.db.GetContext(ctx, &w, `SELECT `+columns+` FROM warranties WHERE policy_number=$1`, policyNumber); err != nil {
		return nil, err
	}
	return &w, nil
}

// DeviceExists reports whether a contract already covers the serial or IMEI.
func (r *WarrantyRepo) DeviceExists(ctx context.Context, serial, imei string) (bool, error) {
	const q = `SELECT EXISTS (SELECT 1 FROM warranties WHERE serial_number=$1 OR imei=$2)`
	var ok bool
	if err := r.db.GetContext(ctx, &ok, q, serial, imei); err != nil {
		return false, err
	}
	return ok, nil
}

// Save writes the mutable fields using optimistic locking on version.
// Returns the number of rows updated; 0 means the version moved.
func (r *WarrantyRepo) Save(ctx context.Context, w *entity.Warranty, expectedVersion int64) (int64, error) {
	w.Derive()
	const q = `UPDATE warranties SET device_price=$3, payment_method=$4, schedule=$5, installments_paid=$6,
		used_coverage=$7, claim_status=$8, version=version+1, updated_at=NOW()
		WHERE id=$1 AND version=$2 RETURNING version, updated_at`
	row := r.db.QueryRowxContext(ctx, q, w.ID, expectedVersion, w.DevicePrice, w.PaymentMethod, w.Schedule,
		w.InstallmentsPaid, w.UsedCoverage, w.ClaimStatus)
	if err := row.Scan(&w.Version, &w.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return 1, nil
}

// Decide moves a pending warranty to approved or rejected in one statement.
// Returns sql.ErrNoRows when the warranty does not exist or is already decided.
func (r *WarrantyRepo) Decide(ctx context.Context, id string, status entity.ApprovalStatus, actor string, reason *string, at time.Time) (*entity.Warranty, error) {
	q := `UPDATE warranties SET approval_status=$2, decided_by=$3, decided_at=$4, reject_reason=$5,
		version=version+1, updated_at=NOW()
		WHERE id=$1 AND approval_status='pending' RETURNING ` + columns
	var w entity.Warranty
	if err := r.db.GetContext(ctx, &w, q, id, status, actor, at, reason); err != nil {
		return nil, err
	}
	return &w, nil
}

// SetClaimStatus updates the open-claim marker.
func (r *WarrantyRepo) SetClaimStatus(ctx context.Context, id string, status entity.ClaimStatus) error {
	const q = `UPDATE warranties SET claim_status=$2, version=version+1, updated_at=NOW() WHERE id=$1`
	res, err := r.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// RecomputeUsedCoverage sets used_coverage to the sum of the warranty's
// claim totals and returns the updated row. The warranty row is locked before
// the sum is read, so the last recompute to commit always saw every claim
// committed before it started.
func (r *WarrantyRepo) RecomputeUsedCoverage(ctx context.Context, id string) (*entity.Warranty, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var locked string
	if err := tx.GetContext(ctx, &locked, `SELECT id FROM warranties WHERE id=$1 FOR UPDATE`, id); err != nil {
		return nil, err
	}
	q := `UPDATE warranties SET used_coverage=(SELECT COALESCE(SUM(total_cost), 0) FROM claims WHERE warranty_id=$1),
		version=version+1, updated_at=NOW()
		WHERE id=$1 RETURNING ` + columns
	var w entity.Warranty
	if err := tx.GetContext(ctx, &w, q, id); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &w, nil
}

// ReleaseClaimStatus flips claim_status back to normal unless the warranty
// still has a claim awaiting intake. Reports whether the marker changed.
func (r *WarrantyRepo) ReleaseClaimStatus(ctx context.Context, id string) (bool, error) {
	const q = `UPDATE warranties SET claim_status='normal', version=version+1, updated_at=NOW()
		WHERE id=$1 AND claim_status<>'normal'
		AND NOT EXISTS (SELECT 1 FROM claims WHERE warranty_id=$1 AND status='awaiting-intake')`
	res, err := r.db.ExecContext(ctx, q, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListByMember returns a member's warranties, newest first.
func (r *WarrantyRepo) ListByMember(ctx context.Context, memberID string) ([]*entity.Warranty, error) {
	var out []*entity.Warranty
	q := `SELECT ` + columns + ` FROM warranties WHERE member_id=$1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &out, q, memberID); err != nil {
		return nil, err
	}
	return out, nil
}
