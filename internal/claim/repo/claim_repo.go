package repo

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/claim/entity"
	"github.com/ovaphlow/pitchfork/service-warranty-go/pkg/database"
)

const claimIDConstraint = "claims_claim_id_key"

const columns = `id, claim_id, warranty_id, shop_id, status, symptom, device_condition, updates, total_cost,
	return_method, return_shop_id, return_address_type, return_address, pickup_date,
	created_by, version, created_at, updated_at`

// ClaimRepo provides data access for the claims table. A claim and its
// update log live in one row so a versioned UPDATE covers the whole document.
type ClaimRepo struct {
	db *sqlx.DB
}

func NewClaimRepo(db *sqlx.DB) *ClaimRepo { return &ClaimRepo{db: db} }

// EnsureTable creates the claims table if not exists (idempotent).
func (r *ClaimRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS claims (
  id VARCHAR(32) PRIMARY KEY,
  claim_id VARCHAR(16) NOT NULL,
  warranty_id VARCHAR(32) NOT NULL,
  shop_id VARCHAR(32) NOT NULL DEFAULT '',
  status TEXT NOT NULL,
  symptom TEXT NOT NULL DEFAULT '',
  device_condition JSONB NOT NULL DEFAULT '{}'::jsonb,
  updates JSONB NOT NULL DEFAULT '[]'::jsonb,
  total_cost NUMERIC(14,2) NOT NULL DEFAULT 0,
  return_method TEXT,
  return_shop_id VARCHAR(32),
  return_address_type TEXT,
  return_address TEXT,
  pickup_date TIMESTAMPTZ,
  created_by TEXT NOT NULL DEFAULT '',
  version BIGINT NOT NULL DEFAULT 1,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CONSTRAINT claims_claim_id_key UNIQUE (claim_id)
);
CREATE INDEX IF NOT EXISTS idx_claims_warranty_id ON claims(warranty_id);
CREATE INDEX IF NOT EXISTS idx_claims_status ON claims(status);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts a claim. A claim id collision is reported as
// database.ErrIDCollision.
func (r *ClaimRepo) Create(ctx context.Context, c *entity.Claim) error {
	const q = `INSERT INTO claims (` + columns + `)
		VALUES (:id, :claim_id, :warranty_id, :shop_id, :status, :symptom, :device_condition, :updates, :total_cost,
		:return_method, :return_shop_id, :return_address_type, :return_address, :pickup_date,
		:created_by, :version, :created_at, :updated_at)`
	_, err := r.db.NamedExecContext(ctx, q, c)
	return database.ClassifyUnique(err, claimIDConstraint)
}

// GetByClaimID looks a claim up by its public identifier or returns sql.ErrNoRows.
func (r *ClaimRepo) GetByClaimID(ctx context.Context, claimID string) (*entity.Claim, error) {
	var c entity.Claim
	if err := r.db.GetContext(ctx, &c, `SELECT `+columns+` FROM claims WHERE claim_id=$1`, claimID); err != nil {
		return nil, err
	}
	return &c, nil
}

// Save writes the mutable fields when the stored version still equals
// expectedVersion. Returns rows affected; 0 means another writer won.
func (r *ClaimRepo) Save(ctx context.Context, c *entity.Claim, expectedVersion int64) (int64, error) {
	const q = `UPDATE claims SET status=$3, updates=$4, total_cost=$5, return_method=$6, return_shop_id=$7,
		return_address_type=$8, return_address=$9, pickup_date=$10, version=version+1, updated_at=NOW()
		WHERE id=$1 AND version=$2`
	res, err := r.db.ExecContext(ctx, q, c.ID, expectedVersion, c.Status, c.Updates, c.TotalCost,
		c.ReturnMethod, c.ReturnShopID, c.ReturnAddressType, c.ReturnAddress, c.PickupDate)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		c.Version = expectedVersion + 1
	}
	return n, nil
}

// SumTotalCost aggregates total_cost over every claim of a warranty.
func (r *ClaimRepo) SumTotalCost(ctx context.Context, warrantyID string) (decimal.Decimal, error) {
	var sum decimal.Decimal
	const q = `SELECT COALESCE(SUM(total_cost), 0) FROM claims WHERE warranty_id=$1`
	if err := r.db.GetContext(ctx, &sum, q, warrantyID); err != nil {
		return decimal.Zero, err
	}
	return sum, nil
}

// ListByWarranty returns a warranty's claims, newest first.
func (r *ClaimRepo) ListByWarranty(ctx context.Context, warrantyID string) ([]*entity.Claim, error) {
	var out []*entity.Claim
	q := `SELECT ` + columns + ` FROM claims WHERE warranty_id=$1 ORDER BY created_at DESC`
	if err := r.db.SelectContext(ctx, &out, q, warrantyID); err != nil {
		return nil, err
	}
	return out, nil
}

// ListByStatus returns claims in a status, oldest first.
func (r *ClaimRepo) ListByStatus(ctx context.Context, status entity.Status) ([]*entity.Claim, error) {
	var out []*entity.Claim
	q := `SELECT ` + columns + ` FROM claims WHERE status=$1 ORDER BY created_at ASC`
	if err := r.db.SelectContext(ctx, &out, q, status); err != nil {
		return nil, err
	}
	return out, nil
}
