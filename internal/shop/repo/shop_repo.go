package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/shop/entity"
	"github.com/ovaphlow/pitchfork/service-warranty-go/pkg/database"
)

const shopCodeConstraint = "shops_shop_code_key"

const columns = `id, shop_code, name, phone, address, created_at, updated_at`

type ShopRepo struct {
	db *sqlx.DB
}

func NewShopRepo(db *sqlx.DB) *ShopRepo { return &ShopRepo{db: db} }

func (r *ShopRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS shops (
  id VARCHAR(32) PRIMARY KEY,
  shop_code CHAR(5) NOT NULL,
  name TEXT NOT NULL,
  phone VARCHAR(16) NOT NULL,
  address TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CONSTRAINT shops_shop_code_key UNIQUE (shop_code),
  CONSTRAINT shops_phone_key UNIQUE (phone)
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *ShopRepo) Create(ctx context.Context, s *entity.Shop) error {
	const q = `INSERT INTO shops (` + columns + `)
		VALUES (:id, :shop_code, :name, :phone, :address, :created_at, :updated_at)`
	_, err := r.db.NamedExecContext(ctx, q, s)
	return database.ClassifyUnique(err, shopCodeConstraint)
}

func (r *ShopRepo) GetByID(ctx context.Context, id string) (*entity.Shop, error) {
	var s entity.Shop
	if err := r.db.GetContext(ctx, &s, `SELECT `+columns+` FROM shops WHERE id=$1`, id); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *ShopRepo) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := r.db.GetContext(ctx, &ok, `SELECT EXISTS (SELECT 1 FROM shops WHERE id=$1)`, id); err != nil {
		return false, err
	}
	return ok, nil
}

// List returns shops ordered by code.
func (r *ShopRepo) List(ctx context.Context, limit, offset int) ([]*entity.Shop, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	var out []*entity.Shop
	q := `SELECT ` + columns + ` FROM shops ORDER BY shop_code LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &out, q, limit, offset); err != nil {
		return nil, err
	}
	return out, nil
}
