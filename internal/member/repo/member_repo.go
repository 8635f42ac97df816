package repo

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/member/entity"
	"github.com/ovaphlow/pitchfork/service-warranty-go/pkg/database"
)

const memberCodeConstraint = "members_member_code_key"

const columns = `id, member_code, name, phone, citizen_id, address, work_address, created_at, updated_at`

type MemberRepo struct {
	db *sqlx.DB
}

func NewMemberRepo(db *sqlx.DB) *MemberRepo { return &MemberRepo{db: db} }

// EnsureTable creates the members table if it does not already exist.
func (r *MemberRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS members (
  id VARCHAR(32) PRIMARY KEY,
  member_code CHAR(7) NOT NULL,
  name TEXT NOT NULL,
  phone CHAR(10) NOT NULL,
  citizen_id CHAR(13) NOT NULL,
  address TEXT NOT NULL DEFAULT '',
  work_address TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
  CONSTRAINT members_member_code_key UNIQUE (member_code),
  CONSTRAINT members_phone_key UNIQUE (phone),
  CONSTRAINT members_citizen_id_key UNIQUE (citizen_id)
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Create inserts a member. A member code collision is database.ErrIDCollision.
func (r *MemberRepo) Create(ctx context.Context, m *entity.Member) error {
	const q = `INSERT INTO members (` + columns + `)
		VALUES (:id, :member_code, :name, :phone, :citizen_id, :address, :work_address, :created_at, :updated_at)`
	_, err := r.db.NamedExecContext(ctx, q, m)
	return database.ClassifyUnique(err, memberCodeConstraint)
}

func (r *MemberRepo) GetByID(ctx context.Context, id string) (*entity.Member, error) {
	var m entity.Member
	if err := r.db.GetContext(ctx, &m, `SELECT `+columns+` FROM members WHERE id=$1`, id); err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *MemberRepo) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	if err := r.db.GetContext(ctx, &ok, `SELECT EXISTS (SELECT 1 FROM members WHERE id=$1)`, id); err != nil {
		return false, err
	}
	return ok, nil
}
