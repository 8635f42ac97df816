package repo

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/suite"

	claimrepo "github.com/ovaphlow/pitchfork/service-warranty-go/internal/claim/repo"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/coverage"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/warranty/entity"
	"github.com/ovaphlow/pitchfork/service-warranty-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-warranty-go/pkg/utilities"
)

// RepoSuite runs against a real Postgres when TEST_DATABASE_URL is set. Each
// run works in a throwaway schema.
type RepoSuite struct {
	suite.Suite
	ctx    context.Context
	url    string
	db     *sqlx.DB
	schema string
	repo   *WarrantyRepo
}

func TestRepoSuite(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	db, err := sqlx.Open("postgres", url)
	if err != nil {
		t.Fatal(err)
	}
	db.SetMaxOpenConns(1)
	suite.Run(t, &RepoSuite{url: url, db: db})
}

func (s *RepoSuite) SetupSuite() {
	s.ctx = context.Background()
	s.schema = "test_" + strings.ToLower(utilities.NewKSUID())
	_, err := s.db.ExecContext(s.ctx, `CREATE SCHEMA `+s.schema+`; SET search_path TO `+s.schema)
	s.Require().NoError(err)
	s.repo = NewWarrantyRepo(s.db)
	s.Require().NoError(s.repo.EnsureTable(s.ctx))
	s.Require().NoError(claimrepo.NewClaimRepo(s.db).EnsureTable(s.ctx))
}

func (s *RepoSuite) TearDownSuite() {
	_, _ = s.db.ExecContext(s.ctx, `DROP SCHEMA `+s.schema+` CASCADE`)
	_ = s.db.Close()
}

func (s *RepoSuite) newWarranty(policy, serial, imei string) *entity.Warranty {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &entity.Warranty{
		ID:            utilities.NewSnowflakeID(),
		PolicyNumber:  policy,
		MemberID:      "m-1",
		Device:        entity.Device{Brand: "Acme", Model: "X1", SerialNumber: serial, IMEI: imei},
		DevicePrice:   decimal.NewFromInt(10000),
		PaymentMethod: coverage.PaymentInstallment,
		Schedule: entity.Schedule{
			{No: 1, Amount: decimal.NewFromInt(5000), Status: entity.InstallmentPaid},
			{No: 2, Amount: decimal.NewFromInt(5000), Status: entity.InstallmentUnpaid},
		},
		InstallmentsPaid: 3,
		ApprovalStatus:   entity.ApprovalPending,
		ClaimStatus:      entity.ClaimNormal,
		StartsAt:         now,
		ExpiresAt:        now.AddDate(1, 0, 0),
		Version:          1,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func (s *RepoSuite) TestCreateDerivesAndClassifies() {
	w := s.newWarranty("1000001", "SN-A", "100000000000001")
	s.Require().NoError(s.repo.Create(s.ctx, w))

	got, err := s.repo.GetByPolicyNumber(s.ctx, "1000001")
	s.Require().NoError(err)
	s.Equal(1, got.InstallmentsPaid)
	s.False(got.UsedCoverage.Valid)
	s.Len(got.Schedule, 2)

	err = s.repo.Create(s.ctx, s.newWarranty("1000001", "SN-B", "100000000000002"))
	s.ErrorIs(err, database.ErrIDCollision)

	err = s.repo.Create(s.ctx, s.newWarranty("1000002", "SN-A", "100000000000003"))
	s.ErrorIs(err, database.ErrDuplicateKey)

	ok, err := s.repo.DeviceExists(s.ctx, "nope", "100000000000001")
	s.Require().NoError(err)
	s.True(ok)
}

func (s *RepoSuite) TestSaveIsVersioned() {
	w := s.newWarranty("2000001", "SN-C", "200000000000001")
	s.Require().NoError(s.repo.Create(s.ctx, w))

	w.Schedule[1].Status = entity.InstallmentPaid
	n, err := s.repo.Save(s.ctx, w, 1)
	s.Require().NoError(err)
	s.EqualValues(1, n)
	s.EqualValues(2, w.Version)

	n, err = s.repo.Save(s.ctx, w, 1)
	s.Require().NoError(err)
	s.Zero(n)

	got, err := s.repo.GetByID(s.ctx, w.ID)
	s.Require().NoError(err)
	s.Equal(2, got.InstallmentsPaid)
}

func (s *RepoSuite) TestDecideIsOneShot() {
	w := s.newWarranty("3000001", "SN-D", "300000000000001")
	s.Require().NoError(s.repo.Create(s.ctx, w))

	got, err := s.repo.Decide(s.ctx, w.ID, entity.ApprovalApproved, "admin", nil, time.Now())
	s.Require().NoError(err)
	s.Equal(entity.ApprovalApproved, got.ApprovalStatus)

	reason := "late"
	_, err = s.repo.Decide(s.ctx, w.ID, entity.ApprovalRejected, "admin", &reason, time.Now())
	s.ErrorIs(err, sql.ErrNoRows)
}

func (s *RepoSuite) insertClaim(db *sqlx.DB, warrantyID, status string, cost int64) error {
	const q = `INSERT INTO claims (id, claim_id, warranty_id, status, total_cost) VALUES ($1, $2, $3, $4, $5)`
	_, err := db.ExecContext(s.ctx, q, utilities.NewSnowflakeID(), utilities.NewCode("CLM", 7), warrantyID, status, cost)
	return err
}

// pool opens a second connection pool pinned to the test schema so several
// statements can run at once.
func (s *RepoSuite) pool(size int) *sqlx.DB {
	sep := "?"
	if strings.Contains(s.url, "?") {
		sep = "&"
	}
	db, err := sqlx.Open("postgres", s.url+sep+"search_path="+s.schema)
	s.Require().NoError(err)
	db.SetMaxOpenConns(size)
	return db
}

func (s *RepoSuite) TestRecomputeUsedCoverageUnderInterleaving() {
	w := s.newWarranty("4000001", "SN-E", "400000000000001")
	s.Require().NoError(s.repo.Create(s.ctx, w))

	db := s.pool(8)
	defer db.Close()
	repo := NewWarrantyRepo(db)

	var wg sync.WaitGroup
	for i := int64(1); i <= 20; i++ {
		wg.Add(1)
		go func(cost int64) {
			defer wg.Done()
			s.Assert().NoError(s.insertClaim(db, w.ID, "awaiting-intake", cost))
			_, err := repo.RecomputeUsedCoverage(s.ctx, w.ID)
			s.Assert().NoError(err)
		}(i)
	}
	wg.Wait()

	got, err := s.repo.GetByID(s.ctx, w.ID)
	s.Require().NoError(err)
	s.True(got.UsedCoverage.Valid)
	s.True(got.UsedCoverage.Decimal.Equal(decimal.NewFromInt(210)), fmt.Sprint(got.UsedCoverage.Decimal))

	_, err = s.repo.RecomputeUsedCoverage(s.ctx, "missing")
	s.ErrorIs(err, sql.ErrNoRows)
}

func (s *RepoSuite) TestReleaseClaimStatusWaitsForOpenClaims() {
	w := s.newWarranty("5000001", "SN-F", "500000000000001")
	s.Require().NoError(s.repo.Create(s.ctx, w))
	s.Require().NoError(s.repo.SetClaimStatus(s.ctx, w.ID, entity.ClaimPending))
	s.Require().NoError(s.insertClaim(s.db, w.ID, "device-received", 0))
	s.Require().NoError(s.insertClaim(s.db, w.ID, "awaiting-intake", 0))

	released, err := s.repo.ReleaseClaimStatus(s.ctx, w.ID)
	s.Require().NoError(err)
	s.False(released)

	_, err = s.db.ExecContext(s.ctx, `UPDATE claims SET status='device-received' WHERE warranty_id=$1`, w.ID)
	s.Require().NoError(err)
	released, err = s.repo.ReleaseClaimStatus(s.ctx, w.ID)
	s.Require().NoError(err)
	s.True(released)

	got, err := s.repo.GetByID(s.ctx, w.ID)
	s.Require().NoError(err)
	s.Equal(entity.ClaimNormal, got.ClaimStatus)
}
