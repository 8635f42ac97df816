package entity

import (
	"database/sql/driver"
	"errors"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/coverage"
)

type ApprovalStatus string

const (
	ApprovalPending  = ApprovalStatus("pending")
	ApprovalApproved = ApprovalStatus("approved")
	ApprovalRejected = ApprovalStatus("rejected")
)

// ClaimStatus reflects whether an open claim currently exists.
type ClaimStatus string

const (
	ClaimNormal    = ClaimStatus("normal")
	ClaimPending   = ClaimStatus("pending")
	ClaimCompleted = ClaimStatus("completed")
)

type InstallmentStatus string

const (
	InstallmentUnpaid = InstallmentStatus("Unpaid")
	InstallmentPaid   = InstallmentStatus("Paid")
)

// Installment is one entry of a payment schedule.
type Installment struct {
	No           int               `json:"no"`
	DueDate      time.Time         `json:"due_date"`
	Amount       decimal.Decimal   `json:"amount"`
	Status       InstallmentStatus `json:"status"`
	PaidCash     decimal.Decimal   `json:"paid_cash"`
	PaidTransfer decimal.Decimal   `json:"paid_transfer"`
	PaidAt       *time.Time        `json:"paid_at,omitempty"`
}

func (i Installment) IsPaid() bool { return i.Status == InstallmentPaid }

// Schedule is stored as a JSONB array.
type Schedule []Installment

func (s Schedule) Value() (driver.Value, error) {
	if s == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(s)
}

func (s *Schedule) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*s = nil
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return errors.New("schedule: unsupported scan type")
	}
}

// Device is the covered device.
type Device struct {
	Brand        string          `db:"brand" json:"brand"`
	Model        string          `db:"model" json:"model"`
	SerialNumber string          `db:"serial_number" json:"serial_number"`
	IMEI         string          `db:"imei" json:"imei"`
	StatedValue  decimal.Decimal `db:"stated_value" json:"stated_value"`
}

// Warranty is a registered device protection contract tied to a member.
type Warranty struct {
	ID           string `db:"id" json:"id"`
	PolicyNumber string `db:"policy_number" json:"policy_number"`
	MemberID     string `db:"member_id" json:"member_id"`
	ShopID       string `db:"shop_id" json:"shop_id"`
	Device

	DevicePrice      decimal.Decimal        `db:"device_price" json:"device_price"`
	PaymentMethod    coverage.PaymentMethod `db:"payment_method" json:"payment_method"`
	Schedule         Schedule               `db:"schedule" json:"schedule"`
	InstallmentsPaid int                    `db:"installments_paid" json:"installments_paid"`
	UsedCoverage     decimal.NullDecimal    `db:"used_coverage" json:"used_coverage"`

	ApprovalStatus ApprovalStatus `db:"approval_status" json:"approval_status"`
	DecidedBy      *string        `db:"decided_by" json:"decided_by,omitempty"`
	DecidedAt      *time.Time     `db:"decided_at" json:"decided_at,omitempty"`
	RejectReason   *string        `db:"reject_reason" json:"reject_reason,omitempty"`
	ClaimStatus    ClaimStatus    `db:"claim_status" json:"claim_status"`

	StartsAt  time.Time `db:"starts_at" json:"starts_at"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	Version   int64     `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Derive recomputes fields that are never accepted from input. It runs on
// every write path.
func (w *Warranty) Derive() {
	w.InstallmentsPaid = coverage.InstallmentsPaid(w.PaymentMethod, w.Schedule)
}

// CoverageInput builds the calculator input from stored fields.
func (w *Warranty) CoverageInput(claimCosts []decimal.Decimal) coverage.Input {
	return coverage.Input{
		DevicePrice:      w.DevicePrice,
		StatedValue:      w.StatedValue,
		InstallmentsPaid: coverage.InstallmentsPaid(w.PaymentMethod, w.Schedule),
		UsedCoverage:     w.UsedCoverage,
		ClaimCosts:       claimCosts,
	}
}

// Expired reports whether the contract term has ended at now.
func (w *Warranty) Expired(now time.Time) bool {
	return !w.ExpiresAt.IsZero() && !now.Before(w.ExpiresAt)
}
