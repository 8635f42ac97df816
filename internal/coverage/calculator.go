// Package coverage derives repair-coverage limits from a warranty's
// financial state. Everything here is pure.
package coverage

import (
	"github.com/shopspring/decimal"
)

// PaymentMethod is how the device price is being paid.
type PaymentMethod string

const (
	PaymentCash        = PaymentMethod("Cash")
	PaymentTransfer    = PaymentMethod("Transfer")
	PaymentInstallment = PaymentMethod("Installment")
)

// MaxInstallments is the number of installments that unlocks the full limit.
const MaxInstallments = 3

var (
	maxLimitRate = decimal.RequireFromString("0.70")

	tierFull = decimal.NewFromInt(1)
	tierTwo  = decimal.RequireFromString("0.30")
	tierLow  = decimal.RequireFromString("0.10")
)

// Payment is anything that knows whether it has been paid.
type Payment interface {
	IsPaid() bool
}

// Limits is the derived view of a warranty's coverage.
type Limits struct {
	MaxLimit         decimal.Decimal `json:"max_limit"`
	CurrentLimit     decimal.Decimal `json:"current_limit"`
	UsedCoverage     decimal.Decimal `json:"used_coverage"`
	RemainingLimit   decimal.Decimal `json:"remaining_limit"`
	InstallmentsPaid int             `json:"installments_paid"`
}

// Input carries the stored fields the limits are computed from.
type Input struct {
	DevicePrice      decimal.Decimal
	StatedValue      decimal.Decimal
	InstallmentsPaid int
	// UsedCoverage is the tracked value; when not Valid, ClaimCosts are summed.
	UsedCoverage decimal.NullDecimal
	ClaimCosts   []decimal.Decimal
}

// BasePrice returns the device price used for limit calculation, falling
// back to the stated device value. Negative values resolve to zero.
func BasePrice(devicePrice, statedValue decimal.Decimal) decimal.Decimal {
	p := devicePrice
	if !p.IsPositive() {
		p = statedValue
	}
	if !p.IsPositive() {
		return decimal.Zero
	}
	return p
}

// MaxLimit is floor(price * 0.70).
func MaxLimit(price decimal.Decimal) decimal.Decimal {
	if !price.IsPositive() {
		return decimal.Zero
	}
	return price.Mul(maxLimitRate).Floor()
}

// InstallmentsPaid counts paid schedule entries for installment contracts,
// capped at MaxInstallments. Every other payment method counts as fully paid.
func InstallmentsPaid[P Payment](method PaymentMethod, schedule []P) int {
	if method != PaymentInstallment {
		return MaxInstallments
	}
	n := 0
	for _, p := range schedule {
		if p.IsPaid() {
			n++
		}
	}
	return min(n, MaxInstallments)
}

// CurrentLimit applies the installment tier to maxLimit.
func CurrentLimit(maxLimit decimal.Decimal, installmentsPaid int) decimal.Decimal {
	rate := tierLow
	switch {
	case installmentsPaid >= MaxInstallments:
		rate = tierFull
	case installmentsPaid == 2:
		rate = tierTwo
	}
	return maxLimit.Mul(rate).Floor()
}

// SumCosts adds up claim totals.
func SumCosts(costs []decimal.Decimal) decimal.Decimal {
	sum := decimal.Zero
	for _, c := range costs {
		sum = sum.Add(c)
	}
	return sum
}

// Compute derives all limits. RemainingLimit is not clamped: a negative
// value means the contract is over its limit.
func Compute(in Input) Limits {
	maxLimit := MaxLimit(BasePrice(in.DevicePrice, in.StatedValue))
	current := CurrentLimit(maxLimit, in.InstallmentsPaid)

	used := SumCosts(in.ClaimCosts)
	if in.UsedCoverage.Valid {
		used = in.UsedCoverage.Decimal
	}

	return Limits{
		MaxLimit:         maxLimit,
		CurrentLimit:     current,
		UsedCoverage:     used,
		RemainingLimit:   current.Sub(used),
		InstallmentsPaid: in.InstallmentsPaid,
	}
}
