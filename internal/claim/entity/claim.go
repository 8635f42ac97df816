package entity

import (
	"database/sql/driver"
	"errors"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusAwaitingIntake = Status("awaiting-intake") // รอเคลม
	StatusDeviceReceived = Status("device-received") // รับเครื่องแล้ว
)

// OverdueAfterDays is the number of whole days without activity after which
// an awaiting claim is overdue.
const OverdueAfterDays = 5

// FirstUpdateStep is the step of the first recorded update; step 1 is the
// intake itself.
const FirstUpdateStep = 2

type ReturnMethod string

const (
	ReturnPickup   = ReturnMethod("pickup")
	ReturnDelivery = ReturnMethod("delivery")
)

type AddressType string

const (
	AddressMember = AddressType("member")
	AddressWork   = AddressType("work")
	AddressShop   = AddressType("shop")
	AddressOther  = AddressType("other")
)

var AddressTypes = map[AddressType]struct{}{
	AddressMember: {},
	AddressWork:   {},
	AddressShop:   {},
	AddressOther:  {},
}

// Update is one repair-progress event.
type Update struct {
	ID          string          `json:"id"`
	Step        int             `json:"step"`
	Description string          `json:"description"`
	Cost        decimal.Decimal `json:"cost"`
	Images      []string        `json:"images,omitempty"`
	Actor       string          `json:"actor,omitempty"`
	Final       bool            `json:"final,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// Updates is the append-only update log, stored as JSONB.
type Updates []Update

func (u Updates) Value() (driver.Value, error) {
	if u == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(u)
}

func (u *Updates) Scan(src any) error { return scanJSON(src, u) }

// Claim is a single repair request against a warranty.
type Claim struct {
	ID         string          `db:"id" json:"id"`
	ClaimID    string          `db:"claim_id" json:"claim_id"`
	WarrantyID string          `db:"warranty_id" json:"warranty_id"`
	ShopID     string          `db:"shop_id" json:"shop_id"`
	Status     Status          `db:"status" json:"status"`
	Symptom    string          `db:"symptom" json:"symptom"`
	Condition  DeviceCondition `db:"device_condition" json:"device_condition"`
	Updates    Updates         `db:"updates" json:"updates"`
	TotalCost  decimal.Decimal `db:"total_cost" json:"total_cost"`

	ReturnMethod      *ReturnMethod `db:"return_method" json:"return_method,omitempty"`
	ReturnShopID      *string       `db:"return_shop_id" json:"return_shop_id,omitempty"`
	ReturnAddressType *AddressType  `db:"return_address_type" json:"return_address_type,omitempty"`
	ReturnAddress     *string       `db:"return_address" json:"return_address,omitempty"`
	PickupDate        *time.Time    `db:"pickup_date" json:"pickup_date,omitempty"`

	CreatedBy string    `db:"created_by" json:"created_by"`
	Version   int64     `db:"version" json:"version"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// NextStep returns the step number for the next update.
func (c *Claim) NextStep() int {
	if len(c.Updates) == 0 {
		return FirstUpdateStep
	}
	return c.Updates[len(c.Updates)-1].Step + 1
}

// Append adds u with the next step and recomputes TotalCost.
func (c *Claim) Append(u Update) Update {
	u.Step = c.NextStep()
	c.Updates = append(c.Updates, u)
	c.RecomputeTotal()
	return u
}

// RecomputeTotal sets TotalCost to the sum of update costs.
func (c *Claim) RecomputeTotal() {
	total := decimal.Zero
	for _, u := range c.Updates {
		total = total.Add(u.Cost)
	}
	c.TotalCost = total
}

// Closed reports whether the device has been returned.
func (c *Claim) Closed() bool {
	return c.Status == StatusDeviceReceived
}

// LastActivity is the time of the latest update, or intake when none exist.
func (c *Claim) LastActivity() time.Time {
	last := c.CreatedAt
	for _, u := range c.Updates {
		if u.CreatedAt.After(last) {
			last = u.CreatedAt
		}
	}
	return last
}

// Overdue reports whether an awaiting claim has been idle for
// OverdueAfterDays or more whole days, and how many whole days it has been
// idle. Closed claims are never overdue.
func (c *Claim) Overdue(now time.Time) (bool, int) {
	if c.Status != StatusAwaitingIntake {
		return false, 0
	}
	days := int(now.Sub(c.LastActivity()) / (24 * time.Hour))
	if days < OverdueAfterDays {
		return false, 0
	}
	return true, days
}

func scanJSON(src any, dst any) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		return errors.New("unsupported scan type for jsonb column")
	}
}
