package claim

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/claim/entity"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/coverage"
)

// TrackingUpdate is one public history line.
type TrackingUpdate struct {
	Step        int             `json:"step"`
	Description string          `json:"description"`
	Cost        decimal.Decimal `json:"cost"`
	Images      []string        `json:"images,omitempty"`
	Final       bool            `json:"final,omitempty"`
	At          time.Time       `json:"at"`
}

// Tracking is the public read model for a claim. It carries no internal ids.
type Tracking struct {
	ClaimID        string           `json:"claim_id"`
	PolicyNumber   string           `json:"policy_number"`
	Brand          string           `json:"brand"`
	Model          string           `json:"model"`
	Status         entity.Status    `json:"status"`
	TotalCost      decimal.Decimal  `json:"total_cost"`
	CurrentLimit   decimal.Decimal  `json:"current_limit"`
	RemainingLimit decimal.Decimal  `json:"remaining_limit"`
	IsOverdue      bool             `json:"is_overdue"`
	DaysOverdue    int              `json:"days_overdue"`
	OpenedAt       time.Time        `json:"opened_at"`
	PickupDate     *time.Time       `json:"pickup_date,omitempty"`
	Updates        []TrackingUpdate `json:"updates"`
}

// Track builds the public tracking view, updates newest first.
func (s *Service) Track(ctx context.Context, claimID string) (*Tracking, error) {
	c, err := s.load(ctx, claimID)
	if err != nil {
		return nil, err
	}
	w, err := s.loadWarranty(ctx, c.WarrantyID, "")
	if err != nil {
		return nil, err
	}

	var costs []decimal.Decimal
	if !w.UsedCoverage.Valid {
		sum, err := s.claims.SumTotalCost(ctx, w.ID)
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("sum claim costs: %w", err))
		}
		costs = []decimal.Decimal{sum}
	}
	limits := coverage.Compute(w.CoverageInput(costs))
	over, days := c.Overdue(s.now())

	updates := make([]TrackingUpdate, 0, len(c.Updates))
	for _, u := range c.Updates {
		updates = append(updates, TrackingUpdate{
			Step:        u.Step,
			Description: u.Description,
			Cost:        u.Cost,
			Images:      u.Images,
			Final:       u.Final,
			At:          u.CreatedAt,
		})
	}
	slices.SortStableFunc(updates, func(a, b TrackingUpdate) int {
		if !a.At.Equal(b.At) {
			return b.At.Compare(a.At)
		}
		return b.Step - a.Step
	})

	return &Tracking{
		ClaimID:        c.ClaimID,
		PolicyNumber:   w.PolicyNumber,
		Brand:          w.Brand,
		Model:          w.Model,
		Status:         c.Status,
		TotalCost:      c.TotalCost,
		CurrentLimit:   limits.CurrentLimit,
		RemainingLimit: limits.RemainingLimit,
		IsOverdue:      over,
		DaysOverdue:    days,
		OpenedAt:       c.CreatedAt,
		PickupDate:     c.PickupDate,
		Updates:        updates,
	}, nil
}
