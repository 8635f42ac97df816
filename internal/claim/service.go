package claim

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/claim/entity"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/notify"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/validation"
	wentity "github.com/ovaphlow/pitchfork/service-warranty-go/internal/warranty/entity"
	"github.com/ovaphlow/pitchfork/service-warranty-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-warranty-go/pkg/utilities"
)

// Store is the claim persistence the workflow needs.
type Store interface {
	Create(ctx context.Context, c *entity.Claim) error
	GetByClaimID(ctx context.Context, claimID string) (*entity.Claim, error)
	Save(ctx context.Context, c *entity.Claim, expectedVersion int64) (int64, error)
	SumTotalCost(ctx context.Context, warrantyID string) (decimal.Decimal, error)
	ListByWarranty(ctx context.Context, warrantyID string) ([]*entity.Claim, error)
	ListByStatus(ctx context.Context, status entity.Status) ([]*entity.Claim, error)
}

// WarrantyStore is the slice of the warranty ledger the workflow touches.
type WarrantyStore interface {
	GetByID(ctx context.Context, id string) (*wentity.Warranty, error)
	GetByPolicyNumber(ctx context.Context, policyNumber string) (*wentity.Warranty, error)
	SetClaimStatus(ctx context.Context, id string, status wentity.ClaimStatus) error
	// ReleaseClaimStatus resets the marker to normal only when no claim on
	// the warranty is still awaiting intake.
	ReleaseClaimStatus(ctx context.Context, id string) (bool, error)
}

// ShopChecker verifies pickup branches.
type ShopChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// Reconciler keeps warranty used coverage in sync after cost changes.
type Reconciler interface {
	ReconcileBestEffort(ctx context.Context, warrantyID string)
}

// Options tune retry bounds.
type Options struct {
	IDRetries    int
	WriteRetries int
}

// Service runs claims through intake, progress updates and completion.
type Service struct {
	claims     Store
	warranties WarrantyStore
	shops      ShopChecker
	reconciler Reconciler
	sink       notify.Sink
	logger     *zap.SugaredLogger
	opts       Options
	now        func() time.Time
}

func NewService(claims Store, warranties WarrantyStore, shops ShopChecker, reconciler Reconciler, sink notify.Sink, logger *zap.SugaredLogger, opts Options) *Service {
	if opts.IDRetries <= 0 {
		opts.IDRetries = 10
	}
	if opts.WriteRetries <= 0 {
		opts.WriteRetries = 3
	}
	if sink == nil {
		sink = notify.Discard
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{
		claims:     claims,
		warranties: warranties,
		shops:      shops,
		reconciler: reconciler,
		sink:       sink,
		logger:     logger,
		opts:       opts,
		now:        time.Now,
	}
}

// IntakeInput opens a claim. Either WarrantyID or PolicyNumber identifies the contract.
type IntakeInput struct {
	WarrantyID   string                 `json:"warranty_id" validate:"required_without=PolicyNumber"`
	PolicyNumber string                 `json:"policy_number" validate:"omitempty,len=7,digits"`
	ShopID       string                 `json:"shop_id"`
	Symptom      string                 `json:"symptom" validate:"required,max=2000"`
	Condition    entity.DeviceCondition `json:"device_condition"`
	Actor        string                 `json:"-"`
}

// UpdateInput records repair progress.
type UpdateInput struct {
	Description string          `json:"description" validate:"required,max=2000"`
	Cost        decimal.Decimal `json:"cost" validate:"gte=0"`
	Images      []string        `json:"images" validate:"omitempty,dive,required"`
	Actor       string          `json:"-"`
}

// CompleteInput records how the device went back to the customer.
type CompleteInput struct {
	Method      entity.ReturnMethod `json:"method" validate:"required,oneof=pickup delivery"`
	ShopID      string              `json:"shop_id"`
	AddressType entity.AddressType  `json:"address_type"`
	Address     string              `json:"address" validate:"max=1000"`
	Note        string              `json:"note" validate:"max=2000"`
	Actor       string              `json:"-"`
}

// Intake creates a claim against an approved, unexpired warranty and marks
// the warranty as having an open claim.
func (s *Service) Intake(ctx context.Context, in IntakeInput) (*entity.Claim, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	w, err := s.loadWarranty(ctx, in.WarrantyID, in.PolicyNumber)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	if w.ApprovalStatus != wentity.ApprovalApproved {
		return nil, apperr.Rule(apperr.ErrorNotApproved, "warranty %s is %s", w.PolicyNumber, w.ApprovalStatus)
	}
	if w.Expired(now) {
		return nil, apperr.Rule(apperr.ErrorExpired, "warranty %s expired on %s", w.PolicyNumber, w.ExpiresAt.Format(time.DateOnly))
	}

	shopID := in.ShopID
	if shopID == "" {
		shopID = w.ShopID
	}
	c := &entity.Claim{
		ID:         utilities.NewSnowflakeID(),
		WarrantyID: w.ID,
		ShopID:     shopID,
		Status:     entity.StatusAwaitingIntake,
		Symptom:    in.Symptom,
		Condition:  in.Condition,
		Updates:    entity.Updates{},
		TotalCost:  decimal.Zero,
		CreatedBy:  in.Actor,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	err = database.InsertWithRetry(ctx, s.opts.IDRetries, func(ctx context.Context) error {
		c.ClaimID = newClaimID()
		return s.claims.Create(ctx, c)
	})
	if err != nil {
		if errors.Is(err, database.ErrRetriesExhausted) {
			return nil, apperr.New(apperr.KindInternal, apperr.ErrorIDExhausted, err)
		}
		return nil, apperr.Internal(fmt.Errorf("create claim: %w", err))
	}

	s.setWarrantyClaimStatus(ctx, w.ID, wentity.ClaimPending)
	s.logger.Infow("claim opened", "claim_id", c.ClaimID, "warranty_id", w.ID, "damaged", c.Condition.Damaged())
	s.emit(ctx, c)
	return c, nil
}

// AddUpdate appends a progress update. A costed update without evidence
// images is rejected before anything is written.
func (s *Service) AddUpdate(ctx context.Context, claimID string, in UpdateInput) (*entity.Claim, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.Cost.IsPositive() && len(in.Images) == 0 {
		return nil, apperr.Rule(apperr.ErrorMissingEvidence, "an update with cost %s needs at least one evidence image", in.Cost.String())
	}

	c, err := s.mutate(ctx, claimID, func(c *entity.Claim) error {
		if c.Closed() {
			return apperr.Rule(apperr.ErrorClaimClosed, "claim %s is already %s", c.ClaimID, c.Status)
		}
		c.Append(entity.Update{
			ID:          utilities.NewKSUID(),
			Description: in.Description,
			Cost:        in.Cost,
			Images:      in.Images,
			Actor:       in.Actor,
			CreatedAt:   s.now().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.reconciler.ReconcileBestEffort(ctx, c.WarrantyID)
	s.emit(ctx, c)
	return c, nil
}

// Complete records the return, appends the closing update and marks the
// device received. The warranty's open-claim marker is released once its last
// open claim closes.
func (s *Service) Complete(ctx context.Context, claimID string, in CompleteInput) (*entity.Claim, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	summary, err := s.checkReturn(ctx, in)
	if err != nil {
		return nil, err
	}

	c, err := s.mutate(ctx, claimID, func(c *entity.Claim) error {
		if c.Closed() {
			return apperr.Rule(apperr.ErrorClaimClosed, "claim %s is already %s", c.ClaimID, c.Status)
		}
		now := s.now().UTC()
		desc := summary
		if in.Note != "" {
			desc += ": " + in.Note
		}
		c.Append(entity.Update{
			ID:          utilities.NewKSUID(),
			Description: desc,
			Cost:        decimal.Zero,
			Actor:       in.Actor,
			Final:       true,
			CreatedAt:   now,
		})
		method := in.Method
		c.ReturnMethod = &method
		c.ReturnShopID, c.ReturnAddressType, c.ReturnAddress = nil, nil, nil
		switch in.Method {
		case entity.ReturnPickup:
			shopID := in.ShopID
			c.ReturnShopID = &shopID
		case entity.ReturnDelivery:
			at, addr := in.AddressType, in.Address
			c.ReturnAddressType = &at
			c.ReturnAddress = &addr
		}
		c.Status = entity.StatusDeviceReceived
		c.PickupDate = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	released, err := s.warranties.ReleaseClaimStatus(ctx, c.WarrantyID)
	if err != nil {
		s.logger.Warnw("release warranty claim status failed", "warranty_id", c.WarrantyID, "err", err)
	}
	s.logger.Infow("claim completed", "claim_id", c.ClaimID, "warranty_id", c.WarrantyID, "method", in.Method, "released", released)
	s.emit(ctx, c)
	return c, nil
}

// ClaimView is a claim with its derived overdue state.
type ClaimView struct {
	*entity.Claim
	IsOverdue   bool `json:"is_overdue"`
	DaysOverdue int  `json:"days_overdue"`
}

func (s *Service) view(c *entity.Claim, now time.Time) ClaimView {
	over, days := c.Overdue(now)
	return ClaimView{Claim: c, IsOverdue: over, DaysOverdue: days}
}

// Get returns a claim by public id.
func (s *Service) Get(ctx context.Context, claimID string) (ClaimView, error) {
	c, err := s.load(ctx, claimID)
	if err != nil {
		return ClaimView{}, err
	}
	return s.view(c, s.now()), nil
}

// ListByWarranty returns all claims of a warranty.
func (s *Service) ListByWarranty(ctx context.Context, warrantyID string) ([]ClaimView, error) {
	cs, err := s.claims.ListByWarranty(ctx, warrantyID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list claims: %w", err))
	}
	now := s.now()
	out := make([]ClaimView, 0, len(cs))
	for _, c := range cs {
		out = append(out, s.view(c, now))
	}
	return out, nil
}

// ListOverdue returns awaiting claims idle for the overdue threshold or longer.
func (s *Service) ListOverdue(ctx context.Context) ([]ClaimView, error) {
	cs, err := s.claims.ListByStatus(ctx, entity.StatusAwaitingIntake)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list awaiting claims: %w", err))
	}
	now := s.now()
	var out []ClaimView
	for _, c := range cs {
		if v := s.view(c, now); v.IsOverdue {
			out = append(out, v)
		}
	}
	return out, nil
}

// mutate runs load -> fn -> versioned save, retrying the whole sequence when
// another writer changed the claim in between.
func (s *Service) mutate(ctx context.Context, claimID string, fn func(c *entity.Claim) error) (*entity.Claim, error) {
	for attempt := 1; attempt <= s.opts.WriteRetries; attempt++ {
		c, err := s.load(ctx, claimID)
		if err != nil {
			return nil, err
		}
		expected := c.Version
		if err := fn(c); err != nil {
			return nil, err
		}
		c.UpdatedAt = s.now().UTC()
		n, err := s.claims.Save(ctx, c, expected)
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("save claim %s: %w", claimID, err))
		}
		if n > 0 {
			return c, nil
		}
		s.logger.Debugw("claim version conflict", "claim_id", claimID, "attempt", attempt)
	}
	return nil, apperr.Conflict("claim %s was modified concurrently, retry", claimID)
}

func (s *Service) load(ctx context.Context, claimID string) (*entity.Claim, error) {
	c, err := s.claims.GetByClaimID(ctx, claimID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("claim %s not found", claimID)
		}
		return nil, apperr.Internal(fmt.Errorf("load claim %s: %w", claimID, err))
	}
	return c, nil
}

func (s *Service) loadWarranty(ctx context.Context, id, policyNumber string) (*wentity.Warranty, error) {
	var (
		w   *wentity.Warranty
		err error
		ref = id
	)
	if id != "" {
		w, err = s.warranties.GetByID(ctx, id)
	} else {
		ref = policyNumber
		w, err = s.warranties.GetByPolicyNumber(ctx, policyNumber)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("warranty %s not found", ref)
		}
		return nil, apperr.Internal(fmt.Errorf("load warranty %s: %w", ref, err))
	}
	return w, nil
}

func (s *Service) checkReturn(ctx context.Context, in CompleteInput) (string, error) {
	switch in.Method {
	case entity.ReturnPickup:
		if in.ShopID == "" {
			return "", apperr.Rule(apperr.ErrorInvalidReturn, "pickup needs a branch")
		}
		if s.shops != nil {
			ok, err := s.shops.Exists(ctx, in.ShopID)
			if err != nil {
				return "", apperr.Internal(fmt.Errorf("check shop %s: %w", in.ShopID, err))
			}
			if !ok {
				return "", apperr.NotFound("shop %s not found", in.ShopID)
			}
		}
		return "returned: picked up at branch " + in.ShopID, nil
	case entity.ReturnDelivery:
		if _, ok := entity.AddressTypes[in.AddressType]; !ok {
			return "", apperr.Rule(apperr.ErrorInvalidReturn, "unknown delivery address type %q", in.AddressType)
		}
		if in.Address == "" {
			return "", apperr.Rule(apperr.ErrorInvalidReturn, "delivery needs an address")
		}
		return "returned: delivered to " + string(in.AddressType) + " address", nil
	}
	return "", apperr.Rule(apperr.ErrorInvalidReturn, "unknown return method %q", in.Method)
}

func (s *Service) setWarrantyClaimStatus(ctx context.Context, warrantyID string, st wentity.ClaimStatus) {
	if err := s.warranties.SetClaimStatus(ctx, warrantyID, st); err != nil {
		s.logger.Warnw("set warranty claim status failed", "warranty_id", warrantyID, "claim_status", st, "err", err)
	}
}

func (s *Service) emit(ctx context.Context, c *entity.Claim) {
	ev := notify.NewEvent(notify.EventClaimUpdated, notify.Payload{
		"claimId":    c.ClaimID,
		"id":         c.ID,
		"warrantyId": c.WarrantyID,
		"status":     c.Status,
	})
	if err := s.sink.Emit(ctx, ev); err != nil {
		s.logger.Warnw("emit claim event failed", "claim_id", c.ClaimID, "err", err)
	}
}

func newClaimID() string {
	return utilities.NewCode("CLM", 7)
}
