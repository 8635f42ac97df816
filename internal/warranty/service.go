package warranty

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/coverage"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/notify"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/validation"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/warranty/entity"
	"github.com/ovaphlow/pitchfork/service-warranty-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-warranty-go/pkg/utilities"
)

// Store is the warranty persistence the ledger needs.
type Store interface {
	Create(ctx context.Context, w *entity.Warranty) error
	GetByID(ctx context.Context, id string) (*entity.Warranty, error)
	GetByPolicyNumber(ctx context.Context, policyNumber string) (*entity.Warranty, error)
	DeviceExists(ctx context.Context, serial, imei string) (bool, error)
	Save(ctx context.Context, w *entity.Warranty, expectedVersion int64) (int64, error)
	Decide(ctx context.Context, id string, status entity.ApprovalStatus, actor string, reason *string, at time.Time) (*entity.Warranty, error)
	ListByMember(ctx context.Context, memberID string) ([]*entity.Warranty, error)
}

// MemberChecker verifies the owning member exists.
type MemberChecker interface {
	Exists(ctx context.Context, id string) (bool, error)
}

// CostSummer sums claim totals when used coverage is not tracked.
type CostSummer interface {
	SumTotalCost(ctx context.Context, warrantyID string) (decimal.Decimal, error)
}

type Options struct {
	IDRetries    int
	WriteRetries int
	TermMonths   int
}

// Service owns a warranty contract's financial state and approval gate.
type Service struct {
	store   Store
	members MemberChecker
	claims  CostSummer
	sink    notify.Sink
	logger  *zap.SugaredLogger
	opts    Options
	now     func() time.Time
}

func NewService(store Store, members MemberChecker, claims CostSummer, sink notify.Sink, logger *zap.SugaredLogger, opts Options) *Service {
	if opts.IDRetries <= 0 {
		opts.IDRetries = 10
	}
	if opts.WriteRetries <= 0 {
		opts.WriteRetries = 3
	}
	if opts.TermMonths <= 0 {
		opts.TermMonths = 12
	}
	if sink == nil {
		sink = notify.Discard
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, members: members, claims: claims, sink: sink, logger: logger, opts: opts, now: time.Now}
}

type InstallmentInput struct {
	DueDate time.Time       `json:"due_date" validate:"required"`
	Amount  decimal.Decimal `json:"amount" validate:"gte=0"`
}

// RegisterInput registers a device. Installments paid is not part of the
// input; it is always derived from the schedule.
type RegisterInput struct {
	MemberID      string                 `json:"member_id" validate:"required"`
	ShopID        string                 `json:"shop_id"`
	Brand         string                 `json:"brand" validate:"required,max=100"`
	Model         string                 `json:"model" validate:"required,max=100"`
	SerialNumber  string                 `json:"serial_number" validate:"required,max=64"`
	IMEI          string                 `json:"imei" validate:"required,len=15,digits"`
	StatedValue   decimal.Decimal        `json:"stated_value" validate:"gte=0"`
	DevicePrice   decimal.Decimal        `json:"device_price" validate:"gte=0"`
	PaymentMethod coverage.PaymentMethod `json:"payment_method" validate:"required,oneof=Cash Transfer Installment"`
	Installments  []InstallmentInput     `json:"installments" validate:"max=3,dive"`
	Actor         string                 `json:"-"`
	AutoApprove   bool                   `json:"-"`
}

// PaymentInput records money received for installments.
type PaymentInput struct {
	PaidCash     decimal.Decimal `json:"paid_cash" validate:"gte=0"`
	PaidTransfer decimal.Decimal `json:"paid_transfer" validate:"gte=0"`
}

// View is a warranty with its derived limits.
type View struct {
	*entity.Warranty
	Limits coverage.Limits `json:"limits"`
}

// Register creates a contract with a fresh policy number.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*entity.Warranty, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.PaymentMethod == coverage.PaymentInstallment && len(in.Installments) == 0 {
		return nil, apperr.Validation("installment payment needs a schedule")
	}
	if s.members != nil {
		ok, err := s.members.Exists(ctx, in.MemberID)
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("check member: %w", err))
		}
		if !ok {
			return nil, apperr.NotFound("member %s not found", in.MemberID)
		}
	}
	dup, err := s.store.DeviceExists(ctx, in.SerialNumber, in.IMEI)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("check device: %w", err))
	}
	if dup {
		return nil, apperr.New(apperr.KindValidation, apperr.ErrorDuplicateKey,
			fmt.Errorf("serial %s or IMEI %s is already registered", in.SerialNumber, in.IMEI))
	}

	now := s.now().UTC()
	w := &entity.Warranty{
		ID:       utilities.NewSnowflakeID(),
		MemberID: in.MemberID,
		ShopID:   in.ShopID,
		Device: entity.Device{
			Brand:        in.Brand,
			Model:        in.Model,
			SerialNumber: in.SerialNumber,
			IMEI:         in.IMEI,
			StatedValue:  in.StatedValue,
		},
		DevicePrice:    in.DevicePrice,
		PaymentMethod:  in.PaymentMethod,
		Schedule:       buildSchedule(in),
		ApprovalStatus: entity.ApprovalPending,
		ClaimStatus:    entity.ClaimNormal,
		StartsAt:       now,
		ExpiresAt:      now.AddDate(0, s.opts.TermMonths, 0),
		Version:        1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if in.AutoApprove {
		actor := in.Actor
		w.ApprovalStatus = entity.ApprovalApproved
		w.DecidedBy = &actor
		w.DecidedAt = &now
	}

	err = database.InsertWithRetry(ctx, s.opts.IDRetries, func(ctx context.Context) error {
		w.PolicyNumber = utilities.RandomDigits(7)
		return s.store.Create(ctx, w)
	})
	switch {
	case err == nil:
	case errors.Is(err, database.ErrRetriesExhausted):
		return nil, apperr.New(apperr.KindInternal, apperr.ErrorIDExhausted, err)
	case errors.Is(err, database.ErrDuplicateKey):
		return nil, apperr.New(apperr.KindValidation, apperr.ErrorDuplicateKey, err)
	default:
		return nil, apperr.Internal(fmt.Errorf("create warranty: %w", err))
	}

	s.logger.Infow("warranty registered", "warranty_id", w.ID, "policy_number", w.PolicyNumber, "approval_status", w.ApprovalStatus)
	if w.ApprovalStatus == entity.ApprovalPending {
		s.emit(ctx, notify.EventApprovalNeeded, w)
	}
	return w, nil
}

// Approve accepts a pending contract.
func (s *Service) Approve(ctx context.Context, id, actor string) (*entity.Warranty, error) {
	return s.decide(ctx, id, entity.ApprovalApproved, actor, nil)
}

// Reject declines a pending contract with a reason.
func (s *Service) Reject(ctx context.Context, id, actor, reason string) (*entity.Warranty, error) {
	if reason == "" {
		return nil, apperr.Validation("reject reason is required")
	}
	return s.decide(ctx, id, entity.ApprovalRejected, actor, &reason)
}

// decide is one-shot: a contract that is no longer pending cannot be re-decided.
func (s *Service) decide(ctx context.Context, id string, status entity.ApprovalStatus, actor string, reason *string) (*entity.Warranty, error) {
	if actor == "" {
		return nil, apperr.Validation("actor is required")
	}
	w, err := s.store.Decide(ctx, id, status, actor, reason, s.now().UTC())
	if err == nil {
		s.logger.Infow("warranty decided", "warranty_id", id, "approval_status", status, "actor", actor)
		return w, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.Internal(fmt.Errorf("decide warranty %s: %w", id, err))
	}
	cur, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return nil, apperr.Rule(apperr.ErrorAlreadyDecided, "warranty %s is already %s", cur.PolicyNumber, cur.ApprovalStatus)
}

// PayInstallment marks one schedule entry paid.
func (s *Service) PayInstallment(ctx context.Context, id string, no int, in PaymentInput) (*entity.Warranty, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, func(w *entity.Warranty) error {
		now := s.now().UTC()
		for i := range w.Schedule {
			if w.Schedule[i].No != no {
				continue
			}
			if w.Schedule[i].IsPaid() {
				return apperr.Rule(apperr.ErrorInstallmentPaid, "installment %d is already paid", no)
			}
			markPaid(&w.Schedule[i], in, now)
			return nil
		}
		return apperr.NotFound("installment %d not found on warranty %s", no, w.PolicyNumber)
	})
}

// PayAllRemaining marks every unpaid installment paid. The same cash and
// transfer amounts are recorded on each entry rather than being split.
func (s *Service) PayAllRemaining(ctx context.Context, id string, in PaymentInput) (*entity.Warranty, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	return s.mutate(ctx, id, func(w *entity.Warranty) error {
		now := s.now().UTC()
		paid := 0
		for i := range w.Schedule {
			if !w.Schedule[i].IsPaid() {
				markPaid(&w.Schedule[i], in, now)
				paid++
			}
		}
		if paid == 0 {
			return apperr.Rule(apperr.ErrorInstallmentPaid, "warranty %s has no outstanding installments", w.PolicyNumber)
		}
		return nil
	})
}

// Get returns a warranty with derived limits.
func (s *Service) Get(ctx context.Context, id string) (*View, error) {
	w, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.view(ctx, w)
}

// GetByPolicyNumber returns a warranty with derived limits.
func (s *Service) GetByPolicyNumber(ctx context.Context, policyNumber string) (*View, error) {
	w, err := s.store.GetByPolicyNumber(ctx, policyNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("warranty %s not found", policyNumber)
		}
		return nil, apperr.Internal(fmt.Errorf("load warranty %s: %w", policyNumber, err))
	}
	return s.view(ctx, w)
}

// ListByMember returns every contract a member holds, newest first.
func (s *Service) ListByMember(ctx context.Context, memberID string) ([]*View, error) {
	if s.members != nil {
		ok, err := s.members.Exists(ctx, memberID)
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("check member: %w", err))
		}
		if !ok {
			return nil, apperr.NotFound("member %s not found", memberID)
		}
	}
	ws, err := s.store.ListByMember(ctx, memberID)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list warranties of member %s: %w", memberID, err))
	}
	out := make([]*View, 0, len(ws))
	for _, w := range ws {
		v, err := s.view(ctx, w)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Limits returns only the derived coverage limits.
func (s *Service) Limits(ctx context.Context, id string) (coverage.Limits, error) {
	v, err := s.Get(ctx, id)
	if err != nil {
		return coverage.Limits{}, err
	}
	return v.Limits, nil
}

func (s *Service) view(ctx context.Context, w *entity.Warranty) (*View, error) {
	var costs []decimal.Decimal
	if !w.UsedCoverage.Valid && s.claims != nil {
		sum, err := s.claims.SumTotalCost(ctx, w.ID)
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("sum claim costs: %w", err))
		}
		costs = []decimal.Decimal{sum}
	}
	return &View{Warranty: w, Limits: coverage.Compute(w.CoverageInput(costs))}, nil
}

func (s *Service) mutate(ctx context.Context, id string, fn func(w *entity.Warranty) error) (*entity.Warranty, error) {
	for attempt := 1; attempt <= s.opts.WriteRetries; attempt++ {
		w, err := s.load(ctx, id)
		if err != nil {
			return nil, err
		}
		expected := w.Version
		if err := fn(w); err != nil {
			return nil, err
		}
		n, err := s.store.Save(ctx, w, expected)
		if err != nil {
			return nil, apperr.Internal(fmt.Errorf("save warranty %s: %w", id, err))
		}
		if n > 0 {
			return w, nil
		}
		s.logger.Debugw("warranty version conflict", "warranty_id", id, "attempt", attempt)
	}
	return nil, apperr.Conflict("warranty %s was modified concurrently, retry", id)
}

func (s *Service) load(ctx context.Context, id string) (*entity.Warranty, error) {
	w, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("warranty %s not found", id)
		}
		return nil, apperr.Internal(fmt.Errorf("load warranty %s: %w", id, err))
	}
	return w, nil
}

func (s *Service) emit(ctx context.Context, name string, w *entity.Warranty) {
	ev := notify.NewEvent(name, notify.Payload{
		"id":           w.ID,
		"policyNumber": w.PolicyNumber,
		"memberId":     w.MemberID,
	})
	if err := s.sink.Emit(ctx, ev); err != nil {
		s.logger.Warnw("emit warranty event failed", "warranty_id", w.ID, "event", name, "err", err)
	}
}

func buildSchedule(in RegisterInput) entity.Schedule {
	if in.PaymentMethod != coverage.PaymentInstallment {
		return entity.Schedule{}
	}
	out := make(entity.Schedule, 0, len(in.Installments))
	for i, inst := range in.Installments {
		out = append(out, entity.Installment{
			No:      i + 1,
			DueDate: inst.DueDate,
			Amount:  inst.Amount,
			Status:  entity.InstallmentUnpaid,
		})
	}
	return out
}

func markPaid(inst *entity.Installment, in PaymentInput, at time.Time) {
	inst.Status = entity.InstallmentPaid
	inst.PaidCash = in.PaidCash
	inst.PaidTransfer = in.PaidTransfer
	inst.PaidAt = &at
}
