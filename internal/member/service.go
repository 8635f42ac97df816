package member

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/member/entity"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/validation"
	"github.com/ovaphlow/pitchfork/service-warranty-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-warranty-go/pkg/utilities"
)

type Store interface {
	Create(ctx context.Context, m *entity.Member) error
	GetByID(ctx context.Context, id string) (*entity.Member, error)
	Exists(ctx context.Context, id string) (bool, error)
}

type Service struct {
	store     Store
	logger    *zap.SugaredLogger
	idRetries int
	now       func() time.Time
}

func NewService(store Store, logger *zap.SugaredLogger, idRetries int) *Service {
	if idRetries <= 0 {
		idRetries = 10
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, logger: logger, idRetries: idRetries, now: time.Now}
}

type CreateInput struct {
	Name      string `json:"name" validate:"required,max=200"`
	Phone     string `json:"phone" validate:"required,len=10,digits"`
	CitizenID string `json:"citizen_id" validate:"required,len=13,digits"`
	Address   string `json:"address" validate:"max=500"`
	WorkAddr  string `json:"work_address" validate:"max=500"`
}

// Create registers a member under a fresh M-prefixed code.
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.Member, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	m := &entity.Member{
		ID:        utilities.NewSnowflakeID(),
		Name:      in.Name,
		Phone:     in.Phone,
		CitizenID: in.CitizenID,
		Address:   in.Address,
		WorkAddr:  in.WorkAddr,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := database.InsertWithRetry(ctx, s.idRetries, func(ctx context.Context) error {
		m.MemberCode = utilities.NewCode("M", 6)
		return s.store.Create(ctx, m)
	})
	switch {
	case err == nil:
	case errors.Is(err, database.ErrRetriesExhausted):
		return nil, apperr.New(apperr.KindInternal, apperr.ErrorIDExhausted, err)
	case errors.Is(err, database.ErrDuplicateKey):
		return nil, apperr.New(apperr.KindValidation, apperr.ErrorDuplicateKey,
			errors.New("phone or citizen id is already registered"))
	default:
		return nil, apperr.Internal(fmt.Errorf("create member: %w", err))
	}
	s.logger.Infow("member created", "member_id", m.ID, "member_code", m.MemberCode)
	return m, nil
}

func (s *Service) Get(ctx context.Context, id string) (*entity.Member, error) {
	m, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("member %s not found", id)
		}
		return nil, apperr.Internal(fmt.Errorf("load member %s: %w", id, err))
	}
	return m, nil
}

// Exists satisfies the warranty ledger's member check.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	return s.store.Exists(ctx, id)
}
