package shop

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/shop/entity"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/validation"
	"github.com/ovaphlow/pitchfork/service-warranty-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-warranty-go/pkg/utilities"
)

type Store interface {
	Create(ctx context.Context, s *entity.Shop) error
	GetByID(ctx context.Context, id string) (*entity.Shop, error)
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]*entity.Shop, error)
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
	Name    string `json:"name" validate:"required,max=200"`
	Phone   string `json:"phone" validate:"required,min=9,max=10,digits"`
	Address string `json:"address" validate:"max=500"`
}

// Create registers a shop under a fresh S-prefixed code.
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.Shop, error) {
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	now := s.now().UTC()
	sh := &entity.Shop{
		ID:        utilities.NewSnowflakeID(),
		Name:      in.Name,
		Phone:     in.Phone,
		Address:   in.Address,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := database.InsertWithRetry(ctx, s.idRetries, func(ctx context.Context) error {
		sh.ShopCode = utilities.NewCode("S", 4)
		return s.store.Create(ctx, sh)
	})
	switch {
	case err == nil:
	case errors.Is(err, database.ErrRetriesExhausted):
		return nil, apperr.New(apperr.KindInternal, apperr.ErrorIDExhausted, err)
	case errors.Is(err, database.ErrDuplicateKey):
		return nil, apperr.New(apperr.KindValidation, apperr.ErrorDuplicateKey,
			fmt.Errorf("phone %s is already registered", in.Phone))
	default:
		return nil, apperr.Internal(fmt.Errorf("create shop: %w", err))
	}
	s.logger.Infow("shop created", "shop_id", sh.ID, "shop_code", sh.ShopCode)
	return sh, nil
}

func (s *Service) Get(ctx context.Context, id string) (*entity.Shop, error) {
	sh, err := s.store.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.NotFound("shop %s not found", id)
		}
		return nil, apperr.Internal(fmt.Errorf("load shop %s: %w", id, err))
	}
	return sh, nil
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*entity.Shop, error) {
	out, err := s.store.List(ctx, limit, offset)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("list shops: %w", err))
	}
	return out, nil
}

// Exists satisfies the claim workflow's shop check.
func (s *Service) Exists(ctx context.Context, id string) (bool, error) {
	return s.store.Exists(ctx, id)
}
