package staff

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/staff/entity"
	"github.com/ovaphlow/pitchfork/service-warranty-go/internal/validation"
	"github.com/ovaphlow/pitchfork/service-warranty-go/pkg/database"
	"github.com/ovaphlow/pitchfork/service-warranty-go/pkg/utilities"
)

// PasswordHasher defines minimal hashing interface (abstract so we can swap to argon2 later).
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

type Store interface {
	Create(ctx context.Context, s *entity.Staff) error
	GetByUsername(ctx context.Context, username string) (*entity.Staff, error)
	IncrementFailedLogin(ctx context.Context, id string) (int, error)
	LockIfThreshold(ctx context.Context, id string, threshold, lockMinutes int) (bool, error)
	UnlockIfExpired(ctx context.Context, id string) (bool, error)
	ResetLoginSuccess(ctx context.Context, id string) error
}

type TokenIssuer interface {
	Issue(a auth.Actor, version int64) (string, error)
	TTL() time.Duration
}

// Service orchestrates staff accounts and password login.
type Service struct {
	store  Store
	hasher PasswordHasher
	tokens TokenIssuer
	logger *zap.SugaredLogger
	now    func() time.Time
	// lockout knobs
	MaxFailed   int
	LockMinutes int
}

func NewService(store Store, hasher PasswordHasher, tokens TokenIssuer, logger *zap.SugaredLogger) *Service {
	if hasher == nil {
		hasher = BcryptHasher{Cost: 12}
	}
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Service{store: store, hasher: hasher, tokens: tokens, logger: logger, now: time.Now, MaxFailed: 6, LockMinutes: 15}
}

type CreateInput struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Role     string `json:"role" validate:"required,oneof=admin staff"`
	ShopID   string `json:"shop_id"`
}

type LoginInput struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResult struct {
	AccessToken string        `json:"access_token"`
	TokenType   string        `json:"token_type"`
	ExpiresIn   int           `json:"expires_in"`
	Staff       *entity.Staff `json:"staff"`
}

// Create adds an account with a hashed password.
func (s *Service) Create(ctx context.Context, in CreateInput) (*entity.Staff, error) {
	in.Username = strings.TrimSpace(in.Username)
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, apperr.Internal(fmt.Errorf("hash password: %w", err))
	}
	now := s.now().UTC()
	st := &entity.Staff{
		ID:           utilities.NewSnowflakeID(),
		Username:     in.Username,
		PasswordHash: hash,
		Role:         in.Role,
		ShopID:       in.ShopID,
		Status:       entity.StatusActive,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.Create(ctx, st); err != nil {
		if errors.Is(err, database.ErrDuplicateKey) {
			return nil, apperr.New(apperr.KindValidation, apperr.ErrorDuplicateKey,
				fmt.Errorf("username %s is taken", in.Username))
		}
		return nil, apperr.Internal(fmt.Errorf("create staff: %w", err))
	}
	s.logger.Infow("staff created", "staff_id", st.ID, "username", st.Username, "role", st.Role)
	return st, nil
}

// EnsureAdmin creates an admin account unless the username already exists.
func (s *Service) EnsureAdmin(ctx context.Context, username, password string) error {
	_, err := s.Create(ctx, CreateInput{Username: username, Password: password, Role: "admin"})
	if err != nil && !apperr.Is(err, apperr.ErrorDuplicateKey) {
		return err
	}
	return nil
}

// Login verifies a password and issues an access token. Unknown usernames
// and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, in LoginInput) (*LoginResult, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" || in.Password == "" {
		return nil, badCredentials()
	}
	st, err := s.store.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, badCredentials()
		}
		return nil, apperr.Internal(fmt.Errorf("load staff: %w", err))
	}

	if st.Status == entity.StatusLocked && st.LockedUntil != nil && st.LockedUntil.Before(s.now()) {
		if unlocked, _ := s.store.UnlockIfExpired(ctx, st.ID); unlocked {
			st.Status = entity.StatusActive
			st.LockedUntil = nil
		}
	}
	switch st.Status {
	case entity.StatusLocked:
		return nil, apperr.New(apperr.KindForbidden, apperr.ErrorAccountLocked, errors.New("account locked"))
	case entity.StatusDisabled:
		return nil, apperr.New(apperr.KindForbidden, apperr.ErrorAccountDisabled, errors.New("account disabled"))
	}

	if !s.hasher.Verify(st.PasswordHash, in.Password) {
		if _, incErr := s.store.IncrementFailedLogin(ctx, st.ID); incErr == nil {
			if locked, _ := s.store.LockIfThreshold(ctx, st.ID, s.MaxFailed, s.LockMinutes); locked {
				s.logger.Warnw("staff account locked", "staff_id", st.ID, "username", st.Username)
			}
		}
		return nil, badCredentials()
	}
	if err := s.store.ResetLoginSuccess(ctx, st.ID); err != nil {
		return nil, apperr.Internal(fmt.Errorf("reset login: %w", err))
	}

	tok, err := s.tokens.Issue(auth.Actor{
		ID:       st.ID,
		Username: st.Username,
		Role:     auth.Role(st.Role),
		ShopID:   st.ShopID,
	}, st.Version)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	s.logger.Debugw("staff logged in", "staff_id", st.ID)
	return &LoginResult{
		AccessToken: tok,
		TokenType:   "Bearer",
		ExpiresIn:   int(s.tokens.TTL().Seconds()),
		Staff:       st,
	}, nil
}

func badCredentials() error {
	return apperr.New(apperr.KindUnauthorized, apperr.ErrorBadCredentials, errors.New("invalid credentials"))
}
