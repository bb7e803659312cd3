// Package auth handles registration, login and JWT issuance.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	domainErrors "kosh/internal/errors"
	"kosh/internal/models"
	"kosh/internal/repositories"
	"kosh/internal/services/wallet"
	"kosh/internal/utils"
)

type Config struct {
	JWTSecret string
	TokenTTL  time.Duration
	// SignupBonus, when positive, is credited into every new wallet.
	SignupBonus decimal.Decimal
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Phone    string `json:"phone"`
	Address  string `json:"address"`
	// ReferralCode is the referrer's email, if any.
	ReferralCode string `json:"referral_code"`
}

type Service interface {
	Register(ctx context.Context, req RegisterRequest) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, *models.User, error)
}

type service struct {
	users   repositories.UserRepository
	wallets wallet.Service
	cfg     Config
}

func NewService(users repositories.UserRepository, wallets wallet.Service, cfg Config) Service {
	if users == nil {
		panic("user repository is required")
	}
	if wallets == nil {
		panic("wallet service is required")
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 24 * time.Hour
	}
	return &service{users: users, wallets: wallets, cfg: cfg}
}

// Register creates the user together with their wallet. The wallet is the
// account's ledger; everything the user ever holds flows through it.
func (s *service) Register(ctx context.Context, req RegisterRequest) (*models.User, error) {
	if err := validateRegistration(req); err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if _, err := s.users.GetByEmail(email); err == nil {
		return nil, domainErrors.Validation("email already registered")
	} else if !errors.Is(err, repositories.ErrUserNotFound) {
		return nil, err
	}

	hash, err := utils.HashSecret(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &models.User{
		Email:    email,
		Password: hash,
		Name:     req.Name,
		Phone:    req.Phone,
		Address:  req.Address,
		Role:     models.RoleUser,
		Status:   "active",
	}
	if req.ReferralCode != "" {
		if referrer, err := s.users.GetByEmail(strings.ToLower(req.ReferralCode)); err == nil {
			user.ReferredBy = &referrer.ID
		}
	}
	if err := s.users.Create(user); err != nil {
		if errors.Is(err, repositories.ErrDuplicateEmail) {
			return nil, domainErrors.Validation("email already registered")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	w, err := s.wallets.CreateWallet(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	if s.cfg.SignupBonus.GreaterThan(decimal.Zero) {
		_, err := s.wallets.Credit(ctx, wallet.EntryRequest{
			WalletID:    w.ID,
			Amount:      s.cfg.SignupBonus,
			SourceTag:   models.SourceSignupBonus,
			Description: "welcome bonus",
		})
		if err != nil {
			logrus.WithError(err).Warn("signup bonus credit failed")
		}
	}

	logrus.WithFields(logrus.Fields{
		"user_id": user.ID,
		"email":   user.Email,
	}).Info("user registered")
	return user, nil
}

func (s *service) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	user, err := s.users.GetByEmail(strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, repositories.ErrUserNotFound) {
			return "", nil, domainErrors.ErrUnauthorized
		}
		return "", nil, err
	}
	if !utils.CheckSecret(user.Password, password) {
		return "", nil, domainErrors.ErrUnauthorized
	}
	if user.Status != "active" {
		return "", nil, domainErrors.ErrForbidden
	}

	user.LastLoginAt = time.Now()
	if err := s.users.Update(user); err != nil {
		logrus.WithError(err).Warn("failed to record login time")
	}

	token, err := utils.GenerateJWT(user, s.cfg.JWTSecret, s.cfg.TokenTTL)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign token: %w", err)
	}
	return token, user, nil
}

func validateRegistration(req RegisterRequest) error {
	if strings.TrimSpace(req.Email) == "" || !strings.Contains(req.Email, "@") {
		return domainErrors.Validation("a valid email is required")
	}
	if len(req.Password) < 8 {
		return domainErrors.Validation("password must be at least 8 characters")
	}
	if strings.TrimSpace(req.Name) == "" {
		return domainErrors.Validation("name is required")
	}
	if strings.TrimSpace(req.Phone) == "" {
		return domainErrors.Validation("phone is required")
	}
	return nil
}
