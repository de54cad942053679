package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/decadiamfilms/authkit/config"
	"github.com/decadiamfilms/authkit/services/logging"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrPasswordHashingFailed = errors.New("failed to hash password")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrUserNotFound          = errors.New("user not found")
)

type Service struct {
	config *config.Config
	db     *gorm.DB
	logger *logging.Service
}

func NewService(cfg *config.Config, db *gorm.DB, logger *logging.Service) *Service {
	if cfg.Auth.BcryptCost < bcrypt.MinCost || cfg.Auth.BcryptCost > bcrypt.MaxCost {
		cfg.Auth.BcryptCost = bcrypt.DefaultCost
	}

	return &Service{
		config: cfg,
		db:     db,
		logger: logger,
	}
}

func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.Auth.BcryptCost)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("password hashing failed", zap.Error(err))
		}
		return "", ErrPasswordHashingFailed
	}

	return string(hash), nil
}

// VerifyPassword gates the 2FA-disable flow: the user must re-enter their
// current password at that boundary.
func (s *Service) VerifyPassword(user *User, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		if s.logger != nil {
			s.logger.Warn("password verification failed", zap.Uint("user_id", user.ID))
		}
		return ErrInvalidCredentials
	}

	return nil
}

func (s *Service) FindByEmail(email string) (*User, error) {
	var user User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	return &user, nil
}

// FindOrCreateByEmail resolves the user record a 2FA flow is keyed by,
// creating it on first contact.
func (s *Service) FindOrCreateByEmail(email string) (*User, error) {
	user, err := s.FindByEmail(email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return nil, err
	}

	user = &User{Email: email}
	if err := s.db.Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("user created", zap.Uint("user_id", user.ID), zap.String("email", email))
	}

	return user, nil
}

func (s *Service) SetTwoFactorEnabled(userID uint, enabled bool) error {
	return s.db.Model(&User{}).
		Where("id = ?", userID).
		Update("two_factor_enabled", enabled).Error
}

func (s *Service) RecordLogin(userID uint) error {
	now := time.Now()
	return s.db.Model(&User{}).
		Where("id = ?", userID).
		Update("last_login_at", &now).Error
}
