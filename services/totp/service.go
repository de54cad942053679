package totp

import (
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/decadiamfilms/authkit/config"
	"github.com/decadiamfilms/authkit/services/logging"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	ErrTOTPDisabled     = errors.New("TOTP is disabled")
	ErrInvalidEmail     = errors.New("invalid email address")
	ErrInvalidSecret    = errors.New("invalid secret format")
	ErrInvalidCode      = errors.New("invalid verification code")
	ErrSecretNotFound   = errors.New("TOTP secret not found for user")
	ErrGenerationFailed = errors.New("failed to generate enrollment data")
)

var (
	emailPattern  = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	codePattern   = regexp.MustCompile(`^[0-9]{6}$`)
	secretPattern = regexp.MustCompile(`^[A-Z2-7]+=*$`)
)

type Service struct {
	config *config.Config
	db     *gorm.DB
	logger *logging.Service
}

func NewService(cfg *config.Config, db *gorm.DB, logger *logging.Service) *Service {
	if logger != nil {
		logger.Info("initializing TOTP service",
			zap.Bool("enabled", cfg.TOTP.Enabled),
			zap.String("issuer", cfg.TOTP.Issuer))
	}

	return &Service{
		config: cfg,
		db:     db,
		logger: logger,
	}
}

func (s *Service) issuer() string {
	if s.config.TOTP.Issuer == "" {
		return s.config.App.Name
	}
	return s.config.TOTP.Issuer
}

func (s *Service) validateOpts() totp.ValidateOpts {
	return totp.ValidateOpts{
		Period:    s.config.TOTP.Period,
		Skew:      s.config.TOTP.Skew,
		Digits:    otp.Digits(s.config.TOTP.Digits),
		Algorithm: otp.AlgorithmSHA1,
	}
}

// VerifyCode checks a submitted code against a secret at the current time
// step and the adjacent steps allowed by the configured skew. Anything that
// is not exactly six digits after whitespace stripping is rejected, and any
// cryptographic failure counts as a mismatch.
func (s *Service) VerifyCode(secret, code string) bool {
	normalized := stripWhitespace(code)
	if !codePattern.MatchString(normalized) {
		return false
	}

	valid, err := totp.ValidateCustom(normalized, secret, time.Now().UTC(), s.validateOpts())
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("TOTP validation error", zap.Error(err))
		}
		return false
	}

	return valid
}

// ValidateSetup composes format validation with code verification,
// short-circuiting on the first failing check.
func (s *Service) ValidateSetup(email, secret, code string) error {
	if !emailPattern.MatchString(email) {
		return ErrInvalidEmail
	}

	if !secretPattern.MatchString(secret) {
		return ErrInvalidSecret
	}

	if !s.VerifyCode(secret, code) {
		return ErrInvalidCode
	}

	return nil
}

// Enable stores a confirmed secret together with its backup code set,
// replacing any previous secret and codes wholesale. Until this point an
// enrollment exists only client-side, so a confirmed secret stays live
// until a newer one is confirmed.
func (s *Service) Enable(userID uint, secret string, backupCodes []string) error {
	if !s.config.TOTP.Enabled {
		return ErrTOTPDisabled
	}

	if !secretPattern.MatchString(secret) {
		return ErrInvalidSecret
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("user_id = ?", userID).Delete(&TOTPSecret{}).Error; err != nil {
			return fmt.Errorf("failed to replace TOTP secret: %w", err)
		}

		if err := tx.Unscoped().Where("user_id = ?", userID).Delete(&BackupCode{}).Error; err != nil {
			return fmt.Errorf("failed to replace backup codes: %w", err)
		}

		record := &TOTPSecret{
			UserID:    userID,
			Secret:    secret,
			Confirmed: true,
		}
		if err := tx.Create(record).Error; err != nil {
			return fmt.Errorf("failed to store TOTP secret: %w", err)
		}

		for _, code := range backupCodes {
			row := &BackupCode{
				UserID: userID,
				Code:   NormalizeBackupCode(code),
			}
			if err := tx.Create(row).Error; err != nil {
				return fmt.Errorf("failed to store backup code: %w", err)
			}
		}

		if s.logger != nil {
			s.logger.Info("TOTP enabled",
				zap.Uint("user_id", userID),
				zap.Int("backup_codes", len(backupCodes)))
		}

		return nil
	})
}

func (s *Service) Disable(userID uint) error {
	if !s.config.TOTP.Enabled {
		return ErrTOTPDisabled
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Unscoped().Where("user_id = ?", userID).Delete(&TOTPSecret{})
		if result.Error != nil {
			return fmt.Errorf("failed to disable TOTP: %w", result.Error)
		}

		if result.RowsAffected == 0 {
			return ErrSecretNotFound
		}

		if err := tx.Unscoped().Where("user_id = ?", userID).Delete(&BackupCode{}).Error; err != nil {
			return fmt.Errorf("failed to remove backup codes: %w", err)
		}

		if s.logger != nil {
			s.logger.Info("TOTP disabled", zap.Uint("user_id", userID))
		}

		return nil
	})
}

func (s *Service) GetSecret(userID uint) (*TOTPSecret, error) {
	var secret TOTPSecret
	if err := s.db.Where("user_id = ?", userID).First(&secret).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSecretNotFound
		}
		return nil, fmt.Errorf("failed to retrieve TOTP secret: %w", err)
	}

	return &secret, nil
}

func (s *Service) IsEnabled(userID uint) bool {
	if !s.config.TOTP.Enabled {
		return false
	}

	secret, err := s.GetSecret(userID)
	if err != nil {
		return false
	}

	return secret.Confirmed
}

// VerifyUserCode validates a submitted code against the user's confirmed
// secret.
func (s *Service) VerifyUserCode(userID uint, code string) error {
	if !s.config.TOTP.Enabled {
		return ErrTOTPDisabled
	}

	secret, err := s.GetSecret(userID)
	if err != nil {
		return err
	}

	if !secret.Confirmed {
		return ErrSecretNotFound
	}

	if !s.VerifyCode(secret.Secret, code) {
		if s.logger != nil {
			s.logger.Warn("TOTP verification failed", zap.Uint("user_id", userID))
		}
		return ErrInvalidCode
	}

	return nil
}

// ConsumeUserBackupCode redeems a backup code. A matched code is deleted in
// the same transaction, so it can never be redeemed twice.
func (s *Service) ConsumeUserBackupCode(userID uint, code string) (bool, error) {
	if !s.config.TOTP.Enabled {
		return false, ErrTOTPDisabled
	}

	normalized := NormalizeBackupCode(code)
	if normalized == "" {
		return false, nil
	}

	matched := false
	err := s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Unscoped().Where("user_id = ? AND code = ?", userID, normalized).Delete(&BackupCode{})
		if result.Error != nil {
			return fmt.Errorf("failed to consume backup code: %w", result.Error)
		}

		matched = result.RowsAffected > 0
		return nil
	})
	if err != nil {
		return false, err
	}

	if s.logger != nil && matched {
		s.logger.Info("backup code consumed", zap.Uint("user_id", userID))
	}

	return matched, nil
}

func (s *Service) BackupCodeCount(userID uint) (int, error) {
	var count int64
	if err := s.db.Model(&BackupCode{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
		return 0, fmt.Errorf("failed to count backup codes: %w", err)
	}

	return int(count), nil
}

func stripWhitespace(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', '\t', '\n', '\r':
			continue
		default:
			out = append(out, s[i])
		}
	}
	return string(out)
}
