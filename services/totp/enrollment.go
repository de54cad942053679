package totp

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/png"
	"strings"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"go.uber.org/zap"
)

// Enrollment is the material a user needs to set up an authenticator app:
// the raw secret, a scannable QR payload, single-use backup codes and the
// secret chunked for manual keyboard entry.
type Enrollment struct {
	Secret         string   `json:"secret"`
	OtpauthURL     string   `json:"otpauthUrl"`
	QRCodeDataURL  string   `json:"qrCodeUrl"`
	BackupCodes    []string `json:"backupCodes"`
	ManualEntryKey string   `json:"manualEntryKey"`
}

// GenerateEnrollment creates a fresh secret and renders the enrollment
// material. Nothing is persisted; the secret only becomes live once the
// user confirms it through Enable.
func (s *Service) GenerateEnrollment(email string) (*Enrollment, error) {
	if !s.config.TOTP.Enabled {
		return nil, ErrTOTPDisabled
	}

	if !emailPattern.MatchString(email) {
		return nil, ErrInvalidEmail
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer(),
		AccountName: email,
		Period:      s.config.TOTP.Period,
		Digits:      otp.Digits(s.config.TOTP.Digits),
		Algorithm:   otp.AlgorithmSHA1,
		SecretSize:  s.config.TOTP.SecretSize,
	})
	if err != nil {
		if s.logger != nil {
			s.logger.Error("TOTP key generation failed", zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	qrDataURL, err := s.renderQRCode(key)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("QR code rendering failed", zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	backupCodes, err := GenerateBackupCodes(s.config.TOTP.BackupCodeCount)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("backup code generation failed", zap.Error(err))
		}
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	secret := key.Secret()

	if s.logger != nil {
		s.logger.Info("enrollment data generated", zap.String("email", email))
	}

	return &Enrollment{
		Secret:         secret,
		OtpauthURL:     key.URL(),
		QRCodeDataURL:  qrDataURL,
		BackupCodes:    backupCodes,
		ManualEntryKey: FormatManualEntryKey(secret),
	}, nil
}

func (s *Service) renderQRCode(key *otp.Key) (string, error) {
	size := s.config.TOTP.QRCodeSize
	if size <= 0 {
		size = 256
	}

	img, err := key.Image(size, size)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return "", err
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// FormatManualEntryKey chunks a secret into groups of four so it can be
// typed into an authenticator app by hand.
func FormatManualEntryKey(secret string) string {
	var groups []string
	for i := 0; i < len(secret); i += 4 {
		end := min(i+4, len(secret))
		groups = append(groups, secret[i:end])
	}
	return strings.Join(groups, " ")
}
