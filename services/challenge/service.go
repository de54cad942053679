package challenge

import (
	"errors"
	"fmt"
	"time"

	"github.com/decadiamfilms/authkit/config"
	"github.com/decadiamfilms/authkit/services/logging"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidToken  = errors.New("invalid challenge token")
	ErrExpiredToken  = errors.New("challenge token has expired")
	ErrTokenMismatch = errors.New("challenge token does not match this request")
	ErrNoSecretKey   = errors.New("challenge secret key is not configured")
)

// Claims bind a pending 2FA challenge to the email and device fingerprint
// it was issued for.
type Claims struct {
	Email       string `json:"email"`
	Fingerprint string `json:"fingerprint"`
	jwt.RegisteredClaims
}

type Service struct {
	config *config.Config
	logger *logging.Service
}

func NewService(cfg *config.Config, logger *logging.Service) *Service {
	return &Service{
		config: cfg,
		logger: logger,
	}
}

// Issue signs a short-lived token for a pending challenge.
func (s *Service) Issue(email, fingerprint string) (string, error) {
	if s.config.Challenge.SecretKey == "" {
		return "", ErrNoSecretKey
	}

	now := time.Now()
	claims := Claims{
		Email:       email,
		Fingerprint: fingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.config.Challenge.Issuer,
			Subject:   email,
			ExpiresAt: jwt.NewNumericDate(now.Add(s.config.Challenge.Expiry)),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.Challenge.SecretKey))
	if err != nil {
		if s.logger != nil {
			s.logger.Error("failed to sign challenge token", zap.Error(err))
		}
		return "", fmt.Errorf("failed to issue challenge token: %w", err)
	}

	return signed, nil
}

// Validate parses a token and returns its claims. Expired or tampered
// tokens fail closed.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	if s.config.Challenge.SecretKey == "" {
		return nil, ErrNoSecretKey
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.config.Challenge.SecretKey), nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}

// Verify checks that a token was issued for the given email and
// fingerprint.
func (s *Service) Verify(tokenString, email, fingerprint string) error {
	claims, err := s.Validate(tokenString)
	if err != nil {
		return err
	}

	if claims.Email != email || claims.Fingerprint != fingerprint {
		return ErrTokenMismatch
	}

	return nil
}
