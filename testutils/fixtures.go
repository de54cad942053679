package testutils

import (
	"time"

	"github.com/decadiamfilms/authkit/config"
	"golang.org/x/crypto/bcrypt"
)

func GetTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{
			Name: "Test App",
			URL:  "http://localhost:8080",
		},
		Log: config.LogConfig{
			Level:  "error",
			Format: "json",
			Output: "stdout",
		},
		Auth: config.AuthConfig{
			BcryptCost: bcrypt.MinCost,
		},
		TOTP: config.TOTPConfig{
			Enabled:         true,
			Issuer:          "Test App",
			Digits:          6,
			Period:          30,
			Skew:            1,
			SecretSize:      20,
			BackupCodeCount: 8,
			QRCodeSize:      128,
		},
		DeviceTrust: config.DeviceTrustConfig{
			TrustDuration:  30 * 24 * time.Hour,
			QuietHourStart: 22,
			QuietHourEnd:   6,
			StaleLoginGap:  7 * 24 * time.Hour,
		},
		Challenge: config.ChallengeConfig{
			SecretKey: "test-secret-key-32-chars-long!!",
			Expiry:    5 * time.Minute,
			Issuer:    "test-issuer",
		},
		RateLimit: config.RateLimitConfig{
			GenerateLimit:     3,
			GenerateWindow:    5 * time.Minute,
			VerifySetupLimit:  5,
			VerifySetupWindow: 5 * time.Minute,
			VerifyLimit:       10,
			VerifyWindow:      15 * time.Minute,
		},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			DSN:    ":memory:",
		},
	}
}

var TestMetadata = struct {
	Desktop map[string]string
	Mobile  map[string]string
}{
	Desktop: map[string]string{
		"User-Agent":      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		"Accept-Language": "en-GB,en;q=0.9",
		"Accept-Encoding": "gzip, deflate, br",
		"Accept":          "application/json",
	},
	Mobile: map[string]string{
		"User-Agent":      "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Mobile/15E148 Safari/604.1",
		"Accept-Language": "en-US,en;q=0.8",
		"Accept-Encoding": "gzip, deflate",
		"Accept":          "application/json",
	},
}
