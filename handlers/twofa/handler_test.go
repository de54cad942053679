package twofa

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/decadiamfilms/authkit/middleware/ratelimit"
	"github.com/decadiamfilms/authkit/server"
	"github.com/decadiamfilms/authkit/services/auth"
	"github.com/decadiamfilms/authkit/services/challenge"
	"github.com/decadiamfilms/authkit/services/devicetrust"
	"github.com/decadiamfilms/authkit/services/totp"
	"github.com/decadiamfilms/authkit/testutils"
	"github.com/labstack/echo/v4"
	otplib "github.com/pquerna/otp"
	totplib "github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	echo    *echo.Echo
	db      *gorm.DB
	totp    *totp.Service
	devices *devicetrust.Service
	auth    *auth.Service
	store   *ratelimit.MemoryStore
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := testutils.GetTestConfig()
	// Neutralize the wall-clock heuristic so assessments are deterministic.
	cfg.DeviceTrust.QuietHourStart = 24
	cfg.DeviceTrust.QuietHourEnd = 0

	db := testutils.SetupTestDB(t, &auth.User{}, &totp.TOTPSecret{}, &totp.BackupCode{})

	totpSvc := totp.NewService(cfg, db, nil)
	deviceSvc := devicetrust.NewService(cfg, devicetrust.NewMemoryStore(), nil)
	authSvc := auth.NewService(cfg, db, nil)
	challengeSvc := challenge.NewService(cfg, nil)

	store := ratelimit.NewMemoryStore()
	t.Cleanup(store.Close)
	limiter := ratelimit.NewLimiter(store)

	handler := NewHandler(cfg, totpSvc, deviceSvc, authSvc, challengeSvc, nil, limiter, nil)

	srv := server.New(cfg, nil)
	RegisterRoutes(srv, handler)

	return &testEnv{
		echo:    srv.Echo(),
		db:      db,
		totp:    totpSvc,
		devices: deviceSvc,
		auth:    authSvc,
		store:   store,
	}
}

type envelope struct {
	Success bool           `json:"success"`
	Data    map[string]any `json:"data"`
	Error   string         `json:"error"`
}

func (env *testEnv) request(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for key, value := range testutils.TestMetadata.Desktop {
		req.Header.Set(key, value)
	}

	rec := httptest.NewRecorder()
	env.echo.ServeHTTP(rec, req)

	var resp envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	return rec, resp
}

func currentCode(t *testing.T, secret string) string {
	t.Helper()

	code, err := totplib.GenerateCodeCustom(secret, time.Now().UTC(), totplib.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otplib.DigitsSix,
		Algorithm: otplib.AlgorithmSHA1,
	})
	require.NoError(t, err)

	return code
}

const testSecret = "JBSWY3DPEHPK3PXPJBSWY3DPEHPK3PXP"

func TestGenerate(t *testing.T) {
	t.Run("returns enrollment material", func(t *testing.T) {
		env := setupEnv(t)

		rec, resp := env.request(t, http.MethodPost, "/2fa/generate", map[string]any{
			"email": "user@example.com",
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, resp.Success)
		assert.NotEmpty(t, resp.Data["secret"])
		assert.Contains(t, resp.Data["qrCodeUrl"], "data:image/png;base64,")
		assert.Len(t, resp.Data["backupCodes"], 8)
		assert.NotEmpty(t, resp.Data["manualEntryKey"])
	})

	t.Run("rejects a malformed email", func(t *testing.T) {
		env := setupEnv(t)

		rec, resp := env.request(t, http.MethodPost, "/2fa/generate", map[string]any{
			"email": "not-an-email",
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.False(t, resp.Success)
		assert.NotEmpty(t, resp.Error)
	})

	t.Run("fourth attempt within the window is rate limited", func(t *testing.T) {
		env := setupEnv(t)

		for i := 0; i < 3; i++ {
			rec, _ := env.request(t, http.MethodPost, "/2fa/generate", map[string]any{
				"email": "user@example.com",
			})
			assert.Equal(t, http.StatusOK, rec.Code, "attempt %d", i+1)
		}

		rec, resp := env.request(t, http.MethodPost, "/2fa/generate", map[string]any{
			"email": "user@example.com",
		})
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.False(t, resp.Success)
		assert.Contains(t, resp.Error, "too many attempts")
	})

	t.Run("rate limit is keyed per email", func(t *testing.T) {
		env := setupEnv(t)

		for i := 0; i < 3; i++ {
			env.request(t, http.MethodPost, "/2fa/generate", map[string]any{"email": "a@example.com"})
		}

		rec, _ := env.request(t, http.MethodPost, "/2fa/generate", map[string]any{"email": "b@example.com"})
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestVerifySetup(t *testing.T) {
	t.Run("accepts the current code", func(t *testing.T) {
		env := setupEnv(t)

		rec, resp := env.request(t, http.MethodPost, "/2fa/verify-setup", map[string]any{
			"email":  "user@example.com",
			"secret": testSecret,
			"code":   currentCode(t, testSecret),
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, resp.Success)
	})

	t.Run("rejects a non-matching code without throwing", func(t *testing.T) {
		env := setupEnv(t)

		rec, resp := env.request(t, http.MethodPost, "/2fa/verify-setup", map[string]any{
			"email":  "user@example.com",
			"secret": testSecret,
			"code":   "000000",
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, resp.Success)
		assert.Equal(t, "invalid verification code", resp.Error)
	})

	t.Run("rejects a malformed secret", func(t *testing.T) {
		env := setupEnv(t)

		rec, resp := env.request(t, http.MethodPost, "/2fa/verify-setup", map[string]any{
			"email":  "user@example.com",
			"secret": "not base32",
			"code":   "123456",
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.False(t, resp.Success)
	})

	t.Run("success resets the attempt counter", func(t *testing.T) {
		env := setupEnv(t)

		for i := 0; i < 4; i++ {
			env.request(t, http.MethodPost, "/2fa/verify-setup", map[string]any{
				"email":  "user@example.com",
				"secret": testSecret,
				"code":   "000000",
			})
		}

		rec, resp := env.request(t, http.MethodPost, "/2fa/verify-setup", map[string]any{
			"email":  "user@example.com",
			"secret": testSecret,
			"code":   currentCode(t, testSecret),
		})
		require.Equal(t, http.StatusOK, rec.Code)
		require.True(t, resp.Success)

		// counter was reset, so further attempts are admitted again
		rec, _ = env.request(t, http.MethodPost, "/2fa/verify-setup", map[string]any{
			"email":  "user@example.com",
			"secret": testSecret,
			"code":   "000000",
		})
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}

func TestEnable(t *testing.T) {
	t.Run("persists the confirmed secret", func(t *testing.T) {
		env := setupEnv(t)

		rec, resp := env.request(t, http.MethodPost, "/2fa/enable", map[string]any{
			"email":       "user@example.com",
			"secret":      testSecret,
			"backupCodes": []string{"AAAA-BBBB", "CCCC-DDDD"},
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, resp.Success)
		assert.Equal(t, true, resp.Data["twoFactorEnabled"])
		assert.Equal(t, float64(2), resp.Data["backupCodesCount"])

		user, err := env.auth.FindByEmail("user@example.com")
		require.NoError(t, err)
		assert.True(t, user.TwoFactorEnabled)
		assert.True(t, env.totp.IsEnabled(user.ID))
	})

	t.Run("remembers the calling device on request", func(t *testing.T) {
		env := setupEnv(t)

		_, resp := env.request(t, http.MethodPost, "/2fa/enable", map[string]any{
			"email":          "user@example.com",
			"secret":         testSecret,
			"backupCodes":    []string{"AAAA-BBBB"},
			"rememberDevice": true,
		})
		require.True(t, resp.Success)

		user, err := env.auth.FindByEmail("user@example.com")
		require.NoError(t, err)

		devices := env.devices.List(user.ID)
		require.Len(t, devices, 1)
		assert.Contains(t, devices[0].Name, "Chrome")
	})

	t.Run("rejects a malformed secret", func(t *testing.T) {
		env := setupEnv(t)

		rec, _ := env.request(t, http.MethodPost, "/2fa/enable", map[string]any{
			"email":  "user@example.com",
			"secret": "???",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestVerify(t *testing.T) {
	enroll := func(t *testing.T, env *testEnv, email string, backupCodes []string) *auth.User {
		t.Helper()

		_, resp := env.request(t, http.MethodPost, "/2fa/enable", map[string]any{
			"email":       email,
			"secret":      testSecret,
			"backupCodes": backupCodes,
		})
		require.True(t, resp.Success)

		user, err := env.auth.FindByEmail(email)
		require.NoError(t, err)
		return user
	}

	t.Run("accepts the current TOTP code and records the login", func(t *testing.T) {
		env := setupEnv(t)
		user := enroll(t, env, "user@example.com", nil)

		rec, resp := env.request(t, http.MethodPost, "/2fa/verify", map[string]any{
			"email": "user@example.com",
			"code":  currentCode(t, testSecret),
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, resp.Success)

		refreshed, err := env.auth.FindByEmail("user@example.com")
		require.NoError(t, err)
		require.NotNil(t, refreshed.LastLoginAt)
		assert.Equal(t, user.ID, refreshed.ID)
	})

	t.Run("rejects a wrong code as an unsuccessful response", func(t *testing.T) {
		env := setupEnv(t)
		enroll(t, env, "user@example.com", nil)

		rec, resp := env.request(t, http.MethodPost, "/2fa/verify", map[string]any{
			"email": "user@example.com",
			"code":  "000000",
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, resp.Success)
	})

	t.Run("unknown account looks like a code mismatch", func(t *testing.T) {
		env := setupEnv(t)

		rec, resp := env.request(t, http.MethodPost, "/2fa/verify", map[string]any{
			"email": "ghost@example.com",
			"code":  "123456",
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.False(t, resp.Success)
		assert.Equal(t, "invalid verification code", resp.Error)
	})

	t.Run("backup code is single use", func(t *testing.T) {
		env := setupEnv(t)
		enroll(t, env, "user@example.com", []string{"AAAA-BBBB", "CCCC-DDDD"})

		_, resp := env.request(t, http.MethodPost, "/2fa/verify", map[string]any{
			"email":        "user@example.com",
			"code":         "aaaa-bbbb",
			"isBackupCode": true,
		})
		assert.True(t, resp.Success)

		_, resp = env.request(t, http.MethodPost, "/2fa/verify", map[string]any{
			"email":        "user@example.com",
			"code":         "AAAA-BBBB",
			"isBackupCode": true,
		})
		assert.False(t, resp.Success)
		assert.Equal(t, "invalid backup code", resp.Error)
	})

	t.Run("eleventh attempt within the window is rate limited", func(t *testing.T) {
		env := setupEnv(t)
		enroll(t, env, "user@example.com", nil)

		for i := 0; i < 10; i++ {
			rec, _ := env.request(t, http.MethodPost, "/2fa/verify", map[string]any{
				"email": "user@example.com",
				"code":  "000000",
			})
			assert.Equal(t, http.StatusOK, rec.Code, "attempt %d", i+1)
		}

		rec, _ := env.request(t, http.MethodPost, "/2fa/verify", map[string]any{
			"email": "user@example.com",
			"code":  "000000",
		})
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("remembers the device after a successful challenge", func(t *testing.T) {
		env := setupEnv(t)
		user := enroll(t, env, "user@example.com", nil)

		_, resp := env.request(t, http.MethodPost, "/2fa/verify", map[string]any{
			"email":          "user@example.com",
			"code":           currentCode(t, testSecret),
			"rememberDevice": true,
		})
		require.True(t, resp.Success)

		assert.Len(t, env.devices.List(user.ID), 1)
	})
}

func TestDisable(t *testing.T) {
	setupUser := func(t *testing.T, env *testEnv) {
		t.Helper()

		_, resp := env.request(t, http.MethodPost, "/2fa/enable", map[string]any{
			"email":  "user@example.com",
			"secret": testSecret,
		})
		require.True(t, resp.Success)

		user, err := env.auth.FindByEmail("user@example.com")
		require.NoError(t, err)

		hash, err := env.auth.HashPassword("Password123")
		require.NoError(t, err)
		require.NoError(t, env.db.Model(&auth.User{}).Where("id = ?", user.ID).Update("password_hash", hash).Error)
	}

	t.Run("requires the current password", func(t *testing.T) {
		env := setupEnv(t)
		setupUser(t, env)

		rec, resp := env.request(t, http.MethodPost, "/2fa/disable", map[string]any{
			"email":           "user@example.com",
			"currentPassword": "wrong",
		})

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.False(t, resp.Success)
		assert.Equal(t, "invalid credentials", resp.Error)
	})

	t.Run("disables with the correct password", func(t *testing.T) {
		env := setupEnv(t)
		setupUser(t, env)

		rec, resp := env.request(t, http.MethodPost, "/2fa/disable", map[string]any{
			"email":           "user@example.com",
			"currentPassword": "Password123",
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, resp.Success)

		user, err := env.auth.FindByEmail("user@example.com")
		require.NoError(t, err)
		assert.False(t, user.TwoFactorEnabled)
		assert.False(t, env.totp.IsEnabled(user.ID))
	})

	t.Run("unknown account is rejected", func(t *testing.T) {
		env := setupEnv(t)

		rec, _ := env.request(t, http.MethodPost, "/2fa/disable", map[string]any{
			"email":           "ghost@example.com",
			"currentPassword": "whatever",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDevices(t *testing.T) {
	t.Run("lists trusted devices most recently used first", func(t *testing.T) {
		env := setupEnv(t)

		user, err := env.auth.FindOrCreateByEmail("user@example.com")
		require.NoError(t, err)

		meta := devicetrust.RequestMetadata{
			UserAgent: testutils.TestMetadata.Desktop["User-Agent"],
			IPAddress: "192.0.2.1",
		}
		env.devices.Trust(user.ID, devicetrust.Fingerprint(meta), meta)

		rec, resp := env.request(t, http.MethodGet, "/2fa/devices?email=user@example.com", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.True(t, resp.Success)

		devices, ok := resp.Data["devices"].([]any)
		require.True(t, ok)
		assert.Len(t, devices, 1)
	})

	t.Run("revokes a device by id", func(t *testing.T) {
		env := setupEnv(t)

		user, err := env.auth.FindOrCreateByEmail("user@example.com")
		require.NoError(t, err)

		meta := devicetrust.RequestMetadata{UserAgent: "agent", IPAddress: "192.0.2.1"}
		device := env.devices.Trust(user.ID, devicetrust.Fingerprint(meta), meta)

		rec, resp := env.request(t, http.MethodDelete, fmt.Sprintf("/2fa/devices/%s?email=user@example.com", device.ID), nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		require.True(t, resp.Success)
		assert.Equal(t, true, resp.Data["removed"])

		assert.Empty(t, env.devices.List(user.ID))
	})

	t.Run("requires an email", func(t *testing.T) {
		env := setupEnv(t)

		rec, _ := env.request(t, http.MethodGet, "/2fa/devices", nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAssessRisk(t *testing.T) {
	t.Run("new device requires a challenge and issues a token", func(t *testing.T) {
		env := setupEnv(t)

		_, err := env.auth.FindOrCreateByEmail("user@example.com")
		require.NoError(t, err)

		rec, resp := env.request(t, http.MethodPost, "/2fa/assess", map[string]any{
			"email": "user@example.com",
		})

		assert.Equal(t, http.StatusOK, rec.Code)
		require.True(t, resp.Success)
		assert.Equal(t, true, resp.Data["required"])
		assert.Equal(t, "new device detected", resp.Data["reason"])
		assert.Equal(t, "medium", resp.Data["riskLevel"])
		assert.NotEmpty(t, resp.Data["challengeToken"])
	})

	t.Run("trusted device skips the challenge", func(t *testing.T) {
		env := setupEnv(t)

		user, err := env.auth.FindOrCreateByEmail("user@example.com")
		require.NoError(t, err)

		// trust the exact metadata tuple the test request will send
		meta := devicetrust.RequestMetadata{
			UserAgent:      testutils.TestMetadata.Desktop["User-Agent"],
			AcceptLanguage: testutils.TestMetadata.Desktop["Accept-Language"],
			AcceptEncoding: testutils.TestMetadata.Desktop["Accept-Encoding"],
			Accept:         testutils.TestMetadata.Desktop["Accept"],
			IPAddress:      "192.0.2.1",
		}
		env.devices.Trust(user.ID, devicetrust.Fingerprint(meta), meta)

		_, resp := env.request(t, http.MethodPost, "/2fa/assess", map[string]any{
			"email": "user@example.com",
		})

		require.True(t, resp.Success)
		assert.Equal(t, false, resp.Data["required"])
		assert.Nil(t, resp.Data["challengeToken"])
	})

	t.Run("unknown account is rejected", func(t *testing.T) {
		env := setupEnv(t)

		rec, _ := env.request(t, http.MethodPost, "/2fa/assess", map[string]any{
			"email": "ghost@example.com",
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
