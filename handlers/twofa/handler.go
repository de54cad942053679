package twofa

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/decadiamfilms/authkit/config"
	"github.com/decadiamfilms/authkit/middleware/ratelimit"
	"github.com/decadiamfilms/authkit/services/auth"
	"github.com/decadiamfilms/authkit/services/challenge"
	"github.com/decadiamfilms/authkit/services/devicetrust"
	"github.com/decadiamfilms/authkit/services/logging"
	"github.com/decadiamfilms/authkit/services/mail"
	"github.com/decadiamfilms/authkit/services/totp"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type Handler struct {
	config    *config.Config
	totp      *totp.Service
	devices   *devicetrust.Service
	auth      *auth.Service
	challenge *challenge.Service
	mail      *mail.Service
	limiter   *ratelimit.Limiter
	logger    *logging.Service
}

func NewHandler(
	cfg *config.Config,
	totpSvc *totp.Service,
	deviceSvc *devicetrust.Service,
	authSvc *auth.Service,
	challengeSvc *challenge.Service,
	mailSvc *mail.Service,
	limiter *ratelimit.Limiter,
	logger *logging.Service,
) *Handler {
	return &Handler{
		config:    cfg,
		totp:      totpSvc,
		devices:   deviceSvc,
		auth:      authSvc,
		challenge: challengeSvc,
		mail:      mailSvc,
		limiter:   limiter,
		logger:    logger,
	}
}

type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func ok(c echo.Context, data any) error {
	return c.JSON(http.StatusOK, response{Success: true, Data: data})
}

func fail(c echo.Context, status int, msg string) error {
	return c.JSON(status, response{Success: false, Error: msg})
}

func (h *Handler) rejected(c echo.Context, key string) error {
	wait := h.limiter.RetryAfter(key).Round(time.Second)
	msg := "too many attempts"
	if wait > 0 {
		msg = fmt.Sprintf("too many attempts, try again in %s", wait)
	}
	return fail(c, http.StatusTooManyRequests, msg)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func metadataFromRequest(c echo.Context) devicetrust.RequestMetadata {
	req := c.Request()
	return devicetrust.RequestMetadata{
		UserAgent:      req.UserAgent(),
		AcceptLanguage: req.Header.Get("Accept-Language"),
		AcceptEncoding: req.Header.Get("Accept-Encoding"),
		Accept:         req.Header.Get("Accept"),
		IPAddress:      c.RealIP(),
	}
}

type generateRequest struct {
	Email string `json:"email"`
}

func (h *Handler) Generate(c echo.Context) error {
	var req generateRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	email := normalizeEmail(req.Email)

	key := "2fa:generate:" + email
	if !h.limiter.Allow(key, h.config.RateLimit.GenerateLimit, h.config.RateLimit.GenerateWindow) {
		return h.rejected(c, key)
	}

	enrollment, err := h.totp.GenerateEnrollment(email)
	if err != nil {
		if errors.Is(err, totp.ErrInvalidEmail) {
			return fail(c, http.StatusBadRequest, "invalid email address")
		}
		h.logger.Error("enrollment generation failed", zap.Error(err))
		return fail(c, http.StatusInternalServerError, "failed to generate enrollment data")
	}

	return ok(c, enrollment)
}

type verifySetupRequest struct {
	Email  string `json:"email"`
	Secret string `json:"secret"`
	Code   string `json:"code"`
}

func (h *Handler) VerifySetup(c echo.Context) error {
	var req verifySetupRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	email := normalizeEmail(req.Email)

	key := "2fa:verify-setup:" + email
	if !h.limiter.Allow(key, h.config.RateLimit.VerifySetupLimit, h.config.RateLimit.VerifySetupWindow) {
		return h.rejected(c, key)
	}

	if err := h.totp.ValidateSetup(email, req.Secret, req.Code); err != nil {
		switch {
		case errors.Is(err, totp.ErrInvalidEmail):
			return fail(c, http.StatusBadRequest, "invalid email address")
		case errors.Is(err, totp.ErrInvalidSecret):
			return fail(c, http.StatusBadRequest, "invalid secret format")
		default:
			return fail(c, http.StatusOK, "invalid verification code")
		}
	}

	h.limiter.Reset(key)

	return ok(c, nil)
}

type enableRequest struct {
	Email          string   `json:"email"`
	Secret         string   `json:"secret"`
	BackupCodes    []string `json:"backupCodes"`
	RememberDevice bool     `json:"rememberDevice"`
}

func (h *Handler) Enable(c echo.Context) error {
	var req enableRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	email := normalizeEmail(req.Email)

	user, err := h.auth.FindOrCreateByEmail(email)
	if err != nil {
		h.logger.Error("user lookup failed", zap.Error(err))
		return fail(c, http.StatusInternalServerError, "failed to enable two-factor authentication")
	}

	if err := h.totp.Enable(user.ID, req.Secret, req.BackupCodes); err != nil {
		if errors.Is(err, totp.ErrInvalidSecret) {
			return fail(c, http.StatusBadRequest, "invalid secret format")
		}
		h.logger.Error("failed to enable TOTP", zap.Error(err), zap.Uint("user_id", user.ID))
		return fail(c, http.StatusInternalServerError, "failed to enable two-factor authentication")
	}

	if err := h.auth.SetTwoFactorEnabled(user.ID, true); err != nil {
		h.logger.Error("failed to flag user 2FA status", zap.Error(err), zap.Uint("user_id", user.ID))
	}

	if req.RememberDevice {
		h.trustCurrentDevice(c, user.ID, email)
	}

	if err := h.mail.SendTwoFactorEnabled(email); err != nil {
		h.logger.Warn("2FA enabled notification failed", zap.Error(err))
	}

	return ok(c, map[string]any{
		"twoFactorEnabled": true,
		"backupCodesCount": len(req.BackupCodes),
	})
}

type verifyRequest struct {
	Email          string `json:"email"`
	Code           string `json:"code"`
	IsBackupCode   bool   `json:"isBackupCode"`
	RememberDevice bool   `json:"rememberDevice"`
	ChallengeToken string `json:"challengeToken"`
}

func (h *Handler) Verify(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	email := normalizeEmail(req.Email)

	key := "2fa:verify:" + email
	if !h.limiter.Allow(key, h.config.RateLimit.VerifyLimit, h.config.RateLimit.VerifyWindow) {
		return h.rejected(c, key)
	}

	user, err := h.auth.FindByEmail(email)
	if err != nil {
		// Same shape as a code mismatch so the response does not reveal
		// whether the account exists.
		return fail(c, http.StatusOK, "invalid verification code")
	}

	if req.ChallengeToken != "" && h.challenge != nil {
		fingerprint := devicetrust.Fingerprint(metadataFromRequest(c))
		if err := h.challenge.Verify(req.ChallengeToken, email, fingerprint); err != nil {
			return fail(c, http.StatusOK, "invalid verification code")
		}
	}

	if req.IsBackupCode {
		matched, err := h.totp.ConsumeUserBackupCode(user.ID, req.Code)
		if err != nil {
			h.logger.Error("backup code verification failed", zap.Error(err), zap.Uint("user_id", user.ID))
			return fail(c, http.StatusInternalServerError, "verification failed")
		}
		if !matched {
			return fail(c, http.StatusOK, "invalid backup code")
		}
	} else {
		if err := h.totp.VerifyUserCode(user.ID, req.Code); err != nil {
			if errors.Is(err, totp.ErrInvalidCode) || errors.Is(err, totp.ErrSecretNotFound) {
				return fail(c, http.StatusOK, "invalid verification code")
			}
			h.logger.Error("code verification failed", zap.Error(err), zap.Uint("user_id", user.ID))
			return fail(c, http.StatusInternalServerError, "verification failed")
		}
	}

	h.limiter.Reset(key)

	if err := h.auth.RecordLogin(user.ID); err != nil {
		h.logger.Warn("failed to record login", zap.Error(err), zap.Uint("user_id", user.ID))
	}

	if req.RememberDevice {
		h.trustCurrentDevice(c, user.ID, email)
	}

	return ok(c, nil)
}

type disableRequest struct {
	Email           string `json:"email"`
	CurrentPassword string `json:"currentPassword"`
}

func (h *Handler) Disable(c echo.Context) error {
	var req disableRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	email := normalizeEmail(req.Email)

	user, err := h.auth.FindByEmail(email)
	if err != nil {
		return fail(c, http.StatusBadRequest, "invalid credentials")
	}

	if err := h.auth.VerifyPassword(user, req.CurrentPassword); err != nil {
		return fail(c, http.StatusBadRequest, "invalid credentials")
	}

	if err := h.totp.Disable(user.ID); err != nil {
		if errors.Is(err, totp.ErrSecretNotFound) {
			return fail(c, http.StatusBadRequest, "two-factor authentication is not enabled")
		}
		h.logger.Error("failed to disable TOTP", zap.Error(err), zap.Uint("user_id", user.ID))
		return fail(c, http.StatusInternalServerError, "failed to disable two-factor authentication")
	}

	if err := h.auth.SetTwoFactorEnabled(user.ID, false); err != nil {
		h.logger.Error("failed to flag user 2FA status", zap.Error(err), zap.Uint("user_id", user.ID))
	}

	if err := h.mail.SendTwoFactorDisabled(email); err != nil {
		h.logger.Warn("2FA disabled notification failed", zap.Error(err))
	}

	return ok(c, nil)
}

func (h *Handler) ListDevices(c echo.Context) error {
	email := normalizeEmail(c.QueryParam("email"))
	if email == "" {
		return fail(c, http.StatusBadRequest, "email is required")
	}

	user, err := h.auth.FindByEmail(email)
	if err != nil {
		return fail(c, http.StatusBadRequest, "unknown account")
	}

	return ok(c, map[string]any{
		"devices": h.devices.List(user.ID),
	})
}

func (h *Handler) RemoveDevice(c echo.Context) error {
	email := normalizeEmail(c.QueryParam("email"))
	deviceID := c.Param("id")

	if email == "" || deviceID == "" {
		return fail(c, http.StatusBadRequest, "email and device id are required")
	}

	user, err := h.auth.FindByEmail(email)
	if err != nil {
		return fail(c, http.StatusBadRequest, "unknown account")
	}

	removed := h.devices.Remove(user.ID, deviceID)

	return ok(c, map[string]any{"removed": removed})
}

type assessRequest struct {
	Email string `json:"email"`
}

func (h *Handler) AssessRisk(c echo.Context) error {
	var req assessRequest
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, "invalid request body")
	}

	email := normalizeEmail(req.Email)

	user, err := h.auth.FindByEmail(email)
	if err != nil {
		return fail(c, http.StatusBadRequest, "unknown account")
	}

	var lastLogin time.Time
	if user.LastLoginAt != nil {
		lastLogin = *user.LastLoginAt
	}

	meta := metadataFromRequest(c)
	assessment := h.devices.AssessRisk(user.ID, meta, lastLogin)

	data := map[string]any{
		"required":  assessment.Required,
		"reason":    assessment.Reason,
		"riskLevel": assessment.RiskLevel,
	}

	if assessment.Required && h.challenge != nil && h.config.Challenge.SecretKey != "" {
		token, err := h.challenge.Issue(email, devicetrust.Fingerprint(meta))
		if err != nil {
			h.logger.Warn("failed to issue challenge token", zap.Error(err))
		} else {
			data["challengeToken"] = token
		}
	}

	return ok(c, data)
}

func (h *Handler) trustCurrentDevice(c echo.Context, userID uint, email string) {
	meta := metadataFromRequest(c)
	fingerprint := devicetrust.Fingerprint(meta)

	if h.devices.IsTrusted(userID, fingerprint) {
		return
	}

	device := h.devices.Trust(userID, fingerprint, meta)

	if err := h.mail.SendNewTrustedDevice(email, device.Name, device.IPAddress); err != nil {
		h.logger.Warn("new device notification failed", zap.Error(err))
	}
}
