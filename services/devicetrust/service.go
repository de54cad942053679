package devicetrust

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"time"

	"github.com/decadiamfilms/authkit/config"
	"github.com/decadiamfilms/authkit/services/logging"
	"github.com/google/uuid"
	"github.com/mileusna/useragent"
	"go.uber.org/zap"
)

const fingerprintLength = 32

type Service struct {
	config *config.Config
	store  Store
	logger *logging.Service
}

func NewService(cfg *config.Config, store Store, logger *logging.Service) *Service {
	if logger != nil {
		logger.Info("initializing device trust service",
			zap.Duration("trust_duration", cfg.DeviceTrust.TrustDuration))
	}

	return &Service{
		config: cfg,
		store:  store,
		logger: logger,
	}
}

// Fingerprint derives a fixed-length identifier from the request attribute
// tuple. Identical tuples always map to the same fingerprint; any attribute
// change yields a different one.
func Fingerprint(meta RequestMetadata) string {
	raw := strings.Join([]string{
		meta.UserAgent,
		meta.AcceptLanguage,
		meta.AcceptEncoding,
		meta.IPAddress,
		meta.Accept,
	}, "|")

	hash := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(hash[:])[:fingerprintLength]
}

// DeviceLabel derives a human-readable name from the user agent. For mobile
// devices the operating system dominates the label.
func DeviceLabel(userAgentString string) string {
	if userAgentString == "" {
		return "Unknown Device"
	}

	ua := useragent.Parse(userAgentString)

	name := ua.Name
	if name == "" {
		name = "Unknown Browser"
	}

	if (ua.Mobile || ua.Tablet) && ua.OS != "" {
		return ua.OS + " (" + name + ")"
	}

	if ua.OS != "" {
		return name + " on " + ua.OS
	}

	return name
}

// Trust records the calling device as trusted for the configured duration
// and returns the new record. Expiry is fixed here and never extended.
func (s *Service) Trust(userID uint, fingerprint string, meta RequestMetadata) *Device {
	now := time.Now()

	device := &Device{
		ID:          uuid.New().String(),
		UserID:      userID,
		Fingerprint: fingerprint,
		Name:        DeviceLabel(meta.UserAgent),
		IPAddress:   meta.IPAddress,
		UserAgent:   meta.UserAgent,
		CreatedAt:   now,
		LastUsedAt:  now,
		ExpiresAt:   now.Add(s.config.DeviceTrust.TrustDuration),
	}

	s.store.Put(device)

	if s.logger != nil {
		s.logger.Info("device trusted",
			zap.Uint("user_id", userID),
			zap.String("device_id", device.ID),
			zap.String("device_name", device.Name))
	}

	return device
}

// IsTrusted reports whether the (user, fingerprint) pair has an unexpired
// record. Expired records are purged on lookup; hits bump last-used but not
// expiry.
func (s *Service) IsTrusted(userID uint, fingerprint string) bool {
	device, ok := s.store.Get(userID, fingerprint)
	if !ok {
		return false
	}

	now := time.Now()
	if device.Expired(now) {
		s.store.DeleteByFingerprint(userID, fingerprint)
		if s.logger != nil {
			s.logger.Debug("expired trusted device purged",
				zap.Uint("user_id", userID),
				zap.String("device_id", device.ID))
		}
		return false
	}

	s.store.Touch(userID, fingerprint, now)
	return true
}

func (s *Service) Remove(userID uint, deviceID string) bool {
	removed := s.store.Delete(userID, deviceID)

	if s.logger != nil && removed {
		s.logger.Info("trusted device revoked",
			zap.Uint("user_id", userID),
			zap.String("device_id", deviceID))
	}

	return removed
}

// List returns the user's unexpired devices, most recently used first.
// Expiry is filtered at read time, so records awaiting a sweep are never
// visible.
func (s *Service) List(userID uint) []*Device {
	now := time.Now()

	all := s.store.ListByUser(userID)
	devices := make([]*Device, 0, len(all))
	for _, device := range all {
		if !device.Expired(now) {
			devices = append(devices, device)
		}
	}

	sort.Slice(devices, func(i, j int) bool {
		return devices[i].LastUsedAt.After(devices[j].LastUsedAt)
	})

	return devices
}

func (s *Service) SweepExpired() int {
	deleted := s.store.DeleteExpired(time.Now())

	if s.logger != nil && deleted > 0 {
		s.logger.Debug("expired trusted devices swept", zap.Int("deleted", deleted))
	}

	return deleted
}

// AssessRisk decides whether a login attempt needs a one-time-code
// challenge. lastLogin comes from the caller's durable user record; a zero
// value means unknown and skips the stale-login rule. The heuristics are
// deliberately coarse and are not a security guarantee.
func (s *Service) AssessRisk(userID uint, meta RequestMetadata, lastLogin time.Time) Assessment {
	s.SweepExpired()

	fingerprint := Fingerprint(meta)
	if s.IsTrusted(userID, fingerprint) {
		return Assessment{
			Required:  false,
			Reason:    "trusted device",
			RiskLevel: RiskLow,
		}
	}

	hour := time.Now().Hour()
	if hour < s.config.DeviceTrust.QuietHourEnd || hour >= s.config.DeviceTrust.QuietHourStart {
		return Assessment{
			Required:  true,
			Reason:    "login at unusual hour",
			RiskLevel: RiskHigh,
		}
	}

	if !lastLogin.IsZero() && time.Since(lastLogin) > s.config.DeviceTrust.StaleLoginGap {
		return Assessment{
			Required:  true,
			Reason:    "long gap since last login",
			RiskLevel: RiskHigh,
		}
	}

	return Assessment{
		Required:  true,
		Reason:    "new device detected",
		RiskLevel: RiskMedium,
	}
}
