package devicetrust

import (
	"time"
)

// Device is a trusted-device record. Expiry is fixed at creation; usage
// bumps LastUsedAt only.
type Device struct {
	ID          string    `json:"id"`
	UserID      uint      `json:"user_id"`
	Fingerprint string    `json:"-"`
	Name        string    `json:"name"`
	IPAddress   string    `json:"ip_address"`
	UserAgent   string    `json:"-"`
	CreatedAt   time.Time `json:"created_at"`
	LastUsedAt  time.Time `json:"last_used_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func (d *Device) Expired(now time.Time) bool {
	return now.After(d.ExpiresAt)
}

// RequestMetadata carries the request attributes a fingerprint is derived
// from.
type RequestMetadata struct {
	UserAgent      string
	AcceptLanguage string
	AcceptEncoding string
	Accept         string
	IPAddress      string
}

type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// Assessment is the outcome of a risk decision: whether a one-time-code
// challenge is required and why.
type Assessment struct {
	Required  bool      `json:"required"`
	Reason    string    `json:"reason"`
	RiskLevel RiskLevel `json:"riskLevel"`
}
