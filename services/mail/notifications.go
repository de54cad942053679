package mail

import (
	"fmt"
)

// Security notifications sent when a user's 2FA posture changes. A nil
// service skips them; notification failure never blocks the triggering
// operation.

func (s *Service) SendTwoFactorEnabled(to string) error {
	if s == nil {
		return nil
	}

	body := "Two-factor authentication has been enabled on your account.\n\n" +
		"If you did not do this, contact support immediately."

	return s.Send(to, "Two-factor authentication enabled", body)
}

func (s *Service) SendTwoFactorDisabled(to string) error {
	if s == nil {
		return nil
	}

	body := "Two-factor authentication has been disabled on your account.\n\n" +
		"If you did not do this, contact support immediately."

	return s.Send(to, "Two-factor authentication disabled", body)
}

func (s *Service) SendNewTrustedDevice(to, deviceName, ipAddress string) error {
	if s == nil {
		return nil
	}

	body := fmt.Sprintf("A new device was marked as trusted on your account.\n\n"+
		"Device: %s\nIP address: %s\n\n"+
		"If this was not you, revoke the device and review your account security.",
		deviceName, ipAddress)

	return s.Send(to, "New trusted device added", body)
}
