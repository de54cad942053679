// Package authkit provides TOTP two-factor enrollment and verification,
// single-use backup codes, trusted-device tracking with heuristic risk
// assessment, and the /2fa HTTP surface that exposes them.
package authkit

import (
	"github.com/decadiamfilms/authkit/app"
)

type App = app.App

func New() *app.AppBuilder {
	return app.NewApp()
}
