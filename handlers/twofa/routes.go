package twofa

import (
	"github.com/decadiamfilms/authkit/server"
	"go.uber.org/fx"
)

func RegisterRoutes(srv *server.Server, h *Handler) {
	g := srv.Group("/2fa")

	g.POST("/generate", h.Generate)
	g.POST("/verify-setup", h.VerifySetup)
	g.POST("/enable", h.Enable)
	g.POST("/verify", h.Verify)
	g.POST("/disable", h.Disable)
	g.POST("/assess", h.AssessRisk)
	g.GET("/devices", h.ListDevices)
	g.DELETE("/devices/:id", h.RemoveDevice)
}

var Module = fx.Options(
	fx.Provide(NewHandler),
	fx.Invoke(RegisterRoutes),
)
