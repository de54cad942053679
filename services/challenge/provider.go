package challenge

import (
	"github.com/decadiamfilms/authkit/config"
	"github.com/decadiamfilms/authkit/services/logging"
	"go.uber.org/fx"
)

func NewProvider(cfg *config.Config, logger *logging.Service) *Service {
	return NewService(cfg, logger)
}

var Module = fx.Options(
	fx.Provide(NewProvider),
)
