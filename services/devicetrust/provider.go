package devicetrust

import (
	"context"

	"github.com/decadiamfilms/authkit/config"
	"github.com/decadiamfilms/authkit/services/logging"
	"go.uber.org/fx"
)

func ProvideStore(lc fx.Lifecycle) Store {
	store := NewMemoryStore()

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			store.Clear()
			return nil
		},
	})

	return store
}

func NewProvider(cfg *config.Config, store Store, logger *logging.Service) *Service {
	return NewService(cfg, store, logger)
}

var Module = fx.Options(
	fx.Provide(ProvideStore),
	fx.Provide(NewProvider),
)
