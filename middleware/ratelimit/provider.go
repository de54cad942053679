package ratelimit

import (
	"context"

	"go.uber.org/fx"
)

func ProvideRateLimitStore(lc fx.Lifecycle) Store {
	store := NewMemoryStore()

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			store.Close()
			return nil
		},
	})

	return store
}

var Module = fx.Options(
	fx.Provide(ProvideRateLimitStore),
	fx.Provide(NewLimiter),
)
