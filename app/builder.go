package app

import (
	"fmt"

	"github.com/decadiamfilms/authkit/config"
	"github.com/decadiamfilms/authkit/database"
	"github.com/decadiamfilms/authkit/handlers/twofa"
	"github.com/decadiamfilms/authkit/middleware/ratelimit"
	"github.com/decadiamfilms/authkit/server"
	"github.com/decadiamfilms/authkit/services/auth"
	"github.com/decadiamfilms/authkit/services/challenge"
	"github.com/decadiamfilms/authkit/services/devicetrust"
	"github.com/decadiamfilms/authkit/services/logging"
	"github.com/decadiamfilms/authkit/services/mail"
	"github.com/decadiamfilms/authkit/services/totp"
	"go.uber.org/fx"
)

type AppBuilder struct {
	config    *config.Config
	services  map[string]bool
	models    []any
	fxOptions []fx.Option
	errors    []error
}

func NewApp() *AppBuilder {
	return &AppBuilder{
		services:  make(map[string]bool),
		models:    make([]any, 0),
		fxOptions: make([]fx.Option, 0),
		errors:    make([]error, 0),
	}
}

func (b *AppBuilder) WithConfig(cfg *config.Config) *AppBuilder {
	if cfg == nil {
		b.addError("config cannot be nil")
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithAutoConfig() *AppBuilder {
	cfg := &config.Config{}
	if err := config.LoadConfig(cfg); err != nil {
		b.addError(fmt.Sprintf("failed to load config: %v", err))
		return b
	}
	b.config = cfg
	return b
}

func (b *AppBuilder) WithDatabase(models ...any) *AppBuilder {
	b.services["database"] = true
	b.models = append(b.models, models...)
	return b
}

func (b *AppBuilder) WithAuth() *AppBuilder {
	b.services["auth"] = true
	b.models = append(b.models, &auth.User{})
	return b
}

func (b *AppBuilder) WithTOTP() *AppBuilder {
	b.services["totp"] = true
	b.models = append(b.models, &totp.TOTPSecret{}, &totp.BackupCode{})
	return b
}

func (b *AppBuilder) WithDeviceTrust() *AppBuilder {
	b.services["devicetrust"] = true
	return b
}

func (b *AppBuilder) WithChallenge() *AppBuilder {
	b.services["challenge"] = true
	return b
}

func (b *AppBuilder) WithMail() *AppBuilder {
	b.services["mail"] = true
	return b
}

// WithTwoFARoutes mounts the /2fa HTTP surface and pulls in everything it
// needs.
func (b *AppBuilder) WithTwoFARoutes() *AppBuilder {
	b.services["twofa_routes"] = true
	return b
}

func (b *AppBuilder) WithFxOptions(opts ...fx.Option) *AppBuilder {
	b.fxOptions = append(b.fxOptions, opts...)
	return b
}

func (b *AppBuilder) Build() (*App, error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	if b.config == nil {
		if err := b.WithAutoConfig().validate(); err != nil {
			return nil, err
		}
	}

	logger, err := logging.NewService(logging.Config{
		Level:      logging.LogLevel(b.config.Log.Level),
		Format:     b.config.Log.Format,
		OutputPath: b.config.Log.Output,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	app := &App{
		config: b.config,
		logger: logger,
	}

	fxOptions := b.buildFxOptions(logger)
	fxOptions = append(fxOptions, fx.Invoke(func(srv *server.Server) {
		app.server = srv
	}))

	app.fx = fx.New(fxOptions...)

	return app, nil
}

func (b *AppBuilder) addError(msg string) {
	b.errors = append(b.errors, fmt.Errorf("%s", msg))
}

func (b *AppBuilder) validate() error {
	if len(b.errors) > 0 {
		return fmt.Errorf("configuration errors: %v", b.errors)
	}

	if b.services["twofa_routes"] {
		b.ensureTOTPStack()
	}

	for _, svc := range []string{"auth", "totp"} {
		if b.services[svc] {
			b.services["database"] = true
		}
	}

	return nil
}

func (b *AppBuilder) ensureTOTPStack() {
	if !b.services["auth"] {
		b.WithAuth()
	}
	if !b.services["totp"] {
		b.WithTOTP()
	}
	b.services["devicetrust"] = true
}

func (b *AppBuilder) buildFxOptions(logger *logging.Service) []fx.Option {
	var options []fx.Option

	options = append(options,
		config.NewProvider(b.config),
		fx.Supply(logger),
		fx.NopLogger,
	)

	if b.services["database"] {
		modelsOpt := database.WithModels(b.models...)
		options = append(options, fx.Supply(modelsOpt), database.Module)
	}

	options = append(options, server.NewProvider())
	options = append(options, ratelimit.Module)

	if b.services["auth"] {
		options = append(options, auth.Module)
	}
	if b.services["totp"] {
		options = append(options, totp.Module)
	}
	if b.services["devicetrust"] {
		options = append(options, devicetrust.Module)
	}

	if b.services["challenge"] {
		options = append(options, challenge.Module)
	} else if b.services["twofa_routes"] {
		options = append(options, fx.Provide(func() *challenge.Service { return nil }))
	}

	if b.services["mail"] {
		options = append(options, mail.Module)
	} else if b.services["twofa_routes"] {
		options = append(options, fx.Provide(func() *mail.Service { return nil }))
	}

	if b.services["twofa_routes"] {
		options = append(options, twofa.Module)
	}

	options = append(options, b.fxOptions...)

	return options
}
