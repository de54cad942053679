package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

type Config struct {
	App         AppConfig         `envPrefix:"AUTHKIT_APP_"`
	Server      ServerConfig      `envPrefix:"AUTHKIT_SERVER_"`
	Log         LogConfig         `envPrefix:"AUTHKIT_LOG_"`
	Database    DatabaseConfig    `envPrefix:"AUTHKIT_DATABASE_"`
	Auth        AuthConfig        `envPrefix:"AUTHKIT_AUTH_"`
	TOTP        TOTPConfig        `envPrefix:"AUTHKIT_TOTP_"`
	DeviceTrust DeviceTrustConfig `envPrefix:"AUTHKIT_DEVICETRUST_"`
	Challenge   ChallengeConfig   `envPrefix:"AUTHKIT_CHALLENGE_"`
	RateLimit   RateLimitConfig   `envPrefix:"AUTHKIT_RATELIMIT_"`
	Mail        MailConfig        `envPrefix:"AUTHKIT_MAIL_"`
}

type AppConfig struct {
	Name string `env:"NAME" envDefault:"authkit Application"`
	URL  string `env:"URL" envDefault:"http://localhost:8080"`
}

type ServerConfig struct {
	Port string `env:"PORT" envDefault:"8080"`
	Host string `env:"HOST" envDefault:"localhost"`
}

type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"json"`
	Output string `env:"OUTPUT" envDefault:"stdout"`
}

type DatabaseConfig struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	DSN         string `env:"DSN" envDefault:"authkit.db"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`
}

type AuthConfig struct {
	BcryptCost int `env:"BCRYPT_COST" envDefault:"12"`
}

type TOTPConfig struct {
	Enabled         bool   `env:"ENABLED" envDefault:"true"`
	Issuer          string `env:"ISSUER"`
	Digits          int    `env:"DIGITS" envDefault:"6"`
	Period          uint   `env:"PERIOD" envDefault:"30"`
	Skew            uint   `env:"SKEW" envDefault:"1"`
	SecretSize      uint   `env:"SECRET_SIZE" envDefault:"20"`
	BackupCodeCount int    `env:"BACKUP_CODE_COUNT" envDefault:"8"`
	QRCodeSize      int    `env:"QR_CODE_SIZE" envDefault:"256"`
}

type DeviceTrustConfig struct {
	TrustDuration  time.Duration `env:"TRUST_DURATION" envDefault:"720h"`
	QuietHourStart int           `env:"QUIET_HOUR_START" envDefault:"22"`
	QuietHourEnd   int           `env:"QUIET_HOUR_END" envDefault:"6"`
	StaleLoginGap  time.Duration `env:"STALE_LOGIN_GAP" envDefault:"168h"`
}

type ChallengeConfig struct {
	SecretKey string        `env:"SECRET_KEY"`
	Expiry    time.Duration `env:"EXPIRY" envDefault:"5m"`
	Issuer    string        `env:"ISSUER" envDefault:"authkit"`
}

type RateLimitConfig struct {
	GenerateLimit     int           `env:"GENERATE_LIMIT" envDefault:"3"`
	GenerateWindow    time.Duration `env:"GENERATE_WINDOW" envDefault:"5m"`
	VerifySetupLimit  int           `env:"VERIFY_SETUP_LIMIT" envDefault:"5"`
	VerifySetupWindow time.Duration `env:"VERIFY_SETUP_WINDOW" envDefault:"5m"`
	VerifyLimit       int           `env:"VERIFY_LIMIT" envDefault:"10"`
	VerifyWindow      time.Duration `env:"VERIFY_WINDOW" envDefault:"15m"`
}

type MailConfig struct {
	Enabled     bool   `env:"ENABLED" envDefault:"false"`
	Host        string `env:"HOST"`
	Port        int    `env:"PORT" envDefault:"587"`
	Username    string `env:"USERNAME"`
	Password    string `env:"PASSWORD"`
	Encryption  string `env:"ENCRYPTION" envDefault:"starttls"`
	FromAddress string `env:"FROM_ADDRESS"`
	FromName    string `env:"FROM_NAME"`
}

func LoadConfig(cfg any) error {
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found: %v", err)
	}

	return env.Parse(cfg)
}
