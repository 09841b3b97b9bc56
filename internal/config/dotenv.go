package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// LoadDotEnv loads environment variables from a .env file if present.
// Existing environment variables are not overwritten.
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

type Config struct {
	Port                     string        `env:"PORT"`
	DatabaseURL              string        `env:"DATABASE_URL"`
	RedisURL                 string        `env:"REDIS_URL"`
	BotToken                 string        `env:"BOT_TOKEN"`
	TelegramAPIURL           string        `env:"TELEGRAM_API_URL"`
	PollTimeoutSeconds       int           `env:"POLL_TIMEOUT_SECONDS"`
	DeliveryTimeout          time.Duration `env:"DELIVERY_TIMEOUT"`
	NotifyConcurrency        int           `env:"NOTIFY_CONCURRENCY"`
	ConversationTTL          time.Duration `env:"CONVERSATION_TTL"`
	AdminToken               string        `env:"ADMIN_TOKEN"`
	CORSOrigins              []string      `env:"CORS_ORIGINS" envSeparator:","`
	DBMaxOpenConns           int           `env:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns           int           `env:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeSeconds int           `env:"DB_CONN_MAX_LIFETIME_SECONDS"`
	DBConnMaxIdleTimeSeconds int           `env:"DB_CONN_MAX_IDLE_SECONDS"`
}

func Default() Config {
	return Config{
		Port:                     "8080",
		TelegramAPIURL:           "https://api.telegram.org",
		PollTimeoutSeconds:       30,
		DeliveryTimeout:          10 * time.Second,
		NotifyConcurrency:        8,
		ConversationTTL:          24 * time.Hour,
		CORSOrigins:              []string{"http://localhost:3000"},
		DBMaxOpenConns:           10,
		DBMaxIdleConns:           10,
		DBConnMaxLifetimeSeconds: 300,
		DBConnMaxIdleTimeSeconds: 60,
	}
}

// Load overlays variables present in the environment on top of Default.
func Load() (Config, error) {
	cfg := Default()
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if cfg.PollTimeoutSeconds < 0 {
		cfg.PollTimeoutSeconds = 0
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = Default().DeliveryTimeout
	}
	if cfg.NotifyConcurrency <= 0 {
		cfg.NotifyConcurrency = 1
	}
	return cfg, nil
}
