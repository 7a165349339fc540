package config

import (
	"fmt"
	"log/slog"

	"github.com/joho/godotenv"
	"go-simpler.org/env"
)

type Config struct {
	AppEnv    string `env:"APP_ENV" default:"development"`
	Port      string `env:"PORT" default:"8080"`
	LogLevel  string `env:"LOG_LEVEL" default:"info"`
	LogFormat string `env:"LOG_FORMAT" default:"text"`

	// AuthSecret is the shared HMAC secret the token issuer signs with.
	AuthSecret string `env:"AUTH_SECRET"`

	// RedisURL enables the external widget event feed when set.
	RedisURL string `env:"REDIS_URL"`

	MaxWebSocketConnections int64   `env:"MAX_WEBSOCKET_CONNECTIONS" default:"10000"`
	MaxConnectionsPerIP     int     `env:"MAX_CONNECTIONS_PER_IP" default:"32"`
	ConnectionRatePerIP     float64 `env:"CONNECTION_RATE_PER_IP" default:"10"`
	ConnectionBurstPerIP    int     `env:"CONNECTION_BURST_PER_IP" default:"20"`
}

const minAuthSecretLength = 16

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	var cfg Config
	if err := env.Load(&cfg, nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func validate(cfg *Config) error {
	if cfg.AuthSecret == "" {
		return fmt.Errorf("AUTH_SECRET is required")
	}
	if len(cfg.AuthSecret) < minAuthSecretLength {
		return fmt.Errorf("AUTH_SECRET must be at least %d characters, got %d", minAuthSecretLength, len(cfg.AuthSecret))
	}
	if cfg.MaxWebSocketConnections <= 0 {
		return fmt.Errorf("MAX_WEBSOCKET_CONNECTIONS must be positive")
	}
	if cfg.MaxConnectionsPerIP <= 0 {
		return fmt.Errorf("MAX_CONNECTIONS_PER_IP must be positive")
	}
	return nil
}
