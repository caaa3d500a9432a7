// Package config loads the process configuration purely from environment
// variables, the way the gift-card API's cleanenv.ReadConfig wraps
// config.toml — except this service ships no config file, so it calls
// cleanenv's env-only reader instead.
package config

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full set of environment variables the core recognizes.
type Config struct {
	App struct {
		Name        string `env:"APP_NAME" env-default:"chatpay-core"`
		Environment string `env:"ENVIRONMENT" env-default:"development"`
		Debug       bool   `env:"DEBUG" env-default:"false"`
		SecretKey   string `env:"SECRET_KEY"`
	}

	Database struct {
		URL               string `env:"DATABASE_URL"`
		Echo              bool   `env:"DB_ECHO" env-default:"false"`
		UseSQLiteFallback bool   `env:"USE_SQLITE_FALLBACK" env-default:"false"`
		MaxConns          int    `env:"DB_MAX_CONNS" env-default:"25"`
		MinConns          int    `env:"DB_MIN_CONNS" env-default:"5"`
		MaxConnLifetimeMin int   `env:"DB_MAX_CONN_LIFETIME_MIN" env-default:"5"`
		MaxConnIdleTimeMin int   `env:"DB_MAX_CONN_IDLE_TIME_MIN" env-default:"1"`
	}

	Redis struct {
		URL     string `env:"REDIS_URL" env-default:"redis://localhost:6379/0"`
		Enabled bool   `env:"REDIS_ENABLED" env-default:"true"`
	}

	Ledger struct {
		Network      string `env:"LEDGER_NETWORK" env-default:"testnet"`
		NodeURL      string `env:"LEDGER_NODE_URL"`
		NodeToken    string `env:"LEDGER_NODE_TOKEN"`
		IndexerURL   string `env:"LEDGER_INDEXER_URL"`
		IndexerToken string `env:"LEDGER_INDEXER_TOKEN"`
	}

	Encryption struct {
		Key string `env:"ENCRYPTION_KEY"`
	}

	// Transport credentials are opaque to the core (spec §6); the two
	// messaging transports are out-of-scope collaborators, but the
	// composition root still needs somewhere to read their secrets from
	// before handing them to a transport adapter.
	TransportA struct {
		AccountID string `env:"TRANSPORT_A_ACCOUNT_ID"`
		AuthToken string `env:"TRANSPORT_A_AUTH_TOKEN"`
		BotID     string `env:"TRANSPORT_A_BOT_ID"`
	}
	TransportB struct {
		AccountID string `env:"TRANSPORT_B_ACCOUNT_ID"`
		AuthToken string `env:"TRANSPORT_B_AUTH_TOKEN"`
		BotID     string `env:"TRANSPORT_B_BOT_ID"`
	}

	RateLimit struct {
		Enabled   bool `env:"RATE_LIMIT_ENABLED" env-default:"true"`
		PerMinute int  `env:"RATE_LIMIT_PER_MINUTE" env-default:"30"`
	}

	Log struct {
		Level string `env:"LOG_LEVEL" env-default:"info"`
		File  string `env:"LOG_FILE"`
	}
}

// Load reads configuration purely from the process environment.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
