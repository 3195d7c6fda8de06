package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

type Config struct {
	// Server configuration
	Port        string `env:"PORT" envDefault:"8090"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	// Ledger storage
	LedgerBackend string `env:"LEDGER_BACKEND" envDefault:"memory"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"ledger.db"`

	// Redis configuration
	RedisURL      string `env:"REDIS_URL" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// PubNub configuration
	PubNubPublishKey   string `env:"PUBNUB_PUBLISH_KEY"`
	PubNubSubscribeKey string `env:"PUBNUB_SUBSCRIBE_KEY"`
	PubNubSecretKey    string `env:"PUBNUB_SECRET_KEY"`
	PubNubUUID         string `env:"PUBNUB_UUID" envDefault:"ticket-ledger"`

	// Tickets and sessions
	ScanTokenSecret string        `env:"SCAN_TOKEN_SECRET" envDefault:"change-me"`
	SessionTTL      time.Duration `env:"SESSION_TTL" envDefault:"24h"`

	// Rate limiting
	PurchaseRateLimit int           `env:"PURCHASE_RATE_LIMIT" envDefault:"10"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`

	SeedSampleData bool `env:"SEED_SAMPLE_DATA" envDefault:"false"`

	// Monitoring
	EnableMetrics bool   `env:"ENABLE_METRICS" envDefault:"true"`
	MetricsPort   string `env:"METRICS_PORT" envDefault:"9090"`
}

func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.LedgerBackend {
	case BackendMemory, BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("unknown ledger backend %q", c.LedgerBackend)
	}
	if c.Environment == "production" && c.ScanTokenSecret == "change-me" {
		return fmt.Errorf("SCAN_TOKEN_SECRET must be set in production")
	}
	if c.PurchaseRateLimit < 0 {
		return fmt.Errorf("PURCHASE_RATE_LIMIT must not be negative")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	return nil
}

func (c *Config) PubNubEnabled() bool {
	return c.PubNubPublishKey != "" && c.PubNubSubscribeKey != ""
}
