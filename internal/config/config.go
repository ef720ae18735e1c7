// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all runtime settings for the keygate API.
type Config struct {
	Env  string `env:"KEYGATE_ENV" env-default:"dev"`
	Addr string `env:"KEYGATE_ADDR" env-default:":8080"`

	// PGDSN is the Postgres connection string. Empty means the service starts
	// with in-memory stores (dev/tests only).
	PGDSN string `env:"KEYGATE_PG_DSN"`

	// Redis is optional; when unset the kill switch uses a per-process cache.
	RedisAddr     string `env:"KEYGATE_REDIS_ADDR"`
	RedisPassword string `env:"KEYGATE_REDIS_PASSWORD"`
	RedisDB       int    `env:"KEYGATE_REDIS_DB" env-default:"0"`

	SessionTTL time.Duration `env:"KEYGATE_SESSION_TTL" env-default:"168h"`

	// EntitlementSecret signs the short-lived proof token returned by Verify.
	// Token issuance is disabled when empty.
	EntitlementSecret string        `env:"KEYGATE_ENTITLEMENT_SECRET"`
	EntitlementTTL    time.Duration `env:"KEYGATE_ENTITLEMENT_TTL" env-default:"15m"`

	// KillSwitchCacheTTL bounds the staleness of cached kill switch reads.
	KillSwitchCacheTTL time.Duration `env:"KEYGATE_KILLSWITCH_CACHE_TTL" env-default:"5s"`

	RateBurst  int `env:"KEYGATE_RATE_BURST" env-default:"50"`
	RatePerSec int `env:"KEYGATE_RATE_PER_SEC" env-default:"25"`

	MigrationsDir string `env:"KEYGATE_MIGRATIONS_DIR" env-default:"migrations"`

	// BootstrapEmail/BootstrapPassword create an OWNER account on startup when
	// no account with that email exists. Both must be set together.
	BootstrapEmail    string `env:"KEYGATE_BOOTSTRAP_EMAIL"`
	BootstrapPassword string `env:"KEYGATE_BOOTSTRAP_PASSWORD"`
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("config: read env: %w", err)
	}
	if cfg.SessionTTL <= 0 {
		return nil, fmt.Errorf("config: session ttl must be positive")
	}
	if cfg.KillSwitchCacheTTL < 0 {
		return nil, fmt.Errorf("config: kill switch cache ttl must not be negative")
	}
	if (cfg.BootstrapEmail == "") != (cfg.BootstrapPassword == "") {
		return nil, fmt.Errorf("config: bootstrap email and password must be set together")
	}
	return &cfg, nil
}
