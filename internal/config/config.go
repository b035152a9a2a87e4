package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/hperssn/sages/internal/storage"
)

type Config struct {
	Addr string `env:"ADDR" envDefault:":8080"`

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogDev   bool   `env:"LOG_DEV" envDefault:"false"`

	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"sqlite"`
	// file path for sqlite, connection string for postgres
	StorageDSN     string `env:"STORAGE_DSN" envDefault:"sages.db"`

	SeedDir   string `env:"SEED_DIR" envDefault:"content/retreats"`
	WatchSeed bool   `env:"WATCH_SEED" envDefault:"false"`

	// empty disables the completion fan-out
	NATSURL string `env:"NATS_URL"`

	// user assumed when no auth header is present; empty rejects such requests
	DevUser string `env:"DEV_USER"`

	PlayIdleTTL     time.Duration `env:"PLAY_IDLE_TTL" envDefault:"1h"`
	CleanupInterval time.Duration `env:"CLEANUP_INTERVAL" envDefault:"5m"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

const envPrefix = "SAGES_"

// Load reads the SAGES_* environment.
func Load() (*Config, error) {
	return parse(env.Options{Prefix: envPrefix})
}

func parse(opts env.Options) (*Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case storage.BackendMemory, storage.BackendSQLite, storage.BackendPostgres:
	default:
		return fmt.Errorf("SAGES_STORAGE_BACKEND: unknown backend %q", c.StorageBackend)
	}
	if c.StorageBackend == storage.BackendPostgres && c.StorageDSN == "" {
		return fmt.Errorf("SAGES_STORAGE_DSN must be set for postgres")
	}
	if c.PlayIdleTTL <= 0 {
		return fmt.Errorf("SAGES_PLAY_IDLE_TTL must be positive")
	}
	return nil
}
