package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	errs "github.com/lueurxax/tweet-store/internal/core/errors"
)

const (
	AppEnvLocal = "local"
)

type Config struct {
	AppEnv      string `env:"APP_ENV" envDefault:"local"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	PostgresDSN string `env:"POSTGRES_DSN,required"`
	HealthPort  int    `env:"HEALTH_PORT" envDefault:"8080"`

	// Database pool
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS" envDefault:"10"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS" envDefault:"1"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME" envDefault:"30m"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME" envDefault:"1h"`
	DBHealthCheckPeriod time.Duration `env:"DB_HEALTH_CHECK_PERIOD" envDefault:"1m"`

	// Migrations
	MigrateOnStart bool `env:"MIGRATE_ON_START" envDefault:"true"`

	// Ingestion
	IngestBatchSize int  `env:"INGEST_BATCH_SIZE" envDefault:"100"`
	RetainRawJSON   bool `env:"RETAIN_RAW_JSON" envDefault:"true"`

	// Spool directory fed by the external collector
	SpoolDir          string        `env:"SPOOL_DIR" envDefault:"./spool"`
	SpoolPollInterval time.Duration `env:"SPOOL_POLL_INTERVAL" envDefault:"10s"`
}

func Load() (*Config, error) {
	_ = godotenv.Load() //nolint:errcheck // .env file is optional, error is expected when not present

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing environment config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.IngestBatchSize <= 0 {
		return fmt.Errorf("%w: INGEST_BATCH_SIZE must be positive, got %d", errs.ErrInvalidInput, c.IngestBatchSize)
	}

	if c.SpoolPollInterval <= 0 {
		return fmt.Errorf("%w: SPOOL_POLL_INTERVAL must be positive, got %s", errs.ErrInvalidInput, c.SpoolPollInterval)
	}

	if c.DBMinConnections > c.DBMaxConnections {
		return fmt.Errorf("%w: DB_MIN_CONNECTIONS (%d) exceeds DB_MAX_CONNECTIONS (%d)",
			errs.ErrInvalidInput, c.DBMinConnections, c.DBMaxConnections)
	}

	return nil
}
