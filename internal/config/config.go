package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type DB struct {
	URL             string        `env:"DATABASE_URL"`
	MaxOpenConns    int           `env:"DB_MAX_OPEN_CONNS" envDefault:"16"`
	MaxIdleConns    int           `env:"DB_MAX_IDLE_CONNS" envDefault:"8"`
	ConnMaxLifetime time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"1h"`
	ConnMaxIdleTime time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"15m"`
	QueryTimeout    time.Duration `env:"LEDGER_QUERY_TIMEOUT" envDefault:"5s"`
	MigrationsPath  string        `env:"MIGRATIONS_PATH" envDefault:"file://db/migrations"`
}

type Ledger struct {
	Store       string        `env:"LEDGER_STORE" envDefault:"postgres"`
	MaxAttempts int           `env:"LEDGER_MAX_ATTEMPTS" envDefault:"5"`
	BackoffBase time.Duration `env:"LEDGER_BACKOFF_BASE" envDefault:"10ms"`
	Jitter      bool          `env:"LEDGER_BACKOFF_JITTER" envDefault:"true"`
}

type Kafka struct {
	BootstrapServers string `env:"KAFKA_BOOTSTRAP_SERVERS"`
	LedgerTopic      string `env:"KAFKA_LEDGER_TOPIC" envDefault:"ledger.entries"`
}

// Enabled reports whether committed entries should be published.
func (k Kafka) Enabled() bool {
	return k.BootstrapServers != ""
}

type Config struct {
	Port     string `env:"PORT" envDefault:"8080"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	DB       DB
	Ledger   Ledger
	Kafka    Kafka
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.Ledger.Store {
	case StorePostgres:
		if c.DB.URL == "" {
			return errors.New("DATABASE_URL environment variable is not set")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("unknown LEDGER_STORE %q", c.Ledger.Store)
	}
	if c.Ledger.MaxAttempts < 1 {
		return fmt.Errorf("LEDGER_MAX_ATTEMPTS must be at least 1, got %d", c.Ledger.MaxAttempts)
	}
	if c.Ledger.BackoffBase < 0 {
		return fmt.Errorf("LEDGER_BACKOFF_BASE must not be negative")
	}
	return nil
}
