package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/repressales/salescart/pkg/config"
	"github.com/repressales/salescart/pkg/database"
	"github.com/repressales/salescart/pkg/httpclient"
	"github.com/repressales/salescart/pkg/tracing"
)

// Catalog backends.
const (
	CatalogPostgres = "postgres"
	CatalogHTTP     = "http"
)

// Config holds all configuration for the cart service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"CART_HTTP_PORT" envDefault:"8003"`

	Redis    database.RedisConfig    `envPrefix:"REDIS_"`
	Postgres database.PostgresConfig `envPrefix:"POSTGRES_"`

	// Cart snapshot TTL in Redis (default: 7 days).
	CartTTL time.Duration `env:"CART_TTL" envDefault:"168h"`

	// Sessions unused for this long are saved and closed by the sweeper.
	SessionIdleTimeout   time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`
	SessionSweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1m"`

	// Catalog source: "postgres" reads the products table, "http" calls the
	// product service.
	CatalogBackend string                          `env:"CATALOG_BACKEND" envDefault:"postgres"`
	CatalogURL     string                          `env:"CATALOG_URL" envDefault:"http://localhost:8001"`
	CatalogHTTP    httpclient.Config               `envPrefix:"CATALOG_HTTP_"`
	CatalogBreaker httpclient.CircuitBreakerConfig `envPrefix:"CATALOG_"`

	// Money display
	MoneyLocale   string `env:"MONEY_LOCALE" envDefault:"en-US"`
	MoneyCurrency string `env:"MONEY_CURRENCY" envDefault:"USD"`

	// Kafka
	KafkaBrokers    []string      `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	KafkaGroupID    string        `env:"KAFKA_GROUP_ID" envDefault:"cart-service"`
	ConsumerEnabled bool          `env:"KAFKA_CONSUMER_ENABLED" envDefault:"true"`
	IdempotencyTTL  time.Duration `env:"KAFKA_IDEMPOTENCY_TTL" envDefault:"24h"`

	Tracing tracing.Config `envPrefix:"OTEL_"`

	SlowQueryThreshold time.Duration `env:"LOG_SLOW_QUERY" envDefault:"500ms"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load cart config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.CatalogBackend {
	case CatalogPostgres:
	case CatalogHTTP:
		if c.CatalogURL == "" {
			return fmt.Errorf("CATALOG_URL is required for the http catalog")
		}
	default:
		return fmt.Errorf("unknown CATALOG_BACKEND %q", c.CatalogBackend)
	}
	if c.CartTTL <= 0 {
		return fmt.Errorf("CART_TTL must be positive")
	}
	if c.SessionIdleTimeout <= 0 || c.SessionSweepInterval <= 0 {
		return fmt.Errorf("session idle timeout and sweep interval must be positive")
	}
	if c.MoneyLocale == "" || c.MoneyCurrency == "" {
		return fmt.Errorf("MONEY_LOCALE and MONEY_CURRENCY are required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.Tracing.SampleRate)
	}
	return nil
}
