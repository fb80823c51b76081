package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Port     int    `envconfig:"PORT" default:"8080"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Version  string `envconfig:"VERSION" default:"dev"`

	DatabaseURL        string        `envconfig:"DATABASE_URL" required:"true"`
	DBMaxConns         int32         `envconfig:"DB_MAX_CONNS" default:"10"`
	DBStatementTimeout time.Duration `envconfig:"DB_STATEMENT_TIMEOUT" default:"30s"`

	AdminAllowlist []string `envconfig:"ADMIN_ALLOWLIST"`
	BcryptCost     int      `envconfig:"BCRYPT_COST" default:"12"`

	CatalogPath            string        `envconfig:"CATALOG_PATH" default:"catalog.yaml"`
	CatalogRefreshInterval time.Duration `envconfig:"CATALOG_REFRESH_INTERVAL" default:"5m"`
	SchemaCacheTTL         time.Duration `envconfig:"SCHEMA_CACHE_TTL" default:"1h"`
	RedisURL               string        `envconfig:"REDIS_URL" default:""`

	GeneratorURL            string        `envconfig:"GENERATOR_URL" default:""`
	GeneratorAPIKey         string        `envconfig:"GENERATOR_API_KEY" default:""`
	GeneratorModel          string        `envconfig:"GENERATOR_MODEL" default:""`
	GeneratorTimeout        time.Duration `envconfig:"GENERATOR_TIMEOUT" default:"30s"`
	GeneratorMaxConcurrency int64         `envconfig:"GENERATOR_MAX_CONCURRENCY" default:"4"`

	RateLimitRPS       float64  `envconfig:"RATE_LIMIT_RPS" default:"5"`
	RateLimitBurst     int      `envconfig:"RATE_LIMIT_BURST" default:"10"`
	CORSAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS"`
}

// Load reads configuration from environment variables into a Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.DBMaxConns < 1:
		return fmt.Errorf("DB_MAX_CONNS must be at least 1, got %d", c.DBMaxConns)
	case c.GeneratorMaxConcurrency < 1:
		return fmt.Errorf("GENERATOR_MAX_CONCURRENCY must be at least 1, got %d", c.GeneratorMaxConcurrency)
	case c.RateLimitRPS <= 0:
		return fmt.Errorf("RATE_LIMIT_RPS must be positive, got %v", c.RateLimitRPS)
	case c.RateLimitBurst < 1:
		return fmt.Errorf("RATE_LIMIT_BURST must be at least 1, got %d", c.RateLimitBurst)
	case c.CatalogRefreshInterval <= 0:
		return fmt.Errorf("CATALOG_REFRESH_INTERVAL must be positive, got %s", c.CatalogRefreshInterval)
	}
	return nil
}
