package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Pool modes understood by db.Open.
const (
	PoolModePooled = "pooled"
	PoolModeDirect = "direct"
)

type Config struct {
	Env           string `mapstructure:"ENV"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	Port          string `mapstructure:"PORT"`
	DatabaseURL   string `mapstructure:"DATABASE_URL"`
	DBPoolMode    string `mapstructure:"DB_POOL_MODE"`
	DBMaxConns    int32  `mapstructure:"DB_MAX_CONNS"`
	DBMinConns    int32  `mapstructure:"DB_MIN_CONNS"`
	MigrationsDir string `mapstructure:"MIGRATIONS_DIR"`

	// HTTP server limits
	BodyLimit      string        `mapstructure:"HTTP_BODY_LIMIT"`
	RequestTimeout time.Duration `mapstructure:"HTTP_REQUEST_TIMEOUT"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("PORT", "8000")
	v.SetDefault("DB_POOL_MODE", PoolModePooled)
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("MIGRATIONS_DIR", "./migrations")
	v.SetDefault("HTTP_BODY_LIMIT", "1M")
	v.SetDefault("HTTP_REQUEST_TIMEOUT", "30s")

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("ENV")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("PORT")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_POOL_MODE")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("MIGRATIONS_DIR")
	v.BindEnv("HTTP_BODY_LIMIT")
	v.BindEnv("HTTP_REQUEST_TIMEOUT")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks the values Load cannot check on its own: the connection
// strategy name and the pool bounds.
func (c *Config) Validate() error {
	if c.DBPoolMode != PoolModePooled && c.DBPoolMode != PoolModeDirect {
		return fmt.Errorf("DB_POOL_MODE must be %q or %q, got %q", PoolModePooled, PoolModeDirect, c.DBPoolMode)
	}
	if c.DBMaxConns <= 0 {
		return fmt.Errorf("DB_MAX_CONNS must be positive, got %d", c.DBMaxConns)
	}
	if c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS must be between 0 and DB_MAX_CONNS (%d), got %d", c.DBMaxConns, c.DBMinConns)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("HTTP_REQUEST_TIMEOUT must not be negative, got %s", c.RequestTimeout)
	}
	return nil
}
