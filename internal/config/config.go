package config

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

type Config struct {
	Env              string  `mapstructure:"ENV"`
	LogLevel         string  `mapstructure:"LOG_LEVEL"`
	CatalogPath      string  `mapstructure:"CATALOG_PATH"`
	DefaultPrimeML   float64 `mapstructure:"DEFAULT_PRIME_ML"`
	DefaultFlushML   float64 `mapstructure:"DEFAULT_FLUSH_ML"`
	BatchConcurrency int     `mapstructure:"BATCH_CONCURRENCY"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CATALOG_PATH", "") // empty -> built-in catalog
	v.SetDefault("DEFAULT_PRIME_ML", 0)
	v.SetDefault("DEFAULT_FLUSH_ML", 10)
	v.SetDefault("BATCH_CONCURRENCY", 4)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("ENV")
	v.BindEnv("LOG_LEVEL")
	v.BindEnv("CATALOG_PATH")
	v.BindEnv("DEFAULT_PRIME_ML")
	v.BindEnv("DEFAULT_FLUSH_ML")
	v.BindEnv("BATCH_CONCURRENCY")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Level returns the zerolog level for LOG_LEVEL.
func (c *Config) Level() zerolog.Level {
	lvl, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// Validate rejects settings the calculator cannot run with: negative default
// volumes, a non-positive batch concurrency and unknown log levels.
func (c *Config) Validate() error {
	if c.DefaultPrimeML < 0 {
		return fmt.Errorf("DEFAULT_PRIME_ML must not be negative, got %v", c.DefaultPrimeML)
	}
	if c.DefaultFlushML < 0 {
		return fmt.Errorf("DEFAULT_FLUSH_ML must not be negative, got %v", c.DefaultFlushML)
	}
	if c.BatchConcurrency < 1 {
		return fmt.Errorf("BATCH_CONCURRENCY must be at least 1, got %d", c.BatchConcurrency)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level: %w", c.LogLevel, err)
	}
	return nil
}
