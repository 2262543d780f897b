package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Skufu/RenalRisk/internal/clinical"
)

const (
	StoreNone     = "none"
	StorePostgres = "postgres"
	StoreSQLite   = "sqlite"
)

type Config struct {
	Port      string
	GinMode   string
	LogLevel  string
	LogFormat string

	StoreDriver string
	DatabaseURL string
	SQLitePath  string

	ClassifierURL       string
	ClassifierTimeout   time.Duration
	ClassifierCacheSize int

	RedisURL string
	RedisTTL time.Duration

	RateLimitRPS   float64
	RateLimitBurst int

	Features clinical.FeatureConfig
}

// Load reads .env (when present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	features := clinical.DefaultFeatureConfig()
	features.UreaOverloadGL = v.GetFloat64("urea_overload_gl")
	features.AnemiaHbGdL = v.GetFloat64("anemia_hb_gdl")

	cfg := &Config{
		Port:                v.GetString("port"),
		GinMode:             v.GetString("gin_mode"),
		LogLevel:            v.GetString("log_level"),
		LogFormat:           v.GetString("log_format"),
		StoreDriver:         strings.ToLower(v.GetString("store_driver")),
		DatabaseURL:         v.GetString("database_url"),
		SQLitePath:          v.GetString("sqlite_path"),
		ClassifierURL:       v.GetString("classifier_url"),
		ClassifierTimeout:   v.GetDuration("classifier_timeout"),
		ClassifierCacheSize: v.GetInt("classifier_cache_size"),
		RedisURL:            v.GetString("redis_url"),
		RedisTTL:            v.GetDuration("redis_ttl"),
		RateLimitRPS:        v.GetFloat64("rate_limit_rps"),
		RateLimitBurst:      v.GetInt("rate_limit_burst"),
		Features:            features,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	defaults := clinical.DefaultFeatureConfig()

	v.SetDefault("port", "8080")
	v.SetDefault("gin_mode", "release")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	v.SetDefault("store_driver", StoreNone)
	v.SetDefault("sqlite_path", "data/assessments.db")

	v.SetDefault("classifier_timeout", "5s")
	v.SetDefault("classifier_cache_size", 1000)
	v.SetDefault("redis_ttl", "24h")

	v.SetDefault("rate_limit_rps", 20.0)
	v.SetDefault("rate_limit_burst", 40)

	v.SetDefault("urea_overload_gl", defaults.UreaOverloadGL)
	v.SetDefault("anemia_hb_gdl", defaults.AnemiaHbGdL)
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreNone:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORE_DRIVER=postgres")
		}
	case StoreSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required when STORE_DRIVER=sqlite")
		}
	default:
		return fmt.Errorf("invalid STORE_DRIVER %q: want none, postgres or sqlite", c.StoreDriver)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("invalid LOG_LEVEL: %s", c.LogLevel)
	}

	if c.ClassifierTimeout <= 0 {
		return fmt.Errorf("CLASSIFIER_TIMEOUT must be positive")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("rate limit settings must not be negative")
	}
	if c.Features.UreaOverloadGL <= 0 || c.Features.AnemiaHbGdL <= 0 {
		return fmt.Errorf("feature thresholds must be positive")
	}
	return nil
}
