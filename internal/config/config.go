// Package config loads service configuration from YAML with environment
// overrides for deployment secrets.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the full service configuration.
type Config struct {
	Server struct {
		Addr           string   `yaml:"addr"`
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	Database struct {
		// DSN is a lib/pq connection string. Empty selects the in-memory
		// store, for local development and tests.
		DSN string `yaml:"dsn"`
	} `yaml:"database"`

	Redis struct {
		// Addr empty selects the in-memory cache and queue.
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret string        `yaml:"jwt_secret"`
		TokenTTL  time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`

	Sync struct {
		// DebounceWindow is the quiet period between the last board change
		// and its durable save.
		DebounceWindow time.Duration `yaml:"debounce_window"`
		// CacheTTL bounds how long an idle board stays in the cache.
		CacheTTL time.Duration `yaml:"cache_ttl"`
		// SweepInterval is the cadence of the safety-net flush of dirty
		// boards whose timers were lost.
		SweepInterval time.Duration `yaml:"sweep_interval"`
	} `yaml:"sync"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Addr = ":8080"
	cfg.Server.AllowedOrigins = []string{"http://localhost:5173", "http://127.0.0.1:5173"}
	cfg.Auth.TokenTTL = 24 * time.Hour
	cfg.Sync.DebounceWindow = 5 * time.Second
	cfg.Sync.CacheTTL = time.Hour
	cfg.Sync.SweepInterval = time.Minute
	return cfg
}

// Load reads the configuration file at path, applies defaults for anything
// unset, then applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to defaults plus
// environment overrides otherwise.
func LoadOrDefault(path string) *Config {
	if cfg, err := Load(path); err == nil {
		return cfg
	}
	cfg := Default()
	applyEnv(cfg)
	return cfg
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = splitAndTrim(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("DEBOUNCE_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.DebounceWindow = d
		}
	}
	if v := os.Getenv("CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.CacheTTL = d
		}
	}
}

func (c *Config) validate() error {
	if c.Sync.DebounceWindow <= 0 {
		return fmt.Errorf("sync.debounce_window must be positive")
	}
	if c.Sync.CacheTTL <= 0 {
		return fmt.Errorf("sync.cache_ttl must be positive")
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	return nil
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
