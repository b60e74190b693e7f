// Package config loads the portal configuration from defaults, an optional
// YAML file, a .env file and PORTAL_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/eaglesoak/portal/core"
)

// Token store kinds
const (
	StoreMemory   = "memory"
	StoreSQLite   = "sqlite"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
)

type Config struct {
	BaseURL         string        `yaml:"base_url"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
	ValidateTimeout time.Duration `yaml:"validate_timeout"`
	TokenStore      StoreConfig   `yaml:"token_store"`
	Listen          string        `yaml:"listen"`
	LogLevel        string        `yaml:"log_level"`
}

// StoreConfig selects where the session token survives restarts
type StoreConfig struct {
	Kind string `yaml:"kind"`
	// DSN is a file path for sqlite and a URL for redis and postgres
	DSN string `yaml:"dsn"`
	// Passphrase, when set, seals the token before it is stored
	Passphrase string `yaml:"passphrase"`
}

func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		BaseURL:         core.DefaultBaseURL,
		RequestTimeout:  core.DefaultRequestTimeout,
		ValidateTimeout: core.DefaultValidateTimeout,
		TokenStore: StoreConfig{
			Kind: StoreSQLite,
			DSN:  home + "/.portal/state.db",
		},
		Listen:   "127.0.0.1:8080",
		LogLevel: "info",
	}
}

// Load reads the configuration. path may be empty; a missing .env file is
// not an error.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	c.BaseURL = getEnv("PORTAL_API_BASE_URL", c.BaseURL)
	c.TokenStore.Kind = getEnv("PORTAL_TOKEN_STORE", c.TokenStore.Kind)
	c.TokenStore.DSN = getEnv("PORTAL_TOKEN_STORE_DSN", c.TokenStore.DSN)
	c.TokenStore.Passphrase = getEnv("PORTAL_TOKEN_PASSPHRASE", c.TokenStore.Passphrase)
	c.Listen = getEnv("PORTAL_LISTEN", c.Listen)
	c.LogLevel = getEnv("PORTAL_LOG_LEVEL", c.LogLevel)

	var err error
	if c.RequestTimeout, err = getEnvDuration("PORTAL_REQUEST_TIMEOUT", c.RequestTimeout); err != nil {
		return err
	}
	if c.ValidateTimeout, err = getEnvDuration("PORTAL_VALIDATE_TIMEOUT", c.ValidateTimeout); err != nil {
		return err
	}
	return nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return core.ErrBaseURLRequired
	}
	if c.RequestTimeout <= 0 || c.ValidateTimeout <= 0 {
		return core.ErrInvalidTimeout
	}
	switch c.TokenStore.Kind {
	case StoreMemory:
	case StoreSQLite, StoreRedis, StorePostgres:
		if c.TokenStore.DSN == "" {
			return fmt.Errorf("token store %s needs a dsn", c.TokenStore.Kind)
		}
	default:
		return fmt.Errorf("unknown token store %q", c.TokenStore.Kind)
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.Listen == "" {
		return fmt.Errorf("listen address cannot be empty")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
