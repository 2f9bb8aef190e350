package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultListen          = ":8547"
	defaultProtocolConfig  = "./config.toml"
	defaultShutdownTimeout = 10 * time.Second
	defaultEventBuffer     = 256
)

// Config captures the runtime settings for the market service daemon.
type Config struct {
	ListenAddress   string          `yaml:"listen"`
	ProtocolConfig  string          `yaml:"protocol_config"`
	ShutdownTimeout time.Duration   `yaml:"shutdown_timeout"`
	Auth            AuthConfig      `yaml:"auth"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	Logging         LoggingConfig   `yaml:"logging"`
	Events          EventsConfig    `yaml:"events"`
}

// AuthConfig describes the bearer tokens accepted on mutating routes. The
// token subject is the caller address.
type AuthConfig struct {
	// Disabled trusts the X-Caller-Address header instead of a token. Only
	// meant for local development.
	Disabled   bool          `yaml:"disabled"`
	HMACSecret string        `yaml:"hmac_secret"`
	Issuer     string        `yaml:"issuer"`
	Audience   string        `yaml:"audience"`
	ClockSkew  time.Duration `yaml:"clock_skew"`
	AdminScope string        `yaml:"admin_scope"`
}

// RateLimitConfig bounds requests per client address.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// LoggingConfig controls the structured logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// EventsConfig sizes the per-subscriber buffer of the event feed.
type EventsConfig struct {
	Buffer int `yaml:"buffer"`
}

// Load reads the YAML configuration from disk and validates the result.
// Environment overrides are applied after decoding.
func Load(path string) (Config, error) {
	cfg := Config{ListenAddress: defaultListen}
	if path == "" {
		return cfg, fmt.Errorf("config path required")
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyEnv()
	cfg.normalize()
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg *Config) applyEnv() {
	if secret := strings.TrimSpace(os.Getenv("MARKETD_AUTH_SECRET")); secret != "" {
		cfg.Auth.HMACSecret = secret
	}
	if listen := strings.TrimSpace(os.Getenv("MARKETD_LISTEN")); listen != "" {
		cfg.ListenAddress = listen
	}
}

func (cfg *Config) normalize() {
	if cfg == nil {
		return
	}
	cfg.ListenAddress = strings.TrimSpace(cfg.ListenAddress)
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = defaultListen
	}
	cfg.ProtocolConfig = strings.TrimSpace(cfg.ProtocolConfig)
	if cfg.ProtocolConfig == "" {
		cfg.ProtocolConfig = defaultProtocolConfig
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = defaultShutdownTimeout
	}
	cfg.Auth.normalize()
	if cfg.RateLimit.Burst <= 0 && cfg.RateLimit.RequestsPerMinute > 0 {
		cfg.RateLimit.Burst = 1
	}
	cfg.Logging.Level = strings.ToLower(strings.TrimSpace(cfg.Logging.Level))
	cfg.Logging.File = strings.TrimSpace(cfg.Logging.File)
	if cfg.Events.Buffer <= 0 {
		cfg.Events.Buffer = defaultEventBuffer
	}
}

func (cfg *Config) validate() error {
	if cfg == nil {
		return fmt.Errorf("configuration is missing")
	}
	if err := cfg.Auth.validate(); err != nil {
		return fmt.Errorf("auth: %w", err)
	}
	if cfg.RateLimit.RequestsPerMinute < 0 {
		return fmt.Errorf("rate_limit: requests_per_minute must not be negative")
	}
	switch cfg.Logging.Level {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging: unknown level %q", cfg.Logging.Level)
	}
	return nil
}

func (a *AuthConfig) normalize() {
	a.HMACSecret = strings.TrimSpace(a.HMACSecret)
	a.Issuer = strings.TrimSpace(a.Issuer)
	a.Audience = strings.TrimSpace(a.Audience)
	a.AdminScope = strings.TrimSpace(a.AdminScope)
	if a.AdminScope == "" {
		a.AdminScope = "market:admin"
	}
	if a.ClockSkew <= 0 {
		a.ClockSkew = 2 * time.Minute
	}
}

func (a AuthConfig) validate() error {
	if a.Disabled {
		return nil
	}
	if len(a.HMACSecret) < 32 {
		return fmt.Errorf("hmac_secret must be at least 32 bytes when auth is enabled")
	}
	return nil
}
