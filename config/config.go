package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Backend    BackendConfig    `yaml:"backend"`
	Facility   FacilityConfig   `yaml:"facility"`
	Session    SessionConfig    `yaml:"session"`
	Database   DatabaseConfig   `yaml:"database"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
	Log        LogConfig        `yaml:"log"`
	Auth       AuthConfig       `yaml:"auth"`
}

// AuthConfig holds what is needed to verify the backend's access tokens.
// Set JWTSecret for HMAC signed tokens or PublicKeyFile (PEM) for RSA.
type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	PublicKeyFile string `yaml:"public_key_file"`
	Issuer        string `yaml:"issuer"`
}

// PublicKey reads the configured PEM file, if any.
func (a AuthConfig) PublicKey() ([]byte, error) {
	if a.PublicKeyFile == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(a.PublicKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read token public key: %w", err)
	}
	return pem, nil
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	Enabled    bool   `yaml:"enabled"`
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the local HTTP surface configuration.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	RateLimitPerSec float64       `yaml:"rate_limit_per_sec"`
	RateBurst       int           `yaml:"rate_burst"`
	CacheTTLSeconds int           `yaml:"cache_ttl_seconds"`
	CacheTTL        time.Duration `yaml:"-"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
}

// BackendConfig describes how to reach the authoritative parking backend.
type BackendConfig struct {
	BaseURL         string            `yaml:"base_url"`
	Headers         map[string]string `yaml:"headers"`
	HTTPProxy       string            `yaml:"http_proxy"`
	TimeoutSeconds  int               `yaml:"timeout_seconds"`
	Timeout         time.Duration     `yaml:"-"`
	RateLimitPerSec float64           `yaml:"rate_limit_per_sec"`
	RateBurst       int               `yaml:"rate_burst"`
}

// FacilityConfig holds facility-wide settings.
type FacilityConfig struct {
	Timezone string `yaml:"timezone"`
}

// SessionConfig controls the usage-session projection and refresh loops.
type SessionConfig struct {
	TickMillis             int           `yaml:"tick_millis"`
	TickPeriod             time.Duration `yaml:"-"`
	RefreshIntervalSeconds int           `yaml:"refresh_interval_seconds"`
	RefreshInterval        time.Duration `yaml:"-"`
}

// DatabaseConfig holds the ledger database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"`
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// LogConfig selects the logger flavour.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Load reads the configuration from the given path and applies defaults
// and environment overrides.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)
	return &cfg, nil
}

// applyEnv lets secrets live outside the YAML file.
func applyEnv(cfg *Config) {
	if v := os.Getenv("BACKEND_BASE_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("BACKEND_TOKEN"); v != "" {
		if cfg.Backend.Headers == nil {
			cfg.Backend.Headers = make(map[string]string)
		}
		cfg.Backend.Headers["X-Client-Token"] = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("VAPID_PUBLIC_KEY"); v != "" {
		cfg.Push.PublicKey = v
	}
	if v := os.Getenv("VAPID_PRIVATE_KEY"); v != "" {
		cfg.Push.PrivateKey = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateBurst <= 0 {
		cfg.Server.RateBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}
	cfg.Server.CacheTTL = time.Duration(cfg.Server.CacheTTLSeconds) * time.Second

	if cfg.Backend.TimeoutSeconds <= 0 {
		cfg.Backend.TimeoutSeconds = 15
	}
	cfg.Backend.Timeout = time.Duration(cfg.Backend.TimeoutSeconds) * time.Second
	if cfg.Backend.RateLimitPerSec <= 0 {
		cfg.Backend.RateLimitPerSec = 20
	}
	if cfg.Backend.RateBurst <= 0 {
		cfg.Backend.RateBurst = 10
	}

	if cfg.Facility.Timezone == "" {
		cfg.Facility.Timezone = "Local"
	}

	if cfg.Session.TickMillis <= 0 {
		cfg.Session.TickMillis = 1000
	}
	cfg.Session.TickPeriod = time.Duration(cfg.Session.TickMillis) * time.Millisecond
	if cfg.Session.RefreshIntervalSeconds <= 0 {
		cfg.Session.RefreshIntervalSeconds = 60
	}
	cfg.Session.RefreshInterval = time.Duration(cfg.Session.RefreshIntervalSeconds) * time.Second

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "file::memory:?cache=shared"
	}

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		cfg.WorkerPool.Size = 1
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
}

// Location resolves the facility timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Facility.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
