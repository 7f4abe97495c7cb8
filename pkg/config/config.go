// Package config loads the drivepool YAML configuration and writes rotated
// provider records back to it.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/cecil-the-coder/drivepool/pkg/broker"
	"github.com/cecil-the-coder/drivepool/pkg/pool"
	"github.com/cecil-the-coder/drivepool/pkg/types"
	"github.com/cecil-the-coder/drivepool/pkg/urlcache"
)

// Config is the whole configuration document
type Config struct {
	Server    ServerConfig           `yaml:"server"`
	Auth      AuthConfig             `yaml:"auth"`
	Logging   LoggingConfig          `yaml:"logging"`
	RateLimit RateLimitConfig        `yaml:"rate_limit"`
	Pool      PoolConfig             `yaml:"pool"`
	Providers []types.ProviderConfig `yaml:"providers"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Version         string        `yaml:"version"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// AuthConfig protects the API with a bearer key. Paths under PublicPaths
// stay open.
type AuthConfig struct {
	Enabled     bool     `yaml:"enabled"`
	APIPassword string   `yaml:"api_password"`
	APIKeyEnv   string   `yaml:"api_key_env"`
	PublicPaths []string `yaml:"public_paths"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"
}

// RateLimitConfig limits requests per client IP; zero disables it
type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type PoolConfig struct {
	PauseDuration    time.Duration `yaml:"pause_duration"`
	RefreshEvery     time.Duration `yaml:"refresh_every"`
	RetryInterval    time.Duration `yaml:"retry_interval"`
	MaxRefreshPasses int           `yaml:"max_refresh_passes"`
	CacheFreshness   time.Duration `yaml:"cache_freshness"`

	// ExcludeUnrooted keeps providers whose drive root never resolved out of
	// selection; FailOnUnrooted refuses to start instead
	ExcludeUnrooted bool `yaml:"exclude_unrooted_providers"`
	FailOnUnrooted  bool `yaml:"fail_on_unrooted_provider"`
}

// Load reads, defaults and validates the configuration at path
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a configuration document. Unknown keys are rejected.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ApplyDefaults fills zero values
func (c *Config) ApplyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Version == "" {
		c.Server.Version = "dev"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 30 * time.Second
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = 30 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Auth.Enabled && c.Auth.PublicPaths == nil {
		c.Auth.PublicPaths = []string{"/health", "/status", "/version"}
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}

	if c.Pool.PauseDuration == 0 {
		c.Pool.PauseDuration = pool.DefaultPauseDuration
	}
	if c.Pool.RefreshEvery == 0 {
		c.Pool.RefreshEvery = broker.DefaultRefreshEvery
	}
	if c.Pool.RetryInterval == 0 {
		c.Pool.RetryInterval = broker.DefaultRetryInterval
	}
	if c.Pool.MaxRefreshPasses == 0 {
		c.Pool.MaxRefreshPasses = broker.DefaultMaxRefreshPasses
	}
	if c.Pool.CacheFreshness == 0 {
		c.Pool.CacheFreshness = urlcache.DefaultFreshness
	}

	for i := range c.Providers {
		if c.Providers[i].Region == "" {
			c.Providers[i].Region = types.RegionGlobal
		}
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Auth.Enabled && c.Auth.APIPassword == "" && c.Auth.APIKeyEnv == "" {
		return fmt.Errorf("auth: api_password or api_key_env is required when enabled")
	}
	if _, err := log.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	if c.RateLimit.RequestsPerSecond < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit values must not be negative")
	}
	if c.Pool.PauseDuration < 0 || c.Pool.RefreshEvery < 0 || c.Pool.RetryInterval < 0 ||
		c.Pool.CacheFreshness < 0 || c.Pool.MaxRefreshPasses < 0 {
		return fmt.Errorf("pool durations and passes must not be negative")
	}
	if c.Pool.ExcludeUnrooted && c.Pool.FailOnUnrooted {
		return fmt.Errorf("pool: exclude_unrooted_providers and fail_on_unrooted_provider are mutually exclusive")
	}

	if len(c.Providers) == 0 {
		return fmt.Errorf("at least one provider is required")
	}
	seen := make(map[string]bool, len(c.Providers))
	for i, p := range c.Providers {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("providers[%d]: %w", i, err)
		}
		if seen[p.ID] {
			return fmt.Errorf("providers[%d]: duplicate provider id %q", i, p.ID)
		}
		seen[p.ID] = true
		switch p.Region {
		case types.RegionGlobal, types.RegionChina:
		default:
			return fmt.Errorf("providers[%d]: unknown region %q", i, p.Region)
		}
	}
	return nil
}

// Address returns the host:port the server listens on
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
