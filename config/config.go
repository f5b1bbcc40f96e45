// Package config loads the decomposer configuration from YAML and the
// environment.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	decomposer "github.com/VVISHUS/AI-Decomposer-DND-TODO-App"
	"github.com/VVISHUS/AI-Decomposer-DND-TODO-App/providers"
)

// Audit drivers.
const (
	DriverCSV    = "csv"
	DriverSQLite = "sqlite"
)

// Config holds all decomposer configuration.
type Config struct {
	// HTTP surface
	Server ServerConfig `yaml:"server"`

	// Dispatcher tuning
	Dispatch DispatchConfig `yaml:"dispatch"`

	// Audit persistence
	Audit AuditConfig `yaml:"audit"`

	// Upstream endpoints
	Providers ProvidersConfig `yaml:"providers"`

	// Extra or overriding registry entries
	Models []decomposer.Entry `yaml:"models"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Credentials are never read from the file.
	Credentials providers.Credentials `yaml:"-"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// DispatchConfig configures the dispatcher.
type DispatchConfig struct {
	Temperature float32         `yaml:"temperature"`
	Timeout     string          `yaml:"timeout"` // per provider call, e.g. "60s"
	RateLimit   RateLimitConfig `yaml:"rate_limit"`
}

// RateLimitConfig throttles dispatches. A zero RPS disables the limiter.
type RateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// AuditConfig selects and configures the audit sink.
type AuditConfig struct {
	Driver string `yaml:"driver"` // csv, sqlite
	Dir    string `yaml:"dir"`    // csv: directory holding both logs
	DSN    string `yaml:"dsn"`    // sqlite: database path
}

// ProvidersConfig holds per-provider endpoint overrides.
type ProvidersConfig struct {
	OpenAI    EndpointConfig `yaml:"openai"`
	Gemini    EndpointConfig `yaml:"gemini"`
	Anthropic EndpointConfig `yaml:"anthropic"`
	Chat      EndpointConfig `yaml:"chat"`
	Timeout   string         `yaml:"timeout"` // HTTP client timeout
}

// EndpointConfig overrides one provider's base URL.
type EndpointConfig struct {
	BaseURL string `yaml:"base_url"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":5000",
			AllowedOrigins: []string{"http://localhost:8000"},
		},
		Dispatch: DispatchConfig{
			Temperature: decomposer.DefaultTemperature,
			Timeout:     "90s",
		},
		Audit: AuditConfig{
			Driver: DriverCSV,
			Dir:    ".",
			DSN:    "decomposer_audit.db",
		},
		Providers: ProvidersConfig{
			Timeout: "120s",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load reads the config file at path over the defaults, then applies the
// environment. A missing file or an empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromEnv reads the provider credentials. It is the only place API keys are
// taken from the process environment.
func FromEnv() providers.Credentials {
	return providers.Credentials{
		OpenAI:    os.Getenv("OPENAI_API_KEY"),
		Gemini:    os.Getenv("GEMINI_API_KEY"),
		Anthropic: os.Getenv("ANTHROPIC_API_KEY"),
		Chat:      os.Getenv("CHAT_API_KEY"),
	}
}

func (c *Config) applyEnvOverrides() {
	c.Credentials = FromEnv()

	if addr := os.Getenv("DECOMPOSER_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if dir := os.Getenv("DECOMPOSER_AUDIT_DIR"); dir != "" {
		c.Audit.Dir = dir
	}
	if url := os.Getenv("CHAT_ENDPOINT"); url != "" {
		c.Providers.Chat.BaseURL = url
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Dispatch.Temperature < decomposer.MinTemperature || c.Dispatch.Temperature > decomposer.MaxTemperature {
		return fmt.Errorf("dispatch.temperature must be between %v and %v", decomposer.MinTemperature, decomposer.MaxTemperature)
	}
	if _, err := parseDuration("dispatch.timeout", c.Dispatch.Timeout); err != nil {
		return err
	}
	if _, err := parseDuration("providers.timeout", c.Providers.Timeout); err != nil {
		return err
	}
	if c.Dispatch.RateLimit.RPS < 0 || c.Dispatch.RateLimit.Burst < 0 {
		return fmt.Errorf("dispatch.rate_limit must not be negative")
	}
	if c.Dispatch.RateLimit.RPS > 0 && c.Dispatch.RateLimit.Burst == 0 {
		return fmt.Errorf("dispatch.rate_limit.burst must be positive when rps is set")
	}
	switch c.Audit.Driver {
	case DriverCSV:
		if c.Audit.Dir == "" {
			return fmt.Errorf("audit.dir is required for the csv driver")
		}
	case DriverSQLite:
		if c.Audit.DSN == "" {
			return fmt.Errorf("audit.dsn is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown audit.driver %q", c.Audit.Driver)
	}
	if _, err := c.Registry(); err != nil {
		return fmt.Errorf("models: %w", err)
	}
	return nil
}

// DispatchTimeout returns the per-call provider timeout.
func (c *Config) DispatchTimeout() time.Duration {
	d, _ := parseDuration("dispatch.timeout", c.Dispatch.Timeout)
	return d
}

// ProviderConfig returns the adapter factory configuration.
func (c *Config) ProviderConfig() providers.Config {
	timeout, _ := parseDuration("providers.timeout", c.Providers.Timeout)
	return providers.Config{
		Credentials:      c.Credentials,
		OpenAIBaseURL:    c.Providers.OpenAI.BaseURL,
		GeminiBaseURL:    c.Providers.Gemini.BaseURL,
		AnthropicBaseURL: c.Providers.Anthropic.BaseURL,
		ChatEndpoint:     c.Providers.Chat.BaseURL,
		Timeout:          timeout,
	}
}

// Registry builds the routing table: the default entries with the
// configured models merged over them.
func (c *Config) Registry() (*decomposer.Registry, error) {
	return decomposer.NewRegistry(decomposer.Merge(decomposer.DefaultEntries(), c.Models)...)
}

// parseDuration accepts an empty string as zero.
func parseDuration(field, value string) (time.Duration, error) {
	if value == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", field)
	}
	return d, nil
}
