// Package config provides configuration management for the portfolio scanner.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

// Scanner defaults
const (
	// defaultMaxConcurrency bounds every market-data fan-out
	defaultMaxConcurrency = 8
	defaultChainCacheSize = 256
	defaultChainCacheTTL  = 5 * time.Minute
	defaultScanTimeout    = 2 * time.Minute
	// defaultSummaryWidth is the maximum length of one summary line
	defaultSummaryWidth  = 100
	defaultMarketTimeout = 15 * time.Second
	defaultMaxRetries    = 3
	defaultServerPort    = 8080
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	MarketData  MarketDataConfig  `yaml:"market_data"`
	Storage     StorageConfig     `yaml:"storage"`
	Scanner     ScannerConfig     `yaml:"scanner"`
	Server      ServerConfig      `yaml:"server"`
	Strategies  Settings          `yaml:"strategies"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// MarketDataConfig defines the market data provider settings.
type MarketDataConfig struct {
	Provider       string               `yaml:"provider"` // tradier | mock
	APIKey         string               `yaml:"api_key"`
	BaseURL        string               `yaml:"base_url"`
	Timeout        string               `yaml:"timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
	MaxRetries     int                  `yaml:"max_retries"`
	Sandbox        bool                 `yaml:"sandbox"`
}

// CircuitBreakerConfig tunes the breaker around the market data gateway.
// Zero values fall back to the gateway defaults.
type CircuitBreakerConfig struct {
	Interval     string  `yaml:"interval"`
	Timeout      string  `yaml:"timeout"`
	FailureRatio float64 `yaml:"failure_ratio"`
	MaxRequests  uint32  `yaml:"max_requests"`
	MinRequests  uint32  `yaml:"min_requests"`
}

// StorageConfig defines where positions, recommendations and alerts live.
type StorageConfig struct {
	Path string `yaml:"path"` // SQLite file, ":memory:" for an in-memory store
}

// ScannerConfig defines orchestration limits.
type ScannerConfig struct {
	ChainCacheTTL  string `yaml:"chain_cache_ttl"`
	ScanTimeout    string `yaml:"scan_timeout"`
	CreateAlerts   *bool  `yaml:"create_alerts"`
	MaxConcurrency int    `yaml:"max_concurrency"`
	ChainCacheSize int    `yaml:"chain_cache_size"`
	SummaryWidth   int    `yaml:"summary_width"`
}

// ServerConfig defines the HTTP API settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	config := Config{Strategies: DefaultSettings()}
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// Default returns a valid configuration backed by mock market data and an
// in-memory store.
func Default() *Config {
	c := &Config{
		Environment: EnvironmentConfig{LogLevel: "info"},
		MarketData:  MarketDataConfig{Provider: "mock"},
		Storage:     StorageConfig{Path: ":memory:"},
		Strategies:  DefaultSettings(),
	}
	c.normalize()
	return c
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	c.normalize()

	switch c.Environment.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of debug, info, warn, error")
	}

	// Market data validation
	switch c.MarketData.Provider {
	case "mock":
	case "tradier":
		if c.MarketData.APIKey == "" {
			return fmt.Errorf("market_data.api_key is required for the tradier provider")
		}
	default:
		return fmt.Errorf("market_data.provider must be 'tradier' or 'mock'")
	}
	if c.MarketData.MaxRetries < 0 {
		return fmt.Errorf("market_data.max_retries must be >= 0")
	}
	if err := validDuration("market_data.timeout", c.MarketData.Timeout); err != nil {
		return err
	}
	cb := c.MarketData.CircuitBreaker
	if err := validDuration("market_data.circuit_breaker.interval", cb.Interval); err != nil {
		return err
	}
	if err := validDuration("market_data.circuit_breaker.timeout", cb.Timeout); err != nil {
		return err
	}
	if cb.FailureRatio < 0 || cb.FailureRatio > 1 {
		return fmt.Errorf("market_data.circuit_breaker.failure_ratio must be between 0 and 1")
	}

	if c.Storage.Path == "" {
		return fmt.Errorf("storage.path is required")
	}

	// Scanner validation
	if c.Scanner.MaxConcurrency <= 0 {
		return fmt.Errorf("scanner.max_concurrency must be > 0")
	}
	if c.Scanner.ChainCacheSize <= 0 {
		return fmt.Errorf("scanner.chain_cache_size must be > 0")
	}
	if c.Scanner.SummaryWidth < 20 {
		return fmt.Errorf("scanner.summary_width must be >= 20")
	}
	if err := validDuration("scanner.chain_cache_ttl", c.Scanner.ChainCacheTTL); err != nil {
		return err
	}
	if err := validDuration("scanner.scan_timeout", c.Scanner.ScanTimeout); err != nil {
		return err
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	if err := c.Strategies.Validate(); err != nil {
		return fmt.Errorf("strategies: %w", err)
	}

	return nil
}

// normalize fills unset values with their defaults
func (c *Config) normalize() {
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.MarketData.Provider == "" {
		c.MarketData.Provider = "mock"
	}
	if c.MarketData.MaxRetries == 0 {
		c.MarketData.MaxRetries = defaultMaxRetries
	}
	if c.Scanner.MaxConcurrency == 0 {
		c.Scanner.MaxConcurrency = defaultMaxConcurrency
	}
	if c.Scanner.ChainCacheSize == 0 {
		c.Scanner.ChainCacheSize = defaultChainCacheSize
	}
	if c.Scanner.SummaryWidth == 0 {
		c.Scanner.SummaryWidth = defaultSummaryWidth
	}
	if c.Scanner.CreateAlerts == nil {
		enabled := true
		c.Scanner.CreateAlerts = &enabled
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaultServerPort
	}
}

func validDuration(field, value string) error {
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s invalid: %w", field, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be > 0", field)
	}
	return nil
}

func durationOr(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// GetMarketTimeout returns the per-call market data timeout.
func (c *Config) GetMarketTimeout() time.Duration {
	return durationOr(c.MarketData.Timeout, defaultMarketTimeout)
}

// GetScanTimeout returns the scan-wide deadline.
func (c *Config) GetScanTimeout() time.Duration {
	return durationOr(c.Scanner.ScanTimeout, defaultScanTimeout)
}

// GetChainCacheTTL returns how long a fetched option chain stays fresh.
func (c *Config) GetChainCacheTTL() time.Duration {
	return durationOr(c.Scanner.ChainCacheTTL, defaultChainCacheTTL)
}

// GetCircuitBreaker returns the parsed breaker durations; zero means default.
func (c *Config) GetCircuitBreaker() (interval, timeout time.Duration) {
	return durationOr(c.MarketData.CircuitBreaker.Interval, 0), durationOr(c.MarketData.CircuitBreaker.Timeout, 0)
}

// CreateAlerts reports whether actionable recommendations produce alerts.
func (c *Config) CreateAlerts() bool {
	return c.Scanner.CreateAlerts == nil || *c.Scanner.CreateAlerts
}

// IsMock returns true if the scanner runs against synthetic market data.
func (c *Config) IsMock() bool {
	return c.MarketData.Provider == "mock"
}
