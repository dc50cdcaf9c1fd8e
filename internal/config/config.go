package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default settings applied before environment overrides
const (
	DefaultBaseURL     = "http://localhost:8080/api/v1"
	DefaultTimeout     = 30 * time.Second
	DefaultJournalDir  = "logs"
	DefaultConcurrency = 4
	DefaultSandboxAddr = ":8080"

	DefaultSeedOrders        = 10
	DefaultSeedBatchSize     = 5
	DefaultSeedParallel      = 2
	DefaultSeedPaymentMethod = "CREDIT_CARD"
)

// Config represents the complete application configuration
type Config struct {
	API       APIConfig       `yaml:"api"`
	Auth      *OAuthConfig    `yaml:"auth,omitempty"`
	Logging   LoggingConfig   `yaml:"logging"`
	Journal   JournalConfig   `yaml:"journal"`
	Reconcile ReconcileConfig `yaml:"reconcile"`
	Sandbox   SandboxConfig   `yaml:"sandbox"`
	Seed      SeedConfig      `yaml:"seed"`
}

// APIConfig defines the order backend client settings
type APIConfig struct {
	BaseURL           string        `yaml:"baseUrl"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requestsPerSecond"`
	Burst             int           `yaml:"burst"`
}

// OAuthConfig defines the optional password-grant token settings
type OAuthConfig struct {
	TokenURL     string `yaml:"tokenUrl"`
	GrantType    string `yaml:"grantType"`
	ClientID     string `yaml:"clientId"`
	ClientSecret string `yaml:"clientSecret"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
}

// LoggingConfig defines logger level and encoder environment
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Environment string `yaml:"environment"`
}

// JournalConfig defines where submission journals are written
type JournalConfig struct {
	Dir      string `yaml:"dir"`
	Disabled bool   `yaml:"disabled"`
}

// ReconcileConfig defines bulk refresh settings
type ReconcileConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// SandboxConfig defines the local backend listener
type SandboxConfig struct {
	Addr string `yaml:"addr"`
}

// SeedConfig defines synthetic order generation and batch submission
type SeedConfig struct {
	TotalOrders     int           `yaml:"totalOrders"`
	BatchSize       int           `yaml:"batchSize"`
	ParallelBatches int           `yaml:"parallelBatches"`
	PaymentMethod   string        `yaml:"paymentMethod"`
	DeclinedRatio   float64       `yaml:"declinedRatio"`
	AsyncRatio      float64       `yaml:"asyncRatio"`
	BetweenCreates  time.Duration `yaml:"betweenCreates"`
}

// Load reads the configuration file, overlays .env and environment values, and validates the result
func Load(path string) (*Config, error) {
	// .env is optional
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ApplyDefaults()
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns a configuration with every default applied
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills unset fields
func (c *Config) ApplyDefaults() {
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = DefaultTimeout
	}
	if c.API.RequestsPerSecond > 0 && c.API.Burst == 0 {
		c.API.Burst = 1
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "INFO"
	}
	if c.Logging.Environment == "" {
		c.Logging.Environment = "development"
	}
	if c.Journal.Dir == "" {
		c.Journal.Dir = DefaultJournalDir
	}
	if c.Reconcile.Concurrency == 0 {
		c.Reconcile.Concurrency = DefaultConcurrency
	}
	if c.Sandbox.Addr == "" {
		c.Sandbox.Addr = DefaultSandboxAddr
	}
	if c.Seed.TotalOrders == 0 {
		c.Seed.TotalOrders = DefaultSeedOrders
	}
	if c.Seed.BatchSize == 0 {
		c.Seed.BatchSize = DefaultSeedBatchSize
	}
	if c.Seed.ParallelBatches == 0 {
		c.Seed.ParallelBatches = DefaultSeedParallel
	}
	if c.Seed.PaymentMethod == "" {
		c.Seed.PaymentMethod = DefaultSeedPaymentMethod
	}
	if c.Auth != nil && c.Auth.GrantType == "" {
		c.Auth.GrantType = "password"
	}
}

// ApplyEnv overrides file values with environment variables
func (c *Config) ApplyEnv() error {
	if v := os.Getenv("ORDERS_API_BASE_URL"); v != "" {
		c.API.BaseURL = v
	}
	if v := os.Getenv("ORDERS_API_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid ORDERS_API_TIMEOUT %q: %w", v, err)
		}
		c.API.Timeout = d
	}
	if c.Auth != nil {
		if v := os.Getenv("ORDERS_AUTH_CLIENT_SECRET"); v != "" {
			c.Auth.ClientSecret = v
		}
		if v := os.Getenv("ORDERS_AUTH_PASSWORD"); v != "" {
			c.Auth.Password = v
		}
	}
	if v := os.Getenv("APP_ENV"); v != "" {
		c.Logging.Environment = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	return nil
}

// Validate ensures configuration is valid
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("API baseUrl is required")
	}

	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("API baseUrl must be an absolute http(s) URL, got %q", c.API.BaseURL)
	}

	if c.API.Timeout <= 0 {
		return fmt.Errorf("API timeout must be positive")
	}

	if c.API.RequestsPerSecond < 0 {
		return fmt.Errorf("API requestsPerSecond cannot be negative")
	}

	if c.API.RequestsPerSecond > 0 && c.API.Burst < 1 {
		return fmt.Errorf("API burst must be at least 1 when requestsPerSecond is set")
	}

	if c.Auth != nil {
		if c.Auth.TokenURL == "" {
			return fmt.Errorf("auth tokenUrl is required")
		}
		if c.Auth.ClientID == "" {
			return fmt.Errorf("auth clientId is required")
		}
	}

	if c.Reconcile.Concurrency <= 0 {
		return fmt.Errorf("reconcile concurrency must be positive")
	}

	return c.Seed.Validate()
}

// Validate checks the seed section
func (s SeedConfig) Validate() error {
	if s.TotalOrders <= 0 {
		return fmt.Errorf("seed totalOrders must be positive")
	}
	if s.BatchSize <= 0 {
		return fmt.Errorf("seed batchSize must be positive")
	}
	if s.ParallelBatches <= 0 {
		return fmt.Errorf("seed parallelBatches must be positive")
	}
	if s.DeclinedRatio < 0 || s.AsyncRatio < 0 || s.DeclinedRatio+s.AsyncRatio > 1 {
		return fmt.Errorf("seed declinedRatio and asyncRatio must be non-negative and sum to at most 1")
	}
	if s.BetweenCreates < 0 {
		return fmt.Errorf("seed betweenCreates cannot be negative")
	}
	return nil
}
