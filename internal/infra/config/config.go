// Package config manages application configuration loading and validation.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment names a deployment environment.
type Environment string

const (
	// EnvDev is the local development environment.
	EnvDev Environment = "dev"
	// EnvStaging is the pre-production environment.
	EnvStaging Environment = "staging"
	// EnvProd is the production environment.
	EnvProd Environment = "prod"
)

// DatabaseConfig controls PostgreSQL connectivity and migration behaviour.
type DatabaseConfig struct {
	DSN               string        `yaml:"dsn"`
	MaxConns          int32         `yaml:"maxConns"`
	MinConns          int32         `yaml:"minConns"`
	MaxConnLifetime   time.Duration `yaml:"maxConnLifetime"`
	MaxConnIdleTime   time.Duration `yaml:"maxConnIdleTime"`
	HealthCheckPeriod time.Duration `yaml:"healthCheckPeriod"`
	RunMigrations     bool          `yaml:"runMigrations"`
}

func (c *DatabaseConfig) applyDefaults() {
	c.DSN = strings.TrimSpace(c.DSN)
	if c.DSN == "" {
		c.DSN = "postgresql://localhost:5432/agora"
	}
	if c.MaxConns <= 0 {
		c.MaxConns = 16
	}
	if c.MinConns <= 0 {
		c.MinConns = 1
	}
	if c.MinConns > c.MaxConns {
		c.MinConns = c.MaxConns
	}
	if c.MaxConnLifetime <= 0 {
		c.MaxConnLifetime = 30 * time.Minute
	}
	if c.MaxConnIdleTime <= 0 {
		c.MaxConnIdleTime = 5 * time.Minute
	}
	if c.HealthCheckPeriod <= 0 {
		c.HealthCheckPeriod = 30 * time.Second
	}
}

func (c DatabaseConfig) validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("dsn required")
	}
	if c.MaxConns <= 0 {
		return fmt.Errorf("maxConns must be >0")
	}
	if c.MinConns < 0 {
		return fmt.Errorf("minConns must be >=0")
	}
	if c.MinConns > c.MaxConns {
		return fmt.Errorf("minConns must be <= maxConns")
	}
	return nil
}

// LedgerConfig tunes the write-behind durable ledger.
type LedgerConfig struct {
	Enabled            bool          `yaml:"enabled"`
	PersistRetryBudget time.Duration `yaml:"persistRetryBudget"`
}

func (c *LedgerConfig) applyDefaults() {
	if c.PersistRetryBudget <= 0 {
		c.PersistRetryBudget = 10 * time.Second
	}
}

// TelemetryConfig names the service for emitted metrics.
type TelemetryConfig struct {
	ServiceName   string `yaml:"serviceName"`
	EnableMetrics bool   `yaml:"enableMetrics"`
}

// AppConfig is the unified Agora application configuration sourced from YAML.
type AppConfig struct {
	Environment Environment     `yaml:"environment"`
	Database    DatabaseConfig  `yaml:"database"`
	Ledger      LedgerConfig    `yaml:"ledger"`
	Telemetry   TelemetryConfig `yaml:"telemetry"`
}

// Default returns the configuration used when no file is supplied.
func Default() AppConfig {
	cfg := AppConfig{
		Environment: EnvDev,
		Database:    DatabaseConfig{},
		Ledger:      LedgerConfig{Enabled: false, PersistRetryBudget: 0},
		Telemetry:   TelemetryConfig{ServiceName: "agora-ledger", EnableMetrics: true},
	}
	cfg.normalise()
	return cfg
}

// Load reads and validates an AppConfig from the provided YAML file, then
// applies AGORA_* environment overrides.
func Load(configPath string) (AppConfig, error) {
	candidate := filepath.Clean(strings.TrimSpace(configPath))
	file, err := os.Open(candidate) // #nosec G304 -- path is operator controlled.
	if err != nil {
		return AppConfig{}, fmt.Errorf("open app config: %w", err)
	}
	defer func() { _ = file.Close() }()

	bytes, err := io.ReadAll(file)
	if err != nil {
		return AppConfig{}, fmt.Errorf("read config: %w", err)
	}

	var cfg AppConfig
	if err := yaml.Unmarshal(bytes, &cfg); err != nil {
		return AppConfig{}, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.applyEnvOverrides()
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// LoadOrDefault loads configPath when it is non-empty and falls back to the
// defaults (plus environment overrides) otherwise.
func LoadOrDefault(configPath string) (AppConfig, error) {
	if strings.TrimSpace(configPath) != "" {
		return Load(configPath)
	}
	cfg := Default()
	cfg.applyEnvOverrides()
	cfg.normalise()
	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c *AppConfig) applyEnvOverrides() {
	if v, ok := os.LookupEnv("AGORA_ENVIRONMENT"); ok {
		c.Environment = Environment(v)
	}
	if v, ok := os.LookupEnv("AGORA_DB_DSN"); ok {
		c.Database.DSN = v
	}
	if v, ok := os.LookupEnv("AGORA_DB_RUN_MIGRATIONS"); ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			c.Database.RunMigrations = parsed
		}
	}
	if v, ok := os.LookupEnv("AGORA_LEDGER_ENABLED"); ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			c.Ledger.Enabled = parsed
		}
	}
	if v, ok := os.LookupEnv("AGORA_LEDGER_PERSIST_RETRY_BUDGET"); ok {
		if parsed, err := time.ParseDuration(v); err == nil {
			c.Ledger.PersistRetryBudget = parsed
		}
	}
	if v, ok := os.LookupEnv("AGORA_TELEMETRY_SERVICE_NAME"); ok {
		c.Telemetry.ServiceName = v
	}
}

func (c *AppConfig) normalise() {
	c.Environment = Environment(strings.ToLower(strings.TrimSpace(string(c.Environment))))
	if c.Environment == "" {
		c.Environment = EnvDev
	}
	c.Telemetry.ServiceName = strings.TrimSpace(c.Telemetry.ServiceName)
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "agora-ledger"
	}
	c.Database.applyDefaults()
	c.Ledger.applyDefaults()
}

// Validate performs semantic validation on the configuration.
func (c AppConfig) Validate() error {
	switch c.Environment {
	case EnvDev, EnvStaging, EnvProd:
	default:
		return fmt.Errorf("environment must be one of dev, staging, prod")
	}
	if strings.TrimSpace(c.Telemetry.ServiceName) == "" {
		return fmt.Errorf("telemetry serviceName required")
	}
	if c.Ledger.PersistRetryBudget <= 0 {
		return fmt.Errorf("ledger persistRetryBudget must be >0")
	}
	if err := c.Database.validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	return nil
}
