package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wardenhq/warden/pkg/observability"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig `yaml:"server"`

	// Database configuration
	Database DatabaseConfig `yaml:"database"`

	// Staging ledger configuration
	Staging StagingConfig `yaml:"staging"`

	// Audit configuration
	Audit AuditConfig `yaml:"audit"`

	// Observability configuration
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            string        `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// Health/metrics server (separate port for k8s probes)
	HealthPort string `yaml:"health_port"`
}

// DatabaseConfig holds the system-of-record database configuration
type DatabaseConfig struct {
	// Driver is "postgres" or "sqlite3"
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// StagingConfig holds session ledger configuration
type StagingConfig struct {
	// BasePath is the directory holding per-session ledger files
	BasePath string `yaml:"base_path"`

	// SessionTTL is how long an untouched ledger file is kept before the
	// janitor removes it
	SessionTTL time.Duration `yaml:"session_ttl"`

	// JanitorSchedule is a cron expression for the stale-ledger sweep
	JanitorSchedule string `yaml:"janitor_schedule"`
	JanitorEnabled  bool   `yaml:"janitor_enabled"`
}

// AuditConfig holds audit log configuration
type AuditConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BasePath string `yaml:"base_path"`
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       observability.LogLevel `yaml:"-"`
	LogLevelName   string                 `yaml:"log_level"`
	MetricsEnabled bool                   `yaml:"metrics_enabled"`
}

// LoadConfig loads configuration from environment variables. When
// WARDEN_CONFIG_FILE points at a YAML file, its values are applied first and
// environment variables override them.
func LoadConfig() (*Config, error) {
	cfg := defaultConfig()

	if path := getEnv("WARDEN_CONFIG_FILE", ""); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	cfg.loadEnv()
	cfg.Observability.LogLevel = parseLogLevel(cfg.Observability.LogLevelName)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns the built-in defaults
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            "8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    15 * time.Second,
			IdleTimeout:     60 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			HealthPort:      "9090",
		},
		Database: DatabaseConfig{
			Driver:          "postgres",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
		},
		Staging: StagingConfig{
			BasePath:        "/var/lib/warden/sessions",
			SessionTTL:      24 * time.Hour,
			JanitorSchedule: "@hourly",
			JanitorEnabled:  true,
		},
		Audit: AuditConfig{
			Enabled:  false,
			BasePath: "/var/log/warden/audit",
		},
		Observability: ObservabilityConfig{
			LogLevelName:   "info",
			MetricsEnabled: true,
		},
	}
}

// loadFile applies settings from a YAML config file
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// loadEnv applies environment variable overrides
func (c *Config) loadEnv() {
	c.Server.Host = getEnv("WARDEN_HOST", c.Server.Host)
	c.Server.Port = getEnv("WARDEN_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("WARDEN_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("WARDEN_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("WARDEN_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("WARDEN_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.HealthPort = getEnv("WARDEN_HEALTH_PORT", c.Server.HealthPort)

	c.Database.Driver = getEnv("WARDEN_DB_DRIVER", c.Database.Driver)
	c.Database.DSN = getEnv("WARDEN_DB_DSN", c.Database.DSN)
	c.Database.MaxOpenConns = getEnvInt("WARDEN_DB_MAX_OPEN_CONNS", c.Database.MaxOpenConns)
	c.Database.MaxIdleConns = getEnvInt("WARDEN_DB_MAX_IDLE_CONNS", c.Database.MaxIdleConns)
	c.Database.ConnMaxLifetime = getEnvDuration("WARDEN_DB_CONN_MAX_LIFETIME", c.Database.ConnMaxLifetime)

	c.Staging.BasePath = getEnv("WARDEN_STAGING_BASE_PATH", c.Staging.BasePath)
	c.Staging.SessionTTL = getEnvDuration("WARDEN_STAGING_SESSION_TTL", c.Staging.SessionTTL)
	c.Staging.JanitorSchedule = getEnv("WARDEN_STAGING_JANITOR_SCHEDULE", c.Staging.JanitorSchedule)
	c.Staging.JanitorEnabled = getEnvBool("WARDEN_STAGING_JANITOR_ENABLED", c.Staging.JanitorEnabled)

	c.Audit.Enabled = getEnvBool("WARDEN_AUDIT_ENABLED", c.Audit.Enabled)
	c.Audit.BasePath = getEnv("WARDEN_AUDIT_BASE_PATH", c.Audit.BasePath)

	c.Observability.LogLevelName = getEnv("WARDEN_LOG_LEVEL", c.Observability.LogLevelName)
	c.Observability.MetricsEnabled = getEnvBool("WARDEN_METRICS_ENABLED", c.Observability.MetricsEnabled)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Database.Driver {
	case "postgres", "sqlite3":
	default:
		return fmt.Errorf("invalid database driver: %s (must be postgres or sqlite3)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("database DSN is required")
	}

	if c.Staging.BasePath == "" {
		return fmt.Errorf("staging base path is required")
	}
	if c.Staging.JanitorEnabled && c.Staging.JanitorSchedule == "" {
		return fmt.Errorf("janitor schedule is required when the janitor is enabled")
	}

	if c.Audit.Enabled && c.Audit.BasePath == "" {
		return fmt.Errorf("audit base path is required when audit logging is enabled")
	}

	return nil
}

// parseLogLevel parses a log level string
func parseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
