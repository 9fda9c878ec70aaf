// ABOUTME: Configuration loading and parsing for havend
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete havend configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Identity    IdentityConfig    `yaml:"identity"`
	Tracking    TrackingConfig    `yaml:"tracking"`
	Permissions PermissionsConfig `yaml:"permissions"`
	Logging     LoggingConfig     `yaml:"logging"`

	// Circles seeds the circle set at startup. Later membership pushes via
	// the API replace it.
	Circles []string `yaml:"circles"`
}

// ServerConfig holds the HTTP API address
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds the location store configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// RedisConfig holds the preference store configuration.
// When disabled, preferences live in memory and reset on restart.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// IdentityConfig selects how the authenticated user is resolved.
// Exactly one of user_id (static) or token_file (JWT) must be set.
type IdentityConfig struct {
	UserID    string `yaml:"user_id"`
	TokenFile string `yaml:"token_file"`
	JWTSecret string `yaml:"jwt_secret"`
}

// TrackingConfig holds sampling and background-mode configuration
type TrackingConfig struct {
	Interval time.Duration `yaml:"-"`
	Distance float64       `yaml:"distance"`

	// Raw string value for YAML unmarshaling
	IntervalRaw string `yaml:"interval"`

	DisableBackground bool `yaml:"disable_background"`

	// Text for the persistent indicator shown during background tracking
	NotificationTitle string `yaml:"notification_title"`
	NotificationBody  string `yaml:"notification_body"`
}

// PermissionsConfig holds the operator-granted location permissions.
// A headless deployment has no prompt dialog, so grants live here.
type PermissionsConfig struct {
	Foreground bool `yaml:"foreground"`
	Background bool `yaml:"background"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	if c.Identity.UserID == "" && c.Identity.TokenFile == "" {
		return fmt.Errorf("identity.user_id or identity.token_file is required")
	}
	if c.Identity.UserID != "" && c.Identity.TokenFile != "" {
		return fmt.Errorf("identity.user_id and identity.token_file are mutually exclusive")
	}
	if c.Identity.TokenFile != "" && c.Identity.JWTSecret == "" {
		return fmt.Errorf("identity.jwt_secret is required when identity.token_file is set")
	}

	if c.Tracking.Distance < 0 {
		return fmt.Errorf("tracking.distance must not be negative")
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Tracking.IntervalRaw != "" {
		cfg.Tracking.Interval, err = time.ParseDuration(cfg.Tracking.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing tracking interval %q: %w", cfg.Tracking.IntervalRaw, err)
		}
	}

	return nil
}
