// ABOUTME: Configuration loading and parsing for timekeeper
// ABOUTME: Reads YAML or TOML by extension, expands ${VAR}, parses durations and the timezone

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata" // zones for minimal container images

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Backends
const (
	BackendMatrix = "matrix"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config represents the complete timekeeper configuration
type Config struct {
	Backend  string         `yaml:"backend" toml:"backend"`
	Guild    string         `yaml:"guild" toml:"guild"`
	Timezone string         `yaml:"timezone" toml:"timezone"`
	Matrix   MatrixConfig   `yaml:"matrix" toml:"matrix"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Channels ChannelsConfig `yaml:"channels" toml:"channels"`
	Limits   LimitsConfig   `yaml:"limits" toml:"limits"`
	Defaults DefaultsConfig `yaml:"defaults" toml:"defaults"`
	Dedupe   DedupeConfig   `yaml:"dedupe" toml:"dedupe"`
	Bridge   BridgeConfig   `yaml:"bridge" toml:"bridge"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`

	// Location is Timezone resolved; naive timestamps and record dates use it.
	Location *time.Location `yaml:"-" toml:"-"`
}

// MatrixConfig holds homeserver credentials for the matrix backend
type MatrixConfig struct {
	Homeserver  string `yaml:"homeserver" toml:"homeserver"`
	UserID      string `yaml:"user_id" toml:"user_id"`
	AccessToken string `yaml:"access_token" toml:"access_token"`
}

// DatabaseConfig holds the sqlite backend path
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// ChannelsConfig names the channels the tracker provisions
type ChannelsConfig struct {
	Category  string `yaml:"category" toml:"category"`
	Dashboard string `yaml:"dashboard" toml:"dashboard"`
	Timeline  string `yaml:"timeline" toml:"timeline"`
	Goals     string `yaml:"goals" toml:"goals"`
	Report    string `yaml:"report" toml:"report"`
	Data      string `yaml:"data" toml:"data"`
}

// LimitsConfig bounds history scans and pin listing
type LimitsConfig struct {
	Today      int `yaml:"today" toml:"today"`
	Progress   int `yaml:"progress" toml:"progress"`
	Report     int `yaml:"report" toml:"report"`
	Purge      int `yaml:"purge" toml:"purge"`
	PinLimit   int `yaml:"pin_limit" toml:"pin_limit"`
	MaxHistory int `yaml:"max_history" toml:"max_history"`
}

// DefaultsConfig holds the records written on first use
type DefaultsConfig struct {
	Tasks []TaskConfig `yaml:"tasks" toml:"tasks"`
}

// TaskConfig is one default task
type TaskConfig struct {
	Name  string `yaml:"name" toml:"name"`
	Style string `yaml:"style" toml:"style"`
}

// DedupeConfig sizes the cache of handled event IDs
type DedupeConfig struct {
	TTL     time.Duration `yaml:"-" toml:"-"`
	MaxSize int           `yaml:"max_size" toml:"max_size"`

	// Raw string value for unmarshaling
	TTLRaw string `yaml:"ttl" toml:"ttl"`
}

// BridgeConfig holds chat command settings
type BridgeConfig struct {
	CommandPrefix string   `yaml:"command_prefix" toml:"command_prefix"`
	AllowedRooms  []string `yaml:"allowed_rooms" toml:"allowed_rooms"`
	AllowedUsers  []string `yaml:"allowed_users" toml:"allowed_users"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
	// File enables rotating file output in addition to stderr
	File       string `yaml:"file" toml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" toml:"max_age_days"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled" toml:"enabled"`
	ListenAddr string `yaml:"listen_addr" toml:"listen_addr"`
	Path       string `yaml:"path" toml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are read as TOML, everything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data, strings.EqualFold(filepath.Ext(path), ".toml"))
}

// Parse decodes configuration bytes, applies defaults, and validates.
func Parse(data []byte, isTOML bool) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if isTOML {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	cfg.applyDefaults()

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", cfg.Timezone, err)
	}
	cfg.Location = loc

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(envVarPattern.FindStringSubmatch(match)[1])
	})
}

func (c *Config) applyDefaults() {
	if c.Backend == "" {
		c.Backend = BackendSQLite
	}
	if c.Timezone == "" {
		c.Timezone = "Local"
	}
	if c.Database.Path == "" && c.Backend == BackendSQLite {
		c.Database.Path = "./timekeeper.db"
	}
	if c.Dedupe.TTLRaw == "" {
		c.Dedupe.TTLRaw = "10m"
	}
	if c.Dedupe.MaxSize == 0 {
		c.Dedupe.MaxSize = 1000
	}
	if c.Bridge.CommandPrefix == "" {
		c.Bridge.CommandPrefix = "!"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = "127.0.0.1:9464"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Guild == "" {
		return fmt.Errorf("guild is required")
	}

	switch c.Backend {
	case BackendMatrix:
		if c.Matrix.Homeserver == "" {
			return fmt.Errorf("matrix.homeserver is required for the matrix backend")
		}
		u, err := url.Parse(c.Matrix.Homeserver)
		if err != nil {
			return fmt.Errorf("matrix.homeserver is not a valid URL: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("matrix.homeserver must use http or https scheme")
		}
		if c.Matrix.UserID == "" {
			return fmt.Errorf("matrix.user_id is required for the matrix backend")
		}
		if c.Matrix.AccessToken == "" {
			return fmt.Errorf("matrix.access_token is required for the matrix backend")
		}
	case BackendSQLite:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for the sqlite backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("backend must be one of matrix, sqlite, memory; got %q", c.Backend)
	}

	for i, t := range c.Defaults.Tasks {
		if strings.TrimSpace(t.Name) == "" {
			return fmt.Errorf("defaults.tasks[%d].name is required", i)
		}
	}

	for name, v := range map[string]int{
		"limits.today":       c.Limits.Today,
		"limits.progress":    c.Limits.Progress,
		"limits.report":      c.Limits.Report,
		"limits.purge":       c.Limits.Purge,
		"limits.pin_limit":   c.Limits.PinLimit,
		"limits.max_history": c.Limits.MaxHistory,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	if c.Dedupe.MaxSize < 0 {
		return fmt.Errorf("dedupe.max_size must not be negative")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Dedupe.TTLRaw != "" {
		cfg.Dedupe.TTL, err = time.ParseDuration(cfg.Dedupe.TTLRaw)
		if err != nil {
			return fmt.Errorf("parsing dedupe.ttl %q: %w", cfg.Dedupe.TTLRaw, err)
		}
		if cfg.Dedupe.TTL <= 0 {
			return fmt.Errorf("dedupe.ttl must be positive, got %s", cfg.Dedupe.TTLRaw)
		}
	}

	return nil
}
