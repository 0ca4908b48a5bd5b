// Package config loads process configuration from built-in defaults, an
// optional YAML file and environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"
	// Embedded zone database so OPSSTATUS_TIME_ZONE works in minimal images.
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/cragr/opsstatus-agent/internal/models"
	"github.com/cragr/opsstatus-agent/internal/ticket"
)

// ConfigEnvVar names the variable holding the config file path.
const ConfigEnvVar = "OPSSTATUS_CONFIG"

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	Refresh   RefreshConfig   `yaml:"refresh"`
	Normalize NormalizeConfig `yaml:"normalize"`
	Store     StoreConfig     `yaml:"store"`
	Vendors   VendorsConfig   `yaml:"vendors"`
	Tickets   ticket.Defaults `yaml:"tickets"`

	// CredentialsFile is an optional dotenv file consulted after the
	// environment when resolving integration credentials.
	CredentialsFile string `yaml:"credentialsFile"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	HTTPPort        string        `yaml:"httpPort" validate:"required,numeric"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout" validate:"gt=0"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn warning error"`
	Format string `yaml:"format" validate:"oneof=json text"`
}

// UpstreamConfig tunes calls to ServiceNow and the monitoring system.
type UpstreamConfig struct {
	RequestTimeout time.Duration `yaml:"requestTimeout" validate:"gt=0"`
	// UserAgent defaults to opsstatus-agent/<version> when empty.
	UserAgent string `yaml:"userAgent"`
}

// RefreshConfig controls background snapshot cycles. Zero disables the loop.
type RefreshConfig struct {
	Interval time.Duration `yaml:"interval" validate:"gte=0"`
}

// NormalizeConfig controls record normalization.
type NormalizeConfig struct {
	// TimeZone is the IANA zone used for trend buckets and "today".
	TimeZone string `yaml:"timeZone" validate:"required"`
	// DateFallback is "now" or "warn".
	DateFallback string `yaml:"dateFallback" validate:"oneof=now warn"`
}

// StoreConfig selects the integration config backend.
type StoreConfig struct {
	Backend string      `yaml:"backend" validate:"oneof=memory redis sqlite"`
	Redis   RedisConfig `yaml:"redis"`
	SQLite  SQLite      `yaml:"sqlite"`
}

// RedisConfig configures the shared Redis backend.
type RedisConfig struct {
	Addr        string        `yaml:"addr"`
	Password    string        `yaml:"password"`
	DB          int           `yaml:"db" validate:"gte=0"`
	DialTimeout time.Duration `yaml:"dialTimeout"`
	TLS         bool          `yaml:"tls"`
	KeyPrefix   string        `yaml:"keyPrefix"`
}

// SQLite configures the local database backend.
type SQLite struct {
	Path string `yaml:"path"`
}

// VendorsConfig lists the vendor probes, inline or from a separate file.
type VendorsConfig struct {
	File        string                   `yaml:"file"`
	Probes      []models.VendorProbeSpec `yaml:"probes" validate:"dive"`
	Timeout     time.Duration            `yaml:"timeout" validate:"gt=0"`
	Concurrency int                      `yaml:"concurrency" validate:"gt=0"`
}

// Load initialises Config from a YAML file and environment overrides. An
// empty path falls back to OPSSTATUS_CONFIG; with neither, only defaults and
// the environment apply.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(ConfigEnvVar)
	}

	cfg := defaultConfig()

	if path != "" {
		if err := readYAML(path, &cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}

	if cfg.Vendors.File != "" {
		var file struct {
			Probes []models.VendorProbeSpec `yaml:"probes"`
		}
		if err := readYAML(cfg.Vendors.File, &file); err != nil {
			return nil, err
		}
		cfg.Vendors.Probes = append(cfg.Vendors.Probes, file.Probes...)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	// Probes without an id get one here so results stay matchable across polls.
	for i := range cfg.Vendors.Probes {
		if cfg.Vendors.Probes[i].ID == "" {
			cfg.Vendors.Probes[i].ID = uuid.NewString()
		}
	}

	return &cfg, nil
}

// Location returns the configured time zone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Normalize.TimeZone)
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			HTTPPort:        "8080",
			GracefulTimeout: 30 * time.Second,
		},
		Logging:  LoggingConfig{Level: "info", Format: "json"},
		Upstream: UpstreamConfig{RequestTimeout: 30 * time.Second},
		Refresh:  RefreshConfig{Interval: time.Minute},
		Normalize: NormalizeConfig{
			TimeZone:     "UTC",
			DateFallback: "now",
		},
		Store: StoreConfig{
			Backend: "memory",
			Redis: RedisConfig{
				Addr:        "localhost:6379",
				DialTimeout: 2 * time.Second,
			},
			SQLite: SQLite{Path: "opsstatus.db"},
		},
		Vendors: VendorsConfig{
			Timeout:     10 * time.Second,
			Concurrency: 8,
		},
		Tickets: ticket.Defaults{
			Category: "software",
			Urgency:  "2",
		},
	}
}

func readYAML(path string, out any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config file %s not found: %w", path, err)
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	cfg.Server.HTTPPort = getEnvOrDefault("HTTP_PORT", cfg.Server.HTTPPort)
	cfg.Logging.Level = strings.ToLower(getEnvOrDefault("LOG_LEVEL", cfg.Logging.Level))
	cfg.Logging.Format = strings.ToLower(getEnvOrDefault("LOG_FORMAT", cfg.Logging.Format))
	cfg.Upstream.UserAgent = getEnvOrDefault("OPSSTATUS_USER_AGENT", cfg.Upstream.UserAgent)
	cfg.Normalize.TimeZone = getEnvOrDefault("OPSSTATUS_TIME_ZONE", cfg.Normalize.TimeZone)
	cfg.Normalize.DateFallback = strings.ToLower(getEnvOrDefault("OPSSTATUS_DATE_FALLBACK", cfg.Normalize.DateFallback))
	cfg.Store.Backend = strings.ToLower(getEnvOrDefault("OPSSTATUS_STORE", cfg.Store.Backend))
	cfg.Store.Redis.Addr = getEnvOrDefault("REDIS_ADDR", cfg.Store.Redis.Addr)
	cfg.Store.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.Store.Redis.Password)
	cfg.Store.SQLite.Path = getEnvOrDefault("SQLITE_PATH", cfg.Store.SQLite.Path)
	cfg.Vendors.File = getEnvOrDefault("OPSSTATUS_VENDORS_FILE", cfg.Vendors.File)
	cfg.CredentialsFile = getEnvOrDefault("OPSSTATUS_CREDENTIALS_FILE", cfg.CredentialsFile)
	cfg.Tickets.AssignmentGroup = getEnvOrDefault("SERVICENOW_ASSIGNMENT_GROUP", cfg.Tickets.AssignmentGroup)
	cfg.Tickets.CallerID = getEnvOrDefault("SERVICENOW_CALLER_ID", cfg.Tickets.CallerID)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"OPSSTATUS_REFRESH_INTERVAL", &cfg.Refresh.Interval},
		{"OPSSTATUS_REQUEST_TIMEOUT", &cfg.Upstream.RequestTimeout},
		{"OPSSTATUS_PROBE_TIMEOUT", &cfg.Vendors.Timeout},
	}
	for _, d := range durations {
		if v := os.Getenv(d.key); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", d.key, err)
			}
			*d.dst = parsed
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"REDIS_DB", &cfg.Store.Redis.DB},
		{"OPSSTATUS_PROBE_CONCURRENCY", &cfg.Vendors.Concurrency},
	}
	for _, n := range ints {
		if v := os.Getenv(n.key); v != "" {
			parsed, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s: %w", n.key, err)
			}
			*n.dst = parsed
		}
	}
	return nil
}

// validate checks the assembled configuration.
func (c *Config) validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Store.Backend == "redis" && c.Store.Redis.Addr == "" {
		return errors.New("REDIS_ADDR is required for the redis store")
	}
	if c.Store.Backend == "sqlite" && c.Store.SQLite.Path == "" {
		return errors.New("SQLITE_PATH is required for the sqlite store")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid time zone %q: %w", c.Normalize.TimeZone, err)
	}
	seen := map[string]bool{}
	for _, p := range c.Vendors.Probes {
		if p.ID == "" {
			continue
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate vendor id %q", p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
