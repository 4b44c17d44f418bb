// Package config loads the service configuration from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     string   `yaml:"read_timeout"`
	WriteTimeout    string   `yaml:"write_timeout"`
	ShutdownTimeout string   `yaml:"shutdown_timeout"`
	CORSOrigins     []string `yaml:"cors_origins"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

type DatabaseConfig struct {
	Driver          string `yaml:"driver"` // sqlite3, postgres
	DSN             string `yaml:"dsn"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime string `yaml:"conn_max_lifetime"`
	QueryTimeout    string `yaml:"query_timeout"`
}

// AuthConfig selects how bearer tokens are verified. Asymmetric tokens are
// checked against JWKSURL; HS256 tokens against HS256Secret.
type AuthConfig struct {
	SupabaseURL string `yaml:"supabase_url"`
	JWKSURL     string `yaml:"jwks_url"`
	HS256Secret string `yaml:"hs256_secret"`
	Audience    string `yaml:"audience"`
	Issuer      string `yaml:"issuer"`
	JWKSTTL     string `yaml:"jwks_ttl"`
	Leeway      string `yaml:"leeway"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, console
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     "15s",
			WriteTimeout:    "30s",
			ShutdownTimeout: "10s",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
			Path:    "/metrics",
		},
		Database: DatabaseConfig{
			Driver:          "sqlite3",
			DSN:             "homesync.db",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: "30m",
			QueryTimeout:    "5s",
		},
		Auth: AuthConfig{
			Audience: "authenticated",
			JWKSTTL:  "10m",
			Leeway:   "30s",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads the YAML file at path over the defaults and applies environment
// overrides. A missing file is not an error; an empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("HOMESYNC_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HOMESYNC_PORT: %w", err)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("HOMESYNC_CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}
	if v := os.Getenv("HOMESYNC_DB_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("HOMESYNC_DB_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("HOMESYNC_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("HOMESYNC_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}

	// The hosted auth provider publishes its keys under a fixed path.
	if v := os.Getenv("SUPABASE_URL"); v != "" {
		c.Auth.SupabaseURL = v
	}
	if v := os.Getenv("HOMESYNC_JWKS_URL"); v != "" {
		c.Auth.JWKSURL = v
	}
	if v := os.Getenv("SUPABASE_JWT_SECRET"); v != "" {
		c.Auth.HS256Secret = v
	}
	if c.Auth.JWKSURL == "" && c.Auth.SupabaseURL != "" {
		c.Auth.JWKSURL = strings.TrimRight(c.Auth.SupabaseURL, "/") + "/auth/v1/.well-known/jwks.json"
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Metrics.Enabled && (c.Metrics.Port <= 0 || c.Metrics.Port > 65535) {
		return fmt.Errorf("invalid metrics port: %d", c.Metrics.Port)
	}
	if c.Metrics.Enabled && c.Metrics.Port == c.Server.Port {
		return fmt.Errorf("metrics port %d collides with server port", c.Metrics.Port)
	}

	switch c.Database.Driver {
	case "sqlite3", "postgres":
	default:
		return fmt.Errorf("invalid database driver: %s (valid: sqlite3, postgres)", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return errors.New("database dsn not configured (set HOMESYNC_DB_DSN)")
	}

	if c.Auth.JWKSURL == "" && c.Auth.HS256Secret == "" {
		return errors.New("no token verification configured (set SUPABASE_URL or SUPABASE_JWT_SECRET)")
	}

	for name, value := range map[string]string{
		"server.read_timeout":        c.Server.ReadTimeout,
		"server.write_timeout":       c.Server.WriteTimeout,
		"server.shutdown_timeout":    c.Server.ShutdownTimeout,
		"database.conn_max_lifetime": c.Database.ConnMaxLifetime,
		"database.query_timeout":     c.Database.QueryTimeout,
		"auth.jwks_ttl":              c.Auth.JWKSTTL,
		"auth.leeway":                c.Auth.Leeway,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}
	return nil
}

// Duration parses s, falling back to def when s is empty or malformed.
func Duration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// GetQueryTimeout returns the per-call store timeout.
func (c *Config) GetQueryTimeout() time.Duration {
	return Duration(c.Database.QueryTimeout, 5*time.Second)
}

// GetShutdownTimeout returns how long in-flight requests get on shutdown.
func (c *Config) GetShutdownTimeout() time.Duration {
	return Duration(c.Server.ShutdownTimeout, 10*time.Second)
}
