// Package config provides configuration management for tabletalk.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the root configuration structure.
type Config struct {
	Server     ServerConfig              `toml:"server"`
	Telemetry  TelemetryConfig           `toml:"telemetry"`
	Dataset    DatasetConfig             `toml:"dataset"`
	Cache      CacheConfig               `toml:"cache"`
	Validation ValidationConfig          `toml:"validation"`
	Pipeline   PipelineConfig            `toml:"pipeline"`
	Providers  map[string]ProviderConfig `toml:"providers"`
}

// ServerConfig contains HTTP server and dispatcher settings.
type ServerConfig struct {
	HTTPPort          int           `toml:"http_port"`
	BindAddress       string        `toml:"bind_address"`
	ReadTimeout       time.Duration `toml:"read_timeout"`
	WriteTimeout      time.Duration `toml:"write_timeout"`
	AdminToken        string        `toml:"admin_token"`
	MaxMessageLength  int           `toml:"max_message_length"`
	Workers           int           `toml:"workers"`
	MaxQueuedRequests int           `toml:"max_queued_requests"`
	QueueTimeout      time.Duration `toml:"queue_timeout"`
}

// TelemetryConfig contains logging and metrics settings.
type TelemetryConfig struct {
	Enabled   bool   `toml:"enabled"`
	LogFormat string `toml:"log_format"` // "json" or "pretty"
	LogLevel  string `toml:"log_level"`
}

// DatasetConfig contains dataset storage settings.
type DatasetConfig struct {
	DBPath  string `toml:"db_path"`
	CSVPath string `toml:"csv_path"`
}

// CacheConfig contains response cache settings.
type CacheConfig struct {
	TTL           time.Duration `toml:"ttl"`
	SweepInterval time.Duration `toml:"sweep_interval"`
}

// ValidationConfig contains query validation limits.
type ValidationConfig struct {
	MinQueryLength int `toml:"min_query_length"`
	MaxQueryLength int `toml:"max_query_length"`
}

// PipelineConfig contains dispatch settings.
type PipelineConfig struct {
	Active        string   `toml:"active"`
	FallbackChain []string `toml:"fallback_chain"`

	// AttemptTimeout bounds each provider attempt. Zero disables the
	// per-attempt timeout and a slow active provider will never yield
	// to fallback.
	AttemptTimeout time.Duration `toml:"attempt_timeout"`
}

// ProviderConfig declares one provider registration. Options carries the
// variant-specific settings and is validated against the variant's schema
// before the provider is constructed.
type ProviderConfig struct {
	Kind    string         `toml:"kind"`
	Enabled bool           `toml:"enabled"`
	Options map[string]any `toml:"options"`
}

// Default returns a default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:          8080,
			BindAddress:       "0.0.0.0",
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      2 * time.Minute,
			MaxMessageLength:  4000,
			Workers:           8,
			MaxQueuedRequests: 256,
			QueueTimeout:      60 * time.Second,
		},
		Telemetry: TelemetryConfig{
			Enabled:   true,
			LogFormat: "pretty",
			LogLevel:  "info",
		},
		Dataset: DatasetConfig{
			DBPath:  "data/database.db",
			CSVPath: "data/dftotal.csv",
		},
		Cache: CacheConfig{
			TTL:           60 * time.Minute,
			SweepInterval: 5 * time.Minute,
		},
		Validation: ValidationConfig{
			MinQueryLength: 3,
			MaxQueryLength: 1000,
		},
		Pipeline: PipelineConfig{},
		Providers: map[string]ProviderConfig{
			"llama_local": {
				Kind:    "ollama",
				Enabled: true,
				Options: map[string]any{
					"base_url": "http://localhost:11434",
					"model":    "llama3.2",
				},
			},
		},
	}
}

// Load loads configuration from a file. A missing file yields defaults.
// Environment overrides apply on every path, file or no file, so
// env-only container deployments work without a config file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if _, err := toml.DecodeFile(path, cfg); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	cfg.substituteEnvVars()

	return cfg, nil
}

// LoadOrDefault loads config from file or returns defaults.
func LoadOrDefault(path string) *Config {
	if path == "" {
		cfg := Default()
		cfg.substituteEnvVars()
		return cfg
	}

	cfg, err := Load(path)
	if err != nil {
		fmt.Printf("Warning: Failed to load config from %s: %v\n", path, err)
		cfg = Default()
		cfg.substituteEnvVars()
	}

	return cfg
}

// substituteEnvVars substitutes ${VAR} patterns with environment variables
// and applies direct TABLETALK_* environment variable overrides.
func (c *Config) substituteEnvVars() {
	c.Server.AdminToken = expandEnv(c.Server.AdminToken)
	c.Dataset.DBPath = expandEnv(c.Dataset.DBPath)
	c.Dataset.CSVPath = expandEnv(c.Dataset.CSVPath)

	// Provider options frequently carry credentials as ${VAR} references.
	for name, pc := range c.Providers {
		for k, v := range pc.Options {
			if s, ok := v.(string); ok {
				pc.Options[k] = expandEnv(s)
			}
		}
		c.Providers[name] = pc
	}

	// Direct environment variable overrides for container deployment.
	if v := os.Getenv("TABLETALK_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.HTTPPort = port
		}
	}
	if v := os.Getenv("TABLETALK_ADMIN_TOKEN"); v != "" {
		c.Server.AdminToken = v
	}
	if v := os.Getenv("TABLETALK_DB_PATH"); v != "" {
		c.Dataset.DBPath = v
	}
	if v := os.Getenv("TABLETALK_CSV_PATH"); v != "" {
		c.Dataset.CSVPath = v
	}
	if v := os.Getenv("TABLETALK_LOG_LEVEL"); v != "" {
		c.Telemetry.LogLevel = v
	}
}

// expandEnv expands ${VAR} or $VAR patterns.
func expandEnv(s string) string {
	if s == "" {
		return s
	}
	return os.ExpandEnv(s)
}

// ServerAddr returns the bind address for the HTTP server.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddress, c.Server.HTTPPort)
}

// EnabledProviders returns the names of all enabled provider registrations.
func (c *Config) EnabledProviders() []string {
	names := make([]string, 0, len(c.Providers))
	for name, pc := range c.Providers {
		if pc.Enabled {
			names = append(names, name)
		}
	}
	return names
}

// IsAdmin reports whether the supplied token grants administrative access.
// An empty configured token disables the admin surface entirely.
func (c *Config) IsAdmin(token string) bool {
	return c.Server.AdminToken != "" && token == c.Server.AdminToken
}
