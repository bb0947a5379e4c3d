package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds all hub configuration.
type Config struct {
	Server    ServerConfig
	Hub       HubConfig
	Logging   LogConfig
	RateLimit RateLimitConfig

	// Settings are the collaboration settings. They come from SettingsFile
	// when one is configured, otherwise from DefaultSettings.
	Settings Settings `ignored:"true"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`

	// MaxConnections caps simultaneous TCP connections; 0 means no cap.
	MaxConnections int `envconfig:"MAX_CONNECTIONS" default:"0"`
}

// HubConfig holds collaboration hub configuration that is not part of the
// shared settings file.
type HubConfig struct {
	SettingsFile       string   `envconfig:"LIVEBP_SETTINGS" default:""`
	JournalPath        string   `envconfig:"LIVEBP_JOURNAL_PATH" default:""`
	ModuleRegistry     string   `envconfig:"LIVEBP_MODULE_REGISTRY" default:""`
	BlueprintFilters   []string `envconfig:"LIVEBP_BLUEPRINT_FILTERS" default:""`
	InboundRatePerSec  int      `envconfig:"LIVEBP_INBOUND_RPS" default:"120"`
	InboundBurst       int      `envconfig:"LIVEBP_INBOUND_BURST" default:"240"`
	SimulatedLatencyMs int      `envconfig:"LIVEBP_SIMULATED_LATENCY_MS" default:"0"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds admin API rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// LoadDotEnv loads variables from a .env file into the process environment.
// A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load loads configuration from environment variables and, when
// LIVEBP_SETTINGS names a file, the collaboration settings from it.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	cfg.Settings = DefaultSettings()
	if cfg.Hub.SettingsFile != "" {
		settings, err := LoadSettingsFile(cfg.Hub.SettingsFile)
		if err != nil {
			return nil, err
		}
		cfg.Settings = settings
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Hub: HubConfig{
			InboundRatePerSec: 120,
			InboundBurst:      240,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Settings: DefaultSettings(),
	}
}
