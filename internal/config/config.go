package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Adapter    string          `yaml:"adapter"`     // BlueZ adapter object path
	DeviceName string          `yaml:"device_name"` // advertised local name
	HTTP       HTTPConfig      `yaml:"http"`
	Telemetry  TelemetryConfig `yaml:"telemetry"`
	LogLevel   string          `yaml:"log_level"`
}

// HTTPConfig holds settings for the HTTP/WebSocket facade.
type HTTPConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// TelemetryConfig holds simulator settings.
type TelemetryConfig struct {
	UpdateInterval time.Duration `yaml:"update_interval"`
	HistorySize    int           `yaml:"history_size"`
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "supportframe")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Adapter:    "/org/bluez/hci0",
		DeviceName: "SupportFrame",
		HTTP: HTTPConfig{
			Host: "0.0.0.0",
			Port: 18080,
		},
		Telemetry: TelemetryConfig{
			UpdateInterval: time.Second,
			HistorySize:    1000,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Adapter == "" {
		return fmt.Errorf("adapter must not be empty")
	}

	if c.DeviceName == "" {
		return fmt.Errorf("device_name must not be empty")
	}

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http.port must be in 1..65535, got %d", c.HTTP.Port)
	}

	if c.Telemetry.UpdateInterval <= 0 {
		return fmt.Errorf("telemetry.update_interval must be > 0")
	}

	if c.Telemetry.HistorySize <= 0 {
		return fmt.Errorf("telemetry.history_size must be > 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}
