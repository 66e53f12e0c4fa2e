// Package config loads and validates the runlet configuration file.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config represents the complete runlet configuration.
type Config struct {
	Service ServiceConfig `yaml:"service"`
	Engine  EngineConfig  `yaml:"engine,omitempty"`
	History HistoryConfig `yaml:"history"`
	API     APIConfig     `yaml:"api,omitempty"`
	Lock    LockConfig    `yaml:"lock,omitempty"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// EngineConfig defines execution engine defaults.
type EngineConfig struct {
	// DefaultTimeout applies to runs submitted without an explicit
	// timeout. Zero means unbounded.
	DefaultTimeout time.Duration `yaml:"default_timeout,omitempty"`
}

// HistoryConfig defines run-history storage settings.
type HistoryConfig struct {
	Path      string        `yaml:"path"`
	Retention time.Duration `yaml:"retention,omitempty"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	// APIKey is the bearer token required on every endpoint except
	// /healthz. Empty disables authentication.
	APIKey string `yaml:"api_key,omitempty"`
	// EventBuffer is the event hub ring size for late SSE clients.
	EventBuffer int `yaml:"event_buffer,omitempty"`
}

// LockConfig defines the single-instance lock for serve mode.
type LockConfig struct {
	Path string `yaml:"path,omitempty"`
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "runlet",
			LogLevel:  "INFO",
			LogFormat: "json",
		},
		History: HistoryConfig{
			Path:      "runlet.db",
			Retention: 30 * 24 * time.Hour,
		},
		API: APIConfig{
			Enabled:     false,
			Listen:      "127.0.0.1:8713",
			EventBuffer: 256,
		},
	}
}

// validate checks the configuration for internally inconsistent values.
func validate(cfg *Config) error {
	if cfg.Service.Name == "" {
		return fmt.Errorf("service.name must not be empty")
	}
	switch strings.ToUpper(cfg.Service.LogLevel) {
	case "DEBUG", "INFO", "WARN", "ERROR", "":
	default:
		return fmt.Errorf("service.log_level %q is not one of DEBUG, INFO, WARN, ERROR", cfg.Service.LogLevel)
	}
	switch strings.ToLower(cfg.Service.LogFormat) {
	case "json", "text", "":
	default:
		return fmt.Errorf("service.log_format %q is not one of json, text", cfg.Service.LogFormat)
	}
	if cfg.Engine.DefaultTimeout < 0 {
		return fmt.Errorf("engine.default_timeout must not be negative")
	}
	if cfg.History.Path == "" {
		return fmt.Errorf("history.path must not be empty")
	}
	if cfg.History.Retention < 0 {
		return fmt.Errorf("history.retention must not be negative")
	}
	if cfg.API.Enabled && cfg.API.Listen == "" {
		return fmt.Errorf("api.listen must be set when api.enabled is true")
	}
	return nil
}
