// Package config provides application configuration management for codedeck.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"
)

// Config holds the codedeck configuration.
type Config struct {
	Server   ServerConfig   `json:"server"`   // HTTP server settings
	Archive  ArchiveConfig  `json:"archive"`  // Raw-event archive settings
	Liveness LivenessConfig `json:"liveness"` // Session liveness settings
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host      string `json:"host"`                 // Bind address
	Port      int    `json:"port"`                 // Listen port
	Token     string `json:"token,omitempty"`      // Bearer token (empty = no auth)
	TicketTTL string `json:"ticket_ttl,omitempty"` // WebSocket ticket lifetime (e.g. "30s")
}

// TicketTTLDuration returns the parsed WebSocket ticket lifetime (default: 30s).
func (c ServerConfig) TicketTTLDuration() time.Duration {
	if c.TicketTTL != "" {
		if d, err := time.ParseDuration(c.TicketTTL); err == nil {
			return d
		}
	}
	return 30 * time.Second
}

// ArchiveConfig holds raw-event archive settings.
type ArchiveConfig struct {
	Enabled       bool   `json:"enabled"`        // Archive raw events to DuckDB
	DBPath        string `json:"db_path"`        // Database file (empty = ~/.codedeck/archive.duckdb)
	BatchSize     int    `json:"batch_size"`     // Events per flush
	FlushInterval string `json:"flush_interval"` // Flush cadence (e.g. "2s")
}

// FlushIntervalDuration returns the parsed flush interval (default: 2s).
func (c ArchiveConfig) FlushIntervalDuration() time.Duration {
	if c.FlushInterval != "" {
		if d, err := time.ParseDuration(c.FlushInterval); err == nil {
			return d
		}
	}
	return 2 * time.Second
}

// LivenessConfig holds session liveness settings.
type LivenessConfig struct {
	ActiveWindow string `json:"active_window"` // Mtime window (e.g. "5m")
	LoadTimeout  string `json:"load_timeout"`  // History load watchdog (e.g. "30s")
}

// ActiveWindowDuration returns the parsed active window (default: 5m).
func (c LivenessConfig) ActiveWindowDuration() time.Duration {
	if c.ActiveWindow != "" {
		if d, err := time.ParseDuration(c.ActiveWindow); err == nil {
			return d
		}
	}
	return 5 * time.Minute
}

// LoadTimeoutDuration returns the parsed load watchdog (default: 30s).
func (c LivenessConfig) LoadTimeoutDuration() time.Duration {
	if c.LoadTimeout != "" {
		if d, err := time.ParseDuration(c.LoadTimeout); err == nil {
			return d
		}
	}
	return 30 * time.Second
}

// Dir returns the path to the .codedeck directory.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".codedeck"), nil
}

// Path returns the path to the main config file.
func Path() (string, error) {
	configDir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(configDir, "config.json"), nil
}

// Load loads the configuration from ~/.codedeck/config.json.
func Load() (Config, error) {
	configPath, err := Path()
	if err != nil {
		return Config{}, err
	}

	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		cfg := Default()
		if saveErr := Save(cfg); saveErr != nil {
			return cfg, nil // return defaults even if save fails
		}
		return cfg, nil
	} else if err != nil {
		return Config{}, err
	}

	// Start from defaults so missing keys get correct values.
	config := Default()
	if err := json.Unmarshal(data, &config); err != nil {
		return Config{}, err
	}

	if config.Server.Port == 0 {
		config.Server.Port = DefaultPort
	}
	if config.Server.Host == "" {
		config.Server.Host = DefaultHost
	}

	return config, nil
}

// Defaults for the HTTP server.
const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 4317
)

// Default returns a default configuration with all defaults set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Host:      DefaultHost,
			Port:      DefaultPort,
			TicketTTL: "30s",
		},
		Archive: ArchiveConfig{
			Enabled:       true,
			BatchSize:     200,
			FlushInterval: "2s",
		},
		Liveness: LivenessConfig{
			ActiveWindow: "5m",
			LoadTimeout:  "30s",
		},
	}
}

// Save saves the configuration to ~/.codedeck/config.json.
func Save(config Config) error {
	configPath, err := Path()
	if err != nil {
		return err
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(configPath, data, 0600)
}
