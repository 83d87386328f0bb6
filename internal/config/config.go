// Package config provides TOML configuration loading for the liveness
// session server.
//
// The configuration file supports the following structure:
//
//	[server]
//	read_timeout_ms = 5000
//	write_timeout_ms = 5000
//
//	[logging]
//	verbose = false
//
//	[gestures]
//	rng_seed = 0
//
// Example usage:
//
//	cfg, err := config.Load("settings.toml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Read timeout: %dms\n", cfg.Server.ReadTimeoutMs)
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Config represents the ambient settings for the liveness server that
// sit outside the required CLI surface: socket behavior, logging
// verbosity, and the gesture-picking RNG seed.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Logging  LoggingConfig  `toml:"logging"`
	Gestures GesturesConfig `toml:"gestures"`
}

// ServerConfig holds Unix socket per-request deadline settings.
type ServerConfig struct {
	// ReadTimeoutMs is the per-request read deadline, in milliseconds;
	// 0 disables the deadline (default: 0).
	ReadTimeoutMs int `toml:"read_timeout_ms"`
	// WriteTimeoutMs is the per-reply write deadline, in milliseconds;
	// 0 disables the deadline (default: 0).
	WriteTimeoutMs int `toml:"write_timeout_ms"`
}

// LoggingConfig holds logging verbosity settings.
type LoggingConfig struct {
	// Verbose, when true, makes the CLI log at startup that verbose
	// logging is enabled; no per-frame diagnostics are logged
	// (default: false).
	Verbose bool `toml:"verbose"`
}

// GesturesConfig holds gesture-catalogue settings.
type GesturesConfig struct {
	// RNGSeed seeds the gesture sampler and the per-gesture random step
	// picker. Zero means process-seeded (default: 0).
	RNGSeed int64 `toml:"rng_seed"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ReadTimeoutMs:  0,
			WriteTimeoutMs: 0,
		},
		Logging: LoggingConfig{
			Verbose: false,
		},
		Gestures: GesturesConfig{
			RNGSeed: 0,
		},
	}
}

// Load reads and parses a TOML configuration file.
// If path is empty or the file does not exist, it returns the default
// configuration, matching the CLI's "settings file is optional" contract.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if _, err := toml.Decode(string(data), cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Server.ReadTimeoutMs < 0 {
		return fmt.Errorf("read timeout must not be negative, got %d", c.Server.ReadTimeoutMs)
	}
	if c.Server.WriteTimeoutMs < 0 {
		return fmt.Errorf("write timeout must not be negative, got %d", c.Server.WriteTimeoutMs)
	}
	if c.Gestures.RNGSeed < 0 {
		return fmt.Errorf("rng seed must not be negative, got %d", c.Gestures.RNGSeed)
	}
	return nil
}
