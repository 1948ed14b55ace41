// Package config loads busboard settings from a TOML file and BUSBOARD_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Deployment modes.
const (
	ModeSingle = "single"
	ModeMulti  = "multi"
)

// Bus number sort conventions.
const (
	SortNumeric = "numeric"
	SortLexical = "lexical"
)

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error: field %q: %s", e.Field, e.Message)
}

// Config holds all runtime configuration.
type Config struct {
	Mode            string `toml:"mode"`
	DataDir         string `toml:"data_dir"`
	Port            int    `toml:"port"`
	AdminPort       int    `toml:"admin_port"`
	BusSort         string `toml:"bus_sort"`
	LogLevel        string `toml:"log_level"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Mode:            ModeMulti,
		DataDir:         "data",
		Port:            8080,
		AdminPort:       8383,
		BusSort:         SortNumeric,
		LogLevel:        "info",
		ShutdownTimeout: "15s",
	}
}

// Load starts from Default, overlays the TOML file at path (a missing file is
// not an error), then applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("BUSBOARD_MODE"); v != "" {
		c.Mode = v
	}
	if v := os.Getenv("BUSBOARD_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("BUSBOARD_BUS_SORT"); v != "" {
		c.BusSort = v
	}
	if v := os.Getenv("BUSBOARD_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("BUSBOARD_SHUTDOWN_TIMEOUT"); v != "" {
		c.ShutdownTimeout = v
	}
	for _, p := range []struct {
		env string
		dst *int
	}{
		{"BUSBOARD_PORT", &c.Port},
		{"BUSBOARD_ADMIN_PORT", &c.AdminPort},
	} {
		v := os.Getenv(p.env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return &ConfigError{Field: p.env, Message: "must be a valid integer"}
		}
		*p.dst = n
	}
	return nil
}

// Validate re-checks every field on an already-constructed Config.
func (c *Config) Validate() error {
	var errs []error
	if c.Mode != ModeSingle && c.Mode != ModeMulti {
		errs = append(errs, &ConfigError{Field: "mode", Message: "must be \"single\" or \"multi\""})
	}
	if c.DataDir == "" {
		errs = append(errs, &ConfigError{Field: "data_dir", Message: "cannot be empty"})
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, &ConfigError{Field: "port", Message: "must be between 1 and 65535"})
	}
	if c.AdminPort < 1 || c.AdminPort > 65535 {
		errs = append(errs, &ConfigError{Field: "admin_port", Message: "must be between 1 and 65535"})
	}
	if c.BusSort != SortNumeric && c.BusSort != SortLexical {
		errs = append(errs, &ConfigError{Field: "bus_sort", Message: "must be \"numeric\" or \"lexical\""})
	}
	if _, err := c.Shutdown(); err != nil {
		errs = append(errs, &ConfigError{Field: "shutdown_timeout", Message: err.Error()})
	}
	return errors.Join(errs...)
}

// Shutdown returns the parsed graceful shutdown timeout.
func (c *Config) Shutdown() (time.Duration, error) {
	d, err := time.ParseDuration(c.ShutdownTimeout)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, errors.New("must be positive")
	}
	return d, nil
}
