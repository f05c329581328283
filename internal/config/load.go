package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal and carry "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns a
// Config populated with all default values. Credentials can then come from
// the environment alone.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Config, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	applyEnv(cfg, env)

	if cli.Listen != nil {
		cfg.Server.Listen = *cli.Listen
	}

	fillPaths(cfg)

	if err := ValidateResolved(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// RequestTimeoutDuration is the per-request HTTP timeout for Bling API calls.
func (b *BlingConfig) RequestTimeoutDuration() time.Duration {
	return durationOr(b.RequestTimeout, defaultRequestTimeout)
}

// RefreshTimeoutDuration bounds one token refresh round trip.
func (b *BlingConfig) RefreshTimeoutDuration() time.Duration {
	return durationOr(b.RefreshTimeout, defaultRefreshTimeout)
}

// ShutdownTimeoutDuration bounds graceful HTTP shutdown.
func (s *ServerConfig) ShutdownTimeoutDuration() time.Duration {
	return durationOr(s.ShutdownTimeout, defaultShutdownTimeout)
}

// durationOr parses value, falling back to the default for values that
// Validate would have rejected.
func durationOr(value, fallback string) time.Duration {
	if d, err := time.ParseDuration(value); err == nil && d > 0 {
		return d
	}

	d, _ := time.ParseDuration(fallback)

	return d
}
