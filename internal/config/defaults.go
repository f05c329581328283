package config

import (
	"path/filepath"

	"github.com/blingpick/blingpick/internal/bling"
	"github.com/blingpick/blingpick/internal/picking"
)

// Default values for configuration options, layer 0 of the override chain.
const (
	defaultListen            = ":3000"
	defaultShutdownTimeout   = "10s"
	defaultRequestTimeout    = "30s"
	defaultRefreshTimeout    = "10s"
	defaultLogLevel          = "info"
	defaultLogFormat         = "auto"
	defaultTokenFileName     = "token.json"
	defaultLedgerFileName    = "ledger.db"
	defaultPIDFileName       = "blingpick.pid"
	defaultLookupConcurrency = picking.DefaultLookupConcurrency
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding so unset fields keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		Bling: BlingConfig{
			BaseURL:                  bling.DefaultBaseURL,
			TokenURL:                 bling.DefaultTokenURL,
			AuthURL:                  bling.DefaultAuthURL,
			RedirectURL:              bling.DefaultRedirectURL,
			RequestTimeout:           defaultRequestTimeout,
			RefreshTimeout:           defaultRefreshTimeout,
			ProductLookupConcurrency: defaultLookupConcurrency,
		},
		Server: ServerConfig{
			Listen:          defaultListen,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Picking: PickingConfig{
			MovementNote: picking.DefaultMovementNote,
		},
		Ledger: LedgerConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}

// fillPaths sets file locations left empty to their places under the data
// directory and expands a leading "~/" in the rest.
func fillPaths(cfg *Config) {
	dataDir := DefaultDataDir()

	cfg.Bling.TokenPath = pathOrDefault(cfg.Bling.TokenPath, dataDir, defaultTokenFileName)
	cfg.Ledger.DBPath = pathOrDefault(cfg.Ledger.DBPath, dataDir, defaultLedgerFileName)
	cfg.Server.PIDFile = pathOrDefault(cfg.Server.PIDFile, dataDir, defaultPIDFileName)
	cfg.Server.StaticDir = expandTilde(cfg.Server.StaticDir)
	cfg.Logging.LogFile = expandTilde(cfg.Logging.LogFile)
}

func pathOrDefault(path, dataDir, name string) string {
	if path != "" {
		return expandTilde(path)
	}

	if dataDir == "" {
		return ""
	}

	return filepath.Join(dataDir, name)
}
