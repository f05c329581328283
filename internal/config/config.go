// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for blingpick. Values resolve through
// four layers: defaults -> config file -> environment -> CLI flags.
package config

// Config is the top-level configuration parsed from a TOML file.
type Config struct {
	Bling   BlingConfig   `toml:"bling"`
	Server  ServerConfig  `toml:"server"`
	Picking PickingConfig `toml:"picking"`
	Ledger  LedgerConfig  `toml:"ledger"`
	Logging LoggingConfig `toml:"logging"`
}

// BlingConfig holds the OAuth application credentials and API tuning.
// RefreshToken only bootstraps an empty token file; once a token file
// exists its refresh token wins.
type BlingConfig struct {
	ClientID                 string `toml:"client_id"`
	ClientSecret             string `toml:"client_secret"`
	RefreshToken             string `toml:"refresh_token"`
	TokenPath                string `toml:"token_path"`
	BaseURL                  string `toml:"base_url"`
	TokenURL                 string `toml:"token_url"`
	AuthURL                  string `toml:"auth_url"`
	RedirectURL              string `toml:"redirect_url"`
	RequestTimeout           string `toml:"request_timeout"`
	RefreshTimeout           string `toml:"refresh_timeout"`
	ProductLookupConcurrency int    `toml:"product_lookup_concurrency"`
}

// ServerConfig controls the operator-facing HTTP server.
type ServerConfig struct {
	Listen          string `toml:"listen"`
	StaticDir       string `toml:"static_dir"`
	ShutdownTimeout string `toml:"shutdown_timeout"`
	PIDFile         string `toml:"pid_file"`
}

// PickingConfig controls the picking session.
type PickingConfig struct {
	MovementNote string `toml:"movement_note"`
}

// LedgerConfig controls the local pick history database.
type LedgerConfig struct {
	Enabled bool   `toml:"enabled"`
	DBPath  string `toml:"db_path"`
}

// LoggingConfig controls log output: level, format, and destination.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogFile   string `toml:"log_file"`
}

// CLIOverrides holds values from CLI flags. Pointer fields distinguish
// "not specified" (nil) from an explicit zero value.
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	Listen     *string // --listen flag on serve
}
