package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig       = "BLINGPICK_CONFIG"
	EnvClientID     = "BLING_CLIENT_ID"
	EnvClientSecret = "BLING_CLIENT_SECRET" //nolint:gosec // G101: variable name, not a credential
	EnvRefreshToken = "BLING_REFRESH_TOKEN" //nolint:gosec // G101: variable name, not a credential
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath   string // BLINGPICK_CONFIG: override config file path
	ClientID     string // BLING_CLIENT_ID
	ClientSecret string // BLING_CLIENT_SECRET
	RefreshToken string // BLING_REFRESH_TOKEN: bootstrap refresh token
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; Resolve applies the fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath:   os.Getenv(EnvConfig),
		ClientID:     os.Getenv(EnvClientID),
		ClientSecret: os.Getenv(EnvClientSecret),
		RefreshToken: os.Getenv(EnvRefreshToken),
	}
}

func applyEnv(cfg *Config, env EnvOverrides) {
	if env.ClientID != "" {
		cfg.Bling.ClientID = env.ClientID
	}

	if env.ClientSecret != "" {
		cfg.Bling.ClientSecret = env.ClientSecret
	}

	if env.RefreshToken != "" {
		cfg.Bling.RefreshToken = env.RefreshToken
	}
}
