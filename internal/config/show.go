package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as TOML-like text to w.
// Secrets are masked. This powers "blingpick config show".
func RenderEffective(cfg *Config, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("[bling]\n")
	ew.printf("  client_id                  = %q\n", cfg.Bling.ClientID)
	ew.printf("  client_secret              = %q\n", mask(cfg.Bling.ClientSecret))
	ew.printf("  refresh_token              = %q\n", mask(cfg.Bling.RefreshToken))
	ew.printf("  token_path                 = %q\n", cfg.Bling.TokenPath)
	ew.printf("  base_url                   = %q\n", cfg.Bling.BaseURL)
	ew.printf("  token_url                  = %q\n", cfg.Bling.TokenURL)
	ew.printf("  auth_url                   = %q\n", cfg.Bling.AuthURL)
	ew.printf("  redirect_url               = %q\n", cfg.Bling.RedirectURL)
	ew.printf("  request_timeout            = %q\n", cfg.Bling.RequestTimeout)
	ew.printf("  refresh_timeout            = %q\n", cfg.Bling.RefreshTimeout)
	ew.printf("  product_lookup_concurrency = %d\n\n", cfg.Bling.ProductLookupConcurrency)

	ew.printf("[server]\n")
	ew.printf("  listen           = %q\n", cfg.Server.Listen)
	ew.printf("  static_dir       = %q\n", cfg.Server.StaticDir)
	ew.printf("  shutdown_timeout = %q\n", cfg.Server.ShutdownTimeout)
	ew.printf("  pid_file         = %q\n\n", cfg.Server.PIDFile)

	ew.printf("[picking]\n")
	ew.printf("  movement_note = %q\n\n", cfg.Picking.MovementNote)

	ew.printf("[ledger]\n")
	ew.printf("  enabled = %t\n", cfg.Ledger.Enabled)
	ew.printf("  db_path = %q\n\n", cfg.Ledger.DBPath)

	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", cfg.Logging.LogLevel)
	ew.printf("  log_format = %q\n", cfg.Logging.LogFormat)
	ew.printf("  log_file   = %q\n", cfg.Logging.LogFile)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}

	return "********"
}
