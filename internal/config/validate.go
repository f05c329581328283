package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Validation range constants.
const (
	minLookupConcurrency = 1
	maxLookupConcurrency = 16
	minRequestTimeout    = 1 * time.Second
	minRefreshTimeout    = 1 * time.Second
	minShutdownTimeout   = 1 * time.Second
)

// Validate checks all configuration values and returns every error found,
// so a config file can be fixed in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateBling(&cfg.Bling)...)
	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validatePicking(&cfg.Picking)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

// ValidateResolved checks constraints that only make sense after env and
// CLI overrides have been applied.
func ValidateResolved(cfg *Config) error {
	var errs []error

	if err := validateListen(cfg.Server.Listen); err != nil {
		errs = append(errs, err)
	}

	if cfg.Bling.TokenPath == "" {
		errs = append(errs, errors.New("bling.token_path: no data directory available, set it explicitly"))
	}

	if cfg.Ledger.Enabled && cfg.Ledger.DBPath == "" {
		errs = append(errs, errors.New("ledger.db_path: no data directory available, set it explicitly"))
	}

	return errors.Join(errs...)
}

func validateBling(b *BlingConfig) []error {
	var errs []error

	for _, u := range []struct{ field, value string }{
		{"bling.base_url", b.BaseURL},
		{"bling.token_url", b.TokenURL},
		{"bling.auth_url", b.AuthURL},
		{"bling.redirect_url", b.RedirectURL},
	} {
		if err := validateURL(u.field, u.value); err != nil {
			errs = append(errs, err)
		}
	}

	if err := validateDuration("bling.request_timeout", b.RequestTimeout, minRequestTimeout); err != nil {
		errs = append(errs, err)
	}

	if err := validateDuration("bling.refresh_timeout", b.RefreshTimeout, minRefreshTimeout); err != nil {
		errs = append(errs, err)
	}

	if b.ProductLookupConcurrency < minLookupConcurrency || b.ProductLookupConcurrency > maxLookupConcurrency {
		errs = append(errs, fmt.Errorf("bling.product_lookup_concurrency: must be between %d and %d, got %d",
			minLookupConcurrency, maxLookupConcurrency, b.ProductLookupConcurrency))
	}

	return errs
}

func validateServer(s *ServerConfig) []error {
	var errs []error

	if err := validateListen(s.Listen); err != nil {
		errs = append(errs, err)
	}

	if err := validateDuration("server.shutdown_timeout", s.ShutdownTimeout, minShutdownTimeout); err != nil {
		errs = append(errs, err)
	}

	return errs
}

func validatePicking(p *PickingConfig) []error {
	if strings.TrimSpace(p.MovementNote) == "" {
		return []error{errors.New("picking.movement_note: must not be empty")}
	}

	return nil
}

func validateListen(addr string) error {
	if _, _, err := net.SplitHostPort(addr); err != nil {
		return fmt.Errorf("server.listen: invalid address %q: %w", addr, err)
	}

	return nil
}

func validateURL(field, value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", field, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s: must be an http(s) URL, got %q", field, value)
	}

	return nil
}

func validateDuration(field, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}
