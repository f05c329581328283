package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/blingpick/blingpick/internal/bling"
	"github.com/blingpick/blingpick/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// CLIFlags holds the root persistent flags.
type CLIFlags struct {
	ConfigPath string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext carries what every subcommand needs after the root pre-run:
// parsed flags, the resolved config, and a logger built from both.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Config
	Logger *slog.Logger
}

type cliContextKey struct{}

// mustCLIContext returns the CLIContext stored by the root pre-run. It
// panics when missing, which only happens if a command is run outside the
// root command tree.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("CLIContext missing from command context")
	}

	return cc
}

// Statusf prints a status message to stderr unless quiet mode is set.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Flags.Quiet, format, args...)
}

// newRootCmd builds the root command with all subcommands registered.
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:     "blingpick",
		Short:   "Warehouse picking station for Bling ERP",
		Long:    "Loads Bling sales orders, checks scanned barcodes against them, and posts the stock-out movement.",
		Version: version,
		// We print errors ourselves in exitOnError.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}

			if f := cmd.Flags().Lookup("listen"); f != nil && f.Changed {
				listen := f.Value.String()
				cli.Listen = &listen
			}

			cfg, err := config.Resolve(config.ReadEnvOverrides(), cli)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			logger, err := buildLogger(cfg, flags)
			if err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{},
				&CLIContext{Flags: flags, Cfg: cfg, Logger: logger}))

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newAuthCmd())
	cmd.AddCommand(newOrderCmd())
	cmd.AddCommand(newHistoryCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// buildLogger creates the process logger. The config level is the
// baseline; --verbose and --quiet override it. log_format "auto" picks
// text on a terminal and JSON otherwise.
func buildLogger(cfg *config.Config, flags CLIFlags) (*slog.Logger, error) {
	level := slog.LevelInfo

	switch cfg.Logging.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	var out io.Writer = os.Stderr

	if cfg.Logging.LogFile != "" {
		f, err := os.OpenFile(cfg.Logging.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}

		out = f
	}

	return slog.New(newLogHandler(out, cfg.Logging.LogFormat, level)), nil
}

func newLogHandler(w io.Writer, format string, level slog.Level) slog.Handler {
	opts := &slog.HandlerOptions{Level: level}

	if format == "auto" {
		format = "json"

		if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
			format = "text"
		}
	}

	if format == "json" {
		return slog.NewJSONHandler(w, opts)
	}

	return slog.NewTextHandler(w, opts)
}

// newTokenManager builds the token manager from the resolved config.
func newTokenManager(cfg *config.Config, logger *slog.Logger) *bling.TokenManager {
	return bling.NewTokenManager(bling.TokenConfig{
		TokenPath:             cfg.Bling.TokenPath,
		ClientID:              cfg.Bling.ClientID,
		ClientSecret:          cfg.Bling.ClientSecret,
		BootstrapRefreshToken: cfg.Bling.RefreshToken,
		TokenURL:              cfg.Bling.TokenURL,
		AuthURL:               cfg.Bling.AuthURL,
		RedirectURL:           cfg.Bling.RedirectURL,
		HTTPClient:            &http.Client{Timeout: cfg.Bling.RefreshTimeoutDuration()},
	}, logger)
}

// newBlingClient builds the API client over tokens.
func newBlingClient(cfg *config.Config, tokens bling.TokenSource, logger *slog.Logger) *bling.Client {
	httpClient := &http.Client{Timeout: cfg.Bling.RequestTimeoutDuration()}

	return bling.NewClient(cfg.Bling.BaseURL, httpClient, tokens, logger)
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
