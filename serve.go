package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/blingpick/blingpick/internal/ledger"
	"github.com/blingpick/blingpick/internal/picking"
	"github.com/blingpick/blingpick/internal/server"
	"github.com/blingpick/blingpick/internal/tokenfile"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the picking station server",
		Long: `Run the station HTTP server. The station loads one order at a time,
checks scanned codes against it, and posts a stock-out movement to Bling on
finalize. Edits to the token file are picked up without a restart.`,
		RunE: runServe,
	}

	cmd.Flags().String("listen", "", "listen address (overrides server.listen)")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())
	cfg, logger := cc.Cfg, cc.Logger

	cleanup, err := writePIDFile(cfg.Server.PIDFile)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx := shutdownContext(cmd.Context(), logger)

	tokens := newTokenManager(cfg, logger)
	if st := tokens.Status(); !st.Configured {
		logger.Warn("Bling credentials are not configured; order loads will fail until they are")
	}

	client := newBlingClient(cfg, tokens, logger)

	var (
		recorder picking.Recorder
		history  server.History
	)

	if cfg.Ledger.Enabled {
		store, err := ledger.Open(ctx, cfg.Ledger.DBPath, logger)
		if err != nil {
			return fmt.Errorf("opening pick ledger: %w", err)
		}
		defer store.Close()

		recorder, history = store, store
	}

	hub := server.NewHub(logger)

	session := picking.NewSession(client, picking.Options{
		LookupConcurrency: cfg.Bling.ProductLookupConcurrency,
		MovementNote:      cfg.Picking.MovementNote,
		Recorder:          recorder,
		OnEvent:           hub.Publish,
	}, logger)

	go watchTokenFile(ctx, cfg.Bling.TokenPath, tokens.Reload, logger)

	srv := server.New(server.Options{
		Session:   session,
		Hub:       hub,
		Tokens:    tokens,
		History:   history,
		StaticDir: cfg.Server.StaticDir,
	}, logger)

	return srv.Run(ctx, cfg.Server.Listen, cfg.Server.ShutdownTimeoutDuration())
}

// watchTokenFile reloads credentials when the token file changes. A watch
// failure only disables hot reload.
func watchTokenFile(ctx context.Context, path string, reload func(), logger *slog.Logger) {
	if err := tokenfile.Watch(ctx, path, reload, logger); err != nil {
		logger.Warn("token file watch stopped",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
