package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// shutdownContext derives the serve context from parent. SIGINT or SIGTERM
// cancels it, which stops accepting requests while a finalize that is
// already posting its stock movement to Bling runs to completion within the
// shutdown timeout. A second signal exits at once, abandoning that post.
func shutdownContext(parent context.Context, logger *slog.Logger) context.Context {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		defer signal.Stop(sigCh)

		if !awaitSignal(ctx, sigCh, logger, "stopping station, letting in-flight requests finish") {
			return
		}

		cancel()

		if awaitSignal(parent, sigCh, logger, "second signal, exiting without waiting for Bling") {
			os.Exit(1)
		}
	}()

	return ctx
}

// awaitSignal blocks until a signal arrives (true) or ctx ends (false).
func awaitSignal(ctx context.Context, sigCh <-chan os.Signal, logger *slog.Logger, msg string) bool {
	select {
	case sig := <-sigCh:
		logger.Warn(msg, slog.String("signal", sig.String()))
		return true
	case <-ctx.Done():
		return false
	}
}
