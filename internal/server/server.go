// Package server exposes the picking session to the station front end over
// HTTP (gin) and streams session events over a websocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/blingpick/blingpick/internal/bling"
	"github.com/blingpick/blingpick/internal/ledger"
	"github.com/blingpick/blingpick/internal/picking"
)

const readHeaderTimeout = 10 * time.Second

// TokenStatus reports the ERP authorization state. *bling.TokenManager
// implements it.
type TokenStatus interface {
	Status() bling.TokenStatus
}

// History lists finalized picks. *ledger.Store implements it.
type History interface {
	Recent(ctx context.Context, limit int) ([]ledger.Pick, error)
}

// Options wires the server's collaborators. History and StaticDir are
// optional.
type Options struct {
	Session   *picking.Session
	Hub       *Hub
	Tokens    TokenStatus
	History   History
	StaticDir string
}

// Server is the station HTTP server.
type Server struct {
	opts    Options
	engine  *gin.Engine
	handler http.Handler
	logger  *slog.Logger
}

// New builds the server and registers its routes.
func New(opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.Hub == nil {
		opts.Hub = NewHub(logger)
	}

	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(requestLogger(logger), recovery(logger))

	s := &Server{opts: opts, engine: engine, logger: logger}
	s.routes()

	// The websocket route bypasses gin: gin's writer refuses to hijack a
	// connection once the 101 header is flushed, which coder/websocket does
	// before hijacking.
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", s.stream)
	mux.Handle("/", engine)
	s.handler = mux

	return s
}

func (s *Server) routes() {
	r := s.engine

	r.GET("/order/:number", s.loadOrder)
	r.POST("/scan", s.scan)
	r.POST("/finalize", s.finalize)
	r.GET("/session", s.session)
	r.GET("/history", s.history)
	r.GET("/health", s.health)

	if s.opts.StaticDir != "" {
		r.NoRoute(gin.WrapH(http.FileServer(http.Dir(s.opts.StaticDir))))
	}
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on addr and serves until ctx is cancelled, then shuts down
// gracefully within shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("server: listening on %s: %w", addr, err)
	}

	return s.Serve(ctx, ln, shutdownTimeout)
}

// Serve serves on ln until ctx is cancelled. Open websocket streams are
// closed before the HTTP shutdown so it does not wait on them.
func (s *Server) Serve(ctx context.Context, ln net.Listener, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("station server listening", slog.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("server: serving: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down station server")
	s.opts.Hub.Close()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}

	return nil
}
