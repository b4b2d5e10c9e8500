// Package server answers SQL over HTTP: the remote end a remote table
// talks to. A request carries one statement and gets back the result set
// as a JSON array of objects.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/remotesql/internal/engine"
	"github.com/leapstack-labs/remotesql/internal/viewer"
	"github.com/leapstack-labs/remotesql/pkg/adapter"
)

// DefaultAddr is the listen address used when none is configured.
const DefaultAddr = ":8090"

// maxBodyBytes caps the size of a POSTed statement.
const maxBodyBytes = 1 << 20

// Server is the remote SQL server.
type Server struct {
	engine   *engine.Engine
	addr     string
	readOnly bool
	maxRows  int
	watch    bool
	logger   *slog.Logger

	// sessionStore backs the viewer; nil when the viewer is off.
	sessionStore *sessions.CookieStore
}

// Config holds configuration for the server.
type Config struct {
	Engine *engine.Engine
	Addr   string
	// ReadOnly rejects statements that are not queries and makes the
	// database refuse writes.
	ReadOnly bool
	// MaxRows caps the rows returned per request (0 = unlimited).
	MaxRows int
	// Watch reloads seeds when files in the seeds directory change.
	Watch bool
	// Viewer serves the browser UI under /viewer.
	Viewer bool
	// SessionSecret signs viewer session cookies. A random key is used
	// when empty, so sessions do not survive a restart.
	SessionSecret string
	Logger        *slog.Logger
}

// NewServer creates a new server instance.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	s := &Server{
		engine:   cfg.Engine,
		addr:     addr,
		readOnly: cfg.ReadOnly,
		maxRows:  cfg.MaxRows,
		watch:    cfg.Watch,
		logger:   logger,
	}
	if cfg.Viewer {
		s.sessionStore = newSessionStore(cfg.SessionSecret)
	}
	return s
}

func newSessionStore(secret string) *sessions.CookieStore {
	key := []byte(secret)
	if secret == "" {
		key = securecookie.GenerateRandomKey(32)
	}
	store := sessions.NewCookieStore(key)
	store.MaxAge(86400 * 30) // 30 days
	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.SameSite = http.SameSiteLaxMode
	return store
}

// Addr returns the configured listen address.
func (s *Server) Addr() string { return s.addr }

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(
		requestID,
		s.requestLogger,
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Get("/healthz", s.handleHealth)
	r.Get("/", s.handleGet)
	r.Post("/", s.handlePost)

	if s.sessionStore != nil {
		r.Route("/viewer", func(r chi.Router) {
			viewer.SetupRoutes(r, viewer.Config{
				Engine:       s.engine,
				SessionStore: s.sessionStore,
				Check:        s.checkStatement,
				MaxRows:      s.maxRows,
				Logger:       s.logger,
			})
		})
	}

	return r
}

// Serve listens on the configured address and blocks until the context is
// cancelled.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener serves on ln until the context is cancelled, then shuts
// down gracefully.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	s.logger.Info("starting remote SQL server",
		"addr", ln.Addr().String(),
		"adapter", s.engine.AdapterType(),
		"readonly", s.readOnly)

	if err := s.Prepare(ctx); err != nil {
		_ = ln.Close()
		return err
	}

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Handler: s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.watch && s.readOnly {
		s.logger.Warn("seed watching is disabled on a read-only server")
	}
	if s.watch && !s.readOnly && s.engine.SeedsDir() != "" {
		eg.Go(func() error {
			return s.watchSeeds(egctx)
		})
	}

	eg.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down remote SQL server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// Prepare loads the seeds and, on a read-only server, makes the database
// itself refuse writes. ServeListener calls it before accepting requests.
func (s *Server) Prepare(ctx context.Context) error {
	if _, err := s.reloadSeeds(ctx); err != nil {
		return err
	}
	if !s.readOnly {
		return nil
	}
	err := s.engine.SetReadOnly(ctx)
	switch {
	case errors.Is(err, adapter.ErrReadOnlyUnsupported):
		s.logger.Warn("database cannot be made read-only, only statements are checked",
			"adapter", s.engine.AdapterType())
	case err != nil:
		return fmt.Errorf("failed to make database read-only: %w", err)
	}
	return nil
}

func (s *Server) reloadSeeds(ctx context.Context) ([]string, error) {
	tables, err := s.engine.LoadSeeds(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load seeds: %w", err)
	}
	if len(tables) > 0 {
		s.logger.Info("loaded seeds", "tables", tables)
	}
	return tables, nil
}
