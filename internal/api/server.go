// Package api wires tsio's stores, auth chain, and ingestion pipeline into an
// HTTP server implementing the REST/WebSocket surface of spec §6.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tsio/tsio/internal/api/middleware"
	"github.com/tsio/tsio/internal/auth"
	"github.com/tsio/tsio/internal/eventbus"
	"github.com/tsio/tsio/internal/ingestion"
	"github.com/tsio/tsio/internal/objectstore"
	"github.com/tsio/tsio/internal/store"
	"github.com/tsio/tsio/internal/upload"
)

// Dependencies are the stores, auth components, and pipelines the HTTP
// surface dispatches to. main.go's composition root builds one of these from
// ServerConfig before calling NewServer.
type Dependencies struct {
	DB      *store.Connection
	Objects objectstore.Store
	Bus     *eventbus.Bus

	Reports store.ReportStore
	Jobs    store.JobStore
	Results store.ResultsStore

	HTMLFiles        store.FileStore
	ScreenshotFiles  store.FileStore
	JSONFiles        store.JSONFileStore
	ScreenshotsTable store.ScreenshotFileStore

	APIKeys  store.ApiKeyStore
	Policies store.PolicyStore
	Users    store.UserStore

	AuthChain    *auth.Chain
	PolicyEngine *auth.PolicyEngine
	OAuthBroker  *auth.OAuthBroker
	Sessions     *auth.SessionManager

	Uploads      *upload.Coordinator
	Orchestrator *ingestion.Orchestrator

	RateLimiter middleware.RateLimiter
}

// Server represents the tsio HTTP API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	config     *ServerConfig
	startTime  time.Time

	deps Dependencies
}

// NewServer creates a new HTTP server instance with structured logging and
// middleware stack, wiring every dependency the handler layer needs.
func NewServer(cfg *ServerConfig, deps Dependencies) *Server {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))

	if deps.DB == nil || deps.Reports == nil || deps.Jobs == nil || deps.Results == nil {
		logger.Error("core stores are required - cannot start server without them")
		panic("tsio: DB/Reports/Jobs/Results cannot be nil - this indicates a configuration error")
	}

	mux := http.NewServeMux()

	server := &Server{
		logger: logger,
		config: cfg,
		deps:   deps,
	}

	server.setupRoutes(mux)

	if deps.AuthChain != nil {
		logger.Info("authentication chain enabled")
	} else {
		logger.Warn("AuthChain not configured - every request resolves to no caller")
	}

	if deps.RateLimiter != nil {
		logger.Info("rate limiting middleware enabled")
	} else {
		logger.Warn("RateLimiter not configured - rate limiting middleware disabled")
	}

	if cfg.OIDC.Enabled && cfg.OIDC.Audience == "" {
		logger.Warn("TSIO_GITHUB_OIDC_AUDIENCE not configured - OIDC tokens accepted for any audience, replay risk")
	}

	handler := middleware.Apply(mux,
		middleware.WithCorrelationID(),
		middleware.WithRecovery(logger),
		middleware.WithAuth(deps.AuthChain, logger),
		middleware.WithRateLimit(deps.RateLimiter, logger),
		middleware.WithRequestLogger(logger),
		middleware.WithCORS(cfg.ToCORSConfig()),
	)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	server.httpServer = httpServer

	return server
}

// Start starts the HTTP server and blocks until shutdown. It handles
// graceful shutdown on SIGINT and SIGTERM signals.
func (s *Server) Start() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid server configuration: %w", err)
	}

	s.startTime = time.Now()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("starting tsio API server",
			slog.String("address", s.config.Address()),
			slog.Duration("read_timeout", s.config.ReadTimeout),
			slog.Duration("write_timeout", s.config.WriteTimeout),
			slog.Duration("shutdown_timeout", s.config.ShutdownTimeout),
		)

		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("server failed to start",
				slog.String("address", s.config.Address()),
				slog.String("error", err.Error()),
			)

			serverErrors <- fmt.Errorf("server failed to start: %w", err)
		}
	}()

	select {
	case err := <-serverErrors:
		return err
	case sig := <-stop:
		s.logger.Info("received shutdown signal", slog.String("signal", sig.String()))

		return s.shutdown()
	}
}

// shutdown gracefully shuts down the server and closes dependencies.
func (s *Server) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	s.logger.Info("initiating server shutdown", slog.Duration("shutdown_timeout", s.config.ShutdownTimeout))

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("server shutdown failed", slog.String("error", err.Error()))

		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.closeDependency("database connection", s.deps.DB)

	if s.deps.Bus != nil {
		s.logger.Info("closing event bus")
		s.deps.Bus.Close()
	}

	if closer, ok := s.deps.RateLimiter.(interface{ Close() }); ok {
		s.logger.Info("closing rate limiter")
		closer.Close()
	}

	s.logger.Info("server shutdown completed successfully")

	return nil
}

// closeDependency attempts to close a server dependency that implements
// io.Closer. Errors are logged but don't stop shutdown (best-effort).
func (s *Server) closeDependency(name string, dep interface{}) {
	if dep == nil {
		return
	}

	closer, ok := dep.(io.Closer)
	if !ok {
		return
	}

	s.logger.Info("closing " + name)

	if err := closer.Close(); err != nil {
		s.logger.Error("failed to close "+name, slog.String("error", err.Error()))

		return
	}

	s.logger.Info(name + " closed successfully")
}
