package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/cecil-the-coder/drivepool/pkg/backend/handlers"
	"github.com/cecil-the-coder/drivepool/pkg/backend/middleware"
	"github.com/cecil-the-coder/drivepool/pkg/config"
)

// Server represents the HTTP server that ties the handlers to a broker
type Server struct {
	config     config.Config
	broker     handlers.Broker
	httpServer *http.Server
	mux        *http.ServeMux
	logger     log.FieldLogger
}

// NewServer creates a new server for b
func NewServer(cfg config.Config, b handlers.Broker, logger log.FieldLogger) *Server {
	if logger == nil {
		logger = log.StandardLogger()
	}
	s := &Server{
		config: cfg,
		broker: b,
		mux:    http.NewServeMux(),
		logger: logger,
	}
	s.setupRoutes()
	return s
}

// setupRoutes registers all HTTP routes with their corresponding handlers
func (s *Server) setupRoutes() {
	healthHandler := handlers.NewHealthHandler(s.broker, s.config.Server.Version)
	providerHandler := handlers.NewProviderHandler(s.broker)
	urlHandler := handlers.NewURLHandler(s.broker, s.logger)

	// Health and status endpoints
	s.mux.HandleFunc("/health", healthHandler.Health)
	s.mux.HandleFunc("/status", healthHandler.Status)
	s.mux.HandleFunc("/version", healthHandler.Version)

	s.mux.HandleFunc("/api/url", urlHandler.ResolveURL)

	// Provider management endpoints
	s.mux.HandleFunc("/api/providers", providerHandler.ListProviders)
	s.mux.HandleFunc("/api/providers/", s.routeProviderRequests(providerHandler))
}

// routeProviderRequests routes provider-specific requests to the appropriate handler method
func (s *Server) routeProviderRequests(h *handlers.ProviderHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/providers/refresh":
			h.RefreshProviders(w, r)
		case strings.HasSuffix(r.URL.Path, "/pause"):
			h.PauseProvider(w, r)
		default:
			h.GetProvider(w, r)
		}
	}
}

// Handler returns the routes wrapped in the middleware chain
func (s *Server) Handler() http.Handler {
	return s.applyMiddleware(s.mux)
}

// Start starts the HTTP server and begins listening for requests
func (s *Server) Start() error {
	addr := s.config.Server.Address()

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadTimeout:       s.config.Server.ReadTimeout,
		ReadHeaderTimeout: s.config.Server.ReadTimeout,
		WriteTimeout:      s.config.Server.WriteTimeout,
	}

	s.logger.WithFields(log.Fields{
		"addr":    addr,
		"version": s.config.Server.Version,
	}).Info("starting server")

	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown HTTP server: %w", err)
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}

// applyMiddleware builds the middleware chain and applies it to the handler
// Middleware is applied in reverse order (last applied runs first)
func (s *Server) applyMiddleware(h http.Handler) http.Handler {
	// Execution order: Recovery -> Logging -> RequestID -> RateLimit -> Auth -> Handler

	if s.config.Auth.Enabled {
		h = middleware.Auth(middleware.AuthConfig{
			Enabled:     true,
			APIPassword: s.config.Auth.APIPassword,
			APIKeyEnv:   s.config.Auth.APIKeyEnv,
			PublicPaths: s.config.Auth.PublicPaths,
		})(h)
	}

	if rl := s.config.RateLimit; rl.RequestsPerSecond > 0 {
		h = middleware.NewRateLimiter(rate.Limit(rl.RequestsPerSecond), rl.Burst).Limit(h)
	}

	h = middleware.RequestID(h)
	h = middleware.Logging(s.logger)(h)
	h = middleware.Recovery(s.logger)(h)

	return h
}

// ListenAndServeWithGracefulShutdown starts the server and handles graceful shutdown
// This is a convenience method that starts the server and waits for shutdown signal
func (s *Server) ListenAndServeWithGracefulShutdown(shutdownSignal <-chan struct{}) error {
	errChan := make(chan error, 1)
	go func() {
		if err := s.Start(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-shutdownSignal:
		timeout := s.config.Server.ShutdownTimeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		return s.Shutdown(ctx)
	}
}
