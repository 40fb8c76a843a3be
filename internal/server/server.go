package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sundayezeilo/shorturl/internal/config"
	"github.com/sundayezeilo/shorturl/internal/db"
	"github.com/sundayezeilo/shorturl/internal/httpx"
	"github.com/sundayezeilo/shorturl/internal/shortener"
)

// healthCheckTimeout bounds the store ping done by GET /health.
const healthCheckTimeout = 2 * time.Second

// Options are the collaborators the server routes to.
type Options struct {
	Handler *shortener.Handler
	// Store is pinged by the health check. Optional.
	Store db.Pinger
	// Gatherer backs the metrics endpoint. Optional.
	Gatherer prometheus.Gatherer
	// Registerer receives the HTTP request collectors. Optional.
	Registerer prometheus.Registerer
	// Limiter throttles the /api/ routes. Optional.
	Limiter httpx.Limiter
}

// Server represents the HTTP server with all dependencies.
type Server struct {
	config  *config.Config
	logger  *slog.Logger
	opts    Options
	metrics *httpx.HTTPMetrics
	handler http.Handler
	server  *http.Server
}

// New creates a new Server instance and builds its handler tree.
func New(cfg *config.Config, logger *slog.Logger, opts Options) *Server {
	s := &Server{
		config:  cfg,
		logger:  logger,
		opts:    opts,
		metrics: httpx.NewHTTPMetrics(opts.Registerer),
	}
	s.handler = s.applyMiddleware(s.setupRoutes())
	return s
}

// Handler returns the fully wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server and blocks until shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Server.Host, s.config.Server.Port),
		Handler:      s.handler,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  s.config.Server.IdleTimeout,
	}

	// Listen for errors from the server
	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("starting http server",
			"addr", s.server.Addr,
			"env", s.config.App.Environment,
		)
		serverErrors <- s.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		s.logger.Info("received shutdown signal", "signal", sig.String())

	case <-ctx.Done():
		s.logger.Info("context cancelled, shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.Server.ShutdownTimeout)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}

	s.logger.Info("server stopped gracefully")
	return nil
}

// setupRoutes configures all HTTP routes. The mux is wrapped by the metrics
// middleware directly so that r.Pattern is visible to it.
func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthCheckHandler)
	if s.config.Metrics.Enabled && s.opts.Gatherer != nil {
		mux.Handle("GET "+s.config.Metrics.Path, promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}

	api := s.apiMiddleware()
	mux.Handle("POST /api/shorten", api(http.HandlerFunc(s.opts.Handler.Shorten)))
	mux.Handle("GET /api/analytics/{code}", api(http.HandlerFunc(s.opts.Handler.Analytics)))
	mux.HandleFunc("GET /{code}", s.opts.Handler.Redirect)

	// Everything else, including "/" and unknown /api/ paths.
	mux.HandleFunc("/", s.notFoundHandler)

	return httpx.Metrics(s.metrics)(mux)
}

// apiMiddleware wraps the /api/ routes.
func (s *Server) apiMiddleware() httpx.Middleware {
	if s.opts.Limiter == nil {
		return httpx.Chain()
	}
	return httpx.RateLimit(s.opts.Limiter, s.logger, httpx.RateLimitConfig{
		TrustProxy: s.config.RateLimit.TrustProxy,
	})
}

// applyMiddleware wraps the handler with middleware in the correct order.
func (s *Server) applyMiddleware(handler http.Handler) http.Handler {
	return httpx.Chain(
		httpx.Recovery(s.logger), // Outermost: catch panics
		httpx.RequestID,          // Add request ID
		httpx.Logger(s.logger),   // Log requests
		httpx.SecureHeaders,
		httpx.CORS(httpx.CORSConfig{
			AllowedOrigins:  s.config.Server.CORSAllowedOrigins,
			AllowedSuffixes: s.config.Server.CORSAllowedSuffixes,
		}),
	)(handler)
}

type healthResponse struct {
	Success   bool      `json:"success"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// healthCheckHandler handles health check requests.
func (s *Server) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if s.opts.Store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()

		if err := s.opts.Store.Ping(ctx); err != nil {
			s.logger.ErrorContext(ctx, "health check failed",
				"request_id", httpx.GetRequestID(ctx),
				"error", err.Error(),
			)
			httpx.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{
				Success:   false,
				Message:   "Storage unavailable",
				Timestamp: time.Now().UTC(),
			})
			return
		}
	}

	httpx.WriteJSON(w, http.StatusOK, healthResponse{
		Success:   true,
		Message:   "Server is running",
		Timestamp: time.Now().UTC(),
	})
}

func (s *Server) notFoundHandler(w http.ResponseWriter, r *http.Request) {
	httpx.WriteError(w, http.StatusNotFound, "not_found", "Route not found", nil)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}

	s.logger.Info("shutting down server")

	if err := s.server.Shutdown(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			s.logger.Warn("shutdown timeout exceeded, forcing close")
			return s.server.Close()
		}
		return err
	}

	return nil
}
