package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/lcalzada-xor/vulnfleet/internal/adapters/web/handlers"
	"github.com/lcalzada-xor/vulnfleet/internal/adapters/web/middleware"
	"github.com/lcalzada-xor/vulnfleet/internal/core/ports"
)

const (
	// DefaultPrefix matches the API_URL the browser frontend is built against.
	DefaultPrefix = "/api"

	defaultRateLimit  = 30
	defaultRateWindow = time.Minute
)

// Server handles the HTTP API.
type Server struct {
	Addr      string
	Prefix    string
	StaticDir string

	EquipmentHandler *handlers.EquipmentHandler
	CVEHandler       *handlers.CVEHandler
	DashboardHandler *handlers.DashboardHandler
	RefreshHandler   *handlers.RefreshHandler

	limiter *middleware.RateLimiter
	logger  *zap.Logger
	srv     *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithPrefix mounts the API under prefix instead of DefaultPrefix.
func WithPrefix(prefix string) Option {
	return func(s *Server) { s.Prefix = prefix }
}

// WithStaticDir serves the presentation layer from dir.
func WithStaticDir(dir string) Option {
	return func(s *Server) { s.StaticDir = dir }
}

// WithRateLimit sets how many mutating requests a client may send per window.
func WithRateLimit(limit int, window time.Duration) Option {
	return func(s *Server) {
		if s.limiter != nil {
			s.limiter.Stop()
		}
		s.limiter = middleware.NewRateLimiter(limit, window)
	}
}

// NewServer creates a new web server.
func NewServer(addr string, registry ports.AssetRegistry, correlator ports.Correlator, aggregator ports.Aggregator, sync ports.Synchronizer, exporter handlers.DashboardExporter, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	s := &Server{
		Addr:   addr,
		Prefix: DefaultPrefix,

		EquipmentHandler: handlers.NewEquipmentHandler(registry, aggregator, logger),
		CVEHandler:       handlers.NewCVEHandler(correlator, logger),
		DashboardHandler: handlers.NewDashboardHandler(aggregator, registry, exporter, logger),
		RefreshHandler:   handlers.NewRefreshHandler(sync, logger),

		logger: logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.limiter == nil {
		s.limiter = middleware.NewRateLimiter(defaultRateLimit, defaultRateWindow)
	}
	s.Prefix = "/" + strings.Trim(s.Prefix, "/")
	if s.Prefix == "/" {
		s.Prefix = ""
	}

	return s
}

// Handler returns the fully routed handler without tracing.
func (s *Server) Handler() http.Handler {
	return SetupRoutes(s)
}

// Close releases the rate limiter.
func (s *Server) Close() {
	s.limiter.Stop()
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	defer s.Close()

	instrumentedHandler := otelhttp.NewHandler(s.Handler(), "vulnfleet-server")

	s.srv = &http.Server{
		Addr:              s.Addr,
		Handler:           instrumentedHandler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Graceful Shutdown implementation
	go func() {
		<-ctx.Done()
		s.logger.Info("web server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.srv.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("web server shutdown error", zap.Error(err))
		}
	}()

	s.logger.Info("web server listening", zap.String("addr", s.Addr), zap.String("prefix", s.Prefix))
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
