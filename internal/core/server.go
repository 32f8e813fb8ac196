package core

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"dealbadge/internal/config"
)

// MetricsCollector records request latency and counts.
type MetricsCollector interface {
	RecordRequest(method, endpoint, status string, duration time.Duration)
}

// RouteRegistrar mounts handler routes onto a router group prepared by
// MountRoutes. Handler packages supply these to avoid an import cycle.
type RouteRegistrar func(r chi.Router)

// Server is the HTTP chassis. Domain dependencies are injected after
// construction; any that are left nil disable the middleware that uses them.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator
	Metrics   MetricsCollector

	// Authenticator verifies storefront tokens.
	Authenticator StorefrontVerifier
	// Limiter throttles storefront and admin calls per shop.
	Limiter RateLimiter

	HealthProbes []HealthProbe

	// StorefrontRoutes are mounted under /v1/storefront behind shop
	// resolution, rate limiting, storefront auth and compression.
	StorefrontRoutes []RouteRegistrar
	// AdminShopRoutes are mounted under /v1/admin/shops/{shop} behind the
	// admin key check and per-shop rate limiting.
	AdminShopRoutes []RouteRegistrar
	// PublicRoutes are mounted under /v1 with no authentication. Handlers
	// registered here must verify their own callers.
	PublicRoutes []RouteRegistrar

	router *chi.Mux
}

// NewServer creates the server and its router. Routes are mounted by
// MountRoutes once every dependency has been injected.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("core: config is required")
	}
	if logger == nil {
		return nil, errors.New("core: logger is required")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the root http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router exposes the chi router for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown is called by the entrypoint after the HTTP listener has drained.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}
