// Package main is the entry point for the dealbadge API server.
//
// It loads configuration, opens the Postgres pool, builds the entitlement
// service, the storefront authenticator and the per-shop rate limiter, mounts
// the HTTP handlers on the core chassis and serves until SIGINT or SIGTERM.
package main

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

	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"dealbadge/internal/api/handlers"
	"dealbadge/internal/billing"
	"dealbadge/internal/config"
	"dealbadge/internal/core"
	"dealbadge/internal/db"
	"dealbadge/internal/entitlement"
	"dealbadge/internal/observability"
	"dealbadge/internal/queue"
	"dealbadge/internal/ratelimit"
	"dealbadge/internal/storefront"
)

// metricsFlushInterval is how often buffered request metrics are shipped.
const metricsFlushInterval = time.Minute

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// Entitlements is the entitlement surface the handlers need.
// *entitlement.Service satisfies it.
type Entitlements interface {
	handlers.TierResolver
	handlers.TierService
}

// Tokens verifies and rotates storefront tokens. *storefront.Authenticator
// satisfies it.
type Tokens interface {
	core.StorefrontVerifier
	handlers.TokenRotator
}

// deps are the domain dependencies wired into the server.
type deps struct {
	Entitlements Entitlements
	Tokens       Tokens
	Limiter      core.RateLimiter
	Metrics      core.MetricsCollector
	Probes       []core.HealthProbe
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := observability.NewLogger(os.Stdout, cfg.LogLevel, cfg.Service)
	logger.Info("dealbadge API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.Database.URL.Unmask(), cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	opts := []entitlement.Option{entitlement.WithQueryTimeout(cfg.Database.QueryTimeout)}
	var metrics *observability.CloudWatchMetrics
	if cfg.AWS.TierEventsQueueURL != "" || cfg.Observability.EnableMetrics {
		awsCfg, err := config.LoadAWSConfig(ctx, cfg.AWS)
		if err != nil {
			return err
		}
		if cfg.AWS.TierEventsQueueURL != "" {
			opts = append(opts, entitlement.WithEventPublisher(
				queue.NewTierEventPublisher(sqs.NewFromConfig(awsCfg), cfg.AWS, logger)))
		}
		if cfg.Observability.EnableMetrics {
			metrics = observability.NewCloudWatchMetrics(cloudwatch.NewFromConfig(awsCfg), cfg.Observability.MetricNamespace, logger)
			go metrics.Run(ctx, metricsFlushInterval)
		}
	}

	service := entitlement.NewService(
		db.NewShopTierRepository(pool),
		db.NewDiscountRepository(pool, db.NewPoolTransactor(pool)),
		billing.NewStaticTierCatalog(),
		logger,
		opts...,
	)

	authenticator := storefront.NewAuthenticator(
		db.NewStorefrontTokenRepository(pool),
		storefront.NewTokenCache(storefront.CacheConfig{
			TTL:        cfg.Storefront.TokenCacheTTL,
			MaxEntries: cfg.Storefront.TokenCacheMaxEntries,
		}),
		logger,
		storefront.WithLookupTimeout(cfg.Database.QueryTimeout),
	)

	limiter := ratelimit.New(ratelimit.Config{Limit: cfg.RateLimit.Max, Window: cfg.RateLimit.Window})
	go sweepLimiter(ctx, limiter, cfg.RateLimit.SweepInterval, logger)

	d := deps{
		Entitlements: service,
		Tokens:       authenticator,
		Limiter:      limiter,
		Probes:       []core.HealthProbe{core.NewPingProbe("database", pool.Ping)},
	}
	if metrics != nil {
		d.Metrics = metrics
	}

	srv, err := buildServer(cfg, logger, d)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	return serveHTTP(ctx, srv, cfg, logger)
}

// buildServer wires handlers and middleware dependencies onto the chassis
// and mounts the routes.
func buildServer(cfg *config.Config, logger *slog.Logger, d deps) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, err
	}
	srv.Authenticator = d.Tokens
	srv.Limiter = d.Limiter
	srv.Metrics = d.Metrics
	srv.HealthProbes = d.Probes

	pricing := handlers.NewPricingHandler(d.Entitlements, logger)
	srv.StorefrontRoutes = append(srv.StorefrontRoutes, pricing.RegisterRoutes)

	tiers := handlers.NewTierHandler(d.Entitlements, d.Tokens, srv.Validator, logger)
	srv.AdminShopRoutes = append(srv.AdminShopRoutes, tiers.RegisterRoutes)

	if !cfg.Billing.StripeWebhookSecret.IsEmpty() {
		webhook := handlers.NewStripeWebhookHandler(d.Entitlements, cfg.Billing.StripeWebhookSecret.Unmask(), logger)
		srv.PublicRoutes = append(srv.PublicRoutes, webhook.RegisterRoutes)
	} else {
		logger.Warn("STRIPE_WEBHOOK_SECRET not set, Stripe webhook disabled")
	}

	srv.MountRoutes()
	return srv, nil
}

// sweepLimiter drops idle rate-limit windows so memory tracks active shops.
func sweepLimiter(ctx context.Context, l *ratelimit.Limiter, every time.Duration, logger *slog.Logger) {
	if every <= 0 {
		return
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(); n > 0 {
				logger.Debug("rate limiter swept", "removed", n, "remaining", l.Len())
			}
		}
	}
}

// serveHTTP serves until ctx is cancelled, then drains in-flight requests.
func serveHTTP(ctx context.Context, srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}
