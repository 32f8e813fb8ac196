package core

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"dealbadge/internal/types"
)

// defaultRequestTimeout applies when the config leaves REQUEST_TIMEOUT unset.
const defaultRequestTimeout = 10 * time.Second

// redactedHeaders are masked in request logs.
var redactedHeaders = []string{
	"Authorization",
	"Cookie",
	HeaderStorefrontToken,
	HeaderAdminKey,
	"Stripe-Signature",
}

// MountRoutes builds the middleware chain and the route tree:
//
//	GET  /health
//	/v1/storefront/*             shop header, rate limit, storefront auth, gzip
//	/v1/admin/shops/{shop}/*     admin key, shop param, rate limit
//	/v1/*                        PublicRoutes (self-authenticating)
func (s *Server) MountRoutes() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, redactedHeaders))
	s.router.Use(s.MetricsMiddleware)

	s.router.Get("/health", s.HandleHealth)
	s.router.Route("/v1", s.mountV1)

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		Error(w, r, types.NewAppError(types.ErrCodeNotFoundRoute, "no route for "+r.Method+" "+r.URL.Path, nil))
	})
}

func (s *Server) mountV1(r chi.Router) {
	r.Route("/storefront", func(r chi.Router) {
		r.Use(ShopFromHeader)
		// Keyed on the unverified header; throttles before any token lookup.
		r.Use(s.RateLimit)
		r.Use(s.StorefrontAuth)
		r.Use(Compress)
		for _, register := range s.StorefrontRoutes {
			register(r)
		}
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(s.AdminAuth)
		r.Route("/shops/{shop}", func(r chi.Router) {
			r.Use(ShopFromURLParam)
			r.Use(s.RateLimit)
			for _, register := range s.AdminShopRoutes {
				register(r)
			}
		})
	})

	for _, register := range s.PublicRoutes {
		register(r)
	}
}

func (s *Server) requestTimeout() time.Duration {
	if s.Config != nil && s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}
