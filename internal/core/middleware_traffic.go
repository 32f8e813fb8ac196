package core

import (
	"log/slog"
	"net/http"

	"github.com/klauspost/compress/gzhttp"

	"dealbadge/internal/ratelimit"
	"dealbadge/internal/types"
)

// RateLimit throttles requests per shop using the injected Limiter.
//
// The shop key comes from the context (set by ShopFromHeader or
// ShopFromURLParam). Requests without a shop pass through; the limiter
// never throttles an empty key either.
//
// Allowed responses carry X-RateLimit-Limit and X-RateLimit-Remaining.
// Throttled requests get a 429 with Retry-After and the
// {"error","retryAfter"} body the storefront script expects.
func (s *Server) RateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Limiter == nil {
			next.ServeHTTP(w, r)
			return
		}

		shop, _ := types.GetShopDomain(r.Context())
		res := s.Limiter.Check(shop)
		if !res.Allowed {
			s.Logger.Warn("rate limit exceeded",
				slog.String("shop", shop),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("retry_after", res.RetryAfter),
			)
			ratelimit.WriteTooManyRequests(w, res)
			return
		}

		ratelimit.ApplyHeaders(w, res)
		next.ServeHTTP(w, r)
	})
}

// Compress gzips responses for clients that accept it. Small bodies are
// left alone by gzhttp's minimum size threshold.
func Compress(next http.Handler) http.Handler {
	return gzhttp.GzipHandler(next)
}
