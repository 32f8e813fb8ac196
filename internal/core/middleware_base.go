package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"dealbadge/internal/types"
)

// maxRequestIDLength bounds caller-supplied request ids.
const maxRequestIDLength = 128

// responseCapture records the status code written by downstream handlers.
type responseCapture struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rc *responseCapture) WriteHeader(code int) {
	if !rc.written {
		rc.statusCode = code
		rc.written = true
	}
	rc.ResponseWriter.WriteHeader(code)
}

func (rc *responseCapture) Write(b []byte) (int, error) {
	if !rc.written {
		rc.statusCode = http.StatusOK
		rc.written = true
	}
	return rc.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rc *responseCapture) Unwrap() http.ResponseWriter {
	return rc.ResponseWriter
}

// Recoverer converts a handler panic into a logged 500 error envelope.
// It must be the outermost middleware.
func (s *Server) Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}

			s.Logger.Error("panic recovered",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.String("request_id", types.GetRequestID(r.Context())),
				slog.String("panic", fmt.Sprintf("%v", rvr)),
				slog.String("stack", string(debug.Stack())),
			)

			Error(w, r, fmt.Errorf("panic: %v", rvr))
		}()

		next.ServeHTTP(w, r)
	})
}

// RequestIDMiddleware propagates X-Request-Id or generates a UUID, stores it
// in the context and echoes it on the response.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-Id")
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID = uuid.NewString()
		}

		w.Header().Set("X-Request-Id", requestID)
		next.ServeHTTP(w, r.WithContext(types.WithRequestID(r.Context(), requestID)))
	})
}

// ContextTimeoutMiddleware bounds every request context. Storage calls made
// by handlers inherit this deadline.
func ContextTimeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequestLogger logs one line per request. Values of redactedHeaders
// (case-insensitive) are masked.
func RequestLogger(logger *slog.Logger, redactedHeaders []string) func(http.Handler) http.Handler {
	redactSet := make(map[string]struct{}, len(redactedHeaders))
	for _, h := range redactedHeaders {
		redactSet[strings.ToLower(h)] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rc := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rc, r)

			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rc.statusCode),
				slog.Duration("duration", time.Since(start)),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if reqID := types.GetRequestID(r.Context()); reqID != "" {
				args = append(args, slog.String("request_id", reqID))
			}
			if shop, ok := types.GetShopDomain(r.Context()); ok {
				args = append(args, slog.String("shop", shop))
			}

			headers := make([]any, 0, len(r.Header))
			for name, values := range r.Header {
				if _, redact := redactSet[strings.ToLower(name)]; redact {
					headers = append(headers, slog.String(name, "[REDACTED]"))
					continue
				}
				headers = append(headers, slog.String(name, strings.Join(values, ", ")))
			}
			if len(headers) > 0 {
				args = append(args, slog.Group("headers", headers...))
			}

			switch {
			case rc.statusCode >= 500:
				logger.Error("request completed", args...)
			case rc.statusCode >= 400:
				logger.Warn("request completed", args...)
			default:
				logger.Info("request completed", args...)
			}
		})
	}
}

// MetricsMiddleware records latency and status per route pattern. The chi
// pattern is used instead of the raw path so shop domains do not explode
// metric cardinality.
func (s *Server) MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Metrics == nil {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		rc := &responseCapture{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rc, r)

		endpoint := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				endpoint = pattern
			}
		}
		s.Metrics.RecordRequest(r.Method, endpoint, strconv.Itoa(rc.statusCode), time.Since(start))
	})
}

// SecurityHeadersMiddleware sets the standard hardening headers.
func (s *Server) SecurityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}
