package core

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"dealbadge/internal/storefront"
	"dealbadge/internal/types"
)

// Header names read by the auth middleware.
const (
	HeaderShopDomain      = "X-Shop-Domain"
	HeaderStorefrontToken = "X-Storefront-Token"
	HeaderAdminKey        = "X-Admin-Key"
)

// ShopFromHeader resolves the calling shop from X-Shop-Domain. A request
// without one is rejected before rate limiting or auth run.
func ShopFromHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		shop := types.NormalizeShopDomain(r.Header.Get(HeaderShopDomain))
		if shop == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthShopMissing, HeaderShopDomain+" header is required", nil))
			return
		}
		next.ServeHTTP(w, r.WithContext(types.WithShopDomain(r.Context(), shop)))
	})
}

// ShopFromURLParam resolves the shop from the {shop} route parameter.
func ShopFromURLParam(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		shop := types.NormalizeShopDomain(chi.URLParam(r, "shop"))
		if shop == "" {
			Error(w, r, types.NewAppError(types.ErrCodeValidationMissingField, "shop is required", nil))
			return
		}
		next.ServeHTTP(w, r.WithContext(types.WithShopDomain(r.Context(), shop)))
	})
}

// StorefrontAuth verifies X-Storefront-Token for the shop in context.
//
// With enforcement on, any failure (missing token, unknown shop, mismatch,
// unreachable store) is a 401. With enforcement off the failure is logged
// and the request continues.
//
// If no Authenticator is configured the middleware passes through.
func (s *Server) StorefrontAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.Authenticator == nil {
			next.ServeHTTP(w, r)
			return
		}

		shop, _ := types.GetShopDomain(r.Context())
		err := s.Authenticator.Verify(r.Context(), shop, r.Header.Get(HeaderStorefrontToken))
		if err == nil {
			next.ServeHTTP(w, r)
			return
		}

		enforce := s.Config.Storefront.AuthEnforce
		s.Logger.Warn("storefront auth failed",
			slog.String("shop", shop),
			slog.String("reason", err.Error()),
			slog.Bool("enforced", enforce),
			slog.String("request_id", types.GetRequestID(r.Context())),
		)
		if !enforce {
			next.ServeHTTP(w, r)
			return
		}

		code := types.ErrCodeAuthTokenInvalid
		msg := "invalid storefront token"
		if errors.Is(err, storefront.ErrMissingCredentials) {
			code = types.ErrCodeAuthTokenMissing
			msg = HeaderStorefrontToken + " header is required"
		}
		Error(w, r, types.NewAppError(code, msg, err))
	})
}

// AdminAuth checks X-Admin-Key against the configured bcrypt hash.
func (s *Server) AdminAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderAdminKey)
		if key == "" {
			Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, HeaderAdminKey+" header is required", nil))
			return
		}

		hash := s.Config.Admin.APIKeyHash.Unmask()
		if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(key)); err != nil {
			if !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
				s.Logger.Error("admin key hash unusable", slog.String("error", err.Error()))
			}
			s.Logger.Warn("admin auth failed",
				slog.String("path", r.URL.Path),
				slog.String("remote_addr", r.RemoteAddr),
			)
			Error(w, r, types.NewAppError(types.ErrCodeAuthAdminInvalid, "invalid admin key", nil))
			return
		}

		next.ServeHTTP(w, r)
	})
}
