package storefront

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/sync/singleflight"
)

// Verification failures. All of them mean "not authenticated"; they exist so
// callers can log a reason.
var (
	ErrMissingCredentials = errors.New("storefront: missing shop or token")
	ErrTokenNotFound      = errors.New("storefront: no token on record for shop")
	ErrTokenMismatch      = errors.New("storefront: token mismatch")
	ErrStoreUnavailable   = errors.New("storefront: token store unavailable")
)

// TokenStore is the durable home of each shop's storefront secret.
type TokenStore interface {
	// GetStorefrontToken returns ErrTokenNotFound when the shop has no token.
	GetStorefrontToken(ctx context.Context, shop string) (string, error)
	SetStorefrontToken(ctx context.Context, shop, token string) error
}

// Authenticator verifies storefront tokens through a cache-aside lookup.
// Concurrent misses for the same shop share one store call, and store calls
// run behind a circuit breaker so an outage fails closed quickly.
type Authenticator struct {
	store         TokenStore
	cache         *TokenCache
	group         singleflight.Group
	breaker       *gobreaker.CircuitBreaker[string]
	compare       func(x, y []byte) int
	lookupTimeout time.Duration
	logger        *slog.Logger

	// mu orders cache fills against rotations. A load that started before
	// the latest rotation never writes its result to the cache.
	mu        sync.Mutex
	rotations uint64
}

// defaultLookupTimeout bounds one shared store load.
const defaultLookupTimeout = 3 * time.Second

// AuthenticatorOption configures an Authenticator.
type AuthenticatorOption func(*Authenticator)

// WithComparator replaces the constant-time comparator. Tests use it to
// observe when comparison happens.
func WithComparator(fn func(x, y []byte) int) AuthenticatorOption {
	return func(a *Authenticator) {
		a.compare = fn
	}
}

// WithBreaker replaces the default circuit breaker around store loads.
func WithBreaker(cb *gobreaker.CircuitBreaker[string]) AuthenticatorOption {
	return func(a *Authenticator) {
		a.breaker = cb
	}
}

// WithLookupTimeout bounds a store load. The load is detached from the
// caller's context because every waiter on the same shop shares it.
func WithLookupTimeout(d time.Duration) AuthenticatorOption {
	return func(a *Authenticator) {
		if d > 0 {
			a.lookupTimeout = d
		}
	}
}

// NewAuthenticator wires an Authenticator over store and cache.
func NewAuthenticator(store TokenStore, cache *TokenCache, logger *slog.Logger, opts ...AuthenticatorOption) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	a := &Authenticator{
		store:   store,
		cache:   cache,
		compare:       subtle.ConstantTimeCompare,
		lookupTimeout: defaultLookupTimeout,
		logger:        logger,
		breaker: gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
			Name:        "storefront-token-store",
			MaxRequests: 1,
			Interval:    60 * time.Second,
			Timeout:     15 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures > 5
			},
			// A missing token or an abandoned request says nothing about
			// the store's health.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrTokenNotFound) || errors.Is(err, context.Canceled)
			},
		}),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Authenticate reports whether provided is the shop's current token.
// Every failure path returns false.
func (a *Authenticator) Authenticate(ctx context.Context, shop, provided string) bool {
	return a.Verify(ctx, shop, provided) == nil
}

// Verify is Authenticate with the failure reason.
func (a *Authenticator) Verify(ctx context.Context, shop, provided string) error {
	if shop == "" || provided == "" {
		return ErrMissingCredentials
	}

	stored, err := a.lookup(ctx, shop)
	if err != nil {
		return err
	}

	// ConstantTimeCompare returns early on unequal lengths, so reject those
	// explicitly and only compare equal-length inputs.
	if len(stored) != len(provided) {
		return ErrTokenMismatch
	}
	if a.compare([]byte(stored), []byte(provided)) != 1 {
		return ErrTokenMismatch
	}
	return nil
}

// lookup returns the shop's token from the cache, falling back to the store
// and populating the cache on a hit unless a rotation happened meanwhile.
func (a *Authenticator) lookup(ctx context.Context, shop string) (string, error) {
	if token, ok := a.cache.Get(shop); ok {
		return token, nil
	}

	v, err, _ := a.group.Do(shop, func() (interface{}, error) {
		a.mu.Lock()
		gen := a.rotations
		a.mu.Unlock()

		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.lookupTimeout)
		defer cancel()
		token, err := a.breaker.Execute(func() (string, error) {
			return a.store.GetStorefrontToken(loadCtx, shop)
		})
		if err == nil && token != "" {
			a.mu.Lock()
			if a.rotations == gen {
				a.cache.Set(shop, token)
			}
			a.mu.Unlock()
		}
		return token, err
	})
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return "", ErrTokenNotFound
		}
		a.logger.Error("storefront token lookup failed",
			slog.String("shop", shop),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	token := v.(string)
	if token == "" {
		return "", ErrTokenNotFound
	}
	return token, nil
}

// Rotate issues a new token for shop, persists it and drops the cached copy.
func (a *Authenticator) Rotate(ctx context.Context, shop string) (string, error) {
	token, err := GenerateToken()
	if err != nil {
		return "", err
	}
	if err := a.store.SetStorefrontToken(ctx, shop, token); err != nil {
		return "", err
	}
	a.mu.Lock()
	a.rotations++
	a.group.Forget(shop)
	a.cache.Clear(shop)
	a.mu.Unlock()
	a.logger.Info("storefront token rotated", slog.String("shop", shop))
	return token, nil
}

// ClearCache invalidates the cached token for one shop.
func (a *Authenticator) ClearCache(shop string) {
	a.cache.Clear(shop)
}

// ClearAllCache invalidates every cached token.
func (a *Authenticator) ClearAllCache() {
	a.cache.ClearAll()
}
