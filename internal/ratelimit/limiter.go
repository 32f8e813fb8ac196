// Package ratelimit implements per-shop fixed-window request throttling.
//
// Windows are held in the Limiter value owned by the hosting process. They are
// not shared across instances: N replicas give each shop N independent
// budgets. Swapping in a shared store later only needs another type with the
// same Check/Reset methods.
//
// The key is whatever shop the caller resolved. On storefront routes that is
// the X-Shop-Domain header, read before the storefront token is verified, so
// a client can spend another shop's budget by sending its domain.
package ratelimit

import (
	"math"
	"sync"
	"time"
)

const (
	// DefaultLimit is the number of requests allowed per window.
	DefaultLimit = 60
	// DefaultWindow is the fixed window length.
	DefaultWindow = time.Minute
)

// Config controls window capacity and length.
type Config struct {
	Limit  int
	Window time.Duration
}

// Result is the outcome of one Check.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is the whole number of seconds until the window resets.
	// Zero unless the request was throttled.
	RetryAfter int
	ResetAt    time.Time
}

type window struct {
	count int
	start time.Time
}

// Limiter counts requests per shop in fixed windows. Safe for concurrent use.
type Limiter struct {
	mu      sync.Mutex
	cfg     Config
	now     func() time.Time
	windows map[string]*window
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock overrides the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a Limiter. Non-positive config values fall back to the defaults.
func New(cfg Config, opts ...Option) *Limiter {
	if cfg.Limit <= 0 {
		cfg.Limit = DefaultLimit
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	l := &Limiter{
		cfg:     cfg,
		now:     time.Now,
		windows: make(map[string]*window),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Limit returns the configured window capacity.
func (l *Limiter) Limit() int {
	return l.cfg.Limit
}

// Check counts one request for shop and reports whether it may proceed.
// Requests without a shop identifier are never throttled.
func (l *Limiter) Check(shop string) Result {
	if shop == "" {
		return Result{Allowed: true, Limit: l.cfg.Limit, Remaining: l.cfg.Limit}
	}

	now := l.now()

	l.mu.Lock()
	w, ok := l.windows[shop]
	if !ok || !now.Before(w.start.Add(l.cfg.Window)) {
		w = &window{start: now}
		l.windows[shop] = w
	}
	w.count++
	count := w.count
	resetAt := w.start.Add(l.cfg.Window)
	l.mu.Unlock()

	res := Result{
		Allowed:   count <= l.cfg.Limit,
		Limit:     l.cfg.Limit,
		Remaining: max(0, l.cfg.Limit-count),
		ResetAt:   resetAt,
	}
	if !res.Allowed {
		res.RetryAfter = max(1, int(math.Ceil(resetAt.Sub(now).Seconds())))
	}
	return res
}

// Reset clears the window for one shop.
func (l *Limiter) Reset(shop string) {
	l.mu.Lock()
	delete(l.windows, shop)
	l.mu.Unlock()
}

// ResetAll clears every window.
func (l *Limiter) ResetAll() {
	l.mu.Lock()
	l.windows = make(map[string]*window)
	l.mu.Unlock()
}

// Sweep drops windows that have already elapsed and returns how many were
// removed. Called periodically so idle shops do not accumulate.
func (l *Limiter) Sweep() int {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for shop, w := range l.windows {
		if !now.Before(w.start.Add(l.cfg.Window)) {
			delete(l.windows, shop)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked windows.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}
