package storefront

import (
	"container/list"
	"sync"
	"time"
)

const (
	// DefaultCacheTTL bounds how long a rotated token can keep authenticating
	// on an instance that missed the invalidation.
	DefaultCacheTTL = 5 * time.Minute
	// DefaultCacheMaxEntries caps memory use of the token cache.
	DefaultCacheMaxEntries = 10000
)

// CacheConfig configures a TokenCache.
type CacheConfig struct {
	TTL        time.Duration
	MaxEntries int
}

type cacheEntry struct {
	shop      string
	token     string
	expiresAt time.Time
}

// TokenCache is a bounded, TTL-based cache of storefront secrets keyed by
// shop domain. Eviction follows insertion order: when full, expired entries
// are purged first and then the oldest insert goes. It is process-local.
type TokenCache struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	order      *list.List // front = oldest insert
	ttl        time.Duration
	maxEntries int
	now        func() time.Time

	evictions int64
}

// NewTokenCache creates a cache. Non-positive config values fall back to the
// defaults.
func NewTokenCache(cfg CacheConfig) *TokenCache {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultCacheTTL
	}
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultCacheMaxEntries
	}
	return &TokenCache{
		items:      make(map[string]*list.Element),
		order:      list.New(),
		ttl:        cfg.TTL,
		maxEntries: cfg.MaxEntries,
		now:        time.Now,
	}
}

// Get returns the cached token for shop if present and unexpired.
func (c *TokenCache) Get(shop string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[shop]
	if !ok {
		return "", false
	}
	entry := elem.Value.(*cacheEntry)
	if !c.now().Before(entry.expiresAt) {
		c.removeLocked(elem)
		return "", false
	}
	return entry.token, true
}

// Set caches token for shop. Re-setting an existing shop refreshes its TTL
// and moves it to the newest insertion position.
func (c *TokenCache) Set(shop, token string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if elem, ok := c.items[shop]; ok {
		entry := elem.Value.(*cacheEntry)
		entry.token = token
		entry.expiresAt = now.Add(c.ttl)
		c.order.MoveToBack(elem)
		return
	}

	if c.order.Len() >= c.maxEntries {
		c.purgeExpiredLocked(now)
	}
	for c.order.Len() >= c.maxEntries {
		c.removeLocked(c.order.Front())
		c.evictions++
	}

	elem := c.order.PushBack(&cacheEntry{
		shop:      shop,
		token:     token,
		expiresAt: now.Add(c.ttl),
	})
	c.items[shop] = elem
}

// Clear invalidates one shop's entry, e.g. after token rotation.
func (c *TokenCache) Clear(shop string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[shop]; ok {
		c.removeLocked(elem)
	}
}

// ClearAll invalidates every entry.
func (c *TokenCache) ClearAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
}

// Len returns the number of entries, expired or not.
func (c *TokenCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Evictions returns how many live entries were dropped for capacity.
func (c *TokenCache) Evictions() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.evictions
}

func (c *TokenCache) purgeExpiredLocked(now time.Time) {
	for elem := c.order.Front(); elem != nil; {
		next := elem.Next()
		if !now.Before(elem.Value.(*cacheEntry).expiresAt) {
			c.removeLocked(elem)
		}
		elem = next
	}
}

func (c *TokenCache) removeLocked(elem *list.Element) {
	entry := c.order.Remove(elem).(*cacheEntry)
	delete(c.items, entry.shop)
}
