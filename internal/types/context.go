package types

import (
	"context"
	"strings"
)

// Context Keys
type contextKey string

const (
	requestIDKey  contextKey = "request_id"
	shopDomainKey contextKey = "shop_domain"
)

// WithRequestID stores the request ID in the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey, id)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// WithShopDomain stores the caller's shop domain in the context. Set by the
// shop-resolution middleware so rate limiting and auth share one key.
func WithShopDomain(ctx context.Context, shop string) context.Context {
	return context.WithValue(ctx, shopDomainKey, shop)
}

// GetShopDomain retrieves the shop domain from the context.
func GetShopDomain(ctx context.Context) (string, bool) {
	shop, ok := ctx.Value(shopDomainKey).(string)
	return shop, ok && shop != ""
}

// NormalizeShopDomain lowercases and trims a shop domain so cache and rate
// limit keys do not split on case or stray whitespace.
func NormalizeShopDomain(shop string) string {
	return strings.ToLower(strings.TrimSpace(shop))
}
