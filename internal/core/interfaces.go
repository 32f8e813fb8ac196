package core

import (
	"context"

	"dealbadge/internal/ratelimit"
)

// StorefrontVerifier checks a storefront caller's token for a shop. A nil
// error means the caller is authenticated.
type StorefrontVerifier interface {
	Verify(ctx context.Context, shop, token string) error
}

// RateLimiter counts one request for a shop.
type RateLimiter interface {
	Check(shop string) ratelimit.Result
}
