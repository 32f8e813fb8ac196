// Package storefront authenticates calls from a shop's storefront script
// against a per-shop secret.
package storefront

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// tokenByteLength is the number of random bytes in a storefront token.
// 32 bytes hex-encode to a 64-character string.
const tokenByteLength = 32

// TokenLength is the length of every token produced by GenerateToken.
const TokenLength = tokenByteLength * 2

// GenerateToken produces a random, fixed-length opaque storefront secret.
// It only fails if the system CSPRNG fails.
func GenerateToken() (string, error) {
	buf := make([]byte, tokenByteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating storefront token: crypto/rand failed: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
