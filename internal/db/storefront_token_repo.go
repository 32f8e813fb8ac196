package db

import (
	"context"

	"dealbadge/internal/storefront"
	"dealbadge/internal/types"
)

// StorefrontTokenRepository stores one storefront secret per shop. It
// implements storefront.TokenStore.
type StorefrontTokenRepository struct {
	db DBTX
}

// NewStorefrontTokenRepository creates a StorefrontTokenRepository.
func NewStorefrontTokenRepository(db DBTX) *StorefrontTokenRepository {
	return &StorefrontTokenRepository{db: db}
}

var _ storefront.TokenStore = (*StorefrontTokenRepository)(nil)

// GetStorefrontToken returns storefront.ErrTokenNotFound when the shop has no
// token on record.
func (r *StorefrontTokenRepository) GetStorefrontToken(ctx context.Context, shop string) (string, error) {
	var token string
	err := r.db.QueryRow(ctx,
		`SELECT token FROM storefront_tokens WHERE shop_domain = $1`,
		shop,
	).Scan(&token)
	if err != nil {
		if isNoRows(err) {
			return "", storefront.ErrTokenNotFound
		}
		return "", types.NewAppError(types.ErrCodeInternalDB, "failed to load storefront token", err)
	}
	if token == "" {
		return "", storefront.ErrTokenNotFound
	}
	return token, nil
}

// SetStorefrontToken inserts or replaces the shop's token.
func (r *StorefrontTokenRepository) SetStorefrontToken(ctx context.Context, shop, token string) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO storefront_tokens (shop_domain, token, rotated_at)
		 VALUES ($1, $2, NOW())
		 ON CONFLICT (shop_domain) DO UPDATE
		 SET token = EXCLUDED.token, rotated_at = NOW()`,
		shop, token,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to store storefront token", err)
	}
	return nil
}
