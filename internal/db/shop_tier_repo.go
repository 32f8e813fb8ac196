package db

import (
	"context"
	"encoding/json"
	"time"

	"dealbadge/internal/types"
)

// shopTierColumns is the column list scanned by scanShopTier. Keep the two in
// the same order.
const shopTierColumns = `shop_domain, tier, billing_tier,
	pending_tier, pending_tier_effective_at, pending_tier_source_subscription_id, pending_tier_context,
	trial_ends_at, trial_recorded_at, trial_source_subscription_id,
	billing_current_period_end, live_discount_limit, created_at, updated_at`

// PendingChange is the set of fields written when a tier transition is
// scheduled.
type PendingChange struct {
	Tier           types.Tier
	EffectiveAt    time.Time
	SubscriptionID *string
	Context        json.RawMessage
}

// ShopTierRepository persists one entitlement row per shop domain in the
// shop_tiers table.
//
// Every pending-transition field is written or cleared in the same statement,
// so a reader never observes a pending tier without its effective date.
type ShopTierRepository struct {
	db DBTX
}

// NewShopTierRepository creates a ShopTierRepository.
func NewShopTierRepository(db DBTX) *ShopTierRepository {
	return &ShopTierRepository{db: db}
}

func scanShopTier(row interface{ Scan(dest ...any) error }) (*types.ShopTierState, error) {
	var s types.ShopTierState
	err := row.Scan(
		&s.ShopDomain,
		&s.Tier,
		&s.BillingTier,
		&s.PendingTier,
		&s.PendingTierEffectiveAt,
		&s.PendingTierSourceSubscriptionID,
		&s.PendingTierContext,
		&s.TrialEndsAt,
		&s.TrialRecordedAt,
		&s.TrialSourceSubscriptionID,
		&s.BillingCurrentPeriodEnd,
		&s.LiveDiscountLimit,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Get loads a shop's entitlement row. Returns not_found_shop when the shop
// has never been seen.
func (r *ShopTierRepository) Get(ctx context.Context, shop string) (*types.ShopTierState, error) {
	s, err := scanShopTier(r.db.QueryRow(ctx,
		`SELECT `+shopTierColumns+` FROM shop_tiers WHERE shop_domain = $1`,
		shop,
	))
	if err != nil {
		if isNoRows(err) {
			return nil, types.NewAppError(types.ErrCodeNotFoundShop, "shop not found", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to load shop tier", err)
	}
	return s, nil
}

// Create inserts a shop at the given tier. If a concurrent request created the
// row first, the existing row is returned unchanged.
func (r *ShopTierRepository) Create(ctx context.Context, shop string, tier types.Tier, limit *int) (*types.ShopTierState, error) {
	s, err := scanShopTier(r.db.QueryRow(ctx,
		`INSERT INTO shop_tiers (shop_domain, tier, billing_tier, live_discount_limit, created_at, updated_at)
		 VALUES ($1, $2, $2, $3, NOW(), NOW())
		 ON CONFLICT (shop_domain) DO UPDATE SET shop_domain = EXCLUDED.shop_domain
		 RETURNING `+shopTierColumns,
		shop, tier, limit,
	))
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to create shop tier", err)
	}
	return s, nil
}

// SyncBillingTier overwrites billing_tier only.
func (r *ShopTierRepository) SyncBillingTier(ctx context.Context, shop string, billing types.Tier) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE shop_tiers SET billing_tier = $2, updated_at = NOW() WHERE shop_domain = $1`,
		shop, billing,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to sync billing tier", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundShop, "shop not found", nil)
	}
	return nil
}

// SchedulePending records a future transition and moves billing_tier to the
// target straight away.
func (r *ShopTierRepository) SchedulePending(ctx context.Context, shop string, change PendingChange) error {
	var pendingContext any
	if len(change.Context) > 0 {
		pendingContext = []byte(change.Context)
	}
	tag, err := r.db.Exec(ctx,
		`UPDATE shop_tiers
		 SET pending_tier = $2,
		     pending_tier_effective_at = $3,
		     pending_tier_source_subscription_id = $4,
		     pending_tier_context = $5,
		     billing_tier = $2,
		     updated_at = NOW()
		 WHERE shop_domain = $1`,
		shop, change.Tier, change.EffectiveAt, change.SubscriptionID, pendingContext,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to schedule tier change", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundShop, "shop not found", nil)
	}
	return nil
}

// ApplyPending promotes the pending tier to the effective tier.
//
// The UPDATE only matches while pending_tier and pending_tier_effective_at
// still hold the values the caller read. It reports false when another
// caller got there first, which makes application idempotent.
func (r *ShopTierRepository) ApplyPending(ctx context.Context, shop string, expected types.Tier, expectedAt time.Time, limit *int) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`UPDATE shop_tiers
		 SET tier = $2,
		     billing_tier = $2,
		     live_discount_limit = $4,
		     billing_current_period_end = NULL,
		     pending_tier = NULL,
		     pending_tier_effective_at = NULL,
		     pending_tier_source_subscription_id = NULL,
		     pending_tier_context = NULL,
		     updated_at = NOW()
		 WHERE shop_domain = $1
		   AND pending_tier = $2
		   AND pending_tier_effective_at = $3`,
		shop, expected, expectedAt, limit,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to apply pending tier", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ClearPending drops every pending field and converges billing_tier back to
// tier. It is also used to discard a pending tier that is not a catalog key.
func (r *ShopTierRepository) ClearPending(ctx context.Context, shop string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE shop_tiers
		 SET pending_tier = NULL,
		     pending_tier_effective_at = NULL,
		     pending_tier_source_subscription_id = NULL,
		     pending_tier_context = NULL,
		     billing_tier = tier,
		     updated_at = NOW()
		 WHERE shop_domain = $1`,
		shop,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to clear pending tier", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundShop, "shop not found", nil)
	}
	return nil
}

// SetTier is the administrative override: tier, limit and billing tier move
// together and any pending transition is discarded.
func (r *ShopTierRepository) SetTier(ctx context.Context, shop string, tier types.Tier, limit *int) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE shop_tiers
		 SET tier = $2,
		     billing_tier = $2,
		     live_discount_limit = $3,
		     pending_tier = NULL,
		     pending_tier_effective_at = NULL,
		     pending_tier_source_subscription_id = NULL,
		     pending_tier_context = NULL,
		     updated_at = NOW()
		 WHERE shop_domain = $1`,
		shop, tier, limit,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to update shop tier", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundShop, "shop not found", nil)
	}
	return nil
}

// SetBillingPeriodEnd stores the end of the billing provider's current
// period, used as the default effective date for scheduled changes.
func (r *ShopTierRepository) SetBillingPeriodEnd(ctx context.Context, shop string, end *time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE shop_tiers SET billing_current_period_end = $2, updated_at = NOW() WHERE shop_domain = $1`,
		shop, end,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to set billing period end", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundShop, "shop not found", nil)
	}
	return nil
}

// RecordTrial stores the trial end and the subscription that granted it.
func (r *ShopTierRepository) RecordTrial(ctx context.Context, shop string, endsAt time.Time, subscriptionID *string) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE shop_tiers
		 SET trial_ends_at = $2,
		     trial_recorded_at = NOW(),
		     trial_source_subscription_id = $3,
		     updated_at = NOW()
		 WHERE shop_domain = $1`,
		shop, endsAt, subscriptionID,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to record trial", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeNotFoundShop, "shop not found", nil)
	}
	return nil
}

// ListDuePending returns up to limit shops whose pending transition is due at
// now, oldest first.
func (r *ShopTierRepository) ListDuePending(ctx context.Context, now time.Time, limit int) ([]string, error) {
	rows, err := r.db.Query(ctx,
		`SELECT shop_domain FROM shop_tiers
		 WHERE pending_tier IS NOT NULL
		   AND pending_tier_effective_at <= $1
		 ORDER BY pending_tier_effective_at ASC
		 LIMIT $2`,
		now, limit,
	)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to list due tier changes", err)
	}
	defer rows.Close()

	var shops []string
	for rows.Next() {
		var shop string
		if err := rows.Scan(&shop); err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to scan due tier change", err)
		}
		shops = append(shops, shop)
	}
	if err := rows.Err(); err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "error iterating due tier changes", err)
	}
	return shops, nil
}
