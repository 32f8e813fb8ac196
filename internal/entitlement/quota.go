package entitlement

import (
	"context"
	"log/slog"
	"time"

	"dealbadge/internal/types"
)

// Decision reasons reported by CanHaveMoreLiveDiscounts.
const (
	ReasonUnlimited    = "unlimited"
	ReasonUnderLimit   = "under_limit"
	ReasonLimitReached = "limit_reached"
	ReasonLookupFailed = "lookup_failed"
)

// LiveDiscountDecision answers whether a shop may publish another LIVE
// discount.
type LiveDiscountDecision struct {
	CanCreate    bool       `json:"can_create"`
	Reason       string     `json:"reason"`
	CurrentCount int        `json:"current_count"`
	Limit        *int       `json:"limit"`
	Tier         types.Tier `json:"tier"`
	Defaulted    bool       `json:"defaulted"`
	Err          error      `json:"-"`
}

// CanHaveMoreLiveDiscounts resolves the shop's tier, reclassifies discounts
// the tier now permits, enforces the live quota and compares the live count
// with the limit. Internal failures allow creation at FREE and set Defaulted.
func (s *Service) CanHaveMoreLiveDiscounts(ctx context.Context, shop string) LiveDiscountDecision {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	shop = types.NormalizeShopDomain(shop)
	now := s.now()
	state, err := s.resolve(ctx, shop, now)
	if err != nil {
		return s.failOpen(shop, err)
	}

	s.reclassifyUpgradeRequired(ctx, state, now)

	limit := s.catalog.LiveDiscountLimit(state.Tier)
	if limit == nil {
		return LiveDiscountDecision{CanCreate: true, Reason: ReasonUnlimited, Tier: state.Tier}
	}

	count, err := s.countLiveAndEnforce(ctx, shop, state.Tier, *limit)
	if err != nil {
		return s.failOpen(shop, err)
	}

	d := LiveDiscountDecision{
		CanCreate:    count < *limit,
		Reason:       ReasonUnderLimit,
		CurrentCount: count,
		Limit:        limit,
		Tier:         state.Tier,
	}
	if !d.CanCreate {
		d.Reason = ReasonLimitReached
	}
	return d
}

// countLiveAndEnforce reads the live count for a limited tier. An over-quota
// shop has every LIVE discount hidden and reports 0.
func (s *Service) countLiveAndEnforce(ctx context.Context, shop string, tier types.Tier, limit int) (int, error) {
	res, err := s.discounts.CountLiveAndEnforce(ctx, shop, limit)
	if err != nil {
		return 0, err
	}
	if res.Demoted > 0 {
		s.logger.Warn("live discount quota enforced",
			slog.String("shop", shop),
			slog.String("tier", string(tier)),
			slog.Int("limit", limit),
			slog.Int("demoted", res.Demoted),
		)
		s.publish(ctx, types.TierEvent{
			Type:       types.TierEventQuotaEnforced,
			ShopDomain: shop,
			FromTier:   tier,
			ToTier:     tier,
			Demoted:    res.Demoted,
		})
	}
	return res.Count, nil
}

func (s *Service) failOpen(shop string, err error) LiveDiscountDecision {
	s.logger.Error("live discount check failed, allowing at FREE",
		slog.String("shop", shop),
		slog.String("error", err.Error()),
	)
	return LiveDiscountDecision{
		CanCreate: true,
		Reason:    ReasonLookupFailed,
		Limit:     s.catalog.LiveDiscountLimit(types.TierFree),
		Tier:      types.TierFree,
		Defaulted: true,
		Err:       err,
	}
}

// reclassifyUpgradeRequired releases UPGRADE_REQUIRED discounts whose
// exclusion reason the shop's tier now permits. A discount that starts in
// the future becomes SCHEDULED and anything else becomes HIDDEN; none go
// straight to LIVE. Failures are logged and skipped.
func (s *Service) reclassifyUpgradeRequired(ctx context.Context, state *types.ShopTierState, now time.Time) int {
	blocked, err := s.discounts.ListByStatus(ctx, state.ShopDomain, types.DiscountStatusUpgradeRequired)
	if err != nil {
		s.logger.Warn("failed to list upgrade-required discounts",
			slog.String("shop", state.ShopDomain),
			slog.String("error", err.Error()),
		)
		return 0
	}

	moved := 0
	for _, d := range blocked {
		next, ok := s.reclassifiedStatus(state.Tier, d, now)
		if !ok {
			continue
		}
		updated, err := s.discounts.UpdateStatus(ctx, d.ID, types.DiscountStatusUpgradeRequired, next)
		if err != nil {
			s.logger.Warn("failed to reclassify discount",
				slog.String("shop", state.ShopDomain),
				slog.String("discount_id", d.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if updated {
			moved++
		}
	}
	if moved > 0 {
		s.logger.Info("upgrade-required discounts reclassified",
			slog.String("shop", state.ShopDomain),
			slog.String("tier", string(state.Tier)),
			slog.Int("count", moved),
		)
	}
	return moved
}

// reclassifiedStatus returns the status an UPGRADE_REQUIRED discount moves to
// at tier, or false if it stays blocked.
func (s *Service) reclassifiedStatus(tier types.Tier, d types.Discount, now time.Time) (types.DiscountStatus, bool) {
	feature, ok := d.ExclusionReason.Feature()
	if !ok || !s.catalog.Allows(tier, feature) {
		return "", false
	}
	if d.StartsAt != nil && d.StartsAt.After(now) {
		return types.DiscountStatusScheduled, true
	}
	return types.DiscountStatusHidden, true
}

// ShopTierInfo is the resolved entitlement view exposed to operators.
type ShopTierInfo struct {
	ShopDomain              string      `json:"shop_domain"`
	Tier                    types.Tier  `json:"tier"`
	TierName                string      `json:"tier_name"`
	PriceCents              int         `json:"price_cents"`
	LiveDiscountLimit       *int        `json:"live_discount_limit"`
	LiveDiscountCount       int         `json:"live_discount_count"`
	UsagePercent            float64     `json:"usage_percent"`
	BillingTier             types.Tier  `json:"billing_tier"`
	BillingCurrentPeriodEnd *time.Time  `json:"billing_current_period_end,omitempty"`
	PendingTier             *types.Tier `json:"pending_tier,omitempty"`
	PendingTierEffectiveAt  *time.Time  `json:"pending_tier_effective_at,omitempty"`
	TrialEndsAt             *time.Time  `json:"trial_ends_at,omitempty"`
	Defaulted               bool        `json:"defaulted"`
}

// GetShopTierInfo returns the shop's resolved tier with catalog details and
// live usage. Reading the count of a limited tier enforces its quota. On failure the FREE default is returned with Defaulted set,
// alongside the error.
func (s *Service) GetShopTierInfo(ctx context.Context, shop string) (ShopTierInfo, error) {
	res := s.GetOrCreateShopTier(ctx, shop)
	state := res.State

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	def, _ := s.catalog.Get(state.Tier)
	limit := s.catalog.LiveDiscountLimit(state.Tier)

	count := 0
	err := res.Err
	if !res.Defaulted {
		if limit != nil {
			count, err = s.countLiveAndEnforce(ctx, state.ShopDomain, state.Tier, *limit)
		} else {
			count, err = s.discounts.CountLive(ctx, state.ShopDomain)
		}
		if err != nil {
			s.logger.Error("failed to count live discounts",
				slog.String("shop", state.ShopDomain),
				slog.String("error", err.Error()),
			)
		}
	}
	return ShopTierInfo{
		ShopDomain:              state.ShopDomain,
		Tier:                    state.Tier,
		TierName:                def.Name,
		PriceCents:              def.PriceCents,
		LiveDiscountLimit:       limit,
		LiveDiscountCount:       count,
		UsagePercent:            usagePercent(count, limit),
		BillingTier:             state.BillingTier,
		BillingCurrentPeriodEnd: state.BillingCurrentPeriodEnd,
		PendingTier:             state.PendingTier,
		PendingTierEffectiveAt:  state.PendingTierEffectiveAt,
		TrialEndsAt:             state.TrialEndsAt,
		Defaulted:               res.Defaulted,
	}, err
}

// usagePercent is count/limit*100, or 0 for unlimited tiers.
func usagePercent(count int, limit *int) float64 {
	if limit == nil || *limit <= 0 {
		return 0
	}
	return float64(count) / float64(*limit) * 100
}
