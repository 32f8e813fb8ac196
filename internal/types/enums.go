package types

// Tier identifies a shop's subscription plan. Tiers are totally ordered by
// capability: FREE < BASIC < ADVANCED.
type Tier string

const (
	TierFree     Tier = "FREE"
	TierBasic    Tier = "BASIC"
	TierAdvanced Tier = "ADVANCED"
)

// tierRank orders tiers by capability. Unknown tiers are absent.
var tierRank = map[Tier]int{
	TierFree:     0,
	TierBasic:    1,
	TierAdvanced: 2,
}

// AllTiers lists the known tiers in ascending capability order.
var AllTiers = []Tier{TierFree, TierBasic, TierAdvanced}

// Valid reports whether t is one of the three known tiers.
func (t Tier) Valid() bool {
	_, ok := tierRank[t]
	return ok
}

// AtLeast reports whether t grants at least the capability of floor.
// Unknown tiers never satisfy any minimum.
func (t Tier) AtLeast(floor Tier) bool {
	a, ok := tierRank[t]
	if !ok {
		return false
	}
	b, ok := tierRank[floor]
	if !ok {
		return false
	}
	return a >= b
}

// FeatureFlag names a capability gated behind a minimum tier.
type FeatureFlag string

const (
	FeatureCouponDisplay            FeatureFlag = "COUPON_DISPLAY"
	FeatureFixedAmountDiscounts     FeatureFlag = "FIXED_AMOUNT_DISCOUNTS"
	FeatureVariantSpecificDiscounts FeatureFlag = "VARIANT_SPECIFIC_DISCOUNTS"
	FeatureSubscriptionDiscounts    FeatureFlag = "SUBSCRIPTION_DISCOUNTS"
)

// DiscountType is the closed set of discount kinds.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// DiscountStatus is the display lifecycle state of a discount.
type DiscountStatus string

const (
	DiscountStatusLive            DiscountStatus = "LIVE"
	DiscountStatusHidden          DiscountStatus = "HIDDEN"
	DiscountStatusScheduled       DiscountStatus = "SCHEDULED"
	DiscountStatusUpgradeRequired DiscountStatus = "UPGRADE_REQUIRED"
	DiscountStatusExpired         DiscountStatus = "EXPIRED"
)

// VariantScopeType is the kind of variant restriction on a discount.
type VariantScopeType string

const (
	VariantScopeAll     VariantScopeType = "ALL"
	VariantScopePartial VariantScopeType = "PARTIAL"
)

// ExclusionReason records why a discount was blocked from going live.
// The gated reasons map one-to-one onto feature flags.
type ExclusionReason string

const (
	ExclusionFixedAmount           ExclusionReason = "FIXED_AMOUNT"
	ExclusionSubscriptionDiscounts ExclusionReason = "SUBSCRIPTION_COMPATIBILITY"
	ExclusionVariantSpecific       ExclusionReason = "VARIANT_SPECIFIC"
)

// Feature returns the feature flag an exclusion reason is waiting on.
func (r ExclusionReason) Feature() (FeatureFlag, bool) {
	switch r {
	case ExclusionFixedAmount:
		return FeatureFixedAmountDiscounts, true
	case ExclusionSubscriptionDiscounts:
		return FeatureSubscriptionDiscounts, true
	case ExclusionVariantSpecific:
		return FeatureVariantSpecificDiscounts, true
	default:
		return "", false
	}
}

// TierEventType identifies entitlement events published to downstream consumers.
type TierEventType string

const (
	TierEventChanged        TierEventType = "tier_changed"
	TierEventScheduled      TierEventType = "tier_change_scheduled"
	TierEventScheduleClear  TierEventType = "tier_change_cleared"
	TierEventPendingApplied TierEventType = "pending_tier_applied"
	TierEventPendingCorrupt TierEventType = "pending_tier_corrupt"
	TierEventQuotaEnforced  TierEventType = "quota_enforced"
)
