// Package billing provides the tier catalog and the adapter that turns
// billing-provider subscription state into scheduled tier changes.
package billing

import "dealbadge/internal/types"

// TierCatalog is the authoritative table of subscription tiers.
// This is the single source of truth for quotas, prices and feature gates.
type TierCatalog interface {
	// Get returns the definition for the tier. Unknown tiers return the
	// FREE definition and false so callers fail safe.
	Get(tier types.Tier) (types.TierDefinition, bool)

	// LiveDiscountLimit returns the tier's quota; nil means unlimited.
	LiveDiscountLimit(tier types.Tier) *int

	// Allows reports whether the tier meets the feature's minimum tier.
	Allows(tier types.Tier, feature types.FeatureFlag) bool

	// MinimumTier returns the lowest tier that unlocks the feature.
	MinimumTier(feature types.FeatureFlag) (types.Tier, bool)
}

// staticTierCatalog is a compile-time catalog backed by in-memory maps.
type staticTierCatalog struct {
	tiers map[types.Tier]types.TierDefinition
	gates map[types.FeatureFlag]types.Tier
}

func intPtr(v int) *int { return &v }

// tierDefaults defines the catalog shipped with this release:
//
//	| Tier     | Live discounts | Price/month |
//	|----------|----------------|-------------|
//	| FREE     | 1              | $0          |
//	| BASIC    | 3              | $4.99       |
//	| ADVANCED | unlimited      | $9.99       |
var tierDefaults = map[types.Tier]types.TierDefinition{
	types.TierFree: {
		Key:               types.TierFree,
		Name:              "Free",
		PriceCents:        0,
		LiveDiscountLimit: intPtr(1),
	},
	types.TierBasic: {
		Key:               types.TierBasic,
		Name:              "Basic",
		PriceCents:        499,
		LiveDiscountLimit: intPtr(3),
	},
	types.TierAdvanced: {
		Key:               types.TierAdvanced,
		Name:              "Advanced",
		PriceCents:        999,
		LiveDiscountLimit: nil,
	},
}

// featureGates maps each feature to the minimum tier that unlocks it.
var featureGates = map[types.FeatureFlag]types.Tier{
	types.FeatureCouponDisplay:            types.TierFree,
	types.FeatureFixedAmountDiscounts:     types.TierBasic,
	types.FeatureVariantSpecificDiscounts: types.TierAdvanced,
	types.FeatureSubscriptionDiscounts:    types.TierAdvanced,
}

// NewStaticTierCatalog returns the catalog for this release. Each tier's
// Features list is derived from the gate table so the two cannot drift.
func NewStaticTierCatalog() TierCatalog {
	tiers := make(map[types.Tier]types.TierDefinition, len(tierDefaults))
	for key, def := range tierDefaults {
		if def.LiveDiscountLimit != nil {
			def.LiveDiscountLimit = intPtr(*def.LiveDiscountLimit)
		}
		def.Features = nil
		for _, feature := range orderedFeatures {
			if key.AtLeast(featureGates[feature]) {
				def.Features = append(def.Features, feature)
			}
		}
		tiers[key] = def
	}

	gates := make(map[types.FeatureFlag]types.Tier, len(featureGates))
	for k, v := range featureGates {
		gates[k] = v
	}
	return &staticTierCatalog{tiers: tiers, gates: gates}
}

// orderedFeatures keeps Features output deterministic.
var orderedFeatures = []types.FeatureFlag{
	types.FeatureCouponDisplay,
	types.FeatureFixedAmountDiscounts,
	types.FeatureVariantSpecificDiscounts,
	types.FeatureSubscriptionDiscounts,
}

func (c *staticTierCatalog) Get(tier types.Tier) (types.TierDefinition, bool) {
	if def, ok := c.tiers[tier]; ok {
		return def, true
	}
	return c.tiers[types.TierFree], false
}

func (c *staticTierCatalog) LiveDiscountLimit(tier types.Tier) *int {
	def, _ := c.Get(tier)
	if def.LiveDiscountLimit == nil {
		return nil
	}
	return intPtr(*def.LiveDiscountLimit)
}

func (c *staticTierCatalog) Allows(tier types.Tier, feature types.FeatureFlag) bool {
	minTier, ok := c.gates[feature]
	if !ok {
		return false
	}
	return tier.AtLeast(minTier)
}

func (c *staticTierCatalog) MinimumTier(feature types.FeatureFlag) (types.Tier, bool) {
	minTier, ok := c.gates[feature]
	return minTier, ok
}
