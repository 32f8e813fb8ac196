package entitlement

import "dealbadge/internal/types"

// RequiredFeatures lists the gated features a discount uses, in a fixed
// order: fixed amount, variant specific, subscription.
func RequiredFeatures(d types.Discount) []types.FeatureFlag {
	var features []types.FeatureFlag
	if d.Type == types.DiscountTypeFixed {
		features = append(features, types.FeatureFixedAmountDiscounts)
	}
	if d.VariantScope != nil && d.VariantScope.Type == types.VariantScopePartial {
		features = append(features, types.FeatureVariantSpecificDiscounts)
	}
	if d.AppliesOnSubscription {
		features = append(features, types.FeatureSubscriptionDiscounts)
	}
	return features
}

// RequiredFeature returns the first gated feature the discount uses.
func RequiredFeature(d types.Discount) (types.FeatureFlag, bool) {
	features := RequiredFeatures(d)
	if len(features) == 0 {
		return "", false
	}
	return features[0], true
}

// BlockingFeature returns the first feature the discount uses that tier does
// not unlock.
func (s *Service) BlockingFeature(tier types.Tier, d types.Discount) (types.FeatureFlag, bool) {
	for _, f := range RequiredFeatures(d) {
		if !s.catalog.Allows(tier, f) {
			return f, true
		}
	}
	return "", false
}

// Displayable reports whether a discount may be shown to shoppers. A
// discount with no status is taken as live.
func Displayable(d types.Discount) bool {
	return d.Status == "" || d.Status == types.DiscountStatusLive
}

// EligibleDiscounts keeps the displayable discounts whose features tier
// unlocks. The input slice is not modified; order is preserved.
func (s *Service) EligibleDiscounts(tier types.Tier, discounts []types.Discount) []types.Discount {
	if discounts == nil {
		return nil
	}
	out := make([]types.Discount, 0, len(discounts))
	for _, d := range discounts {
		if !Displayable(d) {
			continue
		}
		if _, blocked := s.BlockingFeature(tier, d); blocked {
			continue
		}
		out = append(out, d)
	}
	return out
}
