// Package pricing picks the discount to display for a price and variant.
//
// Everything here is a pure function over a price in minor currency units and
// a set of candidate discounts already filtered by tier eligibility. Prices
// are float64 so callers can hand over non-finite values; those are passed
// through untouched rather than rejected.
package pricing

import (
	"math"

	"dealbadge/internal/types"
)

// Choice is the best discount for one pool together with its effect.
type Choice struct {
	Discount   *types.Discount
	FinalPrice float64
	Savings    float64
}

// Pools holds the best automatic and best coupon discount independently.
// A nil discount means the pool had no eligible candidate.
type Pools struct {
	AutomaticDiscount *types.Discount
	AutomaticSavings  *float64
	CouponDiscount    *types.Discount
	CouponSavings     *float64
}

// Input is the top-level request to ResolveBestDiscounts. A nil Discounts
// slice means the caller had no list at all; an empty non-nil slice is a
// valid list with nothing in it.
type Input struct {
	Discounts         []types.Discount `json:"discounts"`
	RegularPriceCents float64          `json:"regularPriceCents"`
	CurrentVariantID  types.VariantID  `json:"currentVariantId"`
}

// Entry is the price pair shown for one chosen discount.
type Entry struct {
	FinalPriceCents   float64 `json:"finalPriceCents"`
	RegularPriceCents float64 `json:"regularPriceCents"`
}

// Resolution is the display decision. All fields are nil when the input was
// unusable.
type Resolution struct {
	AutomaticDiscount *types.Discount `json:"automaticDiscount"`
	CouponDiscount    *types.Discount `json:"couponDiscount"`
	AutomaticEntry    *Entry          `json:"automaticEntry"`
	CouponEntry       *Entry          `json:"couponEntry"`
	BasePriceCents    *float64        `json:"basePriceCents"`
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// clampValue bounds v to [lo, hi]. A non-finite v is treated as zero.
func clampValue(v, lo, hi float64) float64 {
	if !isFinite(v) {
		v = 0
	}
	return math.Min(math.Max(v, lo), hi)
}

// DiscountedPrice applies d to price. Percentage savings are floored; fixed
// amounts never take the price below zero.
func DiscountedPrice(price float64, d *types.Discount) float64 {
	if d == nil || !isFinite(price) {
		return price
	}
	switch d.Type {
	case types.DiscountTypePercentage:
		pct := clampValue(d.Value, 0, 100)
		return price - math.Floor(price*pct/100)
	case types.DiscountTypeFixed:
		amount := clampValue(d.Value, 0, price)
		return price - amount
	default:
		return price
	}
}

// ActualSavings is the amount d takes off price, after clamping.
func ActualSavings(price float64, d *types.Discount) float64 {
	if d == nil || !isFinite(price) {
		return 0
	}
	return price - DiscountedPrice(price, d)
}

// VariantEligible reports whether d applies to variantID. Discounts without a
// scope, or scoped to ALL, apply everywhere. PARTIAL scopes need a matching id.
func VariantEligible(d *types.Discount, variantID types.VariantID) bool {
	if d == nil {
		return false
	}
	scope := d.VariantScope
	if scope == nil || scope.Type == types.VariantScopeAll {
		return true
	}
	if scope.Type != types.VariantScopePartial || variantID == "" {
		return false
	}
	for _, id := range scope.IDs {
		if id == string(variantID) {
			return true
		}
	}
	return false
}

// BestDiscount returns the eligible discount with the largest savings, or nil
// when nothing is eligible. Equal savings go to the larger raw Value,
// regardless of discount type.
func BestDiscount(discounts []types.Discount, price float64, variantID types.VariantID) *Choice {
	var best *Choice
	for i := range discounts {
		d := &discounts[i]
		if !VariantEligible(d, variantID) {
			continue
		}
		savings := ActualSavings(price, d)
		if best == nil ||
			savings > best.Savings ||
			(savings == best.Savings && d.Value > best.Discount.Value) {
			best = &Choice{
				Discount:   d,
				FinalPrice: DiscountedPrice(price, d),
				Savings:    savings,
			}
		}
	}
	return best
}

// BestDiscounts runs BestDiscount separately over automatic and coupon
// discounts.
func BestDiscounts(discounts []types.Discount, price float64, variantID types.VariantID) Pools {
	var automatic, coupon []types.Discount
	for _, d := range discounts {
		if d.IsAutomatic {
			automatic = append(automatic, d)
		} else {
			coupon = append(coupon, d)
		}
	}

	var pools Pools
	if c := BestDiscount(automatic, price, variantID); c != nil {
		pools.AutomaticDiscount = c.Discount
		pools.AutomaticSavings = &c.Savings
	}
	if c := BestDiscount(coupon, price, variantID); c != nil {
		pools.CouponDiscount = c.Discount
		pools.CouponSavings = &c.Savings
	}
	return pools
}

// ResolveBestDiscounts is the storefront entry point. A coupon is only
// surfaced when its final price is strictly below the best automatic one.
func ResolveBestDiscounts(in Input) Resolution {
	if in.Discounts == nil || !isFinite(in.RegularPriceCents) {
		return Resolution{}
	}

	price := in.RegularPriceCents
	pools := BestDiscounts(in.Discounts, price, in.CurrentVariantID)

	res := Resolution{
		AutomaticDiscount: pools.AutomaticDiscount,
		CouponDiscount:    pools.CouponDiscount,
		BasePriceCents:    &price,
	}
	if pools.AutomaticDiscount != nil {
		res.AutomaticEntry = &Entry{
			FinalPriceCents:   DiscountedPrice(price, pools.AutomaticDiscount),
			RegularPriceCents: price,
		}
	}
	if pools.CouponDiscount != nil {
		res.CouponEntry = &Entry{
			FinalPriceCents:   DiscountedPrice(price, pools.CouponDiscount),
			RegularPriceCents: price,
		}
	}

	if res.AutomaticEntry != nil && res.CouponEntry != nil &&
		res.AutomaticEntry.FinalPriceCents <= res.CouponEntry.FinalPriceCents {
		res.CouponDiscount = nil
		res.CouponEntry = nil
	}
	return res
}
