package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"time"
)

// TierDefinition is one row of the static tier catalog.
type TierDefinition struct {
	Key        Tier   `json:"key"`
	Name       string `json:"name"`
	PriceCents int    `json:"price_cents"`
	// LiveDiscountLimit is nil for unlimited tiers.
	LiveDiscountLimit *int          `json:"live_discount_limit"`
	Features          []FeatureFlag `json:"features"`
}

// Unlimited reports whether the tier has no live-discount quota.
func (d TierDefinition) Unlimited() bool {
	return d.LiveDiscountLimit == nil
}

// ShopTierState is the persisted entitlement record for one shop domain.
//
// PendingTier and PendingTierEffectiveAt are either both nil or both set.
// BillingTier is the last tier confirmed by the billing provider; it moves
// ahead of Tier while a transition is pending and converges to it afterwards.
type ShopTierState struct {
	ShopDomain  string `json:"shop_domain"`
	Tier        Tier   `json:"tier"`
	BillingTier Tier   `json:"billing_tier"`

	PendingTier                     *Tier           `json:"pending_tier,omitempty"`
	PendingTierEffectiveAt          *time.Time      `json:"pending_tier_effective_at,omitempty"`
	PendingTierSourceSubscriptionID *string         `json:"pending_tier_source_subscription_id,omitempty"`
	PendingTierContext              json.RawMessage `json:"pending_tier_context,omitempty"`

	TrialEndsAt               *time.Time `json:"trial_ends_at,omitempty"`
	TrialRecordedAt           *time.Time `json:"trial_recorded_at,omitempty"`
	TrialSourceSubscriptionID *string    `json:"trial_source_subscription_id,omitempty"`

	BillingCurrentPeriodEnd *time.Time `json:"billing_current_period_end,omitempty"`
	LiveDiscountLimit       *int       `json:"live_discount_limit"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasPending reports whether a scheduled transition exists.
func (s *ShopTierState) HasPending() bool {
	return s.PendingTier != nil && s.PendingTierEffectiveAt != nil
}

// ClearPending drops every pending-transition field together.
func (s *ShopTierState) ClearPending() {
	s.PendingTier = nil
	s.PendingTierEffectiveAt = nil
	s.PendingTierSourceSubscriptionID = nil
	s.PendingTierContext = nil
}

// VariantScope restricts a discount to a subset of product variants.
// IDs are normalised to their string form on decode so numeric and string
// identifiers compare equal.
type VariantScope struct {
	Type VariantScopeType `json:"type"`
	IDs  []string         `json:"ids,omitempty"`
}

// UnmarshalJSON accepts ids as JSON strings or numbers.
func (v *VariantScope) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type VariantScopeType  `json:"type"`
		IDs  []json.RawMessage `json:"ids"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	v.Type = raw.Type
	v.IDs = make([]string, 0, len(raw.IDs))
	for _, id := range raw.IDs {
		s, err := variantIDString(id)
		if err != nil {
			return err
		}
		v.IDs = append(v.IDs, s)
	}
	return nil
}

// VariantID is an optional variant identifier that decodes from either a JSON
// string or a JSON number.
type VariantID string

// UnmarshalJSON accepts strings, numbers and null.
func (id *VariantID) UnmarshalJSON(data []byte) error {
	s, err := variantIDString(data)
	if err != nil {
		return err
	}
	*id = VariantID(s)
	return nil
}

func variantIDString(data json.RawMessage) (string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return "", nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return "", err
		}
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return "", fmt.Errorf("variant id must be a string or number: %w", err)
	}
	// Normalise integral numbers so 42 and 42.0 both become "42".
	if i, err := n.Int64(); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	if f, err := n.Float64(); err == nil && f == math.Trunc(f) && math.Abs(f) < 1<<53 {
		return strconv.FormatInt(int64(f), 10), nil
	}
	return n.String(), nil
}

// Discount is a merchant discount as read by the pricing resolver and the
// entitlement engine. Type closes the union: Value is percentage points for
// DiscountTypePercentage and minor currency units for DiscountTypeFixed.
type Discount struct {
	ID                    string          `json:"id"`
	ShopDomain            string          `json:"shopDomain,omitempty"`
	Title                 string          `json:"title,omitempty"`
	Type                  DiscountType    `json:"type"`
	Value                 float64         `json:"value"`
	IsAutomatic           bool            `json:"isAutomatic"`
	AppliesOnSubscription bool            `json:"appliesOnSubscription,omitempty"`
	VariantScope          *VariantScope   `json:"variantScope,omitempty"`
	Status                DiscountStatus  `json:"status,omitempty"`
	ExclusionReason       ExclusionReason `json:"exclusionReason,omitempty"`
	StartsAt              *time.Time      `json:"startsAt,omitempty"`
	EndsAt                *time.Time      `json:"endsAt,omitempty"`
}

// TierEvent is the payload published when a shop's entitlement changes.
type TierEvent struct {
	EventID     string          `json:"event_id"`
	Type        TierEventType   `json:"type"`
	ShopDomain  string          `json:"shop_domain"`
	FromTier    Tier            `json:"from_tier,omitempty"`
	ToTier      Tier            `json:"to_tier,omitempty"`
	EffectiveAt *time.Time      `json:"effective_at,omitempty"`
	Demoted     int             `json:"demoted,omitempty"`
	Context     json.RawMessage `json:"context,omitempty"`
	OccurredAt  time.Time       `json:"occurred_at"`
}
