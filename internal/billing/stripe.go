package billing

import (
	"encoding/json"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"dealbadge/internal/types"
)

// MetadataShopDomain is the subscription metadata key carrying the shop.
const MetadataShopDomain = "shop_domain"

// metadataTier lets a price override the lookup-key mapping.
const metadataTier = "tier"

// LookupKeyToTier maps Stripe price lookup keys to tiers.
var LookupKeyToTier = map[string]types.Tier{
	"dealbadge_basic_monthly":    types.TierBasic,
	"dealbadge_advanced_monthly": types.TierAdvanced,
}

// SubscriptionChange is what a Stripe subscription says about a shop's
// entitlement, independent of the shop's current state.
type SubscriptionChange struct {
	ShopDomain     string
	SubscriptionID string
	Status         stripe.SubscriptionStatus
	// Tier is the tier the subscription pays for. FREE when the subscription
	// is no longer active.
	Tier types.Tier
	// CancelAtPeriodEnd means the shop keeps Tier until PeriodEnd.
	CancelAtPeriodEnd bool
	PeriodEnd         *time.Time
	TrialEnd          *time.Time
	// Context is the audit payload stored with any scheduled change.
	Context json.RawMessage
}

// Active reports whether the subscription currently entitles the shop to a
// paid tier.
func (c SubscriptionChange) Active() bool {
	return c.Status == stripe.SubscriptionStatusActive || c.Status == stripe.SubscriptionStatusTrialing
}

// Terminated reports whether the subscription has ended for good.
func (c SubscriptionChange) Terminated() bool {
	switch c.Status {
	case stripe.SubscriptionStatusCanceled, stripe.SubscriptionStatusIncompleteExpired, stripe.SubscriptionStatusUnpaid:
		return true
	}
	return false
}

// ParseSubscription decodes a Stripe subscription object from JSON.
func ParseSubscription(data []byte) (*stripe.Subscription, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(data, &sub); err != nil {
		return nil, types.NewAppError(types.ErrCodeValidationInvalidJSON, "invalid subscription payload", err)
	}
	return &sub, nil
}

// ChangeFromSubscription maps a Stripe subscription to a SubscriptionChange.
// The shop is read from subscription metadata and the tier from the first
// item whose price maps to a known tier.
func ChangeFromSubscription(sub *stripe.Subscription) (SubscriptionChange, error) {
	if sub == nil || sub.ID == "" {
		return SubscriptionChange{}, types.NewAppError(types.ErrCodeValidationSubscription, "subscription id is required", nil)
	}
	shop := types.NormalizeShopDomain(sub.Metadata[MetadataShopDomain])
	if shop == "" {
		return SubscriptionChange{}, types.NewAppErrorWithDetails(types.ErrCodeValidationSubscription,
			"subscription metadata has no shop domain", nil,
			map[string]any{"subscription_id": sub.ID, "metadata_key": MetadataShopDomain})
	}

	change := SubscriptionChange{
		ShopDomain:        shop,
		SubscriptionID:    sub.ID,
		Status:            sub.Status,
		Tier:              types.TierFree,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		TrialEnd:          unixPtr(sub.TrialEnd),
	}

	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item == nil {
				continue
			}
			if end := unixPtr(item.CurrentPeriodEnd); end != nil {
				if change.PeriodEnd == nil || end.After(*change.PeriodEnd) {
					change.PeriodEnd = end
				}
			}
			if tier, ok := tierForPrice(item.Price); ok && change.Tier == types.TierFree {
				change.Tier = tier
			}
		}
	}

	if change.Active() && change.Tier == types.TierFree {
		return SubscriptionChange{}, types.NewAppErrorWithDetails(types.ErrCodeValidationSubscription,
			"subscription has no price mapped to a paid tier", nil,
			map[string]any{"subscription_id": sub.ID})
	}
	if !change.Active() {
		change.Tier = types.TierFree
	}

	change.Context, _ = json.Marshal(map[string]any{
		"source":               "stripe",
		"subscription_id":      sub.ID,
		"status":               string(sub.Status),
		"cancel_at_period_end": sub.CancelAtPeriodEnd,
	})
	return change, nil
}

func tierForPrice(price *stripe.Price) (types.Tier, bool) {
	if price == nil {
		return "", false
	}
	if t := types.Tier(strings.ToUpper(price.Metadata[metadataTier])); t.Valid() && t != types.TierFree {
		return t, true
	}
	t, ok := LookupKeyToTier[price.LookupKey]
	return t, ok
}

func unixPtr(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

// Subscription events handled by the webhook endpoint.
var subscriptionEvents = map[stripe.EventType]bool{
	"customer.subscription.created": true,
	"customer.subscription.updated": true,
	"customer.subscription.deleted": true,
}

// SubscriptionFromWebhook verifies a Stripe webhook signature and returns the
// subscription it carries. ok is false for event types that do not concern
// subscriptions.
func SubscriptionFromWebhook(payload []byte, signature, secret string) (sub *stripe.Subscription, ok bool, err error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, false, types.NewAppError(types.ErrCodeAuthTokenInvalid, "invalid webhook signature", err)
	}
	if !subscriptionEvents[event.Type] || event.Data == nil {
		return nil, false, nil
	}
	sub, err = ParseSubscription(event.Data.Raw)
	if err != nil {
		return nil, false, err
	}
	return sub, true, nil
}
