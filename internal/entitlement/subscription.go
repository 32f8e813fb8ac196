package entitlement

import (
	"context"
	"log/slog"

	"dealbadge/internal/billing"
	"dealbadge/internal/types"
)

// SubscriptionAction names what ApplySubscriptionChange did.
type SubscriptionAction string

const (
	ActionUpgraded              SubscriptionAction = "upgraded"
	ActionDowngradeScheduled    SubscriptionAction = "downgrade_scheduled"
	ActionCancellationScheduled SubscriptionAction = "cancellation_scheduled"
	ActionCanceled              SubscriptionAction = "canceled"
	ActionPendingCleared        SubscriptionAction = "pending_cleared"
	ActionUnchanged             SubscriptionAction = "unchanged"
)

// SubscriptionOutcome is the result of applying a billing change.
type SubscriptionOutcome struct {
	Action SubscriptionAction  `json:"action"`
	State  types.ShopTierState `json:"state"`
}

// ApplySubscriptionChange reconciles a shop with its billing subscription.
//
//   - Upgrades take effect immediately.
//   - Downgrades and cancel-at-period-end are scheduled for the period end.
//   - A terminated subscription drops the shop to FREE immediately.
//   - A subscription back on the current tier cancels any pending change.
//   - Other statuses (past_due, incomplete, paused) leave the tier alone.
//
// The billing period end and trial end are recorded first so scheduling can
// fall back to them.
func (s *Service) ApplySubscriptionChange(ctx context.Context, change billing.SubscriptionChange) (SubscriptionOutcome, error) {
	shop := change.ShopDomain
	log := s.logger.With(
		slog.String("shop", shop),
		slog.String("subscription_id", change.SubscriptionID),
		slog.String("status", string(change.Status)),
	)

	if change.PeriodEnd != nil {
		if err := s.RecordBillingPeriodEnd(ctx, shop, *change.PeriodEnd); err != nil {
			return SubscriptionOutcome{}, err
		}
	}
	if change.TrialEnd != nil {
		if err := s.RecordTrial(ctx, shop, *change.TrialEnd, change.SubscriptionID); err != nil {
			return SubscriptionOutcome{}, err
		}
	}

	res := s.GetOrCreateShopTier(ctx, shop)
	if res.Err != nil {
		return SubscriptionOutcome{State: res.State}, res.Err
	}
	current := res.State

	opts := ScheduleOptions{SubscriptionID: change.SubscriptionID, Context: change.Context}

	switch {
	case change.Terminated():
		if current.Tier == types.TierFree && !current.HasPending() {
			return SubscriptionOutcome{Action: ActionUnchanged, State: current}, nil
		}
		state, err := s.UpdateShopTier(ctx, shop, types.TierFree)
		if err != nil {
			return SubscriptionOutcome{State: state}, err
		}
		log.Info("subscription terminated, shop moved to FREE")
		return SubscriptionOutcome{Action: ActionCanceled, State: state}, nil

	case !change.Active():
		log.Info("subscription not active, tier left unchanged")
		return SubscriptionOutcome{Action: ActionUnchanged, State: current}, nil

	case change.CancelAtPeriodEnd:
		state, err := s.ScheduleShopTierChange(ctx, shop, types.TierFree, change.PeriodEnd, opts)
		if err != nil {
			return SubscriptionOutcome{State: state}, err
		}
		return SubscriptionOutcome{Action: ActionCancellationScheduled, State: state}, nil

	case change.Tier == current.Tier:
		if !current.HasPending() {
			return SubscriptionOutcome{Action: ActionUnchanged, State: current}, nil
		}
		state, err := s.ClearPendingTierChange(ctx, shop)
		if err != nil {
			return SubscriptionOutcome{State: state}, err
		}
		return SubscriptionOutcome{Action: ActionPendingCleared, State: state}, nil

	case change.Tier.AtLeast(current.Tier):
		state, err := s.UpdateShopTier(ctx, shop, change.Tier)
		if err != nil {
			return SubscriptionOutcome{State: state}, err
		}
		return SubscriptionOutcome{Action: ActionUpgraded, State: state}, nil

	default:
		state, err := s.ScheduleShopTierChange(ctx, shop, change.Tier, change.PeriodEnd, opts)
		if err != nil {
			return SubscriptionOutcome{State: state}, err
		}
		return SubscriptionOutcome{Action: ActionDowngradeScheduled, State: state}, nil
	}
}
