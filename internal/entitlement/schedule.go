package entitlement

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"dealbadge/internal/db"
	"dealbadge/internal/types"
)

// ScheduleOptions carries the billing provenance of a scheduled change.
type ScheduleOptions struct {
	SubscriptionID string
	// Context is an opaque JSON audit payload stored with the change.
	Context json.RawMessage
}

// ScheduleShopTierChange records a transition to target that takes effect at
// effectiveAt, or at the shop's billing period end when effectiveAt is nil.
// billingTier moves to target immediately; tier moves when the change is
// applied.
//
// On failure the shop's unmodified state is returned with the error.
func (s *Service) ScheduleShopTierChange(ctx context.Context, shop string, target types.Tier, effectiveAt *time.Time, opts ScheduleOptions) (types.ShopTierState, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	shop = types.NormalizeShopDomain(shop)
	if !target.Valid() {
		return types.ShopTierState{}, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidTier, "unknown tier", nil,
			map[string]any{"tier": string(target)},
		)
	}
	if len(opts.Context) > 0 && !json.Valid(opts.Context) {
		return types.ShopTierState{}, types.NewAppError(types.ErrCodeValidationInvalidJSON, "context must be valid JSON", nil)
	}

	state, err := s.resolve(ctx, shop, s.now())
	if err != nil {
		return types.ShopTierState{}, err
	}
	original := *state

	effective := effectiveAt
	if effective == nil {
		effective = state.BillingCurrentPeriodEnd
	}
	if effective == nil {
		return original, types.NewAppError(types.ErrCodeValidationNoEffectiveAt,
			"effective date required: none given and no billing period end on record", nil)
	}
	at := effective.UTC()

	change := db.PendingChange{
		Tier:        target,
		EffectiveAt: at,
		Context:     opts.Context,
	}
	if opts.SubscriptionID != "" {
		sub := opts.SubscriptionID
		change.SubscriptionID = &sub
	}
	if err := s.shops.SchedulePending(ctx, shop, change); err != nil {
		s.logger.Error("failed to schedule tier change",
			slog.String("shop", shop),
			slog.String("target", string(target)),
			slog.String("error", err.Error()),
		)
		return original, err
	}

	state.PendingTier = &target
	state.PendingTierEffectiveAt = &at
	state.PendingTierSourceSubscriptionID = change.SubscriptionID
	state.PendingTierContext = opts.Context
	state.BillingTier = target

	s.logger.Info("tier change scheduled",
		slog.String("shop", shop),
		slog.String("from", string(state.Tier)),
		slog.String("to", string(target)),
		slog.Time("effective_at", at),
	)
	s.publish(ctx, types.TierEvent{
		Type:        types.TierEventScheduled,
		ShopDomain:  shop,
		FromTier:    state.Tier,
		ToTier:      target,
		EffectiveAt: &at,
		Context:     opts.Context,
	})
	return *state, nil
}

// ClearPendingTierChange cancels a scheduled transition and restores
// billingTier to the current tier.
func (s *Service) ClearPendingTierChange(ctx context.Context, shop string) (types.ShopTierState, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	shop = types.NormalizeShopDomain(shop)
	state, err := s.resolve(ctx, shop, s.now())
	if err != nil {
		return types.ShopTierState{}, err
	}
	original := *state

	if err := s.shops.ClearPending(ctx, shop); err != nil {
		return original, err
	}

	var cancelled types.Tier
	if state.PendingTier != nil {
		cancelled = *state.PendingTier
	}
	state.ClearPending()
	state.BillingTier = state.Tier

	s.logger.Info("pending tier change cleared", slog.String("shop", shop))
	s.publish(ctx, types.TierEvent{
		Type:       types.TierEventScheduleClear,
		ShopDomain: shop,
		FromTier:   cancelled,
		ToTier:     state.Tier,
	})
	return *state, nil
}

// UpdateShopTier changes the shop's tier immediately, outside the scheduling
// path. Any pending change is discarded.
func (s *Service) UpdateShopTier(ctx context.Context, shop string, tier types.Tier) (types.ShopTierState, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	shop = types.NormalizeShopDomain(shop)
	if !tier.Valid() {
		return types.ShopTierState{}, types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidTier, "unknown tier", nil,
			map[string]any{"tier": string(tier)},
		)
	}

	state, err := s.resolve(ctx, shop, s.now())
	if err != nil {
		return types.ShopTierState{}, err
	}
	original := *state

	limit := s.catalog.LiveDiscountLimit(tier)
	if err := s.shops.SetTier(ctx, shop, tier, limit); err != nil {
		s.logger.Error("failed to update shop tier",
			slog.String("shop", shop),
			slog.String("tier", string(tier)),
			slog.String("error", err.Error()),
		)
		return original, err
	}

	from := state.Tier
	state.Tier = tier
	state.BillingTier = tier
	state.LiveDiscountLimit = limit
	state.ClearPending()

	s.logger.Info("shop tier updated",
		slog.String("shop", shop),
		slog.String("from", string(from)),
		slog.String("to", string(tier)),
	)
	s.publish(ctx, types.TierEvent{
		Type:       types.TierEventChanged,
		ShopDomain: shop,
		FromTier:   from,
		ToTier:     tier,
	})
	return *state, nil
}

// RecordTrial stores the trial end granted by a billing subscription.
func (s *Service) RecordTrial(ctx context.Context, shop string, endsAt time.Time, subscriptionID string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	shop = types.NormalizeShopDomain(shop)
	if _, err := s.resolve(ctx, shop, s.now()); err != nil {
		return err
	}
	var sub *string
	if subscriptionID != "" {
		sub = &subscriptionID
	}
	return s.shops.RecordTrial(ctx, shop, endsAt.UTC(), sub)
}

// RecordBillingPeriodEnd stores the end of the current billing period, the
// default effective date for later scheduled changes.
func (s *Service) RecordBillingPeriodEnd(ctx context.Context, shop string, end time.Time) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	shop = types.NormalizeShopDomain(shop)
	if _, err := s.resolve(ctx, shop, s.now()); err != nil {
		return err
	}
	at := end.UTC()
	return s.shops.SetBillingPeriodEnd(ctx, shop, &at)
}
