// Package entitlement owns each shop's tier state: lazy creation, scheduled
// transitions, live-discount quota checks and feature eligibility.
//
// Read paths never fail the caller. When storage is unavailable they return
// a FREE-tier default marked Defaulted, together with the underlying error,
// so a storefront can still render while the caller can tell the difference
// between a FREE shop and a failed lookup.
package entitlement

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"dealbadge/internal/billing"
	"dealbadge/internal/db"
	"dealbadge/internal/types"
)

// ShopTierStore persists ShopTierState rows. Implemented by
// db.ShopTierRepository.
type ShopTierStore interface {
	// Get returns not_found_shop when the shop has no row.
	Get(ctx context.Context, shop string) (*types.ShopTierState, error)

	// Create inserts the shop, or returns the existing row if a concurrent
	// caller created it first.
	Create(ctx context.Context, shop string, tier types.Tier, limit *int) (*types.ShopTierState, error)

	SyncBillingTier(ctx context.Context, shop string, billing types.Tier) error
	SchedulePending(ctx context.Context, shop string, change db.PendingChange) error

	// ApplyPending is guarded on the pending values the caller read and
	// reports false when they no longer match.
	ApplyPending(ctx context.Context, shop string, expected types.Tier, expectedAt time.Time, limit *int) (bool, error)

	ClearPending(ctx context.Context, shop string) error
	SetTier(ctx context.Context, shop string, tier types.Tier, limit *int) error
	SetBillingPeriodEnd(ctx context.Context, shop string, end *time.Time) error
	RecordTrial(ctx context.Context, shop string, endsAt time.Time, subscriptionID *string) error
	ListDuePending(ctx context.Context, now time.Time, limit int) ([]string, error)
}

// DiscountStore reads and transitions discounts. Implemented by
// db.DiscountRepository.
type DiscountStore interface {
	// CountLiveAndEnforce counts LIVE discounts under lock and hides all of
	// them when the count exceeds limit.
	CountLiveAndEnforce(ctx context.Context, shop string, limit int) (db.EnforcementResult, error)
	CountLive(ctx context.Context, shop string) (int, error)
	ListByStatus(ctx context.Context, shop string, status types.DiscountStatus) ([]types.Discount, error)
	UpdateStatus(ctx context.Context, id string, from, to types.DiscountStatus) (bool, error)
}

// EventPublisher receives tier lifecycle events. Publishing is best effort.
type EventPublisher interface {
	Publish(ctx context.Context, event types.TierEvent) error
}

// TierResolution is the outcome of resolving a shop's effective tier.
// Defaulted is true when State is the non-persisted FREE fallback, in which
// case Err carries the failure.
type TierResolution struct {
	State     types.ShopTierState
	Defaulted bool
	Err       error
}

// Service implements the entitlement state machine on top of the stores.
type Service struct {
	shops        ShopTierStore
	discounts    DiscountStore
	catalog      billing.TierCatalog
	events       EventPublisher
	logger       *slog.Logger
	now          func() time.Time
	queryTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithEventPublisher enables tier event publishing.
func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// WithQueryTimeout bounds every storage call made by one operation.
func WithQueryTimeout(d time.Duration) Option {
	return func(s *Service) { s.queryTimeout = d }
}

// NewService creates a Service.
func NewService(shops ShopTierStore, discounts DiscountStore, catalog billing.TierCatalog, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		shops:     shops,
		discounts: discounts,
		catalog:   catalog,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.queryTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

// defaultState is the non-persisted FREE state used when storage fails.
func (s *Service) defaultState(shop string) types.ShopTierState {
	now := s.now()
	return types.ShopTierState{
		ShopDomain:        shop,
		Tier:              types.TierFree,
		BillingTier:       types.TierFree,
		LiveDiscountLimit: s.catalog.LiveDiscountLimit(types.TierFree),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// GetOrCreateShopTier returns the shop's effective tier state. Unknown shops
// are created at FREE. Any due pending transition is applied and billingTier
// is brought back in line before returning.
func (s *Service) GetOrCreateShopTier(ctx context.Context, shop string) TierResolution {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	shop = types.NormalizeShopDomain(shop)
	state, err := s.resolve(ctx, shop, s.now())
	if err != nil {
		s.logger.Error("tier resolution failed, defaulting to FREE",
			slog.String("shop", shop),
			slog.String("error", err.Error()),
		)
		return TierResolution{State: s.defaultState(shop), Defaulted: true, Err: err}
	}
	return TierResolution{State: *state}
}

func (s *Service) resolve(ctx context.Context, shop string, now time.Time) (*types.ShopTierState, error) {
	if shop == "" {
		return nil, types.NewAppError(types.ErrCodeValidationMissingField, "shop domain is required", nil)
	}
	state, err := s.loadOrCreate(ctx, shop)
	if err != nil {
		return nil, err
	}
	state, err = s.applyPendingIfDue(ctx, state, now)
	if err != nil {
		return nil, err
	}
	if err := s.syncBillingTier(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (s *Service) loadOrCreate(ctx context.Context, shop string) (*types.ShopTierState, error) {
	state, err := s.shops.Get(ctx, shop)
	if err == nil {
		return state, nil
	}
	if !types.HasCode(err, types.ErrCodeNotFoundShop) {
		return nil, err
	}
	state, err = s.shops.Create(ctx, shop, types.TierFree, s.catalog.LiveDiscountLimit(types.TierFree))
	if err != nil {
		return nil, err
	}
	s.logger.Info("shop tier created", slog.String("shop", shop), slog.String("tier", string(state.Tier)))
	return state, nil
}

// syncBillingTier moves billingTier toward pendingTier while a transition is
// pending and toward tier otherwise.
func (s *Service) syncBillingTier(ctx context.Context, state *types.ShopTierState) error {
	want := state.Tier
	if state.HasPending() {
		want = *state.PendingTier
	}
	if state.BillingTier == want {
		return nil
	}
	if err := s.shops.SyncBillingTier(ctx, state.ShopDomain, want); err != nil {
		return err
	}
	s.logger.Info("billing tier synchronised",
		slog.String("shop", state.ShopDomain),
		slog.String("from", string(state.BillingTier)),
		slog.String("to", string(want)),
	)
	state.BillingTier = want
	return nil
}

// applyPendingIfDue promotes the pending tier once its effective date has
// passed. A pending tier that is not a catalog key, or that is missing half
// of its pair, is discarded without being applied.
func (s *Service) applyPendingIfDue(ctx context.Context, state *types.ShopTierState, now time.Time) (*types.ShopTierState, error) {
	if state.PendingTier == nil && state.PendingTierEffectiveAt == nil {
		return state, nil
	}

	if !state.HasPending() || !state.PendingTier.Valid() {
		var raw string
		if state.PendingTier != nil {
			raw = string(*state.PendingTier)
		}
		if err := s.shops.ClearPending(ctx, state.ShopDomain); err != nil {
			return nil, err
		}
		s.logger.Warn("discarded corrupt pending tier",
			slog.String("shop", state.ShopDomain),
			slog.String("pending_tier", raw),
		)
		s.publish(ctx, types.TierEvent{
			Type:       types.TierEventPendingCorrupt,
			ShopDomain: state.ShopDomain,
			FromTier:   state.Tier,
			ToTier:     types.Tier(raw),
		})
		state.ClearPending()
		state.BillingTier = state.Tier
		return state, nil
	}

	effectiveAt := *state.PendingTierEffectiveAt
	if effectiveAt.After(now) {
		return state, nil
	}

	target := *state.PendingTier
	limit := s.catalog.LiveDiscountLimit(target)
	applied, err := s.shops.ApplyPending(ctx, state.ShopDomain, target, effectiveAt, limit)
	if err != nil {
		return nil, err
	}
	if !applied {
		// Another caller applied or replaced the transition first.
		return s.shops.Get(ctx, state.ShopDomain)
	}

	from := state.Tier
	state.Tier = target
	state.BillingTier = target
	state.LiveDiscountLimit = limit
	state.BillingCurrentPeriodEnd = nil
	state.ClearPending()

	s.logger.Info("pending tier applied",
		slog.String("shop", state.ShopDomain),
		slog.String("from", string(from)),
		slog.String("to", string(target)),
		slog.Time("effective_at", effectiveAt),
	)
	s.publish(ctx, types.TierEvent{
		Type:        types.TierEventPendingApplied,
		ShopDomain:  state.ShopDomain,
		FromTier:    from,
		ToTier:      target,
		EffectiveAt: &effectiveAt,
	})
	return state, nil
}

// publish sends an event if a publisher is configured. Failures are logged.
func (s *Service) publish(ctx context.Context, event types.TierEvent) {
	if s.events == nil {
		return
	}
	event.EventID = uuid.NewString()
	event.OccurredAt = s.now().UTC()
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish tier event",
			slog.String("type", string(event.Type)),
			slog.String("shop", event.ShopDomain),
			slog.String("error", err.Error()),
		)
	}
}
