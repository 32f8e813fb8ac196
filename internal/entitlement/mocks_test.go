package entitlement

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"dealbadge/internal/billing"
	"dealbadge/internal/db"
	"dealbadge/internal/types"
)

type mockShopStore struct {
	mock.Mock
}

func (m *mockShopStore) Get(ctx context.Context, shop string) (*types.ShopTierState, error) {
	args := m.Called(ctx, shop)
	if s := args.Get(0); s != nil {
		return s.(*types.ShopTierState), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockShopStore) Create(ctx context.Context, shop string, tier types.Tier, limit *int) (*types.ShopTierState, error) {
	args := m.Called(ctx, shop, tier, limit)
	if s := args.Get(0); s != nil {
		return s.(*types.ShopTierState), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockShopStore) SyncBillingTier(ctx context.Context, shop string, billing types.Tier) error {
	return m.Called(ctx, shop, billing).Error(0)
}

func (m *mockShopStore) SchedulePending(ctx context.Context, shop string, change db.PendingChange) error {
	return m.Called(ctx, shop, change).Error(0)
}

func (m *mockShopStore) ApplyPending(ctx context.Context, shop string, expected types.Tier, expectedAt time.Time, limit *int) (bool, error) {
	args := m.Called(ctx, shop, expected, expectedAt, limit)
	return args.Bool(0), args.Error(1)
}

func (m *mockShopStore) ClearPending(ctx context.Context, shop string) error {
	return m.Called(ctx, shop).Error(0)
}

func (m *mockShopStore) SetTier(ctx context.Context, shop string, tier types.Tier, limit *int) error {
	return m.Called(ctx, shop, tier, limit).Error(0)
}

func (m *mockShopStore) SetBillingPeriodEnd(ctx context.Context, shop string, end *time.Time) error {
	return m.Called(ctx, shop, end).Error(0)
}

func (m *mockShopStore) RecordTrial(ctx context.Context, shop string, endsAt time.Time, subscriptionID *string) error {
	return m.Called(ctx, shop, endsAt, subscriptionID).Error(0)
}

func (m *mockShopStore) ListDuePending(ctx context.Context, now time.Time, limit int) ([]string, error) {
	args := m.Called(ctx, now, limit)
	if s := args.Get(0); s != nil {
		return s.([]string), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockDiscountStore struct {
	mock.Mock
}

func (m *mockDiscountStore) CountLiveAndEnforce(ctx context.Context, shop string, limit int) (db.EnforcementResult, error) {
	args := m.Called(ctx, shop, limit)
	return args.Get(0).(db.EnforcementResult), args.Error(1)
}

func (m *mockDiscountStore) CountLive(ctx context.Context, shop string) (int, error) {
	args := m.Called(ctx, shop)
	return args.Int(0), args.Error(1)
}

func (m *mockDiscountStore) ListByStatus(ctx context.Context, shop string, status types.DiscountStatus) ([]types.Discount, error) {
	args := m.Called(ctx, shop, status)
	if d := args.Get(0); d != nil {
		return d.([]types.Discount), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockDiscountStore) UpdateStatus(ctx context.Context, id string, from, to types.DiscountStatus) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, event types.TierEvent) error {
	return m.Called(ctx, event).Error(0)
}

// --- fixtures ---

const testShop = "demo.myshopify.com"

var testNow = time.Date(2026, 6, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	shops     *mockShopStore
	discounts *mockDiscountStore
	events    *mockPublisher
	svc       *Service
}

func newFixture() *fixture {
	f := &fixture{
		shops:     new(mockShopStore),
		discounts: new(mockDiscountStore),
		events:    new(mockPublisher),
	}
	f.svc = NewService(f.shops, f.discounts, billing.NewStaticTierCatalog(),
		slog.New(slog.NewTextHandler(io.Discard, nil)),
		WithClock(func() time.Time { return testNow }),
		WithEventPublisher(f.events),
		WithQueryTimeout(time.Second),
	)
	return f
}

func intPtr(v int) *int { return &v }

func tierPtr(t types.Tier) *types.Tier { return &t }

func timePtr(t time.Time) *time.Time { return &t }

func stateAt(tier types.Tier) *types.ShopTierState {
	limits := map[types.Tier]*int{
		types.TierFree:     intPtr(1),
		types.TierBasic:    intPtr(3),
		types.TierAdvanced: nil,
	}
	return &types.ShopTierState{
		ShopDomain:        testShop,
		Tier:              tier,
		BillingTier:       tier,
		LiveDiscountLimit: limits[tier],
		CreatedAt:         testNow.Add(-30 * 24 * time.Hour),
		UpdatedAt:         testNow.Add(-time.Hour),
	}
}

func eventOfType(t types.TierEventType) any {
	return mock.MatchedBy(func(e types.TierEvent) bool { return e.Type == t })
}
