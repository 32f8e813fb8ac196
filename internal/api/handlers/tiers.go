package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"dealbadge/internal/billing"
	"dealbadge/internal/core"
	"dealbadge/internal/entitlement"
	"dealbadge/internal/types"
)

// TierService is the part of entitlement.Service the admin endpoints use.
type TierService interface {
	GetShopTierInfo(ctx context.Context, shop string) (entitlement.ShopTierInfo, error)
	UpdateShopTier(ctx context.Context, shop string, tier types.Tier) (types.ShopTierState, error)
	ScheduleShopTierChange(ctx context.Context, shop string, target types.Tier, effectiveAt *time.Time, opts entitlement.ScheduleOptions) (types.ShopTierState, error)
	ClearPendingTierChange(ctx context.Context, shop string) (types.ShopTierState, error)
	CanHaveMoreLiveDiscounts(ctx context.Context, shop string) entitlement.LiveDiscountDecision
	ApplySubscriptionChange(ctx context.Context, change billing.SubscriptionChange) (entitlement.SubscriptionOutcome, error)
}

// TokenRotator issues a fresh storefront token for a shop.
type TokenRotator interface {
	Rotate(ctx context.Context, shop string) (string, error)
}

// UpdateTierRequest is the body of PUT /tier.
type UpdateTierRequest struct {
	Tier string `json:"tier" validate:"required,tier"`
}

// ScheduleTierRequest is the body of POST /tier/schedule. EffectiveAt falls
// back to the shop's billing period end.
type ScheduleTierRequest struct {
	Tier           string          `json:"tier" validate:"required,tier"`
	EffectiveAt    *time.Time      `json:"effectiveAt,omitempty"`
	SubscriptionID string          `json:"subscriptionId,omitempty" validate:"omitempty,max=255"`
	Context        json.RawMessage `json:"context,omitempty"`
}

// TokenResponse carries a newly issued storefront token.
type TokenResponse struct {
	ShopDomain string    `json:"shop_domain"`
	Token      string    `json:"token"`
	RotatedAt  time.Time `json:"rotated_at"`
}

// TierHandler serves the admin tier endpoints under /v1/admin/shops/{shop}.
type TierHandler struct {
	tiers     TierService
	tokens    TokenRotator
	validator *core.Validator
	logger    *slog.Logger
	now       func() time.Time
}

// NewTierHandler creates a TierHandler.
func NewTierHandler(tiers TierService, tokens TokenRotator, v *core.Validator, logger *slog.Logger) *TierHandler {
	return &TierHandler{
		tiers:     tiers,
		tokens:    tokens,
		validator: v,
		logger:    logger,
		now:       time.Now,
	}
}

// RegisterRoutes mounts the admin routes. The {shop} parameter is resolved
// into the request context by core middleware.
func (h *TierHandler) RegisterRoutes(r chi.Router) {
	r.Get("/tier", h.GetTier)
	r.Put("/tier", h.UpdateTier)
	r.Post("/tier/schedule", h.ScheduleTier)
	r.Delete("/tier/schedule", h.ClearSchedule)
	r.Get("/discounts/capacity", h.GetCapacity)
	r.Post("/storefront-token", h.RotateToken)
	r.Post("/billing/subscription", h.ApplySubscription)
}

// GetTier handles GET /tier.
func (h *TierHandler) GetTier(w http.ResponseWriter, r *http.Request) {
	shop, _ := types.GetShopDomain(r.Context())

	info, err := h.tiers.GetShopTierInfo(r.Context(), shop)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, info)
}

// UpdateTier handles PUT /tier, an immediate override.
func (h *TierHandler) UpdateTier(w http.ResponseWriter, r *http.Request) {
	shop, _ := types.GetShopDomain(r.Context())

	var req UpdateTierRequest
	if err := core.DecodeJSON(w, r, &req, true); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	state, err := h.tiers.UpdateShopTier(r.Context(), shop, parseTier(req.Tier))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.Info("shop tier overridden",
		slog.String("shop", shop),
		slog.String("tier", string(state.Tier)),
		slog.String("request_id", types.GetRequestID(r.Context())),
	)
	core.JSON(w, r, http.StatusOK, state)
}

// ScheduleTier handles POST /tier/schedule.
func (h *TierHandler) ScheduleTier(w http.ResponseWriter, r *http.Request) {
	shop, _ := types.GetShopDomain(r.Context())

	var req ScheduleTierRequest
	if err := core.DecodeJSON(w, r, &req, true); err != nil {
		core.Error(w, r, err)
		return
	}
	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	state, err := h.tiers.ScheduleShopTierChange(r.Context(), shop, parseTier(req.Tier), req.EffectiveAt,
		entitlement.ScheduleOptions{SubscriptionID: req.SubscriptionID, Context: req.Context})
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, state)
}

// ClearSchedule handles DELETE /tier/schedule.
func (h *TierHandler) ClearSchedule(w http.ResponseWriter, r *http.Request) {
	shop, _ := types.GetShopDomain(r.Context())

	state, err := h.tiers.ClearPendingTierChange(r.Context(), shop)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, state)
}

// GetCapacity handles GET /discounts/capacity. The decision fails open, so a
// lookup failure is still a 200 with defaulted set.
func (h *TierHandler) GetCapacity(w http.ResponseWriter, r *http.Request) {
	shop, _ := types.GetShopDomain(r.Context())

	decision := h.tiers.CanHaveMoreLiveDiscounts(r.Context(), shop)
	if decision.Err != nil {
		h.logger.Warn("capacity check defaulted",
			slog.String("shop", shop),
			slog.String("error", decision.Err.Error()),
		)
	}
	core.JSON(w, r, http.StatusOK, decision)
}

// RotateToken handles POST /storefront-token.
func (h *TierHandler) RotateToken(w http.ResponseWriter, r *http.Request) {
	shop, _ := types.GetShopDomain(r.Context())

	token, err := h.tokens.Rotate(r.Context(), shop)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusCreated, TokenResponse{
		ShopDomain: shop,
		Token:      token,
		RotatedAt:  h.now().UTC(),
	})
}

// ApplySubscription handles POST /billing/subscription. The body is a Stripe
// subscription object whose shop_domain metadata must name the shop in the
// path.
func (h *TierHandler) ApplySubscription(w http.ResponseWriter, r *http.Request) {
	shop, _ := types.GetShopDomain(r.Context())

	body, err := core.ReadBody(w, r)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	sub, err := billing.ParseSubscription(body)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	change, err := billing.ChangeFromSubscription(sub)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if change.ShopDomain != shop {
		core.Error(w, r, types.NewAppErrorWithDetails(types.ErrCodeValidationSubscription,
			"subscription belongs to a different shop", nil,
			map[string]any{"subscription_shop": change.ShopDomain, "shop": shop}))
		return
	}

	outcome, err := h.tiers.ApplySubscriptionChange(r.Context(), change)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, outcome)
}

func parseTier(s string) types.Tier {
	return types.Tier(strings.ToUpper(strings.TrimSpace(s)))
}
