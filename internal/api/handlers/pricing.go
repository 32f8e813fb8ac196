// Package handlers contains the HTTP handlers for the dealbadge API.
//
// Handlers depend on narrow interfaces over the entitlement service and the
// storefront authenticator, and are mounted by core.Server through route
// registrars. Authentication, shop resolution and rate limiting happen in
// core middleware before any handler here runs.
package handlers

import (
	"context"
	"log/slog"
	"math"
	"net/http"

	"github.com/go-chi/chi/v5"

	"dealbadge/internal/core"
	"dealbadge/internal/entitlement"
	"dealbadge/internal/pricing"
	"dealbadge/internal/types"
)

// TierResolver is the part of entitlement.Service the pricing endpoint uses.
type TierResolver interface {
	GetOrCreateShopTier(ctx context.Context, shop string) entitlement.TierResolution
	EligibleDiscounts(tier types.Tier, discounts []types.Discount) []types.Discount
}

// PriceRequest is the storefront price request. A missing discounts field
// and a missing price both yield an empty resolution, not an error.
type PriceRequest struct {
	Discounts         []types.Discount `json:"discounts"`
	RegularPriceCents *float64         `json:"regularPriceCents"`
	VariantID         types.VariantID  `json:"variantId"`
}

// PriceResponse is the resolution plus the tier it was computed under.
type PriceResponse struct {
	Tier      types.Tier `json:"tier"`
	Defaulted bool       `json:"defaulted,omitempty"`
	pricing.Resolution
}

// PricingHandler serves the storefront price endpoint.
type PricingHandler struct {
	tiers  TierResolver
	logger *slog.Logger
}

// NewPricingHandler creates a PricingHandler.
func NewPricingHandler(tiers TierResolver, logger *slog.Logger) *PricingHandler {
	return &PricingHandler{tiers: tiers, logger: logger}
}

// RegisterRoutes mounts the storefront routes.
func (h *PricingHandler) RegisterRoutes(r chi.Router) {
	r.Post("/price", h.ResolvePrice)
}

// ResolvePrice handles POST /v1/storefront/price.
//
// The shop's tier is resolved first and the candidate discounts are filtered
// by what that tier unlocks. Only then is the best discount chosen. A failed
// tier lookup falls back to FREE eligibility rather than failing the call.
func (h *PricingHandler) ResolvePrice(w http.ResponseWriter, r *http.Request) {
	shop, _ := types.GetShopDomain(r.Context())

	var req PriceRequest
	if err := core.DecodeJSON(w, r, &req, false); err != nil {
		core.Error(w, r, err)
		return
	}

	res := h.tiers.GetOrCreateShopTier(r.Context(), shop)
	if res.Err != nil {
		h.logger.Warn("tier lookup failed, pricing with FREE eligibility",
			slog.String("shop", shop),
			slog.String("error", res.Err.Error()),
			slog.String("request_id", types.GetRequestID(r.Context())),
		)
	}
	tier := res.State.Tier

	price := math.NaN()
	if req.RegularPriceCents != nil {
		price = *req.RegularPriceCents
	}

	resolution := pricing.ResolveBestDiscounts(pricing.Input{
		Discounts:         h.tiers.EligibleDiscounts(tier, req.Discounts),
		RegularPriceCents: price,
		CurrentVariantID:  req.VariantID,
	})

	core.JSON(w, r, http.StatusOK, PriceResponse{
		Tier:       tier,
		Defaulted:  res.Defaulted,
		Resolution: resolution,
	})
}
