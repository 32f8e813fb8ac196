package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"dealbadge/internal/billing"
	"dealbadge/internal/core"
	"dealbadge/internal/entitlement"
	"dealbadge/internal/types"
)

// SubscriptionApplier reconciles a shop's tier with its subscription.
type SubscriptionApplier interface {
	ApplySubscriptionChange(ctx context.Context, change billing.SubscriptionChange) (entitlement.SubscriptionOutcome, error)
}

type webhookAck struct {
	Received bool                             `json:"received"`
	Ignored  bool                             `json:"ignored,omitempty"`
	Outcome  *entitlement.SubscriptionOutcome `json:"outcome,omitempty"`
}

// StripeWebhookHandler receives Stripe subscription events. It sits outside
// admin and storefront auth; the Stripe-Signature header authenticates it.
type StripeWebhookHandler struct {
	subs   SubscriptionApplier
	secret string
	logger *slog.Logger
}

// NewStripeWebhookHandler creates a StripeWebhookHandler.
func NewStripeWebhookHandler(subs SubscriptionApplier, secret string, logger *slog.Logger) *StripeWebhookHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &StripeWebhookHandler{subs: subs, secret: secret, logger: logger}
}

// RegisterRoutes mounts the webhook endpoint.
func (h *StripeWebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/billing/stripe/webhook", h.Handle)
}

// Handle verifies the event and applies the subscription it carries.
//
// Events that cannot be acted on (other event types, subscriptions with no
// shop or no mapped price) are acknowledged with 200 so Stripe stops
// redelivering them. Signature failures are 401 and storage failures are
// 5xx, which Stripe retries.
func (h *StripeWebhookHandler) Handle(w http.ResponseWriter, r *http.Request) {
	payload, err := core.ReadBody(w, r)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	signature := r.Header.Get("Stripe-Signature")
	if signature == "" {
		core.Error(w, r, types.NewAppError(types.ErrCodeAuthTokenMissing, "missing Stripe-Signature header", nil))
		return
	}

	sub, ok, err := billing.SubscriptionFromWebhook(payload, signature, h.secret)
	if err != nil {
		h.logger.WarnContext(r.Context(), "stripe webhook rejected", "error", err)
		core.Error(w, r, err)
		return
	}
	if !ok {
		core.JSON(w, r, http.StatusOK, webhookAck{Received: true, Ignored: true})
		return
	}

	change, err := billing.ChangeFromSubscription(sub)
	if err != nil {
		if isValidation(err) {
			h.logger.WarnContext(r.Context(), "stripe subscription ignored",
				"subscription_id", sub.ID,
				"error", err,
			)
			core.JSON(w, r, http.StatusOK, webhookAck{Received: true, Ignored: true})
			return
		}
		core.Error(w, r, err)
		return
	}

	outcome, err := h.subs.ApplySubscriptionChange(r.Context(), change)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "failed to apply subscription",
			"shop", change.ShopDomain,
			"subscription_id", change.SubscriptionID,
			"error", err,
		)
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "stripe subscription applied",
		"shop", change.ShopDomain,
		"subscription_id", change.SubscriptionID,
		"status", string(change.Status),
		"action", string(outcome.Action),
	)
	core.JSON(w, r, http.StatusOK, webhookAck{Received: true, Outcome: &outcome})
}

func isValidation(err error) bool {
	var appErr *types.AppError
	if !errors.As(err, &appErr) {
		return false
	}
	return strings.HasPrefix(string(appErr.Code), "validation_")
}
