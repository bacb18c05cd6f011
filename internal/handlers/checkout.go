package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fillesume/storefront/internal/commerce"
	"github.com/fillesume/storefront/internal/platform/httpx"
	"github.com/fillesume/storefront/internal/platform/requestctx"
	"github.com/fillesume/storefront/internal/services"
)

// CheckoutHandlers exposes the checkout redirect endpoint.
type CheckoutHandlers struct {
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs checkout handlers.
func NewCheckoutHandlers(checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{checkout: checkout}
}

// Routes wires the /checkout endpoints onto the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/", h.createCheckout)
}

func (h *CheckoutHandlers) createCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout")
		return
	}
	sessionID, ok := requireSession(ctx, w)
	if !ok {
		return
	}
	result, err := h.checkout.Checkout(ctx, sessionID)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	setNoStore(w)
	writeJSONResponse(w, http.StatusCreated, result)
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	var checkoutErr *commerce.CheckoutError
	switch {
	case errors.Is(err, services.ErrCheckoutEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("cart_empty", "the cart is empty", http.StatusConflict))
	case errors.As(err, &checkoutErr):
		requestctx.Logger(ctx).Warn("checkout failed", zap.Error(err))
		apiErr := httpx.NewError("checkout_failed", checkoutErr.Message, http.StatusBadGateway).
			WithNotice(checkoutErr.Message)
		if len(checkoutErr.UserErrors) > 0 {
			apiErr = apiErr.WithDetails(map[string]any{"user_errors": checkoutErr.UserErrors})
		}
		httpx.WriteError(ctx, w, apiErr)
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	default:
		requestctx.Logger(ctx).Error("checkout request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("checkout_failed", commerce.MessageCheckoutFailed, http.StatusInternalServerError).
			WithNotice(commerce.MessageCheckoutFailed))
	}
}
