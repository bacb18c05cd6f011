package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fillesume/storefront/internal/cart"
	"github.com/fillesume/storefront/internal/platform/httpx"
	"github.com/fillesume/storefront/internal/platform/requestctx"
	"github.com/fillesume/storefront/internal/services"
)

const (
	eventStreamContentType = "text/event-stream"
	defaultHeartbeat       = 25 * time.Second
	cartEventBuffer        = 16
	// Each write gets its own deadline so the server WriteTimeout does not cut long streams.
	streamWriteWindow = time.Minute
)

// CartHandlers exposes the session cart endpoints.
type CartHandlers struct {
	carts     services.CartService
	heartbeat time.Duration

	closeOnce sync.Once
	closing   chan struct{}
}

// CartHandlersOption customises CartHandlers.
type CartHandlersOption func(*CartHandlers)

// WithHeartbeat sets the keep-alive interval of the cart event stream.
func WithHeartbeat(interval time.Duration) CartHandlersOption {
	return func(h *CartHandlers) {
		if interval > 0 {
			h.heartbeat = interval
		}
	}
}

// NewCartHandlers constructs cart handlers.
func NewCartHandlers(carts services.CartService, opts ...CartHandlersOption) *CartHandlers {
	h := &CartHandlers{carts: carts, heartbeat: defaultHeartbeat, closing: make(chan struct{})}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// CloseStreams ends every open cart event stream. http.Server.Shutdown waits
// for active responses without cancelling them; register this with
// RegisterOnShutdown.
func (h *CartHandlers) CloseStreams() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getCart)
	r.Delete("/", h.clearCart)
	r.Get("/events", h.events)
	r.Post("/items", h.addItem)
	r.Patch("/items/{variantId}", h.updateItem)
	r.Delete("/items/{variantId}", h.removeItem)
}

type addItemRequest struct {
	ProductID string `json:"productId"`
	VariantID string `json:"variantId"`
	Quantity  *int   `json:"quantity"`
}

type updateItemRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.ready(ctx, w)
	if !ok {
		return
	}
	view, err := h.carts.Get(ctx, sessionID)
	h.respond(ctx, w, http.StatusOK, view, err)
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.ready(ctx, w)
	if !ok {
		return
	}
	var req addItemRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	quantity := 1
	if req.Quantity != nil {
		quantity = *req.Quantity
	}
	view, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		SessionID: sessionID,
		ProductID: req.ProductID,
		VariantID: req.VariantID,
		Quantity:  quantity,
	})
	h.respond(ctx, w, http.StatusOK, view, err)
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.ready(ctx, w)
	if !ok {
		return
	}
	var req updateItemRequest
	if !decodeBody(ctx, w, r, &req) {
		return
	}
	if req.Quantity == nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "quantity is required", http.StatusBadRequest))
		return
	}
	view, err := h.carts.UpdateItem(ctx, services.UpdateCartItemCommand{
		SessionID: sessionID,
		VariantID: chi.URLParam(r, "variantId"),
		Quantity:  *req.Quantity,
	})
	h.respond(ctx, w, http.StatusOK, view, err)
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.ready(ctx, w)
	if !ok {
		return
	}
	view, err := h.carts.RemoveItem(ctx, sessionID, chi.URLParam(r, "variantId"))
	h.respond(ctx, w, http.StatusOK, view, err)
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.ready(ctx, w)
	if !ok {
		return
	}
	view, err := h.carts.Clear(ctx, sessionID)
	h.respond(ctx, w, http.StatusOK, view, err)
}

type cartBadgeEvent struct {
	Kind       cart.EventKind `json:"kind"`
	TotalItems int            `json:"totalItems"`
}

// events streams the item count as server-sent events: once on connect and
// again after every change, including changes written by other processes.
func (h *CartHandlers) events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID, ok := h.ready(ctx, w)
	if !ok {
		return
	}
	rc := http.NewResponseController(w)

	updates := make(chan cartBadgeEvent, cartEventBuffer)
	unsubscribe, err := h.carts.Subscribe(ctx, sessionID, func(ev cart.Event) {
		msg := cartBadgeEvent{Kind: ev.Kind, TotalItems: ev.TotalItems}
		select {
		case updates <- msg:
		default:
			// Slow reader: drop the oldest count, the newest one wins.
			select {
			case <-updates:
			default:
			}
			select {
			case updates <- msg:
			default:
			}
		}
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	defer unsubscribe()

	count, err := h.carts.Badge(ctx, sessionID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	w.Header().Set("Content-Type", eventStreamContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	logger := requestctx.Logger(ctx)
	if err := writeSSE(w, rc, "cart", cartBadgeEvent{Kind: "snapshot", TotalItems: count}); err != nil {
		logger.Debug("cart stream write failed", zap.Error(err))
		return
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.closing:
			logger.Debug("cart stream closed for shutdown")
			return
		case msg := <-updates:
			if err := writeSSE(w, rc, "cart", msg); err != nil {
				logger.Debug("cart stream write failed", zap.Error(err))
				return
			}
		case <-heartbeat.C:
			_ = rc.SetWriteDeadline(time.Now().Add(streamWriteWindow))
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, rc *http.ResponseController, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_ = rc.SetWriteDeadline(time.Now().Add(streamWriteWindow))
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return rc.Flush()
}

func (h *CartHandlers) ready(ctx context.Context, w http.ResponseWriter) (string, bool) {
	if h.carts == nil {
		serviceUnavailable(ctx, w, "cart")
		return "", false
	}
	return requireSession(ctx, w)
}

func (h *CartHandlers) respond(ctx context.Context, w http.ResponseWriter, status int, view services.CartView, err error) {
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}
	setNoStore(w)
	writeJSONResponse(w, status, view)
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCartProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_item_not_found", "item is not in the cart", http.StatusNotFound))
	case errors.Is(err, services.ErrCartUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("variant_unavailable", "this item is no longer available", http.StatusConflict))
	case errors.Is(err, cart.ErrRegistryClosed):
		serviceUnavailable(ctx, w, "cart")
	default:
		requestctx.Logger(ctx).Error("cart request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("cart_error", "failed to update cart", http.StatusInternalServerError))
	}
}
