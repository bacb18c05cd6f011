package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/fillesume/storefront/internal/commerce"
	"github.com/fillesume/storefront/internal/platform/jobs"
)

// ErrCheckoutEmptyCart reports a checkout attempt with nothing in the cart.
var ErrCheckoutEmptyCart = errors.New("checkout service: cart is empty")

// CheckoutCreator creates hosted checkouts.
type CheckoutCreator interface {
	CreateCheckout(ctx context.Context, lines []commerce.LineItem) (commerce.Checkout, error)
}

// CheckoutServiceDeps bundles the collaborators the checkout service needs.
type CheckoutServiceDeps struct {
	Carts     CartOpener
	Checkouts CheckoutCreator
	Events    jobs.Publisher
	Clock     func() time.Time
	IDGen     func() string
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	carts     CartOpener
	checkouts CheckoutCreator
	events    jobs.Publisher
	now       func() time.Time
	newID     func() string
	logger    func(context.Context, string, map[string]any)
}

// NewCheckoutService constructs a CheckoutService.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errors.New("checkout service: cart opener is required")
	}
	if deps.Checkouts == nil {
		return nil, errors.New("checkout service: checkout creator is required")
	}
	events := deps.Events
	if events == nil {
		events = jobs.NopPublisher{}
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	newID := deps.IDGen
	if newID == nil {
		newID = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &checkoutService{
		carts:     deps.Carts,
		checkouts: deps.Checkouts,
		events:    events,
		now:       func() time.Time { return now().UTC() },
		newID:     newID,
		logger:    logger,
	}, nil
}

// Checkout creates a checkout for the session cart. On success the cart is cleared
// and the redirect URL returned. Failures leave the cart untouched and return a
// *commerce.CheckoutError carrying the visitor notice.
func (s *checkoutService) Checkout(ctx context.Context, sessionID string) (CheckoutResult, error) {
	if strings.TrimSpace(sessionID) == "" {
		return CheckoutResult{}, fmt.Errorf("%w: session is required", ErrCartInvalidInput)
	}
	store, err := s.carts.Open(ctx, sessionID)
	if err != nil {
		return CheckoutResult{}, fmt.Errorf("checkout service: open cart: %w", err)
	}
	items := store.Items()
	if len(items) == 0 {
		return CheckoutResult{}, ErrCheckoutEmptyCart
	}

	lines := make([]commerce.LineItem, 0, len(items))
	count := 0
	for _, item := range items {
		lines = append(lines, commerce.LineItem{VariantID: item.VariantID, Quantity: item.Quantity})
		count += item.Quantity
	}

	checkout, err := s.checkouts.CreateCheckout(ctx, lines)
	if err != nil {
		var checkoutErr *commerce.CheckoutError
		if !errors.As(err, &checkoutErr) {
			checkoutErr = &commerce.CheckoutError{Message: commerce.MessageCheckoutFailed, Err: err}
		}
		s.logger(ctx, "checkout.failed", map[string]any{
			"cartKey": store.Key(),
			"lines":   len(lines),
			"error":   err.Error(),
		})
		return CheckoutResult{}, checkoutErr
	}

	if err := store.Clear(ctx); err != nil {
		s.logger(ctx, "checkout.clear_failed", map[string]any{
			"cartKey": store.Key(),
			"error":   err.Error(),
		})
	}

	event := jobs.Event{
		ID:         s.newID(),
		Type:       jobs.EventCheckoutCreated,
		OccurredAt: s.now(),
		SessionID:  sessionID,
		Payload: map[string]any{
			"checkoutId": checkout.ID,
			"itemCount":  count,
			"lines":      lines,
		},
	}
	if _, err := s.events.Publish(ctx, event); err != nil {
		s.logger(ctx, "checkout.publish_failed", map[string]any{
			"checkoutId": checkout.ID,
			"error":      err.Error(),
		})
	}
	s.logger(ctx, "checkout.created", map[string]any{
		"checkoutId": checkout.ID,
		"itemCount":  count,
	})

	return CheckoutResult{CheckoutID: checkout.ID, RedirectURL: checkout.WebURL, ItemCount: count}, nil
}
