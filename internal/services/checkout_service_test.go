package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fillesume/storefront/internal/commerce"
	"github.com/fillesume/storefront/internal/platform/jobs"
)

type stubCheckoutCreator struct {
	createFunc func(ctx context.Context, lines []commerce.LineItem) (commerce.Checkout, error)
}

func (s *stubCheckoutCreator) CreateCheckout(ctx context.Context, lines []commerce.LineItem) (commerce.Checkout, error) {
	return s.createFunc(ctx, lines)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []jobs.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, event jobs.Event) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, event)
	return "msg-" + event.ID, nil
}

func (p *recordingPublisher) published() []jobs.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]jobs.Event(nil), p.events...)
}

func TestCheckoutServiceSuccessClearsCart(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	registry := newTestRegistry(t)
	carts := newTestCartService(t, registry, catalogFinder(testProduct("1", "V1", "10.00", true)))
	if _, err := carts.AddItem(ctx, AddCartItemCommand{SessionID: "s", ProductID: "1", Quantity: 2}); err != nil {
		t.Fatalf("add: %v", err)
	}

	var gotLines []commerce.LineItem
	creator := &stubCheckoutCreator{createFunc: func(_ context.Context, lines []commerce.LineItem) (commerce.Checkout, error) {
		gotLines = lines
		return commerce.Checkout{ID: "co_1", WebURL: "https://shop.example/checkout/co_1"}, nil
	}}
	events := &recordingPublisher{}
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:     registry,
		Checkouts: creator,
		Events:    events,
		Clock:     func() time.Time { return now },
		IDGen:     func() string { return "evt-1" },
	})
	if err != nil {
		t.Fatalf("new checkout service: %v", err)
	}

	result, err := svc.Checkout(ctx, "s")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if result.RedirectURL != "https://shop.example/checkout/co_1" || result.CheckoutID != "co_1" || result.ItemCount != 2 {
		t.Fatalf("unexpected result %#v", result)
	}
	if len(gotLines) != 1 || gotLines[0].VariantID != "V1" || gotLines[0].Quantity != 2 {
		t.Fatalf("unexpected checkout lines %#v", gotLines)
	}
	if n, _ := carts.Badge(ctx, "s"); n != 0 {
		t.Fatalf("expected cart cleared, badge %d", n)
	}

	published := events.published()
	if len(published) != 1 {
		t.Fatalf("expected one event, got %d", len(published))
	}
	ev := published[0]
	if ev.Type != jobs.EventCheckoutCreated || ev.ID != "evt-1" || ev.SessionID != "s" || !ev.OccurredAt.Equal(now) {
		t.Fatalf("unexpected event %#v", ev)
	}
	if ev.Payload["checkoutId"] != "co_1" || ev.Payload["itemCount"] != 2 {
		t.Fatalf("unexpected payload %#v", ev.Payload)
	}
}

func TestCheckoutServiceFailureKeepsCart(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t)
	carts := newTestCartService(t, registry, catalogFinder(testProduct("1", "V1", "10.00", true)))
	if _, err := carts.AddItem(ctx, AddCartItemCommand{SessionID: "s", ProductID: "1", Quantity: 1}); err != nil {
		t.Fatalf("add: %v", err)
	}

	tests := []struct {
		name        string
		err         error
		wantMessage string
	}{
		{
			name:        "user errors",
			err:         &commerce.CheckoutError{Message: commerce.MessageCheckoutRejected, UserErrors: []commerce.UserError{{Message: "Variant sold out"}}},
			wantMessage: commerce.MessageCheckoutRejected,
		},
		{
			name:        "transport",
			err:         errors.New("connection reset"),
			wantMessage: commerce.MessageCheckoutFailed,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			events := &recordingPublisher{}
			svc, err := NewCheckoutService(CheckoutServiceDeps{
				Carts: registry,
				Checkouts: &stubCheckoutCreator{createFunc: func(context.Context, []commerce.LineItem) (commerce.Checkout, error) {
					return commerce.Checkout{}, tc.err
				}},
				Events: events,
			})
			if err != nil {
				t.Fatalf("new checkout service: %v", err)
			}

			_, err = svc.Checkout(ctx, "s")
			var checkoutErr *commerce.CheckoutError
			if !errors.As(err, &checkoutErr) {
				t.Fatalf("expected CheckoutError, got %v", err)
			}
			if checkoutErr.Message != tc.wantMessage {
				t.Fatalf("unexpected notice %q", checkoutErr.Message)
			}
			if n, _ := carts.Badge(ctx, "s"); n != 1 {
				t.Fatalf("cart must survive a failed checkout, badge %d", n)
			}
			if len(events.published()) != 0 {
				t.Fatalf("failed checkout must not publish")
			}
		})
	}
}

func TestCheckoutServiceRejectsEmptyCart(t *testing.T) {
	called := false
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Carts: newTestRegistry(t),
		Checkouts: &stubCheckoutCreator{createFunc: func(context.Context, []commerce.LineItem) (commerce.Checkout, error) {
			called = true
			return commerce.Checkout{}, nil
		}},
	})
	if err != nil {
		t.Fatalf("new checkout service: %v", err)
	}
	if _, err := svc.Checkout(context.Background(), "s"); !errors.Is(err, ErrCheckoutEmptyCart) {
		t.Fatalf("expected ErrCheckoutEmptyCart, got %v", err)
	}
	if called {
		t.Fatalf("backend must not be called for an empty cart")
	}
}

func TestCheckoutServicePublishFailureStillRedirects(t *testing.T) {
	ctx := context.Background()
	registry := newTestRegistry(t)
	carts := newTestCartService(t, registry, catalogFinder(testProduct("1", "V1", "10.00", true)))
	if _, err := carts.AddItem(ctx, AddCartItemCommand{SessionID: "s", ProductID: "1", Quantity: 1}); err != nil {
		t.Fatalf("add: %v", err)
	}
	var logged []string
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Carts: registry,
		Checkouts: &stubCheckoutCreator{createFunc: func(context.Context, []commerce.LineItem) (commerce.Checkout, error) {
			return commerce.Checkout{ID: "co_2", WebURL: "https://shop.example/c/2"}, nil
		}},
		Events: &recordingPublisher{err: errors.New("topic missing")},
		Logger: func(_ context.Context, event string, _ map[string]any) { logged = append(logged, event) },
	})
	if err != nil {
		t.Fatalf("new checkout service: %v", err)
	}
	result, err := svc.Checkout(ctx, "s")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if result.RedirectURL != "https://shop.example/c/2" {
		t.Fatalf("unexpected redirect %q", result.RedirectURL)
	}
	found := false
	for _, ev := range logged {
		if ev == "checkout.publish_failed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected publish failure to be logged, got %v", logged)
	}
}
