package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/fillesume/storefront/internal/cart"
	"github.com/fillesume/storefront/internal/commerce"
	"github.com/fillesume/storefront/internal/domain"
)

type stubProductFinder struct {
	productFunc func(ctx context.Context, id string) (domain.Product, commerce.Source, error)
}

func (s *stubProductFinder) Product(ctx context.Context, id string) (domain.Product, commerce.Source, error) {
	if s.productFunc == nil {
		return domain.Product{}, "", commerce.ErrProductNotFound
	}
	return s.productFunc(ctx, id)
}

func testProduct(id, variantID, price string, available bool) domain.Product {
	money, err := domain.ParseMoney(price, "EUR")
	if err != nil {
		panic(err)
	}
	return domain.Product{
		ID:     domain.ProductGID(id),
		Title:  "Vestido Oliva " + id,
		Handle: "vestido-oliva-" + id,
		Price:  money,
		Image:  domain.Image{URL: "/static/images/" + id + ".png"},
		Variants: []domain.Variant{
			{ID: variantID, Title: "Talla única", Price: money, AvailableForSale: available},
		},
	}
}

func catalogFinder(products ...domain.Product) *stubProductFinder {
	byID := make(map[string]domain.Product, len(products))
	for _, p := range products {
		byID[p.NumericID()] = p
	}
	return &stubProductFinder{
		productFunc: func(_ context.Context, id string) (domain.Product, commerce.Source, error) {
			p, ok := byID[id]
			if !ok {
				return domain.Product{}, "", commerce.ErrProductNotFound
			}
			return p, commerce.SourceDemo, nil
		},
	}
}

func newTestRegistry(t *testing.T) *cart.Registry {
	t.Helper()
	registry, err := cart.NewRegistry(cart.NewMemoryPersistence())
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(func() { _ = registry.Close() })
	return registry
}

func newTestCartService(t *testing.T, registry *cart.Registry, finder ProductFinder) CartService {
	t.Helper()
	svc, err := NewCartService(CartServiceDeps{Carts: registry, Products: finder})
	if err != nil {
		t.Fatalf("new cart service: %v", err)
	}
	return svc
}

func TestNewCartServiceRequiresDeps(t *testing.T) {
	if _, err := NewCartService(CartServiceDeps{Products: catalogFinder()}); err == nil {
		t.Fatalf("expected error without cart opener")
	}
	if _, err := NewCartService(CartServiceDeps{Carts: newTestRegistry(t)}); err == nil {
		t.Fatalf("expected error without product finder")
	}
}

func TestCartServiceAddMergesAndTotals(t *testing.T) {
	ctx := context.Background()
	svc := newTestCartService(t, newTestRegistry(t), catalogFinder(testProduct("1", "V1", "10.00", true)))

	view, err := svc.AddItem(ctx, AddCartItemCommand{SessionID: "sess-1", ProductID: "1", Quantity: 2})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if view.TotalItems != 2 || len(view.Lines) != 1 {
		t.Fatalf("unexpected view after first add: %#v", view)
	}

	view, err = svc.AddItem(ctx, AddCartItemCommand{SessionID: "sess-1", ProductID: domain.ProductGID("1"), VariantID: "V1", Quantity: 1})
	if err != nil {
		t.Fatalf("second add: %v", err)
	}
	if len(view.Lines) != 1 || view.Lines[0].Quantity != 3 {
		t.Fatalf("expected merged line of 3, got %#v", view.Lines)
	}
	if view.TotalItems != 3 {
		t.Fatalf("expected 3 items, got %d", view.TotalItems)
	}
	if view.Total.Minor != 3000 || view.Total.Currency != "EUR" {
		t.Fatalf("expected 30.00 EUR, got %#v", view.Total)
	}
	if view.TotalFormatted != "€30.00" {
		t.Fatalf("unexpected formatted total %q", view.TotalFormatted)
	}
	if view.Lines[0].UnitPrice != "€10.00" || view.Lines[0].LineTotal != "€30.00" {
		t.Fatalf("unexpected line prices %#v", view.Lines[0])
	}

	view, err = svc.RemoveItem(ctx, "sess-1", "V1")
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if view.TotalItems != 0 || len(view.Lines) != 0 {
		t.Fatalf("expected empty cart, got %#v", view)
	}
	if view.TotalFormatted != "€0.00" {
		t.Fatalf("unexpected empty total %q", view.TotalFormatted)
	}
}

func TestCartServiceUpdateZeroRemoves(t *testing.T) {
	ctx := context.Background()
	svc := newTestCartService(t, newTestRegistry(t), catalogFinder(
		testProduct("1", "V1", "10.00", true),
		testProduct("2", "V2", "24.50", true),
	))
	for _, id := range []string{"1", "2"} {
		if _, err := svc.AddItem(ctx, AddCartItemCommand{SessionID: "s", ProductID: id, Quantity: 1}); err != nil {
			t.Fatalf("add %s: %v", id, err)
		}
	}

	view, err := svc.UpdateItem(ctx, UpdateCartItemCommand{SessionID: "s", VariantID: "V2", Quantity: 4})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if view.TotalItems != 5 || view.Total.Minor != 10800 {
		t.Fatalf("unexpected totals %d %#v", view.TotalItems, view.Total)
	}

	view, err = svc.UpdateItem(ctx, UpdateCartItemCommand{SessionID: "s", VariantID: "V1", Quantity: -1})
	if err != nil {
		t.Fatalf("update to -1: %v", err)
	}
	if len(view.Lines) != 1 || view.Lines[0].VariantID != "V2" {
		t.Fatalf("expected only V2 to remain, got %#v", view.Lines)
	}

	_, err = svc.UpdateItem(ctx, UpdateCartItemCommand{SessionID: "s", VariantID: "missing", Quantity: 2})
	if !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected ErrCartItemNotFound, got %v", err)
	}
}

func TestCartServiceAddValidation(t *testing.T) {
	ctx := context.Background()
	svc := newTestCartService(t, newTestRegistry(t), catalogFinder(
		testProduct("1", "V1", "10.00", true),
		testProduct("9", "V9", "10.00", false),
	))

	tests := []struct {
		name string
		cmd  AddCartItemCommand
		want error
	}{
		{name: "missing session", cmd: AddCartItemCommand{ProductID: "1", Quantity: 1}, want: ErrCartInvalidInput},
		{name: "missing product", cmd: AddCartItemCommand{SessionID: "s", Quantity: 1}, want: ErrCartInvalidInput},
		{name: "zero quantity", cmd: AddCartItemCommand{SessionID: "s", ProductID: "1"}, want: ErrCartInvalidInput},
		{name: "unknown product", cmd: AddCartItemCommand{SessionID: "s", ProductID: "404", Quantity: 1}, want: ErrCartProductNotFound},
		{name: "unknown variant", cmd: AddCartItemCommand{SessionID: "s", ProductID: "1", VariantID: "VX", Quantity: 1}, want: ErrCartProductNotFound},
		{name: "sold out", cmd: AddCartItemCommand{SessionID: "s", ProductID: "9", Quantity: 1}, want: ErrCartUnavailable},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.AddItem(ctx, tc.cmd); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	badge, err := svc.Badge(ctx, "s")
	if err != nil || badge != 0 {
		t.Fatalf("rejected adds must not change the cart: badge=%d err=%v", badge, err)
	}
}

func TestCartServiceSessionsAreIsolated(t *testing.T) {
	ctx := context.Background()
	svc := newTestCartService(t, newTestRegistry(t), catalogFinder(testProduct("1", "V1", "10.00", true)))

	if _, err := svc.AddItem(ctx, AddCartItemCommand{SessionID: "a", ProductID: "1", Quantity: 2}); err != nil {
		t.Fatalf("add: %v", err)
	}
	if n, _ := svc.Badge(ctx, "a"); n != 2 {
		t.Fatalf("expected badge 2 for a, got %d", n)
	}
	if n, _ := svc.Badge(ctx, "b"); n != 0 {
		t.Fatalf("expected empty cart for b, got %d", n)
	}
}

func TestCartServiceSubscribeAndClear(t *testing.T) {
	ctx := context.Background()
	svc := newTestCartService(t, newTestRegistry(t), catalogFinder(testProduct("1", "V1", "10.00", true)))

	var (
		mu     sync.Mutex
		counts []int
	)
	unsubscribe, err := svc.Subscribe(ctx, "s", func(ev cart.Event) {
		mu.Lock()
		counts = append(counts, ev.TotalItems)
		mu.Unlock()
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	if _, err := svc.AddItem(ctx, AddCartItemCommand{SessionID: "s", ProductID: "1", Quantity: 2}); err != nil {
		t.Fatalf("add: %v", err)
	}
	view, err := svc.Clear(ctx, "s")
	if err != nil {
		t.Fatalf("clear: %v", err)
	}
	if view.TotalItems != 0 {
		t.Fatalf("expected empty view after clear, got %#v", view)
	}

	unsubscribe()
	if _, err := svc.AddItem(ctx, AddCartItemCommand{SessionID: "s", ProductID: "1", Quantity: 1}); err != nil {
		t.Fatalf("add after unsubscribe: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(counts) != 2 || counts[0] != 2 || counts[1] != 0 {
		t.Fatalf("unexpected event counts %v", counts)
	}

	if _, err := svc.Subscribe(ctx, "s", nil); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected invalid input for nil subscriber, got %v", err)
	}
}
