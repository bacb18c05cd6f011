package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/fillesume/storefront/internal/cart"
	"github.com/fillesume/storefront/internal/commerce"
	"github.com/fillesume/storefront/internal/domain"
	"github.com/fillesume/storefront/internal/services"
)

type stubProducts struct {
	products map[string]domain.Product
}

func (s stubProducts) Product(_ context.Context, id string) (domain.Product, commerce.Source, error) {
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, "", commerce.ErrProductNotFound
	}
	return p, commerce.SourceBackend, nil
}

func newCartFixture(t *testing.T) (services.CartService, *cart.Registry) {
	t.Helper()
	price := domain.NewMoney(1000, "EUR")
	products := stubProducts{products: map[string]domain.Product{
		"1": {
			ID:       domain.ProductGID("1"),
			Title:    "Bolso de fibra de oliva",
			Price:    price,
			Variants: []domain.Variant{{ID: "V1", Title: "Talla única", Price: price, AvailableForSale: true}},
		},
	}}
	registry, err := cart.NewRegistry(cart.NewMemoryPersistence())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	t.Cleanup(func() { _ = registry.Close() })
	svc, err := services.NewCartService(services.CartServiceDeps{Carts: registry, Products: products})
	if err != nil {
		t.Fatalf("cart service: %v", err)
	}
	return svc, registry
}

func newCartRouter(svc services.CartService, sessionID string, opts ...CartHandlersOption) http.Handler {
	return NewRouter(
		WithMiddlewares(withSession(sessionID)),
		WithCartRoutes(NewCartHandlers(svc, opts...).Routes),
	)
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestCartHandlersAddMergeAndRemove(t *testing.T) {
	svc, _ := newCartFixture(t)
	router := newCartRouter(svc, "visitor-1")

	rr := doJSON(t, router, http.MethodPost, "/api/v1/cart/items", `{"productId":"1","quantity":2}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("add: expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	rr = doJSON(t, router, http.MethodPost, "/api/v1/cart/items", `{"productId":"1"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("second add: expected 200, got %d", rr.Code)
	}

	rr = doJSON(t, router, http.MethodGet, "/api/v1/cart", "")
	var view services.CartView
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.TotalItems != 3 || len(view.Lines) != 1 || view.TotalFormatted != "€30.00" {
		t.Fatalf("unexpected cart %+v", view)
	}
	if got := rr.Header().Get("Cache-Control"); !strings.Contains(got, "no-store") {
		t.Fatalf("cart responses must not be cached, got %q", got)
	}

	rr = doJSON(t, router, http.MethodPatch, "/api/v1/cart/items/V1", `{"quantity":0}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d", rr.Code)
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.TotalItems != 0 || len(view.Lines) != 0 {
		t.Fatalf("quantity 0 must remove the line, got %+v", view)
	}
}

func TestCartHandlersErrors(t *testing.T) {
	svc, _ := newCartFixture(t)
	router := newCartRouter(svc, "visitor-1")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{name: "invalid json", method: http.MethodPost, path: "/api/v1/cart/items", body: `{`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "empty body", method: http.MethodPost, path: "/api/v1/cart/items", status: http.StatusBadRequest, code: "invalid_request"},
		{name: "unknown product", method: http.MethodPost, path: "/api/v1/cart/items", body: `{"productId":"404"}`, status: http.StatusNotFound, code: "product_not_found"},
		{name: "negative quantity", method: http.MethodPost, path: "/api/v1/cart/items", body: `{"productId":"1","quantity":-1}`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "missing quantity", method: http.MethodPatch, path: "/api/v1/cart/items/V1", body: `{}`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "update absent line", method: http.MethodPatch, path: "/api/v1/cart/items/V9", body: `{"quantity":2}`, status: http.StatusNotFound, code: "cart_item_not_found"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := doJSON(t, router, tc.method, tc.path, tc.body)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			if body := decodeJSON(t, rr); body["error"] != tc.code {
				t.Fatalf("expected code %s, got %v", tc.code, body["error"])
			}
		})
	}
}

func TestCartHandlersRequireSession(t *testing.T) {
	svc, _ := newCartFixture(t)
	router := newCartRouter(svc, "")
	rr := doJSON(t, router, http.MethodGet, "/api/v1/cart", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestCartEventsStreamCounts(t *testing.T) {
	svc, _ := newCartFixture(t)
	server := httptest.NewServer(newCartRouter(svc, "visitor-2", WithHeartbeat(time.Hour)))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/v1/cart/events", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Accept", eventStreamContentType)
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != eventStreamContentType {
		t.Fatalf("unexpected content type %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	first := readEvent(t, reader)
	if first.Kind != "snapshot" || first.TotalItems != 0 {
		t.Fatalf("unexpected snapshot %+v", first)
	}

	if _, err := svc.AddItem(ctx, services.AddCartItemCommand{SessionID: "visitor-2", ProductID: "1", Quantity: 2}); err != nil {
		t.Fatalf("add: %v", err)
	}
	next := readEvent(t, reader)
	if next.Kind != cart.EventAdded || next.TotalItems != 2 {
		t.Fatalf("unexpected update %+v", next)
	}

	if _, err := svc.Clear(ctx, "visitor-2"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	cleared := readEvent(t, reader)
	if cleared.Kind != cart.EventCleared || cleared.TotalItems != 0 {
		t.Fatalf("unexpected clear %+v", cleared)
	}
}

func TestCartEventsStreamEndsOnShutdown(t *testing.T) {
	svc, _ := newCartFixture(t)
	cartHandlers := NewCartHandlers(svc, WithHeartbeat(time.Hour))
	server := httptest.NewUnstartedServer(NewRouter(
		WithMiddlewares(withSession("visitor-3")),
		WithCartRoutes(cartHandlers.Routes),
	))
	server.Config.RegisterOnShutdown(cartHandlers.CloseStreams)
	server.Start()
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/v1/cart/events", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Accept", eventStreamContentType)
	resp, err := server.Client().Do(req)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer resp.Body.Close()
	reader := bufio.NewReader(resp.Body)
	if first := readEvent(t, reader); first.Kind != "snapshot" {
		t.Fatalf("unexpected snapshot %+v", first)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancelShutdown()
	started := time.Now()
	if err := server.Config.Shutdown(shutdownCtx); err != nil {
		t.Fatalf("shutdown with an open stream: %v after %s", err, time.Since(started))
	}
	_, _ = io.ReadAll(reader)
	if ctx.Err() != nil {
		t.Fatalf("stream did not end after shutdown")
	}
}

func readEvent(t *testing.T, reader *bufio.Reader) cartBadgeEvent {
	t.Helper()
	var data string
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && data != "":
			var ev cartBadgeEvent
			if err := json.Unmarshal([]byte(data), &ev); err != nil {
				t.Fatalf("decode event %q: %v", data, err)
			}
			return ev
		}
	}
}
