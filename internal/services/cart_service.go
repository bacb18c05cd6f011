package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fillesume/storefront/internal/cart"
	"github.com/fillesume/storefront/internal/commerce"
	"github.com/fillesume/storefront/internal/domain"
	"github.com/fillesume/storefront/internal/format"
)

var (
	// ErrCartInvalidInput reports a malformed cart command.
	ErrCartInvalidInput = errors.New("cart service: invalid input")
	// ErrCartProductNotFound reports an add for an unknown product or variant.
	ErrCartProductNotFound = errors.New("cart service: product not found")
	// ErrCartUnavailable reports an add for a variant that is not for sale.
	ErrCartUnavailable = errors.New("cart service: variant unavailable")
	// ErrCartItemNotFound reports an update for a line not in the cart.
	ErrCartItemNotFound = errors.New("cart service: item not found")
)

// CartOpener returns the store behind a session's cart.
type CartOpener interface {
	Open(ctx context.Context, sessionID string) (*cart.Store, error)
}

// ProductFinder resolves a product by id.
type ProductFinder interface {
	Product(ctx context.Context, id string) (domain.Product, commerce.Source, error)
}

// CartServiceDeps bundles the collaborators the cart service needs.
type CartServiceDeps struct {
	Carts    CartOpener
	Products ProductFinder
	Logger   func(ctx context.Context, event string, fields map[string]any)
}

type cartService struct {
	carts    CartOpener
	products ProductFinder
	logger   func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService over the session cart registry.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart opener is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product finder is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &cartService{carts: deps.Carts, products: deps.Products, logger: logger}, nil
}

func (s *cartService) Get(ctx context.Context, sessionID string) (CartView, error) {
	store, err := s.open(ctx, sessionID)
	if err != nil {
		return CartView{}, err
	}
	return buildCartView(store)
}

func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (CartView, error) {
	productID := strings.TrimSpace(cmd.ProductID)
	if productID == "" {
		return CartView{}, fmt.Errorf("%w: productId is required", ErrCartInvalidInput)
	}
	if cmd.Quantity < 1 {
		return CartView{}, fmt.Errorf("%w: quantity must be at least 1", ErrCartInvalidInput)
	}
	store, err := s.open(ctx, cmd.SessionID)
	if err != nil {
		return CartView{}, err
	}

	product, source, err := s.products.Product(ctx, domain.NumericID(productID))
	if err != nil {
		if errors.Is(err, commerce.ErrProductNotFound) {
			return CartView{}, fmt.Errorf("%w: %s", ErrCartProductNotFound, productID)
		}
		return CartView{}, fmt.Errorf("cart service: load product %s: %w", productID, err)
	}

	variant, ok := product.DefaultVariant()
	if variantID := strings.TrimSpace(cmd.VariantID); variantID != "" {
		variant, ok = product.FindVariant(variantID)
	}
	if !ok {
		return CartView{}, fmt.Errorf("%w: %s has no matching variant", ErrCartProductNotFound, productID)
	}
	if !variant.AvailableForSale {
		return CartView{}, fmt.Errorf("%w: %s", ErrCartUnavailable, variant.ID)
	}

	item := domain.NewCartItem(product, variant, cmd.Quantity)
	if err := store.Add(ctx, item); err != nil {
		return CartView{}, mapCartError(err)
	}
	s.logger(ctx, "cart.item_added", map[string]any{
		"cartKey":   store.Key(),
		"variantId": variant.ID,
		"quantity":  cmd.Quantity,
		"source":    string(source),
	})
	return buildCartView(store)
}

func (s *cartService) UpdateItem(ctx context.Context, cmd UpdateCartItemCommand) (CartView, error) {
	if strings.TrimSpace(cmd.VariantID) == "" {
		return CartView{}, fmt.Errorf("%w: variantId is required", ErrCartInvalidInput)
	}
	store, err := s.open(ctx, cmd.SessionID)
	if err != nil {
		return CartView{}, err
	}
	if err := store.Update(ctx, cmd.VariantID, cmd.Quantity); err != nil {
		return CartView{}, mapCartError(err)
	}
	s.logger(ctx, "cart.item_updated", map[string]any{
		"cartKey":   store.Key(),
		"variantId": cmd.VariantID,
		"quantity":  cmd.Quantity,
	})
	return buildCartView(store)
}

func (s *cartService) RemoveItem(ctx context.Context, sessionID, variantID string) (CartView, error) {
	return s.UpdateItem(ctx, UpdateCartItemCommand{SessionID: sessionID, VariantID: variantID})
}

func (s *cartService) Clear(ctx context.Context, sessionID string) (CartView, error) {
	store, err := s.open(ctx, sessionID)
	if err != nil {
		return CartView{}, err
	}
	if err := store.Clear(ctx); err != nil {
		return CartView{}, err
	}
	s.logger(ctx, "cart.cleared", map[string]any{"cartKey": store.Key()})
	return buildCartView(store)
}

func (s *cartService) Badge(ctx context.Context, sessionID string) (int, error) {
	store, err := s.open(ctx, sessionID)
	if err != nil {
		return 0, err
	}
	return store.TotalItems(), nil
}

func (s *cartService) Subscribe(ctx context.Context, sessionID string, fn func(cart.Event)) (func(), error) {
	if fn == nil {
		return nil, fmt.Errorf("%w: subscriber is required", ErrCartInvalidInput)
	}
	store, err := s.open(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return store.Subscribe(fn), nil
}

func (s *cartService) open(ctx context.Context, sessionID string) (*cart.Store, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("%w: session is required", ErrCartInvalidInput)
	}
	store, err := s.carts.Open(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("cart service: open cart: %w", err)
	}
	return store, nil
}

func buildCartView(store *cart.Store) (CartView, error) {
	items := store.Items()
	view := CartView{
		Key:   store.Key(),
		Lines: make([]CartLine, 0, len(items)),
	}
	for _, item := range items {
		unit, err := item.UnitPrice()
		if err != nil {
			return CartView{}, mapCartError(err)
		}
		line, _ := item.LineTotal()
		view.Lines = append(view.Lines, CartLine{
			CartItem:  item,
			UnitPrice: format.Money(unit),
			LineTotal: format.Money(line),
		})
		view.TotalItems += item.Quantity
	}
	total, err := cart.TotalPrice(items)
	if err != nil {
		return CartView{}, mapCartError(err)
	}
	view.Total = total
	view.TotalFormatted = format.Money(total)
	return view, nil
}

func mapCartError(err error) error {
	switch {
	case errors.Is(err, cart.ErrItemNotFound):
		return fmt.Errorf("%w: %v", ErrCartItemNotFound, err)
	case errors.Is(err, cart.ErrInvalidItem), errors.Is(err, cart.ErrMixedCurrency), errors.Is(err, domain.ErrInvalidCartItem):
		return fmt.Errorf("%w: %v", ErrCartInvalidInput, err)
	default:
		return err
	}
}
