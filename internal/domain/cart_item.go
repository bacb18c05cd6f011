package domain

import (
	"errors"
	"strings"
)

// ErrInvalidCartItem reports a cart item that cannot be stored.
var ErrInvalidCartItem = errors.New("domain: invalid cart item")

// CartItem is one line in the visitor cart. Price keeps the backend's decimal string;
// the persisted JSON shape is shared by every cart backend.
type CartItem struct {
	VariantID string `json:"variantId"`
	ProductID string `json:"productId"`
	Title     string `json:"title"`
	Variant   string `json:"variant"`
	Price     string `json:"price"`
	Currency  string `json:"currency"`
	Quantity  int    `json:"quantity"`
	Image     string `json:"image"`
	Handle    string `json:"handle"`
}

// NewCartItem builds the line added from a product page for the selected variant.
func NewCartItem(p Product, v Variant, quantity int) CartItem {
	image := p.Image.URL
	if len(p.Images) > 0 {
		image = p.Images[0].URL
	}
	return CartItem{
		VariantID: v.ID,
		ProductID: p.ID,
		Title:     p.Title,
		Variant:   v.Title,
		Price:     v.Price.Amount,
		Currency:  v.Price.Currency,
		Quantity:  quantity,
		Image:     image,
		Handle:    p.Handle,
	}
}

// Validate checks the invariants of a stored line.
func (i CartItem) Validate() error {
	if strings.TrimSpace(i.VariantID) == "" {
		return errors.Join(ErrInvalidCartItem, errors.New("variantId is required"))
	}
	if i.Quantity < 1 {
		return errors.Join(ErrInvalidCartItem, errors.New("quantity must be at least 1"))
	}
	if _, err := i.UnitPrice(); err != nil {
		return errors.Join(ErrInvalidCartItem, err)
	}
	return nil
}

// UnitPrice parses the line price.
func (i CartItem) UnitPrice() (Money, error) {
	return ParseMoney(i.Price, i.Currency)
}

// LineTotal returns unit price times quantity.
func (i CartItem) LineTotal() (Money, error) {
	unit, err := i.UnitPrice()
	if err != nil {
		return Money{}, err
	}
	return unit.Times(i.Quantity), nil
}
