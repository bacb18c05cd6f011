package domain

import "strings"

// ProductGIDPrefix prefixes numeric product ids in the commerce backend.
const ProductGIDPrefix = "gid://shopify/Product/"

// Image is a product photo.
type Image struct {
	ID      string `json:"id,omitempty"`
	URL     string `json:"url"`
	AltText string `json:"altText"`
}

// SelectedOption is one option value of a variant (size, colour).
type SelectedOption struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Variant is a purchasable configuration of a product.
type Variant struct {
	ID               string           `json:"id"`
	Title            string           `json:"title"`
	Price            Money            `json:"price"`
	AvailableForSale bool             `json:"availableForSale"`
	SelectedOptions  []SelectedOption `json:"selectedOptions,omitempty"`
}

// Product is a catalog entry. Price is the minimum variant price.
type Product struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Handle      string    `json:"handle"`
	Vendor      string    `json:"vendor,omitempty"`
	ProductType string    `json:"productType"`
	Tags        []string  `json:"tags"`
	Price       Money     `json:"price"`
	MaxPrice    *Money    `json:"maxPrice,omitempty"`
	Image       Image     `json:"image"`
	Images      []Image   `json:"images,omitempty"`
	Variants    []Variant `json:"variants,omitempty"`
}

// NumericID strips the commerce gid prefix, returning the id used in product URLs.
func (p Product) NumericID() string {
	return NumericID(p.ID)
}

// NumericID strips the product gid prefix when present.
func NumericID(id string) string {
	return strings.TrimPrefix(strings.TrimSpace(id), ProductGIDPrefix)
}

// ProductGID converts a numeric id into a product gid. Values that already carry a
// gid:// scheme are returned unchanged.
func ProductGID(id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "gid://") {
		return id
	}
	return ProductGIDPrefix + id
}

// DefaultVariant returns the first variant, the one preselected on the product page.
func (p Product) DefaultVariant() (Variant, bool) {
	if len(p.Variants) == 0 {
		return Variant{}, false
	}
	return p.Variants[0], true
}

// FindVariant returns the variant with the given id.
func (p Product) FindVariant(id string) (Variant, bool) {
	for _, v := range p.Variants {
		if v.ID == id {
			return v, true
		}
	}
	return Variant{}, false
}
