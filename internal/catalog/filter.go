package catalog

import (
	"net/url"
	"slices"
	"strconv"
	"strings"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/fillesume/storefront/internal/domain"
)

// Price slider bounds, in major units.
const (
	DefaultMinPrice = 0
	DefaultMaxPrice = 500
	AllCategories   = "all"
)

// SortOrder selects the listing order.
type SortOrder string

const (
	SortTitle     SortOrder = "title"
	SortPriceLow  SortOrder = "price-low"
	SortPriceHigh SortOrder = "price-high"
)

// Filter narrows the shop listing.
type Filter struct {
	Category string    `json:"category"`
	MinPrice float64   `json:"minPrice"`
	MaxPrice float64   `json:"maxPrice"`
	Sort     SortOrder `json:"sort"`
}

// DefaultFilter shows every product sorted by title.
func DefaultFilter() Filter {
	return Filter{Category: AllCategories, MinPrice: DefaultMinPrice, MaxPrice: DefaultMaxPrice, Sort: SortTitle}
}

// ParseFilter reads category, min, max and sort from a query string. Unparsable or
// negative prices fall back to the slider bounds and an inverted range is swapped.
func ParseFilter(values url.Values) Filter {
	f := DefaultFilter()
	if category := strings.TrimSpace(values.Get("category")); category != "" {
		f.Category = category
	}
	f.MinPrice = parsePrice(values.Get("min"), DefaultMinPrice)
	f.MaxPrice = parsePrice(values.Get("max"), DefaultMaxPrice)
	f.Sort = ParseSort(values.Get("sort"))
	return f.Normalize()
}

// ParseSort maps unknown values to title order.
func ParseSort(raw string) SortOrder {
	switch SortOrder(strings.ToLower(strings.TrimSpace(raw))) {
	case SortPriceLow:
		return SortPriceLow
	case SortPriceHigh:
		return SortPriceHigh
	default:
		return SortTitle
	}
}

// Normalize applies the coercion rules to a filter built by hand.
func (f Filter) Normalize() Filter {
	if strings.TrimSpace(f.Category) == "" {
		f.Category = AllCategories
	}
	if f.MinPrice < 0 {
		f.MinPrice = DefaultMinPrice
	}
	if f.MaxPrice < 0 {
		f.MaxPrice = DefaultMaxPrice
	}
	if f.MinPrice > f.MaxPrice {
		f.MinPrice, f.MaxPrice = f.MaxPrice, f.MinPrice
	}
	if f.Sort == "" {
		f.Sort = SortTitle
	}
	return f
}

func parsePrice(raw string, fallback float64) float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value < 0 || value != value {
		return fallback
	}
	return value
}

// Apply filters and sorts products without modifying the input.
func Apply(products []domain.Product, f Filter) []domain.Product {
	f = f.Normalize()
	out := make([]domain.Product, 0, len(products))
	for _, p := range products {
		if !matchesCategory(p, f.Category) {
			continue
		}
		price := p.Price.Float()
		if price < f.MinPrice || price > f.MaxPrice {
			continue
		}
		out = append(out, p)
	}
	Sort(out, f.Sort)
	return out
}

// Sort orders products in place. Title order uses Spanish collation so accented titles
// sort next to their unaccented neighbours.
func Sort(products []domain.Product, order SortOrder) {
	switch order {
	case SortPriceLow:
		slices.SortStableFunc(products, func(a, b domain.Product) int {
			return compareMinor(a.Price.Minor, b.Price.Minor)
		})
	case SortPriceHigh:
		slices.SortStableFunc(products, func(a, b domain.Product) int {
			return compareMinor(b.Price.Minor, a.Price.Minor)
		})
	default:
		collator := collate.New(language.Spanish, collate.IgnoreCase)
		slices.SortStableFunc(products, func(a, b domain.Product) int {
			return collator.CompareString(a.Title, b.Title)
		})
	}
}

// Categories returns "all" followed by the distinct product types in first-seen order.
func Categories(products []domain.Product) []string {
	categories := []string{AllCategories}
	seen := map[string]bool{}
	for _, p := range products {
		productType := strings.TrimSpace(p.ProductType)
		if productType == "" || seen[productType] {
			continue
		}
		seen[productType] = true
		categories = append(categories, productType)
	}
	return categories
}

func matchesCategory(p domain.Product, category string) bool {
	if strings.EqualFold(category, AllCategories) {
		return true
	}
	return strings.EqualFold(strings.TrimSpace(p.ProductType), strings.TrimSpace(category))
}

func compareMinor(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
