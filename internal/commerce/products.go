package commerce

import (
	"context"
	"fmt"
	"strings"

	"github.com/fillesume/storefront/internal/domain"
)

const productsQuery = `query Products($first: Int!) {
  products(first: $first) {
    edges {
      node {
        id
        title
        description
        handle
        productType
        tags
        priceRange { minVariantPrice { amount currencyCode } }
        images(first: 1) { edges { node { url altText } } }
      }
    }
  }
}`

const productQuery = `query Product($id: ID!) {
  product(id: $id) {
    id
    title
    description
    handle
    vendor
    productType
    tags
    variants(first: 10) {
      edges {
        node {
          id
          title
          price { amount currencyCode }
          availableForSale
          selectedOptions { name value }
        }
      }
    }
    images(first: 5) { edges { node { id url altText } } }
    priceRange {
      minVariantPrice { amount currencyCode }
      maxVariantPrice { amount currencyCode }
    }
  }
}`

type wireMoney struct {
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`
}

type wireImage struct {
	ID      string `json:"id"`
	URL     string `json:"url"`
	AltText string `json:"altText"`
}

type wireVariant struct {
	ID               string                  `json:"id"`
	Title            string                  `json:"title"`
	Price            wireMoney               `json:"price"`
	AvailableForSale bool                    `json:"availableForSale"`
	SelectedOptions  []domain.SelectedOption `json:"selectedOptions"`
}

type wireProduct struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Handle      string   `json:"handle"`
	Vendor      string   `json:"vendor"`
	ProductType string   `json:"productType"`
	Tags        []string `json:"tags"`
	PriceRange  struct {
		MinVariantPrice wireMoney  `json:"minVariantPrice"`
		MaxVariantPrice *wireMoney `json:"maxVariantPrice"`
	} `json:"priceRange"`
	Images struct {
		Edges []struct {
			Node wireImage `json:"node"`
		} `json:"edges"`
	} `json:"images"`
	Variants struct {
		Edges []struct {
			Node wireVariant `json:"node"`
		} `json:"edges"`
	} `json:"variants"`
}

type productsData struct {
	Products *struct {
		Edges []struct {
			Node wireProduct `json:"node"`
		} `json:"edges"`
	} `json:"products"`
}

type productData struct {
	Product *wireProduct `json:"product"`
}

// Listing is a page of products and where it came from.
type Listing struct {
	Products []domain.Product `json:"products"`
	Source   Source           `json:"source"`
}

// Products returns the first n products. Backend failures fall back to the demo
// catalog; the only error is the caller's context being done.
func (c *Client) Products(ctx context.Context, first int) (Listing, error) {
	if first <= 0 {
		first = 20
	}
	var data productsData
	err := c.do(ctx, productsQuery, map[string]any{"first": first}, &data)
	if err == nil && data.Products == nil {
		err = errEmptyData
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Listing{}, ctxErr
		}
		c.fallback(ctx, "products", err)
		return Listing{Products: c.demoProducts(ctx, first), Source: SourceDemo}, nil
	}

	products := make([]domain.Product, 0, len(data.Products.Edges))
	for _, edge := range data.Products.Edges {
		product, mapErr := mapProduct(edge.Node)
		if mapErr != nil {
			c.logger(ctx, "commerce.product_skipped", map[string]any{"id": edge.Node.ID, "error": mapErr})
			continue
		}
		products = append(products, product)
	}
	return Listing{Products: products, Source: SourceBackend}, nil
}

// Product fetches one product by numeric id or gid. When the backend is unreachable the
// demo catalog is consulted; a product absent from both yields ErrProductNotFound.
func (c *Client) Product(ctx context.Context, id string) (domain.Product, Source, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Product{}, "", ErrProductNotFound
	}
	var data productData
	err := c.do(ctx, productQuery, map[string]any{"id": domain.ProductGID(id)}, &data)
	if err == nil {
		if data.Product == nil {
			return domain.Product{}, SourceBackend, ErrProductNotFound
		}
		product, mapErr := mapProduct(*data.Product)
		if mapErr != nil {
			return domain.Product{}, SourceBackend, fmt.Errorf("%w: %v", ErrProductNotFound, mapErr)
		}
		return product, SourceBackend, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return domain.Product{}, "", ctxErr
	}
	c.fallback(ctx, "product", err)
	product, ok := c.demoProduct(ctx, domain.NumericID(id))
	if !ok {
		return domain.Product{}, SourceDemo, ErrProductNotFound
	}
	return product, SourceDemo, nil
}

func mapProduct(w wireProduct) (domain.Product, error) {
	price, err := domain.ParseMoney(w.PriceRange.MinVariantPrice.Amount, w.PriceRange.MinVariantPrice.CurrencyCode)
	if err != nil {
		return domain.Product{}, err
	}
	product := domain.Product{
		ID:          w.ID,
		Title:       w.Title,
		Description: w.Description,
		Handle:      w.Handle,
		Vendor:      w.Vendor,
		ProductType: w.ProductType,
		Tags:        append([]string{}, w.Tags...),
		Price:       price,
	}
	if maxPrice := w.PriceRange.MaxVariantPrice; maxPrice != nil {
		if parsed, err := domain.ParseMoney(maxPrice.Amount, maxPrice.CurrencyCode); err == nil {
			product.MaxPrice = &parsed
		}
	}
	for _, edge := range w.Images.Edges {
		product.Images = append(product.Images, domain.Image(edge.Node))
	}
	if len(product.Images) > 0 {
		product.Image = product.Images[0]
	}
	if product.Image.AltText == "" {
		product.Image.AltText = product.Title
	}
	for _, edge := range w.Variants.Edges {
		variantPrice, err := domain.ParseMoney(edge.Node.Price.Amount, edge.Node.Price.CurrencyCode)
		if err != nil {
			return domain.Product{}, err
		}
		product.Variants = append(product.Variants, domain.Variant{
			ID:               edge.Node.ID,
			Title:            edge.Node.Title,
			Price:            variantPrice,
			AvailableForSale: edge.Node.AvailableForSale,
			SelectedOptions:  edge.Node.SelectedOptions,
		})
	}
	return product, nil
}
