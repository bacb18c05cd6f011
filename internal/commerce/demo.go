package commerce

import (
	"context"

	"github.com/fillesume/storefront/internal/domain"
)

type demoEntry struct {
	id          string
	title       string
	description string
	handle      string
	productType string
	tags        []string
	price       int64
	image       string
}

var demoCatalog = []demoEntry{
	{"1", "Vestido Tierra", "Vestido compostable de hueso de aceituna con diseño elegante y sostenible", "vestido-tierra", "Vestidos", []string{"compostable", "elegante", "sostenible"}, 28000, "images/corset.jpg"},
	{"2", "Chaqueta Natura", "Chaqueta biodegradable con fibras naturales y acabados artesanales", "chaqueta-natura", "Chaquetas", []string{"biodegradable", "natural", "artesanal"}, 35000, "images/corset2.jpg"},
	{"3", "Falda Circular", "Falda de biomateriales innovadores con corte circular fluido", "falda-circular", "Faldas", []string{"biomateriales", "circular", "fluido"}, 22000, "images/red2.jpg"},
	{"4", "Top Regenera", "Top compostable con diseño minimalista y líneas limpias", "top-regenera", "Tops", []string{"compostable", "minimalista", "limpio"}, 18000, "images/red.jpg"},
	{"5", "Pantalón Ciclo", "Pantalón de fibras recicladas con ajuste perfecto", "pantalon-ciclo", "Pantalones", []string{"reciclado", "ajuste", "cómodo"}, 29000, "images/corset3.jpg"},
	{"6", "Camisa Raíz", "Camisa artesanal biodegradable con detalles únicos", "camisa-raiz", "Camisas", []string{"artesanal", "biodegradable", "único"}, 24000, "images/corset4.jpg"},
	{"7", "Blazer Eco", "Blazer estructurado de materiales sostenibles", "blazer-eco", "Chaquetas", []string{"estructurado", "sostenible", "formal"}, 42000, "images/gallery1.jpeg"},
	{"8", "Mono Orgánico", "Mono de una pieza con fibras orgánicas certificadas", "mono-organico", "Monos", []string{"orgánico", "certificado", "una-pieza"}, 38000, "images/gallery2.jpeg"},
}

// DemoVariantTitle labels the single variant every demo product carries.
const DemoVariantTitle = "Talla única"

func (c *Client) demoProducts(ctx context.Context, first int) []domain.Product {
	products := make([]domain.Product, 0, len(demoCatalog))
	for _, entry := range demoCatalog {
		if first > 0 && len(products) >= first {
			break
		}
		products = append(products, c.demoToProduct(ctx, entry))
	}
	return products
}

func (c *Client) demoProduct(ctx context.Context, id string) (domain.Product, bool) {
	for _, entry := range demoCatalog {
		if entry.id == id || entry.handle == id {
			return c.demoToProduct(ctx, entry), true
		}
	}
	return domain.Product{}, false
}

func (c *Client) demoToProduct(ctx context.Context, entry demoEntry) domain.Product {
	price := domain.NewMoney(entry.price, "EUR")
	image := domain.Image{URL: c.assetURL(ctx, entry.image), AltText: entry.title}
	return domain.Product{
		ID:          entry.id,
		Title:       entry.title,
		Description: entry.description,
		Handle:      entry.handle,
		Vendor:      "Fillesume",
		ProductType: entry.productType,
		Tags:        append([]string{}, entry.tags...),
		Price:       price,
		Image:       image,
		Images:      []domain.Image{image},
		Variants: []domain.Variant{{
			ID:               "demo-variant-" + entry.id,
			Title:            DemoVariantTitle,
			Price:            price,
			AvailableForSale: true,
		}},
	}
}
