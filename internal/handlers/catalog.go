package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fillesume/storefront/internal/catalog"
	"github.com/fillesume/storefront/internal/commerce"
	"github.com/fillesume/storefront/internal/platform/httpx"
)

// CatalogReader is the catalog surface the handlers need.
type CatalogReader interface {
	Shop(ctx context.Context, f catalog.Filter) (catalog.Result, error)
	Categories(ctx context.Context) ([]string, error)
	Gallery(ctx context.Context) (commerce.Listing, error)
	ProductDetail(ctx context.Context, id string) (catalog.Detail, error)
}

// CatalogHandlers exposes the shop listing, gallery and product pages.
type CatalogHandlers struct {
	catalog CatalogReader
}

// NewCatalogHandlers constructs catalog handlers.
func NewCatalogHandlers(reader CatalogReader) *CatalogHandlers {
	return &CatalogHandlers{catalog: reader}
}

// Routes wires the /catalog endpoints onto the provided router.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/{productId}", h.getProduct)
	r.Get("/categories", h.listCategories)
	r.Get("/gallery", h.gallery)
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	result, err := h.catalog.Shop(ctx, catalog.ParseFilter(r.URL.Query()))
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, result)
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	id := strings.TrimSpace(chi.URLParam(r, "productId"))
	if id == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "product id is required", http.StatusBadRequest))
		return
	}
	detail, err := h.catalog.ProductDetail(ctx, id)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, detail)
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	categories, err := h.catalog.Categories(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"categories": categories})
}

func (h *CatalogHandlers) gallery(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	listing, err := h.catalog.Gallery(ctx)
	if err != nil {
		writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, listing)
}

func writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, commerce.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_timeout", "catalog request did not complete", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to load catalog", http.StatusBadGateway))
	}
}
