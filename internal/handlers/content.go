package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/fillesume/storefront/internal/animation"
	"github.com/fillesume/storefront/internal/content"
	"github.com/fillesume/storefront/internal/platform/httpx"
)

// PageReader serves rendered static pages.
type PageReader interface {
	Page(ctx context.Context, slug string) (content.Page, error)
	Slugs() []string
}

// ContentHandlers exposes the static pages and their decorative chrome surface.
type ContentHandlers struct {
	pages    PageReader
	assetURL func(ctx context.Context, path string) string
}

// NewContentHandlers constructs content handlers. assetURL resolves chrome mask images.
func NewContentHandlers(pages PageReader, assetURL func(ctx context.Context, path string) string) *ContentHandlers {
	return &ContentHandlers{pages: pages, assetURL: assetURL}
}

// Routes wires the /content endpoints onto the provided router.
func (h *ContentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listPages)
	r.Get("/{slug}", h.getPage)
}

type pageResponse struct {
	Page   content.Page             `json:"page"`
	Chrome *animation.ChromeSurface `json:"chrome,omitempty"`
}

func (h *ContentHandlers) listPages(w http.ResponseWriter, r *http.Request) {
	if h.pages == nil {
		serviceUnavailable(r.Context(), w, "content")
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"pages": h.pages.Slugs()})
}

func (h *ContentHandlers) getPage(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.pages == nil {
		serviceUnavailable(ctx, w, "content")
		return
	}
	slug := strings.TrimSpace(chi.URLParam(r, "slug"))
	page, err := h.pages.Page(ctx, slug)
	if err != nil {
		switch {
		case errors.Is(err, content.ErrNotFound):
			httpx.WriteError(ctx, w, httpx.NewError("page_not_found", "page not found", http.StatusNotFound))
		default:
			httpx.WriteError(ctx, w, httpx.NewError("content_error", "failed to load page", http.StatusInternalServerError))
		}
		return
	}

	resp := pageResponse{Page: page}
	if page.Chrome != nil {
		if surface, ok := animation.NewChromeSurface(ctx, *page.Chrome, h.assetURL); ok {
			resp.Chrome = &surface
		}
	}
	if !page.UpdatedAt.IsZero() {
		w.Header().Set("Last-Modified", page.UpdatedAt.UTC().Format(http.TimeFormat))
	}
	w.Header().Set("Cache-Control", "public, max-age=300")
	writeJSONResponse(w, http.StatusOK, resp)
}
