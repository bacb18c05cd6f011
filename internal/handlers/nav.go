package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/fillesume/storefront/internal/nav"
	"github.com/fillesume/storefront/internal/platform/requestctx"
	"github.com/fillesume/storefront/internal/platform/session"
)

// CartBadger reports the cart item count for a session.
type CartBadger interface {
	Badge(ctx context.Context, sessionID string) (int, error)
}

// NavHandlers exposes the navigation bar, breadcrumbs and footer.
type NavHandlers struct {
	carts CartBadger
}

// NewNavHandlers constructs navigation handlers. carts may be nil.
func NewNavHandlers(carts CartBadger) *NavHandlers {
	return &NavHandlers{carts: carts}
}

// Routes wires the /nav endpoint onto the provided router.
func (h *NavHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.getNav)
}

func (h *NavHandlers) getNav(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	path := r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}

	count := 0
	if sessionID := session.FromContext(ctx); sessionID != "" && h.carts != nil {
		n, err := h.carts.Badge(ctx, sessionID)
		if err != nil {
			requestctx.Logger(ctx).Warn("cart badge unavailable", zap.Error(err))
		} else {
			count = n
		}
	}
	setNoStore(w)
	writeJSONResponse(w, http.StatusOK, nav.Render(path, count))
}
