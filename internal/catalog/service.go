package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/fillesume/storefront/internal/commerce"
	"github.com/fillesume/storefront/internal/domain"
)

const (
	defaultShopSize    = 20
	defaultGallerySize = 6
	defaultCacheTTL    = 5 * time.Minute
	maxRelated         = 4
)

// ProductSource is the commerce read surface the catalog needs.
type ProductSource interface {
	Products(ctx context.Context, first int) (commerce.Listing, error)
	Product(ctx context.Context, id string) (domain.Product, commerce.Source, error)
}

// ServiceDeps wires the catalog service.
type ServiceDeps struct {
	Source      ProductSource
	ShopSize    int
	GallerySize int
	CacheTTL    time.Duration
	Clock       func() time.Time
	Logger      func(context.Context, string, map[string]any)
}

// Result is a filtered listing.
type Result struct {
	Products   []domain.Product `json:"products"`
	Categories []string         `json:"categories"`
	Filter     Filter           `json:"filter"`
	Source     commerce.Source  `json:"source"`
}

// Detail is a product page payload.
type Detail struct {
	Product domain.Product   `json:"product"`
	Related []domain.Product `json:"related"`
	Source  commerce.Source  `json:"source"`
}

type cacheEntry struct {
	listing commerce.Listing
	expires time.Time
}

// Service serves the shop listing, gallery and product pages with a short-lived cache
// over backend reads. Demo fallbacks are never cached so recovery is immediate.
type Service struct {
	source      ProductSource
	shopSize    int
	gallerySize int
	ttl         time.Duration
	now         func() time.Time
	logger      func(context.Context, string, map[string]any)

	mu    sync.Mutex
	cache map[int]cacheEntry
}

// NewService validates deps.
func NewService(deps ServiceDeps) (*Service, error) {
	if deps.Source == nil {
		return nil, errors.New("catalog: product source is required")
	}
	s := &Service{
		source:      deps.Source,
		shopSize:    deps.ShopSize,
		gallerySize: deps.GallerySize,
		ttl:         deps.CacheTTL,
		now:         deps.Clock,
		logger:      deps.Logger,
		cache:       make(map[int]cacheEntry),
	}
	if s.shopSize <= 0 {
		s.shopSize = defaultShopSize
	}
	if s.gallerySize <= 0 {
		s.gallerySize = defaultGallerySize
	}
	if s.ttl <= 0 {
		s.ttl = defaultCacheTTL
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = func(context.Context, string, map[string]any) {}
	}
	return s, nil
}

// Shop returns the filtered shop listing. Categories are computed from the unfiltered set.
func (s *Service) Shop(ctx context.Context, f Filter) (Result, error) {
	listing, err := s.listing(ctx, s.shopSize)
	if err != nil {
		return Result{}, err
	}
	f = f.Normalize()
	return Result{
		Products:   Apply(listing.Products, f),
		Categories: Categories(listing.Products),
		Filter:     f,
		Source:     listing.Source,
	}, nil
}

// Categories returns the category chips for the shop page.
func (s *Service) Categories(ctx context.Context) ([]string, error) {
	listing, err := s.listing(ctx, s.shopSize)
	if err != nil {
		return nil, err
	}
	return Categories(listing.Products), nil
}

// Gallery returns the home page gallery in backend order.
func (s *Service) Gallery(ctx context.Context) (commerce.Listing, error) {
	return s.listing(ctx, s.gallerySize)
}

// ProductDetail loads the product and its related products concurrently.
func (s *Service) ProductDetail(ctx context.Context, id string) (Detail, error) {
	var (
		product domain.Product
		source  commerce.Source
		listing commerce.Listing
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		product, source, err = s.source.Product(gctx, id)
		return err
	})
	g.Go(func() error {
		var err error
		listing, err = s.listing(gctx, s.shopSize)
		if err != nil && ctx.Err() == nil {
			s.logger(ctx, "catalog.related_failed", map[string]any{"id": id, "error": err})
			listing = commerce.Listing{}
			return nil
		}
		return err
	})
	if err := g.Wait(); err != nil {
		return Detail{}, err
	}
	return Detail{Product: product, Related: related(product, listing.Products), Source: source}, nil
}

func (s *Service) listing(ctx context.Context, size int) (commerce.Listing, error) {
	now := s.now()
	s.mu.Lock()
	entry, ok := s.cache[size]
	s.mu.Unlock()
	if ok && now.Before(entry.expires) {
		return entry.listing, nil
	}

	listing, err := s.source.Products(ctx, size)
	if err != nil {
		return commerce.Listing{}, err
	}
	if listing.Source == commerce.SourceBackend {
		s.mu.Lock()
		s.cache[size] = cacheEntry{listing: listing, expires: now.Add(s.ttl)}
		s.mu.Unlock()
	}
	return listing, nil
}

// Invalidate drops cached listings.
func (s *Service) Invalidate() {
	s.mu.Lock()
	s.cache = make(map[int]cacheEntry)
	s.mu.Unlock()
}

func related(product domain.Product, candidates []domain.Product) []domain.Product {
	out := make([]domain.Product, 0, maxRelated)
	for _, c := range candidates {
		if len(out) == maxRelated {
			break
		}
		if c.ID == product.ID || domain.NumericID(c.ID) == domain.NumericID(product.ID) {
			continue
		}
		if strings.EqualFold(c.ProductType, product.ProductType) && product.ProductType != "" {
			out = append(out, c)
		}
	}
	return out
}
