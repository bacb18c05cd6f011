package cart

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fillesume/storefront/internal/domain"
	"github.com/fillesume/storefront/internal/platform/observability"
)

var (
	// ErrInvalidItem indicates the caller supplied an item that cannot be stored.
	ErrInvalidItem = errors.New("cart: invalid item")
	// ErrItemNotFound indicates the variant is not in the cart.
	ErrItemNotFound = errors.New("cart: item not found")
	// ErrMixedCurrency indicates the cart holds items priced in different currencies.
	ErrMixedCurrency = errors.New("cart: mixed currencies")
)

// EventKind names the mutation that produced an Event.
type EventKind string

// Event kinds.
const (
	EventAdded    EventKind = "added"
	EventUpdated  EventKind = "updated"
	EventRemoved  EventKind = "removed"
	EventCleared  EventKind = "cleared"
	EventExternal EventKind = "external"
)

// Event is broadcast after every successful mutation and after an external change.
type Event struct {
	Key        string            `json:"key"`
	Kind       EventKind         `json:"kind"`
	Items      []domain.CartItem `json:"items"`
	TotalItems int               `json:"totalItems"`
}

var mutationCounter = observability.NewCounter("storefront.cart.mutations", "Cart mutations by kind")

// StoreOption customises a Store.
type StoreOption func(*Store)

// WithClock overrides the time source used for idle tracking.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLogger sets the event logger.
func WithLogger(logger func(context.Context, string, map[string]any)) StoreOption {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// Store is the cart for one key. Every mutation re-reads the persisted array, applies
// the change and writes the full array back before returning, all under one lock.
// Subscribers are invoked in mutation order and must not mutate the store from inside
// the callback.
type Store struct {
	key     string
	persist Persistence
	now     func() time.Time
	logger  func(context.Context, string, map[string]any)

	mu    sync.Mutex
	items []domain.CartItem

	notifyMu sync.Mutex
	subsMu   sync.Mutex
	subs     map[uint64]func(Event)
	nextSub  uint64

	lastUsed atomic.Int64
}

// NewStore loads the persisted cart for key.
func NewStore(ctx context.Context, key string, persist Persistence, opts ...StoreOption) (*Store, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, errors.New("cart: key is required")
	}
	if persist == nil {
		return nil, errors.New("cart: persistence is required")
	}
	s := &Store{
		key:     key,
		persist: persist,
		now:     time.Now,
		logger:  func(context.Context, string, map[string]any) {},
		subs:    make(map[uint64]func(Event)),
	}
	for _, opt := range opts {
		opt(s)
	}
	items, err := persist.Load(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("cart: load %s: %w", key, err)
	}
	s.items = items
	s.touch()
	return s, nil
}

// Key returns the persistence key.
func (s *Store) Key() string { return s.key }

// Add merges item into the cart by variant id, summing quantities, or appends it.
func (s *Store) Add(ctx context.Context, item domain.CartItem) error {
	item.VariantID = strings.TrimSpace(item.VariantID)
	if err := item.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidItem, err)
	}
	return s.mutate(ctx, EventAdded, func(items []domain.CartItem) ([]domain.CartItem, error) {
		if idx := indexOf(items, item.VariantID); idx >= 0 {
			items[idx].Quantity += item.Quantity
			return items, nil
		}
		return append(items, item), nil
	})
}

// Update replaces the quantity of a line. A quantity of zero or less removes it.
func (s *Store) Update(ctx context.Context, variantID string, quantity int) error {
	variantID = strings.TrimSpace(variantID)
	if variantID == "" {
		return fmt.Errorf("%w: variantId is required", ErrInvalidItem)
	}
	kind := EventUpdated
	if quantity <= 0 {
		kind = EventRemoved
	}
	return s.mutate(ctx, kind, func(items []domain.CartItem) ([]domain.CartItem, error) {
		idx := indexOf(items, variantID)
		if idx < 0 {
			if quantity <= 0 {
				return items, nil
			}
			return nil, ErrItemNotFound
		}
		if quantity <= 0 {
			return slices.Delete(items, idx, idx+1), nil
		}
		items[idx].Quantity = quantity
		return items, nil
	})
}

// Remove deletes a line. Removing an absent variant is a no-op.
func (s *Store) Remove(ctx context.Context, variantID string) error {
	return s.Update(ctx, variantID, 0)
}

// Clear empties the cart and deletes its persisted record.
func (s *Store) Clear(ctx context.Context) error {
	s.touch()
	s.mu.Lock()
	if err := s.persist.Delete(ctx, s.key); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("cart: clear %s: %w", s.key, err)
	}
	s.items = []domain.CartItem{}
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()
	mutationCounter.Add(ctx, 1, "kind", string(EventCleared))
	s.broadcast(Event{Key: s.key, Kind: EventCleared, Items: []domain.CartItem{}})
	return nil
}

// Items returns a copy of the current lines.
func (s *Store) Items() []domain.CartItem {
	s.touch()
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.items)
}

// TotalItems sums quantities.
func (s *Store) TotalItems() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return totalItems(s.items)
}

// TotalPrice sums line totals. An empty cart totals zero in the default currency.
func (s *Store) TotalPrice() (domain.Money, error) {
	s.mu.Lock()
	items := slices.Clone(s.items)
	s.mu.Unlock()
	return TotalPrice(items)
}

// TotalPrice sums line totals for items.
func TotalPrice(items []domain.CartItem) (domain.Money, error) {
	total := domain.Money{}
	for _, item := range items {
		line, err := item.LineTotal()
		if err != nil {
			return domain.Money{}, fmt.Errorf("%w: %v", ErrInvalidItem, err)
		}
		if total.Currency != "" && line.Currency != total.Currency {
			return domain.Money{}, ErrMixedCurrency
		}
		total = total.Plus(line)
	}
	if total.Currency == "" {
		return domain.NewMoney(0, domain.DefaultCurrency), nil
	}
	return total, nil
}

// Subscribe registers fn for change events and returns the unsubscribe function.
func (s *Store) Subscribe(fn func(Event)) func() {
	if fn == nil {
		return func() {}
	}
	s.touch()
	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
		})
	}
}

// Subscribers returns the number of registered observers.
func (s *Store) Subscribers() int {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	return len(s.subs)
}

// Reload re-reads the persisted cart and broadcasts EventExternal when it changed.
func (s *Store) Reload(ctx context.Context) error {
	s.mu.Lock()
	items, err := s.persist.Load(ctx, s.key)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("cart: reload %s: %w", s.key, err)
	}
	if slices.Equal(items, s.items) {
		s.mu.Unlock()
		return nil
	}
	s.items = items
	snapshot := slices.Clone(items)
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()
	s.logger(ctx, "cart.external_change", map[string]any{"key": s.key, "items": len(snapshot)})
	s.broadcast(Event{Key: s.key, Kind: EventExternal, Items: snapshot, TotalItems: totalItems(snapshot)})
	return nil
}

// IdleSince reports when the store was last used.
func (s *Store) IdleSince() time.Time {
	return time.Unix(0, s.lastUsed.Load())
}

func (s *Store) mutate(ctx context.Context, kind EventKind, apply func([]domain.CartItem) ([]domain.CartItem, error)) error {
	s.touch()
	s.mu.Lock()
	current, err := s.persist.Load(ctx, s.key)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("cart: load %s: %w", s.key, err)
	}
	next, err := apply(slices.Clone(current))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if err := s.persist.Save(ctx, s.key, next); err != nil {
		s.mu.Unlock()
		s.logger(ctx, "cart.persist_failed", map[string]any{"key": s.key, "kind": string(kind), "error": err})
		return fmt.Errorf("cart: save %s: %w", s.key, err)
	}
	s.items = next
	snapshot := slices.Clone(next)
	s.notifyMu.Lock()
	s.mu.Unlock()
	defer s.notifyMu.Unlock()

	mutationCounter.Add(ctx, 1, "kind", string(kind))
	s.broadcast(Event{Key: s.key, Kind: kind, Items: snapshot, TotalItems: totalItems(snapshot)})
	return nil
}

func (s *Store) broadcast(event Event) {
	s.subsMu.Lock()
	ids := make([]uint64, 0, len(s.subs))
	for id := range s.subs {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	fns := make([]func(Event), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.subs[id])
	}
	s.subsMu.Unlock()

	for _, fn := range fns {
		fn(event)
	}
}

func (s *Store) touch() {
	s.lastUsed.Store(s.now().UnixNano())
}

func indexOf(items []domain.CartItem, variantID string) int {
	return slices.IndexFunc(items, func(item domain.CartItem) bool {
		return item.VariantID == variantID
	})
}

func totalItems(items []domain.CartItem) int {
	total := 0
	for _, item := range items {
		total += item.Quantity
	}
	return total
}
