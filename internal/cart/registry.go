package cart

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

const (
	defaultBaseKey = "fillesume_cart"
	defaultIdleTTL = 30 * time.Minute
	keySeparator   = ":"
)

// ErrRegistryClosed is returned by Open after Close.
var ErrRegistryClosed = errors.New("cart: registry closed")

// RegistryOption customises a Registry.
type RegistryOption func(*Registry)

// WithBaseKey overrides the key prefix shared by every cart.
func WithBaseKey(key string) RegistryOption {
	return func(r *Registry) {
		if trimmed := strings.TrimSpace(key); trimmed != "" {
			r.baseKey = trimmed
		}
	}
}

// WithIdleTTL sets how long an unobserved store stays open.
func WithIdleTTL(ttl time.Duration) RegistryOption {
	return func(r *Registry) {
		if ttl > 0 {
			r.idleTTL = ttl
		}
	}
}

// WithRegistryClock overrides the clock.
func WithRegistryClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRegistryLogger sets the event logger shared with every store.
func WithRegistryLogger(logger func(context.Context, string, map[string]any)) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Registry keeps one Store per session cart and routes external change notifications
// from the persistence backend to the matching store.
type Registry struct {
	persist Persistence
	baseKey string
	idleTTL time.Duration
	now     func() time.Time
	logger  func(context.Context, string, map[string]any)

	mu     sync.Mutex
	stores map[string]*Store
	closed bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry constructs a registry over persist.
func NewRegistry(persist Persistence, opts ...RegistryOption) (*Registry, error) {
	if persist == nil {
		return nil, errors.New("cart: registry requires persistence")
	}
	r := &Registry{
		persist: persist,
		baseKey: defaultBaseKey,
		idleTTL: defaultIdleTTL,
		now:     time.Now,
		logger:  func(context.Context, string, map[string]any) {},
		stores:  make(map[string]*Store),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Key derives the persistence key for a visitor session.
func (r *Registry) Key(sessionID string) string {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return r.baseKey
	}
	return r.baseKey + keySeparator + sessionID
}

// Open returns the store for sessionID, loading it on first use.
func (r *Registry) Open(ctx context.Context, sessionID string) (*Store, error) {
	key := r.Key(sessionID)
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, ErrRegistryClosed
	}
	if store, ok := r.stores[key]; ok {
		store.touch()
		return store, nil
	}
	store, err := NewStore(ctx, key, r.persist, WithClock(r.now), WithLogger(r.logger))
	if err != nil {
		return nil, err
	}
	r.stores[key] = store
	return store, nil
}

// Start begins consuming the backend's change feed until Close.
func (r *Registry) Start(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	changes, err := r.persist.Watch(watchCtx)
	if err != nil {
		cancel()
		return err
	}
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for key := range changes {
			r.mu.Lock()
			store, ok := r.stores[key]
			r.mu.Unlock()
			if !ok {
				continue
			}
			if err := store.Reload(watchCtx); err != nil {
				r.logger(watchCtx, "cart.reload_failed", map[string]any{"key": key, "error": err})
			}
		}
	}()
	return nil
}

// CloseIdle drops stores untouched for longer than the idle TTL that have no
// subscribers, and returns how many were dropped. Persisted data is untouched.
func (r *Registry) CloseIdle(now time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	dropped := 0
	for key, store := range r.stores {
		if store.Subscribers() > 0 {
			continue
		}
		if now.Sub(store.IdleSince()) >= r.idleTTL {
			delete(r.stores, key)
			dropped++
		}
	}
	return dropped
}

// Len reports the number of open stores.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.stores)
}

// Close stops the change feed and closes the backend.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	cancel := r.cancel
	r.stores = make(map[string]*Store)
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	err := r.persist.Close()
	r.wg.Wait()
	return err
}
