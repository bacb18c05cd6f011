package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/fillesume/storefront/internal/domain"
)

const watchBuffer = 64

// ErrPersistenceClosed is returned by backends after Close.
var ErrPersistenceClosed = errors.New("cart: persistence closed")

// Persistence stores the full item array per cart key. Load returns an empty slice for
// unknown keys. Watch emits keys changed by another writer (another process, replica,
// or the same file edited by hand); it may also emit keys this process wrote, which the
// store ignores when the contents did not change.
type Persistence interface {
	Load(ctx context.Context, key string) ([]domain.CartItem, error)
	Save(ctx context.Context, key string, items []domain.CartItem) error
	Delete(ctx context.Context, key string) error
	Watch(ctx context.Context) (<-chan string, error)
	Close() error
}

// MemoryPersistence keeps serialised carts in process memory. Put simulates a write from
// another writer and is what tests use to exercise external change handling.
type MemoryPersistence struct {
	mu       sync.Mutex
	data     map[string][]byte
	watchers []chan string
	closed   bool
}

// NewMemoryPersistence constructs an empty in-memory backend.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{data: make(map[string][]byte)}
}

// Load implements Persistence.
func (m *MemoryPersistence) Load(_ context.Context, key string) ([]domain.CartItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrPersistenceClosed
	}
	return decodeItems(m.data[key])
}

// Save implements Persistence.
func (m *MemoryPersistence) Save(_ context.Context, key string, items []domain.CartItem) error {
	payload, err := encodeItems(items)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrPersistenceClosed
	}
	m.data[key] = payload
	return nil
}

// Delete implements Persistence.
func (m *MemoryPersistence) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrPersistenceClosed
	}
	delete(m.data, key)
	return nil
}

// Put writes items as an external writer would and notifies watchers.
func (m *MemoryPersistence) Put(key string, items []domain.CartItem) error {
	payload, err := encodeItems(items)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrPersistenceClosed
	}
	m.data[key] = payload
	for _, ch := range m.watchers {
		select {
		case ch <- key:
		default:
		}
	}
	return nil
}

// Raw returns the serialised value stored for key.
func (m *MemoryPersistence) Raw(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	value, ok := m.data[key]
	return append([]byte(nil), value...), ok
}

// Watch implements Persistence.
func (m *MemoryPersistence) Watch(ctx context.Context) (<-chan string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrPersistenceClosed
	}
	ch := make(chan string, watchBuffer)
	m.watchers = append(m.watchers, ch)
	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		for i, w := range m.watchers {
			if w == ch {
				m.watchers = append(m.watchers[:i], m.watchers[i+1:]...)
				close(ch)
				return
			}
		}
	}()
	return ch, nil
}

// Close implements Persistence.
func (m *MemoryPersistence) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func encodeItems(items []domain.CartItem) ([]byte, error) {
	if items == nil {
		items = []domain.CartItem{}
	}
	payload, err := json.Marshal(items)
	if err != nil {
		return nil, fmt.Errorf("cart: encode items: %w", err)
	}
	return payload, nil
}

func decodeItems(payload []byte) ([]domain.CartItem, error) {
	if len(payload) == 0 {
		return []domain.CartItem{}, nil
	}
	var items []domain.CartItem
	if err := json.Unmarshal(payload, &items); err != nil {
		return nil, fmt.Errorf("cart: decode items: %w", err)
	}
	if items == nil {
		items = []domain.CartItem{}
	}
	return items, nil
}
