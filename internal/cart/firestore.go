package cart

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fillesume/storefront/internal/domain"
	pfirestore "github.com/fillesume/storefront/internal/platform/firestore"
)

const (
	defaultCartCollection = "carts"
	listenerRetryInitial  = 500 * time.Millisecond
	listenerRetryMax      = 30 * time.Second
)

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	ItemCount int                `firestore:"itemCount"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	VariantID string `firestore:"variantId"`
	ProductID string `firestore:"productId"`
	Title     string `firestore:"title"`
	Variant   string `firestore:"variant"`
	Price     string `firestore:"price"`
	Currency  string `firestore:"currency"`
	Quantity  int    `firestore:"quantity"`
	Image     string `firestore:"image"`
	Handle    string `firestore:"handle"`
}

// FirestorePersistence stores one document per cart key. Watch listens to the collection
// with a snapshot listener so writes from other replicas reach open carts.
type FirestorePersistence struct {
	provider   *pfirestore.Provider
	collection string
	now        func() time.Time
	logger     func(context.Context, string, map[string]any)

	mu      sync.Mutex
	cancels []context.CancelFunc
	wg      sync.WaitGroup
}

// FirestoreOption customises FirestorePersistence.
type FirestoreOption func(*FirestorePersistence)

// WithFirestoreLogger reports listener failures.
func WithFirestoreLogger(logger func(context.Context, string, map[string]any)) FirestoreOption {
	return func(f *FirestorePersistence) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// NewFirestorePersistence wires the backend to a provider.
func NewFirestorePersistence(provider *pfirestore.Provider, collection string, opts ...FirestoreOption) (*FirestorePersistence, error) {
	if provider == nil {
		return nil, errors.New("cart: firestore persistence requires a provider")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		collection = defaultCartCollection
	}
	f := &FirestorePersistence{
		provider:   provider,
		collection: collection,
		now:        time.Now,
		logger:     func(context.Context, string, map[string]any) {},
	}
	for _, opt := range opts {
		opt(f)
	}
	return f, nil
}

func (f *FirestorePersistence) doc(ctx context.Context, key string) (*firestore.DocumentRef, error) {
	client, err := f.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	return client.Collection(f.collection).Doc(key), nil
}

// Load implements Persistence.
func (f *FirestorePersistence) Load(ctx context.Context, key string) ([]domain.CartItem, error) {
	ref, err := f.doc(ctx, key)
	if err != nil {
		return nil, err
	}
	snap, err := ref.Get(ctx)
	if err != nil {
		if pfirestore.IsNotFound(err) {
			return []domain.CartItem{}, nil
		}
		return nil, fmt.Errorf("cart: get %s: %w", key, err)
	}
	var doc cartDocument
	if err := snap.DataTo(&doc); err != nil {
		return nil, fmt.Errorf("cart: decode %s: %w", key, err)
	}
	items := make([]domain.CartItem, 0, len(doc.Items))
	for _, item := range doc.Items {
		items = append(items, domain.CartItem(item))
	}
	return items, nil
}

// Save implements Persistence.
func (f *FirestorePersistence) Save(ctx context.Context, key string, items []domain.CartItem) error {
	ref, err := f.doc(ctx, key)
	if err != nil {
		return err
	}
	doc := cartDocument{Items: make([]cartItemDocument, 0, len(items)), UpdatedAt: f.now().UTC()}
	for _, item := range items {
		doc.Items = append(doc.Items, cartItemDocument(item))
		doc.ItemCount += item.Quantity
	}
	if _, err := ref.Set(ctx, doc); err != nil {
		return fmt.Errorf("cart: set %s: %w", key, err)
	}
	return nil
}

// Delete implements Persistence.
func (f *FirestorePersistence) Delete(ctx context.Context, key string) error {
	ref, err := f.doc(ctx, key)
	if err != nil {
		return err
	}
	if _, err := ref.Delete(ctx); err != nil && !pfirestore.IsNotFound(err) {
		return fmt.Errorf("cart: delete %s: %w", key, err)
	}
	return nil
}

// Watch implements Persistence. The initial snapshot is skipped; later snapshots emit
// the ids of changed documents.
func (f *FirestorePersistence) Watch(ctx context.Context) (<-chan string, error) {
	client, err := f.provider.Client(ctx)
	if err != nil {
		return nil, err
	}
	watchCtx, cancel := context.WithCancel(ctx)
	f.mu.Lock()
	f.cancels = append(f.cancels, cancel)
	f.mu.Unlock()

	out := make(chan string, watchBuffer)
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		defer close(out)
		backoff := gax.Backoff{Initial: listenerRetryInitial, Max: listenerRetryMax, Multiplier: 2}
		resumed := false
		for {
			err := f.listen(watchCtx, client, out, resumed)
			if watchCtx.Err() != nil || status.Code(err) == codes.Canceled {
				return
			}
			if !pfirestore.IsUnavailable(err) {
				f.logger(ctx, "cart.firestore_listener_stopped", map[string]any{"collection": f.collection, "error": err})
				return
			}
			delay := backoff.Pause()
			f.logger(ctx, "cart.firestore_listener_retry", map[string]any{"collection": f.collection, "error": err, "delay": delay.String()})
			select {
			case <-watchCtx.Done():
				return
			case <-time.After(delay):
			}
			resumed = true
		}
	}()
	return out, nil
}

// listen forwards changed document ids until the listener fails. The initial
// snapshot is only forwarded when resuming, since writes may have been missed
// while disconnected.
func (f *FirestorePersistence) listen(ctx context.Context, client *firestore.Client, out chan<- string, resumed bool) error {
	it := client.Collection(f.collection).Snapshots(ctx)
	defer it.Stop()
	first := true
	for {
		snap, err := it.Next()
		if err != nil {
			return err
		}
		if first && !resumed {
			first = false
			continue
		}
		first = false
		for _, change := range snap.Changes {
			select {
			case out <- change.Doc.Ref.ID:
			default:
			}
		}
	}
}

// Close stops listeners. The provider is owned by the caller.
func (f *FirestorePersistence) Close() error {
	f.mu.Lock()
	cancels := f.cancels
	f.cancels = nil
	f.mu.Unlock()
	for _, cancel := range cancels {
		cancel()
	}
	f.wg.Wait()
	return nil
}
