package cart

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/fillesume/storefront/internal/domain"
)

const cartFileExt = ".json"

// FilePersistence stores one JSON array per cart key in a directory and watches the
// directory for writes made by other processes.
type FilePersistence struct {
	dir string

	mu       sync.Mutex
	watchers []*fsnotify.Watcher
	closed   bool
}

// NewFilePersistence creates dir when needed.
func NewFilePersistence(dir string) (*FilePersistence, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("cart: file persistence requires a directory")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("cart: create %s: %w", dir, err)
	}
	return &FilePersistence{dir: dir}, nil
}

// Load implements Persistence.
func (f *FilePersistence) Load(_ context.Context, key string) ([]domain.CartItem, error) {
	payload, err := os.ReadFile(f.path(key))
	if errors.Is(err, os.ErrNotExist) {
		return []domain.CartItem{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cart: read %s: %w", key, err)
	}
	return decodeItems(payload)
}

// Save implements Persistence. The file is replaced atomically.
func (f *FilePersistence) Save(_ context.Context, key string, items []domain.CartItem) error {
	payload, err := encodeItems(items)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(f.dir, ".cart-*")
	if err != nil {
		return fmt.Errorf("cart: temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("cart: write %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cart: write %s: %w", key, err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("cart: replace %s: %w", key, err)
	}
	return nil
}

// Delete implements Persistence.
func (f *FilePersistence) Delete(_ context.Context, key string) error {
	if err := os.Remove(f.path(key)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("cart: delete %s: %w", key, err)
	}
	return nil
}

// Watch implements Persistence using fsnotify on the cart directory.
func (f *FilePersistence) Watch(ctx context.Context) (<-chan string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil, ErrPersistenceClosed
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("cart: watcher: %w", err)
	}
	if err := watcher.Add(f.dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("cart: watch %s: %w", f.dir, err)
	}
	f.watchers = append(f.watchers, watcher)

	out := make(chan string, watchBuffer)
	go func() {
		defer close(out)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
					continue
				}
				key, ok := keyFromPath(event.Name)
				if !ok {
					continue
				}
				select {
				case out <- key:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out, nil
}

// Close stops every watcher.
func (f *FilePersistence) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}
	f.closed = true
	var errs []error
	for _, w := range f.watchers {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	f.watchers = nil
	return errors.Join(errs...)
}

func (f *FilePersistence) path(key string) string {
	return filepath.Join(f.dir, base64.RawURLEncoding.EncodeToString([]byte(key))+cartFileExt)
}

func keyFromPath(path string) (string, bool) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || !strings.HasSuffix(name, cartFileExt) {
		return "", false
	}
	decoded, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(name, cartFileExt))
	if err != nil {
		return "", false
	}
	return string(decoded), true
}
