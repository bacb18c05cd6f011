package cart

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fillesume/storefront/internal/domain"
)

const (
	defaultPollInterval = 2 * time.Second

	sqliteSchema = `CREATE TABLE IF NOT EXISTS carts (
	key TEXT PRIMARY KEY,
	items TEXT NOT NULL,
	updated_at INTEGER NOT NULL
)`
	sqliteIndex = `CREATE INDEX IF NOT EXISTS carts_updated_at ON carts(updated_at)`
)

// SQLitePersistence stores carts in a single SQLite table shared by every process that
// opens the same file. Deletes keep an empty row so pollers see the change.
type SQLitePersistence struct {
	db       *sql.DB
	now      func() time.Time
	interval time.Duration

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

// SQLiteOption customises SQLitePersistence.
type SQLiteOption func(*SQLitePersistence)

// WithPollInterval overrides how often Watch polls for foreign writes.
func WithPollInterval(interval time.Duration) SQLiteOption {
	return func(p *SQLitePersistence) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

// NewSQLitePersistence opens (creating if needed) the database at path.
func NewSQLitePersistence(ctx context.Context, path string, opts ...SQLiteOption) (*SQLitePersistence, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("cart: sqlite persistence requires a path")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("cart: create %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("cart: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)
	for _, stmt := range []string{sqliteSchema, sqliteIndex} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("cart: migrate sqlite: %w", err)
		}
	}
	p := &SQLitePersistence{
		db:       db,
		now:      time.Now,
		interval: defaultPollInterval,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Load implements Persistence.
func (p *SQLitePersistence) Load(ctx context.Context, key string) ([]domain.CartItem, error) {
	var payload string
	err := p.db.QueryRowContext(ctx, `SELECT items FROM carts WHERE key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return []domain.CartItem{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cart: query %s: %w", key, err)
	}
	return decodeItems([]byte(payload))
}

// Save implements Persistence.
func (p *SQLitePersistence) Save(ctx context.Context, key string, items []domain.CartItem) error {
	payload, err := encodeItems(items)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO carts (key, items, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET items = excluded.items, updated_at = excluded.updated_at`,
		key, string(payload), p.now().UnixNano())
	if err != nil {
		return fmt.Errorf("cart: upsert %s: %w", key, err)
	}
	return nil
}

// Delete implements Persistence.
func (p *SQLitePersistence) Delete(ctx context.Context, key string) error {
	return p.Save(ctx, key, nil)
}

// Watch implements Persistence by polling updated_at.
func (p *SQLitePersistence) Watch(ctx context.Context) (<-chan string, error) {
	var cursor int64
	if err := p.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(updated_at), 0) FROM carts`).Scan(&cursor); err != nil {
		return nil, fmt.Errorf("cart: watch cursor: %w", err)
	}
	out := make(chan string, watchBuffer)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer close(out)
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.done:
				return
			case <-ticker.C:
				next, keys, err := p.changedSince(ctx, cursor)
				if err != nil {
					continue
				}
				cursor = next
				for _, key := range keys {
					select {
					case out <- key:
					default:
					}
				}
			}
		}
	}()
	return out, nil
}

func (p *SQLitePersistence) changedSince(ctx context.Context, cursor int64) (int64, []string, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT key, updated_at FROM carts WHERE updated_at > ? ORDER BY updated_at`, cursor)
	if err != nil {
		return cursor, nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var key string
		var updated int64
		if err := rows.Scan(&key, &updated); err != nil {
			return cursor, nil, err
		}
		keys = append(keys, key)
		if updated > cursor {
			cursor = updated
		}
	}
	return cursor, keys, rows.Err()
}

// Close stops pollers and closes the database.
func (p *SQLitePersistence) Close() error {
	var err error
	p.closeOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
		err = p.db.Close()
	})
	return err
}
