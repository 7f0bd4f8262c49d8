// Package postgres stores documents in a single PostgreSQL table. Transactions
// lock the rows they read with SELECT ... FOR UPDATE, so concurrent writers to
// the same event queue behind each other instead of overwriting. Commits
// announce changes with pg_notify; watchers receive them through a pq.Listener.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"potluck/internal/domain"
	"potluck/internal/store"
)

// Compile-time contract assertion.
var _ store.Backend = (*Backend)(nil)

// NotifyChannel is the LISTEN/NOTIFY channel carrying "collection/id" payloads.
const NotifyChannel = "potluck_documents"

const schema = `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		id TEXT NOT NULL,
		payload JSONB NOT NULL,
		version BIGINT NOT NULL DEFAULT 1,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (collection, id)
	)
`

// Postgres error codes after which a transaction is re-run.
var retryableCodes = map[pq.ErrorCode]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"23505": true, // unique_violation: two writers created the same document
}

// retryable reports whether err carries a retryable SQLSTATE from either driver.
func retryable(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return retryableCodes[pqErr.Code]
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return retryableCodes[pq.ErrorCode(pgErr.Code)]
	}
	return false
}

// Listener is the subset of *pq.Listener the backend uses.
type Listener interface {
	Listen(channel string) error
	NotificationChannel() <-chan *pq.Notification
	Close() error
}

// Backend is a PostgreSQL store.Backend.
type Backend struct {
	DB   *sql.DB
	opts store.Options

	listenerDSN string
	newListener func(dsn string) Listener

	mu       sync.Mutex
	listener Listener
	subs     map[store.Key]map[int]chan struct{}
	nextSub  int
}

// NewBackend wraps db. listenerDSN is used to open the LISTEN connection for
// Subscribe; when empty, Subscribe is unavailable.
func NewBackend(db *sql.DB, listenerDSN string, opts store.Options) *Backend {
	return &Backend{
		DB:          db,
		opts:        opts.WithDefaults(),
		listenerDSN: listenerDSN,
		newListener: newPQListener,
		subs:        make(map[store.Key]map[int]chan struct{}),
	}
}

func newPQListener(dsn string) Listener {
	return pq.NewListener(dsn, 10*time.Second, time.Minute, nil)
}

// EnsureSchema creates the documents table when missing.
func (b *Backend) EnsureSchema(ctx context.Context) error {
	if _, err := b.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure documents table: %w", err)
	}
	return nil
}

func (b *Backend) Get(ctx context.Context, key store.Key) ([]byte, error) {
	query := `
		SELECT payload
		FROM documents
		WHERE collection = $1 AND id = $2
	`
	var payload []byte
	err := b.DB.QueryRowContext(ctx, query, key.Collection, key.ID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, &domain.StoreError{Op: "get", Err: err}
	}
	return payload, nil
}

func (b *Backend) List(ctx context.Context, collection string) (map[string][]byte, error) {
	query := `
		SELECT id, payload
		FROM documents
		WHERE collection = $1
		ORDER BY id
	`
	rows, err := b.DB.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, &domain.StoreError{Op: "list", Err: err}
	}
	defer rows.Close()
	out := make(map[string][]byte)
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, &domain.StoreError{Op: "list", Err: err}
		}
		out[id] = payload
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StoreError{Op: "list", Err: err}
	}
	return out, nil
}

func (b *Backend) Transact(ctx context.Context, keys []store.Key, fn store.TxFunc) error {
	keys = store.SortKeys(keys)
	for attempt := 0; attempt <= b.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			b.opts.OnRetry()
		}
		var fnErr error
		err := b.transactOnce(ctx, keys, func(cur map[store.Key][]byte) (map[store.Key][]byte, error) {
			writes, err := fn(cur)
			fnErr = err
			return writes, err
		})
		if err == nil {
			return nil
		}
		if fnErr != nil {
			return fnErr
		}
		if retryable(err) {
			continue
		}
		return &domain.StoreError{Op: "transact", Err: err}
	}
	return &domain.StoreError{Op: "transact", Err: store.ErrConflict}
}

func (b *Backend) transactOnce(ctx context.Context, keys []store.Key, fn store.TxFunc) (err error) {
	tx, err := b.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current := make(map[store.Key][]byte, len(keys))
	for _, k := range keys {
		var payload []byte
		err = tx.QueryRowContext(ctx, `
			SELECT payload
			FROM documents
			WHERE collection = $1 AND id = $2
			FOR UPDATE
		`, k.Collection, k.ID).Scan(&payload)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("lock %s: %w", k, err)
		}
		err = nil
		current[k] = payload
	}

	writes, err := fn(current)
	if err != nil {
		return err
	}

	for _, k := range store.SortKeys(keysOf(writes)) {
		data := writes[k]
		if data == nil {
			_, err = tx.ExecContext(ctx, `DELETE FROM documents WHERE collection = $1 AND id = $2`, k.Collection, k.ID)
		} else if current[k] == nil {
			// Plain INSERT: a concurrent creator makes this fail with 23505
			// and the whole transaction re-runs against the new row.
			_, err = tx.ExecContext(ctx, `
				INSERT INTO documents (collection, id, payload)
				VALUES ($1, $2, $3)
			`, k.Collection, k.ID, string(data))
		} else {
			_, err = tx.ExecContext(ctx, `
				UPDATE documents
				SET payload = $3, version = version + 1, updated_at = NOW()
				WHERE collection = $1 AND id = $2
			`, k.Collection, k.ID, string(data))
		}
		if err != nil {
			return fmt.Errorf("write %s: %w", k, err)
		}
		if _, err = tx.ExecContext(ctx, `SELECT pg_notify($1, $2)`, NotifyChannel, k.String()); err != nil {
			return fmt.Errorf("notify %s: %w", k, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func keysOf(m map[store.Key][]byte) []store.Key {
	out := make([]store.Key, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func (b *Backend) Subscribe(_ context.Context, key store.Key) (<-chan struct{}, func(), error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener == nil {
		if b.listenerDSN == "" {
			return nil, nil, fmt.Errorf("%w: postgres listener is not configured", domain.ErrInvalidInput)
		}
		l := b.newListener(b.listenerDSN)
		if err := l.Listen(NotifyChannel); err != nil {
			_ = l.Close()
			return nil, nil, &domain.StoreError{Op: "listen", Err: err}
		}
		b.listener = l
		go b.pump(l.NotificationChannel())
	}

	ch := make(chan struct{}, 1)
	id := b.nextSub
	b.nextSub++
	if b.subs[key] == nil {
		b.subs[key] = make(map[int]chan struct{})
	}
	b.subs[key][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if subs, ok := b.subs[key]; ok {
				if _, ok := subs[id]; ok {
					delete(subs, id)
					close(ch)
				}
				if len(subs) == 0 {
					delete(b.subs, key)
				}
			}
		})
	}
	return ch, cancel, nil
}

func (b *Backend) pump(notifications <-chan *pq.Notification) {
	for n := range notifications {
		b.dispatch(n)
	}
	// The listener was closed; release every watcher.
	b.mu.Lock()
	defer b.mu.Unlock()
	for key, subs := range b.subs {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subs, key)
	}
}

// dispatch routes one notification. A nil notification means the listener
// reconnected and may have missed changes, so every watcher is signalled.
func (b *Backend) dispatch(n *pq.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if n == nil {
		for _, subs := range b.subs {
			for _, ch := range subs {
				store.Notify(ch)
			}
		}
		return
	}
	collection, id, ok := strings.Cut(n.Extra, "/")
	if !ok {
		return
	}
	for _, ch := range b.subs[store.Key{Collection: collection, ID: id}] {
		store.Notify(ch)
	}
}

func (b *Backend) Close() error {
	b.mu.Lock()
	l := b.listener
	b.listener = nil
	b.mu.Unlock()
	if l != nil {
		_ = l.Close()
	}
	return b.DB.Close()
}
