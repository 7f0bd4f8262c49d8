// Package memory provides an in-process document backend used for tests,
// local development and the single-node deployment. Transactions are
// optimistic: the transaction function runs without holding the lock and the
// commit is rejected and re-run when any document it read has changed.
package memory

import (
	"context"
	"sync"

	"potluck/internal/domain"
	"potluck/internal/store"
)

// Compile-time contract assertion.
var _ store.Backend = (*Backend)(nil)

type document struct {
	data    []byte
	version uint64
}

// Backend is an in-memory store.Backend.
type Backend struct {
	opts store.Options

	mu      sync.RWMutex
	docs    map[store.Key]document
	clock   uint64
	subs    map[store.Key]map[int]chan struct{}
	nextSub int
}

// NewBackend returns an empty backend.
func NewBackend(opts store.Options) *Backend {
	return &Backend{
		opts: opts.WithDefaults(),
		docs: make(map[store.Key]document),
		subs: make(map[store.Key]map[int]chan struct{}),
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (b *Backend) Get(ctx context.Context, key store.Key) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	doc, ok := b.docs[key]
	if !ok || doc.data == nil {
		return nil, domain.ErrNotFound
	}
	return clone(doc.data), nil
}

func (b *Backend) List(ctx context.Context, collection string) (map[string][]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[string][]byte)
	for k, doc := range b.docs {
		if k.Collection == collection && doc.data != nil {
			out[k.ID] = clone(doc.data)
		}
	}
	return out, nil
}

func (b *Backend) Transact(ctx context.Context, keys []store.Key, fn store.TxFunc) error {
	keys = store.SortKeys(keys)
	for attempt := 0; attempt <= b.opts.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 0 {
			b.opts.OnRetry()
		}

		b.mu.RLock()
		current := make(map[store.Key][]byte, len(keys))
		seen := make(map[store.Key]uint64, len(keys))
		for _, k := range keys {
			doc := b.docs[k]
			current[k] = clone(doc.data)
			seen[k] = doc.version
		}
		b.mu.RUnlock()

		writes, err := fn(current)
		if err != nil {
			return err
		}

		b.mu.Lock()
		conflict := false
		for k, v := range seen {
			if b.docs[k].version != v {
				conflict = true
				break
			}
		}
		if conflict {
			b.mu.Unlock()
			continue
		}
		for k, data := range writes {
			b.clock++
			b.docs[k] = document{data: clone(data), version: b.clock}
			// Signal under the lock: cancel closes channels while holding it.
			for _, ch := range b.subs[k] {
				store.Notify(ch)
			}
		}
		b.mu.Unlock()
		return nil
	}
	return &domain.StoreError{Op: "transact", Err: store.ErrConflict}
}

func (b *Backend) Subscribe(_ context.Context, key store.Key) (<-chan struct{}, func(), error) {
	ch := make(chan struct{}, 1)
	b.mu.Lock()
	id := b.nextSub
	b.nextSub++
	if b.subs[key] == nil {
		b.subs[key] = make(map[int]chan struct{})
	}
	b.subs[key][id] = ch
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[key], id)
			if len(b.subs[key]) == 0 {
				delete(b.subs, key)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel, nil
}

// Close is a no-op; it exists to satisfy store.Backend.
func (b *Backend) Close() error { return nil }
