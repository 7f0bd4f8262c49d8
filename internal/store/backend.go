// Package store implements the entity store: a document store of event
// subtrees and user records with a read-modify-write transaction primitive,
// multi-path batch updates and change subscriptions. Backends only move
// opaque JSON documents; this package owns the typed view.
package store

import (
	"context"
	"errors"
	"sort"
)

// DefaultMaxRetries bounds how often a backend re-runs a transaction function
// after losing a write conflict.
const DefaultMaxRetries = 25

// ErrConflict is reported (wrapped in a domain.StoreError) when a transaction
// keeps losing to concurrent writers until the retry budget is spent.
var ErrConflict = errors.New("transaction conflict retries exhausted")

// Key addresses one document.
type Key struct {
	Collection string
	ID         string
}

func (k Key) String() string {
	return k.Collection + "/" + k.ID
}

// TxFunc receives the current content of every requested document (nil when
// absent) and returns the documents to write. A nil value deletes the
// document; keys missing from the result are left untouched.
type TxFunc func(current map[Key][]byte) (map[Key][]byte, error)

// Backend is a durable document store.
type Backend interface {
	// Get returns the document or domain.ErrNotFound.
	Get(ctx context.Context, key Key) ([]byte, error)
	// List returns every document of a collection keyed by id.
	List(ctx context.Context, collection string) (map[string][]byte, error)
	// Transact applies fn atomically over keys. fn is re-invoked against
	// fresh content whenever a concurrent writer committed first. Errors
	// returned by fn are passed through unchanged.
	Transact(ctx context.Context, keys []Key, fn TxFunc) error
	// Subscribe delivers a signal after each committed change to key. Bursts
	// may be coalesced into one signal. The channel is closed after the
	// returned cancel function is called.
	Subscribe(ctx context.Context, key Key) (<-chan struct{}, func(), error)
	Close() error
}

// Options tune backend transaction behaviour.
type Options struct {
	MaxRetries int
	// OnRetry is called each time a transaction is re-run after a conflict.
	OnRetry func()
}

// WithDefaults fills unset fields.
func (o Options) WithDefaults() Options {
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.OnRetry == nil {
		o.OnRetry = func() {}
	}
	return o
}

// SortKeys orders keys so that backends taking row locks always acquire them
// in the same order.
func SortKeys(keys []Key) []Key {
	out := make([]Key, 0, len(keys))
	seen := make(map[Key]struct{}, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Collection != out[j].Collection {
			return out[i].Collection < out[j].Collection
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Notify performs a non-blocking send so that a slow subscriber sees at most
// one pending signal.
func Notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
