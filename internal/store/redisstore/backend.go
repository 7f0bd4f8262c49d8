// Package redisstore stores documents in Redis. Transactions use WATCH/MULTI and
// are re-run when a watched key changes before EXEC; every commit publishes a
// change signal on a per-document channel.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-redis/redis/v8"

	"potluck/internal/domain"
	"potluck/internal/store"
)

// Compile-time contract assertion.
var _ store.Backend = (*Backend)(nil)

const defaultPrefix = "potluck:"

// Backend is a Redis-backed store.Backend.
type Backend struct {
	client *redis.Client
	prefix string
	opts   store.Options
}

// NewBackend wraps client. Keys are namespaced by prefix (default "potluck:").
func NewBackend(client *redis.Client, prefix string, opts store.Options) *Backend {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Backend{client: client, prefix: prefix, opts: opts.WithDefaults()}
}

func (b *Backend) docKey(k store.Key) string {
	return b.prefix + "doc:" + k.Collection + ":" + k.ID
}

func (b *Backend) indexKey(collection string) string {
	return b.prefix + "idx:" + collection
}

func (b *Backend) channel(k store.Key) string {
	return b.prefix + "changes:" + k.Collection + ":" + k.ID
}

func (b *Backend) Get(ctx context.Context, key store.Key) ([]byte, error) {
	raw, err := b.client.Get(ctx, b.docKey(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrNotFound
		}
		return nil, &domain.StoreError{Op: "get", Err: err}
	}
	return raw, nil
}

func (b *Backend) List(ctx context.Context, collection string) (map[string][]byte, error) {
	ids, err := b.client.SMembers(ctx, b.indexKey(collection)).Result()
	if err != nil {
		return nil, &domain.StoreError{Op: "list", Err: err}
	}
	out := make(map[string][]byte, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = b.docKey(store.Key{Collection: collection, ID: id})
	}
	vals, err := b.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, &domain.StoreError{Op: "list", Err: err}
	}
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			// Indexed but already deleted by a concurrent writer.
			continue
		}
		out[ids[i]] = []byte(s)
	}
	return out, nil
}

func (b *Backend) Transact(ctx context.Context, keys []store.Key, fn store.TxFunc) error {
	keys = store.SortKeys(keys)
	watched := make([]string, len(keys))
	for i, k := range keys {
		watched[i] = b.docKey(k)
	}

	for attempt := 0; attempt <= b.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			b.opts.OnRetry()
		}
		var fnErr error
		err := b.client.Watch(ctx, func(tx *redis.Tx) error {
			current := make(map[store.Key][]byte, len(keys))
			for _, k := range keys {
				raw, err := tx.Get(ctx, b.docKey(k)).Bytes()
				if err != nil && !errors.Is(err, redis.Nil) {
					return err
				}
				current[k] = raw
			}
			writes, err := fn(current)
			if err != nil {
				fnErr = err
				return err
			}
			if len(writes) == 0 {
				return nil
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for k, data := range writes {
					if data == nil {
						pipe.Del(ctx, b.docKey(k))
						pipe.SRem(ctx, b.indexKey(k.Collection), k.ID)
					} else {
						pipe.Set(ctx, b.docKey(k), data, 0)
						pipe.SAdd(ctx, b.indexKey(k.Collection), k.ID)
					}
					pipe.Publish(ctx, b.channel(k), "changed")
				}
				return nil
			})
			return err
		}, watched...)

		switch {
		case err == nil:
			return nil
		case fnErr != nil:
			return fnErr
		case errors.Is(err, redis.TxFailedErr):
			continue
		default:
			return &domain.StoreError{Op: "transact", Err: err}
		}
	}
	return &domain.StoreError{Op: "transact", Err: store.ErrConflict}
}

func (b *Backend) Subscribe(ctx context.Context, key store.Key) (<-chan struct{}, func(), error) {
	pubsub := b.client.Subscribe(ctx, b.channel(key))
	// Wait for the subscription to be confirmed so no commit after this
	// call returns can be missed.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, nil, &domain.StoreError{Op: "subscribe", Err: err}
	}

	out := make(chan struct{}, 1)
	msgs := pubsub.Channel()
	go func() {
		defer close(out)
		for range msgs {
			store.Notify(out)
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			_ = pubsub.Close()
		})
	}
	return out, cancel, nil
}

// Ping checks connectivity.
func (b *Backend) Ping(ctx context.Context) error {
	if err := b.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

func (b *Backend) Close() error {
	return b.client.Close()
}
