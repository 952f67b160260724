// Package storage provides the persistent key-value capability the sync engine
// is built on. Values are opaque bytes; callers own the encoding.
package storage

import (
	"context"
	"errors"
)

// ErrUnavailable is returned by backends that cannot persist anything in the
// current execution context. Readers treat it as empty state, writers as a no-op.
var ErrUnavailable = errors.New("storage: backend unavailable")

// KV is the minimal capability every backend implements. Get returns nil, nil
// for a missing key.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Batcher is implemented by backends that can write several keys atomically.
type Batcher interface {
	SetMany(ctx context.Context, entries map[string][]byte) error
}

// Updater runs fn against a staged view of the store. Writes made through the
// view become visible together, or not at all.
type Updater interface {
	Update(ctx context.Context, fn func(kv KV) error) error
}

// Update runs fn inside kv's transaction when kv supports one, and directly
// against kv otherwise.
func Update(ctx context.Context, kv KV, fn func(kv KV) error) error {
	if u, ok := kv.(Updater); ok {
		return u.Update(ctx, fn)
	}
	return fn(kv)
}

func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
