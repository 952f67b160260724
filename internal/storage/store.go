package storage

import (
	"context"
	"sort"
	"sync"
)

// Store serializes access to a backend and provides staged transactions.
// Everything in the sync engine reads and writes through a Store.
type Store struct {
	mu      sync.Mutex
	backend KV
}

func NewStore(backend KV) *Store {
	if backend == nil {
		backend = Nop{}
	}
	return &Store{backend: backend}
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Get(ctx, key)
}

func (s *Store) Set(ctx context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend.Set(ctx, key, value)
}

// Update holds the store lock for the duration of fn. Writes made through the
// KV handed to fn are buffered and reach the backend only when fn returns nil
// and ctx has not been cancelled.
func (s *Store) Update(ctx context.Context, fn func(kv KV) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &stagedKV{base: s.backend, writes: make(map[string][]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	// Past this point the commit is not interrupted by a late cancel.
	return tx.commit(context.WithoutCancel(ctx))
}

type stagedKV struct {
	base   KV
	writes map[string][]byte
}

func (t *stagedKV) Get(ctx context.Context, key string) ([]byte, error) {
	if v, ok := t.writes[key]; ok {
		return append([]byte(nil), v...), nil
	}
	return t.base.Get(ctx, key)
}

func (t *stagedKV) Set(ctx context.Context, key string, value []byte) error {
	t.writes[key] = append([]byte(nil), value...)
	return nil
}

// Update on an open transaction joins it.
func (t *stagedKV) Update(ctx context.Context, fn func(kv KV) error) error {
	return fn(t)
}

func (t *stagedKV) commit(ctx context.Context) error {
	if len(t.writes) == 0 {
		return nil
	}
	if b, ok := t.base.(Batcher); ok {
		return b.SetMany(ctx, t.writes)
	}

	keys := make([]string, 0, len(t.writes))
	for k := range t.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := t.base.Set(ctx, k, t.writes[k]); err != nil {
			return err
		}
	}
	return nil
}
