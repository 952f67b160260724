package storage

import (
	"context"
	"sync"
)

// Memory is a process-local backend. It is what tests and one-shot CLI runs
// without a data directory use.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, nil
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Set(ctx context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) SetMany(ctx context.Context, entries map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for k, v := range entries {
		m.data[k] = append([]byte(nil), v...)
	}
	return nil
}

// Nop is the backend for execution contexts with no persistent storage.
type Nop struct{}

func (Nop) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, ErrUnavailable
}

func (Nop) Set(ctx context.Context, key string, value []byte) error {
	return ErrUnavailable
}
