package repository

import (
	"context"
	"sync"
)

// Memory is an in-process Store
type Memory struct {
	mu     sync.RWMutex
	values map[string]map[string][]byte
}

// NewMemory returns an empty in-process store
func NewMemory() *Memory {
	return &Memory{values: make(map[string]map[string][]byte)}
}

func (m *Memory) Get(ctx context.Context, owner, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[owner][key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *Memory) Put(ctx context.Context, owner, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values[owner] == nil {
		m.values[owner] = make(map[string][]byte)
	}
	m.values[owner][key] = append([]byte(nil), value...)
	return nil
}

func (m *Memory) Delete(ctx context.Context, owner, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values[owner], key)
	return nil
}
