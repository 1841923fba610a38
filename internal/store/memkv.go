package store

import (
	"context"
	"sync"
)

// MemKV is a process-local KV. Nothing survives Close.
type MemKV struct {
	mu     sync.Mutex
	values map[string]string

	// FailSet, when non-nil, is returned by every Set.
	FailSet error
}

// NewMemKV returns an empty MemKV.
func NewMemKV() *MemKV {
	return &MemKV{values: map[string]string{}}
}

func (m *MemKV) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemKV) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSet != nil {
		return m.FailSet
	}
	m.values[key] = value
	return nil
}

func (m *MemKV) Close() error { return nil }
