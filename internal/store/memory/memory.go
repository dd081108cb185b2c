// Package memory is a process-local Store used for ephemeral runs and tests.
package memory

import (
	"context"
	"maps"
	"sync"

	"github.com/loykin/extbox/internal/store"
)

type DB struct {
	mu     sync.RWMutex
	data   map[string]string
	closed bool
}

func New() *DB { return &DB{data: map[string]string{}} }

func (m *DB) EnsureSchema(context.Context) error { return nil }

func (m *DB) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return "", false, store.ErrClosed
	}
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *DB) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return store.ErrClosed
	}
	m.data[key] = value
	return nil
}

func (m *DB) SetMany(_ context.Context, kv map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return store.ErrClosed
	}
	maps.Copy(m.data, kv)
	return nil
}

func (m *DB) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return store.ErrClosed
	}
	delete(m.data, key)
	return nil
}

func (m *DB) List(context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, store.ErrClosed
	}
	return maps.Clone(m.data), nil
}

func (m *DB) Clear(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return store.ErrClosed
	}
	clear(m.data)
	return nil
}

func (m *DB) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
