package storage

import (
	"context"
	"sync"
)

// MemoryBackend is an in-process, map-backed Backend. It has no
// durability and no fsync cost, making it the default for tests and for
// stateless components that opt out of persistence.
type MemoryBackend struct {
	mu   sync.RWMutex
	data map[string]map[string][]byte
}

// NewMemoryBackend creates an empty MemoryBackend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		data: make(map[string]map[string][]byte),
	}
}

// Get implements Backend.
func (m *MemoryBackend) Get(_ context.Context, namespace, key string) ([]byte, error) {
	if namespace == "" {
		return nil, ErrNamespaceRequired
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ns, ok := m.data[namespace]
	if !ok {
		return nil, ErrKeyNotFound
	}

	val, ok := ns[key]
	if !ok {
		return nil, ErrKeyNotFound
	}

	out := make([]byte, len(val))
	copy(out, val)
	return out, nil
}

// Set implements Backend.
func (m *MemoryBackend) Set(_ context.Context, namespace, key string, value []byte) error {
	if namespace == "" {
		return ErrNamespaceRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string][]byte)
		m.data[namespace] = ns
	}

	stored := make([]byte, len(value))
	copy(stored, value)
	ns[key] = stored

	return nil
}

// Delete implements Backend.
func (m *MemoryBackend) Delete(_ context.Context, namespace, key string) error {
	if namespace == "" {
		return ErrNamespaceRequired
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if ns, ok := m.data[namespace]; ok {
		delete(ns, key)
	}

	return nil
}

// ListKeys implements Backend.
func (m *MemoryBackend) ListKeys(_ context.Context, namespace string) ([]string, error) {
	if namespace == "" {
		return nil, ErrNamespaceRequired
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	ns, ok := m.data[namespace]
	if !ok {
		return nil, nil
	}

	keys := make([]string, 0, len(ns))
	for k := range ns {
		keys = append(keys, k)
	}

	return keys, nil
}

// Close implements Backend. MemoryBackend holds no resources to release.
func (m *MemoryBackend) Close() error {
	return nil
}

// Ensure MemoryBackend implements Backend at compile time.
var _ Backend = (*MemoryBackend)(nil)
