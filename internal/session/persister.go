package session

import (
	"context"
	"sync"
)

// Keys under which the session is mirrored to durable storage.
const (
	KeyUser        = "user"
	KeyPermissions = "permissions"
	KeyToken       = "auth_token"
)

// Persister is the client-side durable key/value storage backing the store.
// Load omits keys that are not present. Save writes every entry of values
// together; implementations make the write atomic where the medium allows.
type Persister interface {
	Load(ctx context.Context, keys ...string) (map[string][]byte, error)
	Save(ctx context.Context, values map[string][]byte) error
	Delete(ctx context.Context, keys ...string) error
}

// MemoryPersister keeps values in process memory. It is used in tests and
// when persistence is disabled.
type MemoryPersister struct {
	mu     sync.Mutex
	values map[string][]byte
}

// NewMemoryPersister constructs an empty MemoryPersister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{values: make(map[string][]byte)}
}

// Load implements Persister.
func (m *MemoryPersister) Load(_ context.Context, keys ...string) (map[string][]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string][]byte, len(keys))
	for _, k := range keys {
		if v, ok := m.values[k]; ok {
			out[k] = append([]byte(nil), v...)
		}
	}
	return out, nil
}

// Save implements Persister.
func (m *MemoryPersister) Save(_ context.Context, values map[string][]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, v := range values {
		m.values[k] = append([]byte(nil), v...)
	}
	return nil
}

// Delete implements Persister.
func (m *MemoryPersister) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
	}
	return nil
}

var _ Persister = (*MemoryPersister)(nil)
