// Package clientstate persists the per-visitor gate and popup namespaces.
// A Backend is shaped like browser localStorage; Store layers defaults,
// deep-merge writes and session expiry on top of it.
package clientstate

import (
	"errors"
	"sync"
)

// ErrUnavailable is returned by backends that cannot persist anything.
var ErrUnavailable = errors.New("client state storage unavailable")

// Backend is a string key/value store. Implementations must be safe for
// concurrent use.
type Backend interface {
	GetItem(key string) (value string, ok bool, err error)
	SetItem(key, value string) error
	RemoveItem(key string) error
}

// MemoryBackend keeps every item in process memory.
type MemoryBackend struct {
	mu    sync.RWMutex
	items map[string]string
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{items: make(map[string]string)}
}

func (m *MemoryBackend) GetItem(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.items[key]
	return v, ok, nil
}

func (m *MemoryBackend) SetItem(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[key] = value
	return nil
}

func (m *MemoryBackend) RemoveItem(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, key)
	return nil
}

// Len returns the number of stored items.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items)
}

// UnavailableBackend fails every call, standing in for disabled or
// quota-exhausted storage.
type UnavailableBackend struct{}

func (UnavailableBackend) GetItem(string) (string, bool, error) { return "", false, ErrUnavailable }
func (UnavailableBackend) SetItem(string, string) error         { return ErrUnavailable }
func (UnavailableBackend) RemoveItem(string) error              { return ErrUnavailable }

type scoped struct {
	inner  Backend
	prefix string
}

// Scoped returns a view of b where every key is prefixed with prefix and a
// colon. It gives each visitor a private keyspace on a shared backend.
func Scoped(b Backend, prefix string) Backend {
	return scoped{inner: b, prefix: prefix + ":"}
}

func (s scoped) GetItem(key string) (string, bool, error) { return s.inner.GetItem(s.prefix + key) }
func (s scoped) SetItem(key, value string) error          { return s.inner.SetItem(s.prefix+key, value) }
func (s scoped) RemoveItem(key string) error              { return s.inner.RemoveItem(s.prefix + key) }
