package guestcart

import (
	"context"
	"errors"
	"sync"
)

// KeyValueStore is the persistence the guest cart is kept in
type KeyValueStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

var (
	// ErrWriteFailed is returned by MemoryStore when writes are switched off
	ErrWriteFailed = errors.New("write failed")
	// ErrReadFailed is returned by MemoryStore when reads are switched off
	ErrReadFailed = errors.New("read failed")
)

// MemoryStore is an in-process KeyValueStore
type MemoryStore struct {
	mu         sync.RWMutex
	data       map[string]string
	failWrites bool
	failReads  bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

// Get returns the value stored under key
func (m *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failReads {
		return "", false, ErrReadFailed
	}
	value, ok := m.data[key]
	return value, ok, nil
}

// Set stores value under key
func (m *MemoryStore) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWrites {
		return ErrWriteFailed
	}
	m.data[key] = value
	return nil
}

// Delete removes key
func (m *MemoryStore) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failWrites {
		return ErrWriteFailed
	}
	delete(m.data, key)
	return nil
}

// FailWrites makes every following Set and Delete fail
func (m *MemoryStore) FailWrites(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failWrites = fail
}

// FailReads makes every following Get fail
func (m *MemoryStore) FailReads(fail bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failReads = fail
}

// KeyFor returns the storage key of a guest's cart: baseKey alone for the
// anonymous device cart, baseKey:guestID otherwise.
func KeyFor(baseKey, guestID string) string {
	if baseKey == "" {
		baseKey = DefaultKey
	}
	if guestID == "" {
		return baseKey
	}
	return baseKey + ":" + guestID
}
