package store

import (
	"context"
	"sync"
)

// MemoryStore keeps documents and backups in process memory. It backs the
// memory driver and the test suites.
type MemoryStore struct {
	mu      sync.Mutex
	docs    map[string][]byte
	backups map[int64]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:    make(map[string][]byte),
		backups: make(map[int64]Entry),
	}
}

func (m *MemoryStore) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.docs[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, true, nil
}

func (m *MemoryStore) Save(_ context.Context, key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	m.docs[key] = cp
	return nil
}

func (m *MemoryStore) Append(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backups[e.Timestamp] = e
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, 0, len(m.backups))
	for _, e := range m.backups {
		out = append(out, e)
	}
	return out, nil
}

func (m *MemoryStore) Get(_ context.Context, timestamp int64) (Entry, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.backups[timestamp]
	return e, ok, nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.backups = make(map[int64]Entry)
	return nil
}
