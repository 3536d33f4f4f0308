package index

import (
	"context"
	"sync"

	"github.com/termsync/termsync/entry"
)

// Memory is the in-process index. Entries are stored as copies so a caller
// mutating its entry after Put cannot bypass the merge path.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]*entry.Entry
}

// NewMemory returns an empty in-memory index.
func NewMemory() *Memory {
	return &Memory{entries: make(map[string]*entry.Entry)}
}

func (m *Memory) Put(_ context.Context, uuid string, e *entry.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[uuid] = e.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, uuid string) (*entry.Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[uuid]
	if !ok {
		return nil, false, nil
	}
	return e.Clone(), true, nil
}

func (m *Memory) Remove(_ context.Context, uuid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, uuid)
	return nil
}

// Len reports the number of pending entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
