package storage

import (
	"context"
	"sync"

	"github.com/rohmanhakim/catalog-crawler/internal/catalog"
)

// MemoryStore keeps everything in process memory. It backs tests and
// one-off runs that do not need to resume.
type MemoryStore struct {
	mu      sync.RWMutex
	items   map[string]catalog.ItemIdentifier
	entries map[string]catalog.FrontierEntry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:   make(map[string]catalog.ItemIdentifier),
		entries: make(map[string]catalog.FrontierEntry),
	}
}

func (m *MemoryStore) Name() string {
	return "memory"
}

func (m *MemoryStore) Ping(context.Context) error {
	return nil
}

func (m *MemoryStore) Close() error {
	return nil
}

func (m *MemoryStore) InsertIfAbsent(_ context.Context, item catalog.ItemIdentifier) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.items[item.CanonicalKey]; exists {
		return false, nil
	}
	m.items[item.CanonicalKey] = item
	return true, nil
}

func (m *MemoryStore) Lookup(_ context.Context, canonicalKey string) (catalog.ItemIdentifier, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	item, ok := m.items[canonicalKey]
	return item, ok, nil
}

func (m *MemoryStore) CountItems(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.items), nil
}

// Items returns a snapshot of every stored item.
func (m *MemoryStore) Items() []catalog.ItemIdentifier {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := make([]catalog.ItemIdentifier, 0, len(m.items))
	for _, item := range m.items {
		items = append(items, item)
	}
	return items
}

func (m *MemoryStore) PutEntry(_ context.Context, entry catalog.FrontierEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.LeafID] = entry
	return nil
}

func (m *MemoryStore) Entries(context.Context) (map[string]catalog.FrontierEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make(map[string]catalog.FrontierEntry, len(m.entries))
	for k, v := range m.entries {
		entries[k] = v
	}
	return entries, nil
}
