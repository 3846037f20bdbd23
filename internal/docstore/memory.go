package docstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
)

// MemorySource keeps collections in process. Used by tests and as the
// fallback when no remote store is configured, mirroring how the service
// degrades to in-memory backends elsewhere.
type MemorySource struct {
	mu       sync.RWMutex
	colls    map[string]map[string]json.RawMessage
	watchers *watcherSet
}

func NewMemorySource() *MemorySource {
	return &MemorySource{
		colls:    make(map[string]map[string]json.RawMessage),
		watchers: newWatcherSet(),
	}
}

func (m *MemorySource) Put(collection, id string, data json.RawMessage) {
	m.mu.Lock()
	if m.colls[collection] == nil {
		m.colls[collection] = make(map[string]json.RawMessage)
	}
	m.colls[collection][id] = append(json.RawMessage(nil), data...)
	m.mu.Unlock()
	m.watchers.notify(collection)
}

func (m *MemorySource) Delete(collection, id string) {
	m.mu.Lock()
	delete(m.colls[collection], id)
	m.mu.Unlock()
	m.watchers.notify(collection)
}

func (m *MemorySource) List(ctx context.Context, collection string) ([]Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	coll := m.colls[collection]
	out := make([]Document, 0, len(coll))
	for id, data := range coll {
		out = append(out, Document{ID: id, Data: data})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemorySource) Watch(collection string, notify func()) (func(), error) {
	return m.watchers.add(collection, notify), nil
}
