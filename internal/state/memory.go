package state

import (
	"context"
	"sync"
	"time"

	"plugind/pkg/plugin"
)

// MemoryStore keeps plugin records in process memory. It backs unit tests
// and minimal deployments that accept losing enable decisions on restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Save upserts the record for name, stamping the timestamp matching status.
func (m *MemoryStore) Save(_ context.Context, name, status string, config map[string]any) error {
	if name == "" {
		return ErrRecordNotFound
	}
	now := time.Now().Unix()
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[name]
	if !ok {
		rec = &Record{Name: name}
		m.records[name] = rec
	}
	rec.Status = status
	rec.Config = cloneConfig(config)
	rec.UpdatedAt = now
	switch status {
	case plugin.StatusEnabled:
		rec.EnabledAt = now
	case plugin.StatusDisabled:
		rec.DisabledAt = now
	}
	return nil
}

// LoadEnabled implements plugin.Store.
func (m *MemoryStore) LoadEnabled(_ context.Context) ([]plugin.PersistedConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var enabled []Record
	for _, rec := range m.records {
		if rec.Status == plugin.StatusEnabled {
			enabled = append(enabled, *rec)
		}
	}
	return toPersisted(enabled), nil
}

// Get returns the record for name.
func (m *MemoryStore) Get(_ context.Context, name string) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[name]
	if !ok {
		return nil, ErrRecordNotFound
	}
	clone := *rec
	clone.Config = cloneConfig(rec.Config)
	return &clone, nil
}

// List returns every record.
func (m *MemoryStore) List(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	records := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		clone := *rec
		clone.Config = cloneConfig(rec.Config)
		records = append(records, clone)
	}
	return records, nil
}

// Delete removes the record for name. Deleting a missing name is a no-op.
func (m *MemoryStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, name)
	return nil
}

// Close implements Store.
func (m *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
