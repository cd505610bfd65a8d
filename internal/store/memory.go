package store

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
)

// memstore keeps snapshots in process; used when no REDIS_URL is configured.
type memstore struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemory() Store {
	return &memstore{items: make(map[string][]byte)}
}

func (m *memstore) Save(ctx context.Context, snap *Snapshot) error {
	if snap == nil || strings.TrimSpace(snap.ID) == "" {
		return ErrInvalidArgs
	}
	raw, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if prev, ok := m.items[snap.ID]; ok {
		var cur Snapshot
		if err := json.Unmarshal(prev, &cur); err == nil && cur.Version >= snap.Version {
			return ErrStaleSnapshot
		}
	}
	m.items[snap.ID] = raw
	return nil
}

func (m *memstore) Load(ctx context.Context, id string) (*Snapshot, error) {
	m.mu.RLock()
	raw, ok := m.items[strings.TrimSpace(id)]
	m.mu.RUnlock()
	if !ok {
		return nil, nil
	}
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (m *memstore) List(ctx context.Context) ([]*Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Snapshot, 0, len(m.items))
	for _, raw := range m.items {
		var s Snapshot
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, err
		}
		out = append(out, &s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *memstore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.items, strings.TrimSpace(id))
	m.mu.Unlock()
	return nil
}

func (m *memstore) Close() error { return nil }
