package location

import (
	"context"
	"sort"
	"sync"
)

type MemoryRepository struct {
	mu   sync.RWMutex
	locs map[string]Location
}

func NewMemoryRepository(seed ...Location) *MemoryRepository {
	m := &MemoryRepository{locs: make(map[string]Location)}
	for _, l := range seed {
		m.locs[l.ID] = l
	}
	return m
}

func (m *MemoryRepository) Get(_ context.Context, id string) (Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.locs[id]
	if !ok {
		return Location{}, notFound(id)
	}
	return l, nil
}

func (m *MemoryRepository) List(_ context.Context) ([]Location, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Location, 0, len(m.locs))
	for _, l := range m.locs {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryRepository) Insert(_ context.Context, loc Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.locs[loc.ID] = loc
	return nil
}

func (m *MemoryRepository) Update(_ context.Context, loc Location) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.locs[loc.ID]; !ok {
		return notFound(loc.ID)
	}
	m.locs[loc.ID] = loc
	return nil
}
