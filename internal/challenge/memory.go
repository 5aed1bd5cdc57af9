package challenge

import (
	"context"
	"sync"
	"time"
)

type key struct {
	principal string
	purpose   Purpose
}

type MemoryStore struct {
	mu   sync.Mutex
	live map[key]Challenge
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{live: make(map[key]Challenge)}
}

func (m *MemoryStore) Put(_ context.Context, c Challenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live[key{c.Principal, c.Purpose}] = c
	return nil
}

func (m *MemoryStore) Take(_ context.Context, principal string, purpose Purpose) (Challenge, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key{principal, purpose}
	c, ok := m.live[k]
	if ok {
		delete(m.live, k)
	}
	return c, ok, nil
}

// Sweep drops challenges expired at now and returns how many were removed.
func (m *MemoryStore) Sweep(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, c := range m.live {
		if c.Expired(now) {
			delete(m.live, k)
			n++
		}
	}
	return n, nil
}
