package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/park285/reversi-server/internal/session"
)

// MemoryStore is the single-process Store used when no Redis is configured.
type MemoryStore struct {
	mu       sync.RWMutex
	ttl      time.Duration
	now      func() time.Time
	sessions map[string]memEntry
	counters map[string]int64
}

type memEntry struct {
	snap    session.Snapshot
	expires time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &MemoryStore{
		ttl:      ttl,
		now:      time.Now,
		sessions: make(map[string]memEntry),
		counters: make(map[string]int64),
	}
}

func (m *MemoryStore) Put(_ context.Context, snap session.Snapshot) error {
	m.mu.Lock()
	m.sessions[snap.ID] = memEntry{snap: snap, expires: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (session.Snapshot, error) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok || m.now().After(e.expires) {
		return session.Snapshot{}, ErrNotFound
	}
	return e.snap, nil
}

func (m *MemoryStore) Remove(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) List(_ context.Context) ([]session.Snapshot, error) {
	now := m.now()
	m.mu.Lock()
	out := make([]session.Snapshot, 0, len(m.sessions))
	for id, e := range m.sessions {
		if now.After(e.expires) {
			delete(m.sessions, id)
			continue
		}
		out = append(out, e.snap)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (m *MemoryStore) Incr(_ context.Context, counters map[string]int64) error {
	m.mu.Lock()
	for k, v := range counters {
		m.counters[k] += v
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryStore) Counters(_ context.Context) (map[string]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int64, len(m.counters))
	for k, v := range m.counters {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
