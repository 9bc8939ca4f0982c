package alerts

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory alert store.
type MemoryStore struct {
	mu        sync.RWMutex
	bySession map[string][]*Alert
	all       []*Alert
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory alert store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bySession: make(map[string][]*Alert)}
}

func (m *MemoryStore) Insert(ctx context.Context, a *Alert) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *a
	m.bySession[a.SessionID] = append(m.bySession[a.SessionID], &copy)
	m.all = append(m.all, &copy)
	return nil
}

func (m *MemoryStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]*Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(m.bySession[sessionID], limit), nil
}

func (m *MemoryStore) ListRecent(ctx context.Context, limit int) ([]*Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return newestFirst(m.all, limit), nil
}

func newestFirst(stored []*Alert, limit int) []*Alert {
	result := make([]*Alert, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		copy := *stored[i]
		result = append(result, &copy)
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result
}
