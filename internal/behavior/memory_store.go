package behavior

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sentra-auth/sentra/internal/idgen"
)

// MemoryStore is an in-memory implementation of EventStore and FeatureStore.
type MemoryStore struct {
	mu       sync.RWMutex
	events   map[string][]*Event         // sessionID -> events in insertion order
	features map[string][]*FeatureVector // userID -> vectors in insertion order
}

// NewMemoryStore creates a new in-memory behavioral store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		events:   make(map[string][]*Event),
		features: make(map[string][]*FeatureVector),
	}
}

// Compile-time interface checks
var (
	_ EventStore   = (*MemoryStore)(nil)
	_ FeatureStore = (*MemoryStore)(nil)
)

// Insert stores a batch of events.
func (m *MemoryStore) Insert(ctx context.Context, events []*Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	for _, e := range events {
		if e.ID == "" {
			e.ID = idgen.WithPrefix("evt_")
		}
		if e.IngestedAt.IsZero() {
			e.IngestedAt = now
		}
		copy := *e
		m.events[e.SessionID] = append(m.events[e.SessionID], &copy)
	}
	return nil
}

// ListBySessionSince returns events for a session ingested at or after since.
func (m *MemoryStore) ListBySessionSince(ctx context.Context, sessionID string, since time.Time) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Event
	for _, e := range m.events[sessionID] {
		if !e.IngestedAt.Before(since) {
			copy := *e
			result = append(result, &copy)
		}
	}
	return result, nil
}

// ListBySession returns a session's events newest first.
func (m *MemoryStore) ListBySession(ctx context.Context, sessionID string, limit int) ([]*Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.events[sessionID]
	result := make([]*Event, 0, len(stored))
	for _, e := range stored {
		copy := *e
		result = append(result, &copy)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Timestamp > result[j].Timestamp })

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Save stores a feature vector.
func (m *MemoryStore) Save(ctx context.Context, fv *FeatureVector) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if fv.ID == "" {
		fv.ID = idgen.WithPrefix("fv_")
	}
	copy := *fv
	m.features[fv.UserID] = append(m.features[fv.UserID], &copy)
	return nil
}

// ListByUser returns a user's feature vectors newest first.
func (m *MemoryStore) ListByUser(ctx context.Context, userID string, limit int) ([]*FeatureVector, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stored := m.features[userID]
	result := make([]*FeatureVector, 0, len(stored))
	for _, fv := range stored {
		copy := *fv
		result = append(result, &copy)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// CountByUser returns how many feature vectors a user has accumulated.
func (m *MemoryStore) CountByUser(ctx context.Context, userID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.features[userID]), nil
}
