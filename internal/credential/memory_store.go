package credential

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory UserStore and CredentialStore.
type MemoryStore struct {
	mu          sync.RWMutex
	users       map[string]*User // by ID
	byUsername  map[string]string
	credentials map[string][]*Credential // by user ID
	byCredID    map[string]*Credential
}

var (
	_ UserStore       = (*MemoryStore)(nil)
	_ CredentialStore = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:       make(map[string]*User),
		byUsername:  make(map[string]string),
		credentials: make(map[string][]*Credential),
		byCredID:    make(map[string]*Credential),
	}
}

func (m *MemoryStore) CreateUser(ctx context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byUsername[u.Username]; exists {
		return ErrUserExists
	}
	copy := *u
	m.users[u.ID] = &copy
	m.byUsername[u.Username] = u.ID
	return nil
}

func (m *MemoryStore) GetUser(ctx context.Context, id string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	copy := *u
	return &copy, nil
}

func (m *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byUsername[username]
	if !ok {
		return nil, ErrUserNotFound
	}
	copy := *m.users[id]
	return &copy, nil
}

func (m *MemoryStore) CreateCredential(ctx context.Context, c *Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copy := *c
	copy.PublicKey = append([]byte(nil), c.PublicKey...)
	m.credentials[c.UserID] = append(m.credentials[c.UserID], &copy)
	m.byCredID[c.ID] = &copy
	return nil
}

func (m *MemoryStore) ListByUser(ctx context.Context, userID string) ([]*Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stored := m.credentials[userID]
	result := make([]*Credential, 0, len(stored))
	for _, c := range stored {
		copy := *c
		copy.PublicKey = append([]byte(nil), c.PublicKey...)
		result = append(result, &copy)
	}
	return result, nil
}

func (m *MemoryStore) UpdateSignCount(ctx context.Context, credentialID string, signCount uint32) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.byCredID[credentialID]
	if !ok {
		return ErrCredentialNotFound
	}
	c.SignCount = signCount
	return nil
}
