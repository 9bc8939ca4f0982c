package session

import (
	"context"
	"time"

	"github.com/sentra-auth/sentra/internal/idgen"
	"github.com/sentra-auth/sentra/internal/logging"
	"github.com/sentra-auth/sentra/internal/metrics"
	"github.com/sentra-auth/sentra/internal/token"
)

// TokenSource issues and validates the bearer tokens bound to sessions.
// Satisfied by *token.Issuer.
type TokenSource interface {
	Issue(sessionID, userID string) (string, error)
	Parse(raw string) (*token.Claims, error)
}

// Manager creates, validates, and revokes sessions.
type Manager struct {
	store  Store
	tokens TokenSource
	ttl    time.Duration
	now    func() time.Time
}

// NewManager creates a session manager. ttl is the absolute session
// lifetime.
func NewManager(store Store, tokens TokenSource, ttl time.Duration) *Manager {
	return &Manager{store: store, tokens: tokens, ttl: ttl, now: time.Now}
}

// WithClock overrides the clock (for tests).
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Create starts a new fully trusted session for a user and returns it with
// its bearer token.
func (m *Manager) Create(ctx context.Context, userID string) (*Session, string, error) {
	now := m.now()
	s := &Session{
		ID:         idgen.WithPrefix("sess_"),
		UserID:     userID,
		TrustScore: InitialTrustScore,
		Status:     StatusOK,
		IsActive:   true,
		CreatedAt:  now,
		LastSeenAt: now,
		ExpiresAt:  now.Add(m.ttl),
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, "", err
	}
	raw, err := m.tokens.Issue(s.ID, s.UserID)
	if err != nil {
		return nil, "", err
	}

	metrics.ActiveSessions.Inc()
	logging.L(ctx).Info("session created", "session_id", s.ID, "user_id", s.UserID)
	return s, raw, nil
}

// Validate resolves a bearer token to its live session, recording activity.
// Returns ErrRevoked for deactivated sessions and ErrExpired for sessions
// past their lifetime, deactivating the latter on first sight.
func (m *Manager) Validate(ctx context.Context, rawToken string) (*Session, error) {
	claims, err := m.tokens.Parse(rawToken)
	if err != nil {
		return nil, err
	}
	s, err := m.store.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, err
	}
	if !s.IsActive {
		return nil, ErrRevoked
	}
	if m.now().After(s.ExpiresAt) {
		if err := m.expire(ctx, s); err != nil {
			return nil, err
		}
		return nil, ErrExpired
	}
	if err := m.store.Touch(ctx, s.ID, m.now()); err != nil {
		return nil, err
	}
	return s, nil
}

// Revoke terminates a session. Idempotent: revoking an already inactive
// session is a no-op.
func (m *Manager) Revoke(ctx context.Context, sessionID string) error {
	s, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if !s.IsActive {
		return nil
	}
	if err := m.store.Deactivate(ctx, sessionID, StatusTerminated); err != nil {
		return err
	}
	metrics.ActiveSessions.Dec()
	logging.L(ctx).Info("session terminated", "session_id", sessionID)
	return nil
}

// ResetTrust restores a session to full trust after a successful step-up.
func (m *Manager) ResetTrust(ctx context.Context, sessionID string) error {
	return m.store.UpdateTrust(ctx, sessionID, InitialTrustScore, StatusOK)
}

// Get returns a session by ID.
func (m *Manager) Get(ctx context.Context, sessionID string) (*Session, error) {
	return m.store.Get(ctx, sessionID)
}

func (m *Manager) expire(ctx context.Context, s *Session) error {
	if err := m.store.Deactivate(ctx, s.ID, StatusExpired); err != nil {
		return err
	}
	metrics.ActiveSessions.Dec()
	logging.L(ctx).Info("session expired", "session_id", s.ID)
	return nil
}
