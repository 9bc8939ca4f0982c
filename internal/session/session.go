// Package session tracks authenticated sessions and their continuously
// updated trust state.
//
// A session's trust score and status change on every evaluation, but scoring
// never deactivates a session by itself: deactivation (termination, expiry,
// logout) is a separate enforcement step so that a low score alone cannot
// race a legitimate step-up back to good standing.
package session

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrNotFound = errors.New("session not found")
	ErrRevoked  = errors.New("session revoked")
	ErrExpired  = errors.New("session expired")
)

// Status is the trust state of a session.
type Status string

const (
	StatusOK         Status = "OK"
	StatusMonitor    Status = "MONITOR"
	StatusSuspicious Status = "SUSPICIOUS"
	StatusCritical   Status = "CRITICAL"
	StatusTerminated Status = "TERMINATED"
	StatusExpired    Status = "EXPIRED"
)

// InitialTrustScore is the score a session starts with and returns to after
// a successful step-up.
const InitialTrustScore = 100.0

// Session is one authenticated session.
type Session struct {
	ID         string    `json:"id"`
	UserID     string    `json:"userId"`
	TrustScore float64   `json:"trustScore"`
	Status     Status    `json:"status"`
	IsActive   bool      `json:"isActive"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Store persists sessions.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	ListByUser(ctx context.Context, userID string) ([]*Session, error)

	// UpdateTrust atomically sets the trust score and status. It never
	// changes IsActive; enforcement goes through Deactivate. Deactivated
	// sessions are terminal: updates fail with ErrRevoked or ErrExpired.
	UpdateTrust(ctx context.Context, id string, score float64, status Status) error

	// Deactivate marks a session inactive with a terminal status
	// (TERMINATED or EXPIRED). Idempotent.
	Deactivate(ctx context.Context, id string, status Status) error

	// Touch records activity.
	Touch(ctx context.Context, id string, at time.Time) error
}
