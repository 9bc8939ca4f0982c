// Package challenge stores short-lived cryptographic challenges for
// registration, login, and step-up ceremonies.
//
// Challenges are single-use: Take returns and deletes in one step, so a
// replayed response cannot find its challenge. Expiry is purge-on-access; a
// background sweep keeps abandoned entries from accumulating.
package challenge

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	// ErrNotFound covers both never-issued and expired challenges; callers
	// cannot distinguish the two.
	ErrNotFound = errors.New("challenge not found or expired")
)

// DefaultTTL bounds how long a client has to answer a challenge.
const DefaultTTL = 5 * time.Minute

// Store keeps challenges with a TTL.
type Store interface {
	// Put stores a challenge under key, replacing any existing one.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Take returns the challenge and deletes it. ErrNotFound after expiry
	// or a previous Take.
	Take(ctx context.Context, key string) ([]byte, error)
	// Delete removes a challenge if present.
	Delete(ctx context.Context, key string) error
}

// Key namespaces, one per ceremony.
func RegistrationKey(username string) string { return "reg:" + username }
func LoginKey(username string) string        { return "auth:" + username }
func StepUpKey(sessionID string) string      { return "stepup:" + sessionID }
