// Package credential stores users and their registered authenticator
// credentials and verifies challenge signatures during login and step-up.
package credential

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrUserNotFound       = errors.New("user not found")
	ErrUserExists         = errors.New("username already registered")
	ErrCredentialNotFound = errors.New("credential not found")

	// ErrVerificationFailed covers bad signatures and stale sign counters.
	// Callers get no further detail.
	ErrVerificationFailed = errors.New("credential verification failed")
)

// User is a registered account.
type User struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"displayName"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Credential is one registered authenticator for a user.
type Credential struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	PublicKey []byte    `json:"-"`
	SignCount uint32    `json:"signCount"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserStore persists users.
type UserStore interface {
	CreateUser(ctx context.Context, u *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
}

// CredentialStore persists authenticator credentials.
type CredentialStore interface {
	CreateCredential(ctx context.Context, c *Credential) error
	// ListByUser returns all of a user's credentials, oldest first.
	ListByUser(ctx context.Context, userID string) ([]*Credential, error)
	// UpdateSignCount advances the anti-clone counter after a successful
	// assertion.
	UpdateSignCount(ctx context.Context, credentialID string, signCount uint32) error
}

// Verifier checks a challenge response against a stored credential.
type Verifier interface {
	// Verify returns ErrVerificationFailed unless signature proves
	// possession of the credential for this challenge and counter is
	// strictly greater than the stored sign count.
	Verify(cred *Credential, challenge, signature []byte, counter uint32) error
}
