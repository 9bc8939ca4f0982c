// Package account implements the registration and login ceremonies and the
// account-facing session operations.
//
// Both ceremonies are challenge/response: begin issues a short-lived
// challenge, complete proves possession of the credential against it.
// Challenges are single-use and namespaced per ceremony, so a login response
// cannot answer a registration challenge.
package account

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/sentra-auth/sentra/internal/challenge"
	"github.com/sentra-auth/sentra/internal/credential"
	"github.com/sentra-auth/sentra/internal/idgen"
	"github.com/sentra-auth/sentra/internal/logging"
	"github.com/sentra-auth/sentra/internal/session"
)

// Errors
var (
	ErrChallengeExpired = errors.New("challenge expired or already used")
)

const challengeBytes = 32

// Service runs the ceremonies.
type Service struct {
	users       credential.UserStore
	credentials credential.CredentialStore
	verifier    credential.Verifier
	challenges  challenge.Store
	sessions    *session.Manager
	ttl         time.Duration
}

// NewService creates an account service. ttl bounds challenge lifetime.
func NewService(
	users credential.UserStore,
	credentials credential.CredentialStore,
	verifier credential.Verifier,
	challenges challenge.Store,
	sessions *session.Manager,
	ttl time.Duration,
) *Service {
	if ttl <= 0 {
		ttl = challenge.DefaultTTL
	}
	return &Service{
		users:       users,
		credentials: credentials,
		verifier:    verifier,
		challenges:  challenges,
		sessions:    sessions,
		ttl:         ttl,
	}
}

// BeginRegistration issues a registration challenge for a new username.
// Fails early when the username is taken.
func (s *Service) BeginRegistration(ctx context.Context, username string) (string, error) {
	if _, err := s.users.GetUserByUsername(ctx, username); err == nil {
		return "", credential.ErrUserExists
	} else if !errors.Is(err, credential.ErrUserNotFound) {
		return "", err
	}
	return s.issue(ctx, challenge.RegistrationKey(username))
}

// CompleteRegistration creates the user and their first credential. key is
// the authenticator key material; signature must prove possession of it for
// the outstanding challenge.
func (s *Service) CompleteRegistration(ctx context.Context, username, displayName string, key, signature []byte) (*credential.User, error) {
	nonce, err := s.challenges.Take(ctx, challenge.RegistrationKey(username))
	if errors.Is(err, challenge.ErrNotFound) {
		return nil, ErrChallengeExpired
	}
	if err != nil {
		return nil, err
	}

	probe := &credential.Credential{PublicKey: key}
	if err := s.verifier.Verify(probe, nonce, signature, 1); err != nil {
		return nil, err
	}

	now := time.Now()
	user := &credential.User{
		ID:          idgen.WithPrefix("user_"),
		Username:    username,
		DisplayName: displayName,
		CreatedAt:   now,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	cred := &credential.Credential{
		ID:        idgen.WithPrefix("cred_"),
		UserID:    user.ID,
		PublicKey: key,
		SignCount: 1,
		CreatedAt: now,
	}
	if err := s.credentials.CreateCredential(ctx, cred); err != nil {
		return nil, err
	}

	logging.L(ctx).Info("user registered", "user_id", user.ID, "username", username)
	return user, nil
}

// BeginLogin issues a login challenge for an existing user.
func (s *Service) BeginLogin(ctx context.Context, username string) (string, error) {
	if _, err := s.users.GetUserByUsername(ctx, username); err != nil {
		return "", err
	}
	return s.issue(ctx, challenge.LoginKey(username))
}

// CompleteLogin verifies the challenge response against any of the user's
// credentials and starts a fully trusted session.
func (s *Service) CompleteLogin(ctx context.Context, username string, signature []byte, counter uint32) (*session.Session, string, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return nil, "", err
	}
	nonce, err := s.challenges.Take(ctx, challenge.LoginKey(username))
	if errors.Is(err, challenge.ErrNotFound) {
		return nil, "", ErrChallengeExpired
	}
	if err != nil {
		return nil, "", err
	}

	cred, err := s.verifyAny(ctx, user.ID, nonce, signature, counter)
	if err != nil {
		return nil, "", err
	}
	if err := s.credentials.UpdateSignCount(ctx, cred.ID, counter); err != nil {
		return nil, "", err
	}

	sess, token, err := s.sessions.Create(ctx, user.ID)
	if err != nil {
		return nil, "", err
	}
	logging.L(ctx).Info("login completed", "user_id", user.ID, "session_id", sess.ID)
	return sess, token, nil
}

// Logout terminates the session.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Revoke(ctx, sessionID)
}

// VerifyForUser checks a challenge response against the user's credentials
// and advances the matching credential's sign count. Used by the step-up
// flow.
func (s *Service) VerifyForUser(ctx context.Context, userID string, nonce, signature []byte, counter uint32) error {
	cred, err := s.verifyAny(ctx, userID, nonce, signature, counter)
	if err != nil {
		return err
	}
	return s.credentials.UpdateSignCount(ctx, cred.ID, counter)
}

func (s *Service) verifyAny(ctx context.Context, userID string, nonce, signature []byte, counter uint32) (*credential.Credential, error) {
	creds, err := s.credentials.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, cred := range creds {
		if err := s.verifier.Verify(cred, nonce, signature, counter); err == nil {
			return cred, nil
		}
	}
	return nil, credential.ErrVerificationFailed
}

func (s *Service) issue(ctx context.Context, key string) (string, error) {
	nonce := idgen.Bytes(challengeBytes)
	if err := s.challenges.Put(ctx, key, nonce, s.ttl); err != nil {
		return "", fmt.Errorf("store challenge: %w", err)
	}
	return base64.StdEncoding.EncodeToString(nonce), nil
}
