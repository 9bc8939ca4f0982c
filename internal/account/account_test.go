package account

import (
	"context"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra-auth/sentra/internal/challenge"
	"github.com/sentra-auth/sentra/internal/credential"
	"github.com/sentra-auth/sentra/internal/session"
	"github.com/sentra-auth/sentra/internal/token"
)

type fixture struct {
	service    *Service
	challenges *challenge.MemoryStore
	sessions   *session.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	creds := credential.NewMemoryStore()
	challenges := challenge.NewMemoryStore()
	sessions := session.NewMemoryStore()
	issuer := token.NewIssuer([]byte("0123456789abcdef0123456789abcdef"), time.Hour)
	manager := session.NewManager(sessions, issuer, time.Hour)
	return &fixture{
		service:    NewService(creds, creds, credential.HMACVerifier{}, challenges, manager, time.Minute),
		challenges: challenges,
		sessions:   sessions,
	}
}

// register walks the full registration ceremony and returns the
// authenticator key.
func register(t *testing.T, f *fixture, username string) []byte {
	t.Helper()
	ctx := context.Background()

	nonceB64, err := f.service.BeginRegistration(ctx, username)
	require.NoError(t, err)
	nonce, err := base64.StdEncoding.DecodeString(nonceB64)
	require.NoError(t, err)

	key := []byte("authenticator-key-" + username)
	_, err = f.service.CompleteRegistration(ctx, username, username, key, credential.Sign(key, nonce))
	require.NoError(t, err)
	return key
}

func TestRegistration_FullCeremony(t *testing.T) {
	f := newFixture(t)
	register(t, f, "alice")

	// The username is now taken.
	_, err := f.service.BeginRegistration(context.Background(), "alice")
	assert.ErrorIs(t, err, credential.ErrUserExists)
}

func TestRegistration_BadSignature(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	nonceB64, err := f.service.BeginRegistration(ctx, "alice")
	require.NoError(t, err)
	nonce, _ := base64.StdEncoding.DecodeString(nonceB64)

	key := []byte("authenticator-key")
	wrong := credential.Sign([]byte("other-key"), nonce)
	_, err = f.service.CompleteRegistration(ctx, "alice", "Alice", key, wrong)
	assert.ErrorIs(t, err, credential.ErrVerificationFailed)
}

func TestRegistration_ChallengeSingleUse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	nonceB64, err := f.service.BeginRegistration(ctx, "alice")
	require.NoError(t, err)
	nonce, _ := base64.StdEncoding.DecodeString(nonceB64)

	key := []byte("authenticator-key")
	_, err = f.service.CompleteRegistration(ctx, "alice", "Alice", key, credential.Sign(key, nonce))
	require.NoError(t, err)

	// Replaying the same ceremony finds no challenge.
	_, err = f.service.CompleteRegistration(ctx, "alice", "Alice", key, credential.Sign(key, nonce))
	assert.ErrorIs(t, err, ErrChallengeExpired)
}

func TestLogin_FullCeremony(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key := register(t, f, "alice")

	nonceB64, err := f.service.BeginLogin(ctx, "alice")
	require.NoError(t, err)
	nonce, _ := base64.StdEncoding.DecodeString(nonceB64)

	sess, tok, err := f.service.CompleteLogin(ctx, "alice", credential.Sign(key, nonce), 2)
	require.NoError(t, err)
	assert.NotEmpty(t, tok)
	assert.Equal(t, session.InitialTrustScore, sess.TrustScore)
	assert.True(t, sess.IsActive)
}

func TestLogin_UnknownUser(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.BeginLogin(context.Background(), "nobody")
	assert.ErrorIs(t, err, credential.ErrUserNotFound)
}

func TestLogin_StaleCounterRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key := register(t, f, "alice")

	nonceB64, err := f.service.BeginLogin(ctx, "alice")
	require.NoError(t, err)
	nonce, _ := base64.StdEncoding.DecodeString(nonceB64)

	// Registration left the counter at 1; a counter of 1 is a replay.
	_, _, err = f.service.CompleteLogin(ctx, "alice", credential.Sign(key, nonce), 1)
	assert.ErrorIs(t, err, credential.ErrVerificationFailed)
}

func TestLogin_ExpiredChallenge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key := register(t, f, "alice")

	now := time.Now()
	f.challenges.WithClock(func() time.Time { return now })

	nonceB64, err := f.service.BeginLogin(ctx, "alice")
	require.NoError(t, err)
	nonce, _ := base64.StdEncoding.DecodeString(nonceB64)

	now = now.Add(10 * time.Minute)
	_, _, err = f.service.CompleteLogin(ctx, "alice", credential.Sign(key, nonce), 2)
	assert.ErrorIs(t, err, ErrChallengeExpired)
}

func TestLogout(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key := register(t, f, "alice")

	nonceB64, err := f.service.BeginLogin(ctx, "alice")
	require.NoError(t, err)
	nonce, _ := base64.StdEncoding.DecodeString(nonceB64)
	sess, _, err := f.service.CompleteLogin(ctx, "alice", credential.Sign(key, nonce), 2)
	require.NoError(t, err)

	require.NoError(t, f.service.Logout(ctx, sess.ID))

	got, err := f.sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)
	assert.Equal(t, session.StatusTerminated, got.Status)
}

func TestVerifyForUser(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	key := register(t, f, "alice")

	user, err := f.service.users.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)

	nonce := []byte("stepup-nonce")
	require.NoError(t, f.service.VerifyForUser(ctx, user.ID, nonce, credential.Sign(key, nonce), 2))

	// The counter advanced; repeating with the same counter fails.
	err = f.service.VerifyForUser(ctx, user.ID, nonce, credential.Sign(key, nonce), 2)
	assert.ErrorIs(t, err, credential.ErrVerificationFailed)
}
