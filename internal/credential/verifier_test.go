package credential

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCredential() *Credential {
	return &Credential{
		ID:        "cred_1",
		UserID:    "user_1",
		PublicKey: []byte("shared-authenticator-secret"),
		SignCount: 5,
	}
}

func TestVerify_Success(t *testing.T) {
	cred := testCredential()
	challenge := []byte("random-challenge")
	sig := Sign(cred.PublicKey, challenge)

	assert.NoError(t, HMACVerifier{}.Verify(cred, challenge, sig, 6))
}

func TestVerify_BadSignature(t *testing.T) {
	cred := testCredential()
	challenge := []byte("random-challenge")
	sig := Sign([]byte("wrong-key"), challenge)

	assert.ErrorIs(t, HMACVerifier{}.Verify(cred, challenge, sig, 6), ErrVerificationFailed)
}

func TestVerify_WrongChallenge(t *testing.T) {
	cred := testCredential()
	sig := Sign(cred.PublicKey, []byte("other-challenge"))

	err := HMACVerifier{}.Verify(cred, []byte("random-challenge"), sig, 6)
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestVerify_StaleCounter(t *testing.T) {
	cred := testCredential()
	challenge := []byte("random-challenge")
	sig := Sign(cred.PublicKey, challenge)

	// Equal to the stored counter is stale too.
	assert.ErrorIs(t, HMACVerifier{}.Verify(cred, challenge, sig, 5), ErrVerificationFailed)
	assert.ErrorIs(t, HMACVerifier{}.Verify(cred, challenge, sig, 4), ErrVerificationFailed)
}

func TestMemoryStore_Users(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	u := &User{ID: "user_1", Username: "alice", DisplayName: "Alice", CreatedAt: time.Now()}
	require.NoError(t, store.CreateUser(ctx, u))

	assert.ErrorIs(t, store.CreateUser(ctx, &User{ID: "user_2", Username: "alice"}), ErrUserExists)

	got, err := store.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "user_1", got.ID)

	_, err = store.GetUser(ctx, "nope")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestMemoryStore_Credentials(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	c := testCredential()
	c.CreatedAt = time.Now()
	require.NoError(t, store.CreateCredential(ctx, c))

	list, err := store.ListByUser(ctx, "user_1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, uint32(5), list[0].SignCount)

	require.NoError(t, store.UpdateSignCount(ctx, "cred_1", 6))
	list, err = store.ListByUser(ctx, "user_1")
	require.NoError(t, err)
	assert.Equal(t, uint32(6), list[0].SignCount)

	assert.ErrorIs(t, store.UpdateSignCount(ctx, "nope", 1), ErrCredentialNotFound)
}
