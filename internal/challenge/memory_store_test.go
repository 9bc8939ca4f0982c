package challenge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutTake(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, "reg:alice", []byte("nonce"), time.Minute))

	got, err := store.Take(ctx, "reg:alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("nonce"), got)

	// Take is single-use.
	_, err = store.Take(ctx, "reg:alice")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_Expiry(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := NewMemoryStore().WithClock(func() time.Time { return now })

	require.NoError(t, store.Put(ctx, "stepup:sess1", []byte("nonce"), time.Minute))

	now = now.Add(2 * time.Minute)
	_, err := store.Take(ctx, "stepup:sess1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_PutReplaces(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, "auth:alice", []byte("first"), time.Minute))
	require.NoError(t, store.Put(ctx, "auth:alice", []byte("second"), time.Minute))

	got, err := store.Take(ctx, "auth:alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Put(ctx, "k", []byte("v"), time.Minute))
	require.NoError(t, store.Delete(ctx, "k"))
	_, err := store.Take(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing key is fine.
	assert.NoError(t, store.Delete(ctx, "k"))
}

func TestMemoryStore_Sweep(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	store := NewMemoryStore().WithClock(func() time.Time { return now })

	require.NoError(t, store.Put(ctx, "a", []byte("1"), time.Minute))
	require.NoError(t, store.Put(ctx, "b", []byte("2"), time.Hour))

	now = now.Add(10 * time.Minute)
	assert.Equal(t, 1, store.Sweep())

	got, err := store.Take(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), got)
}

func TestKeyNamespaces(t *testing.T) {
	assert.Equal(t, "reg:alice", RegistrationKey("alice"))
	assert.Equal(t, "auth:alice", LoginKey("alice"))
	assert.Equal(t, "stepup:sess1", StepUpKey("sess1"))
}
