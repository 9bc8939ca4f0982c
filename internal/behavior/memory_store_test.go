package behavior

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_InsertAssignsIDs(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	events := []*Event{
		keystroke("sess1", "a", ActionDown, 1.0),
		keystroke("sess1", "a", ActionUp, 1.1),
	}
	require.NoError(t, store.Insert(ctx, events))

	assert.NotEmpty(t, events[0].ID)
	assert.NotEmpty(t, events[1].ID)
	assert.NotEqual(t, events[0].ID, events[1].ID)
	assert.False(t, events[0].IngestedAt.IsZero())
}

func TestMemoryStore_ListBySessionSince(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	old := keystroke("sess1", "a", ActionDown, 1.0)
	old.IngestedAt = time.Now().Add(-time.Hour)
	require.NoError(t, store.Insert(ctx, []*Event{old}))
	require.NoError(t, store.Insert(ctx, []*Event{keystroke("sess1", "b", ActionDown, 2.0)}))

	got, err := store.ListBySessionSince(ctx, "sess1", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 2.0, got[0].Timestamp)

	got, err = store.ListBySessionSince(ctx, "other", time.Now().Add(-time.Minute))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStore_ListBySessionNewestFirst(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Insert(ctx, []*Event{
		keystroke("sess1", "a", ActionDown, 1.0),
		keystroke("sess1", "b", ActionDown, 3.0),
		keystroke("sess1", "c", ActionDown, 2.0),
	}))

	got, err := store.ListBySession(ctx, "sess1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 3.0, got[0].Timestamp)
	assert.Equal(t, 2.0, got[1].Timestamp)
}

func TestMemoryStore_ReadsReturnCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.Insert(ctx, []*Event{keystroke("sess1", "a", ActionDown, 1.0)}))

	got, err := store.ListBySession(ctx, "sess1", 0)
	require.NoError(t, err)
	got[0].Timestamp = 99

	again, err := store.ListBySession(ctx, "sess1", 0)
	require.NoError(t, err)
	assert.Equal(t, 1.0, again[0].Timestamp)
}

func TestMemoryStore_Features(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := 0; i < 3; i++ {
		fv := &FeatureVector{
			SessionID: "sess1",
			UserID:    "user1",
			CreatedAt: time.Now().Add(time.Duration(i) * time.Second),
		}
		require.NoError(t, store.Save(ctx, fv))
		assert.NotEmpty(t, fv.ID)
	}

	count, err := store.CountByUser(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	got, err := store.ListByUser(ctx, "user1", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].CreatedAt.After(got[1].CreatedAt))

	count, err = store.CountByUser(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, count)
}
