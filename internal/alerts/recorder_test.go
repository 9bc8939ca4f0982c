package alerts

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captureNotifier struct {
	got []*Alert
}

func (c *captureNotifier) Notify(a *Alert) { c.got = append(c.got, a) }

func TestRecorder_Record(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	notifier := &captureNotifier{}
	rec := NewRecorder(store, notifier)

	rec.Record(ctx, &Alert{
		SessionID:  "sess1",
		UserID:     "user1",
		Type:       TypeTrustDrop,
		Severity:   SeverityWarning,
		Message:    "trust dropped",
		TrustScore: 35,
	})

	list, err := store.ListBySession(ctx, "sess1", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.NotEmpty(t, list[0].ID)
	assert.False(t, list[0].CreatedAt.IsZero())

	require.Len(t, notifier.got, 1)
	assert.Equal(t, TypeTrustDrop, notifier.got[0].Type)
}

func TestMemoryStore_NewestFirstAndLimit(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Insert(ctx, &Alert{
			ID:        string(rune('a' + i)),
			SessionID: "sess1",
		}))
	}

	list, err := store.ListBySession(ctx, "sess1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "e", list[0].ID)
	assert.Equal(t, "d", list[1].ID)

	recent, err := store.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, recent, 5)
}
