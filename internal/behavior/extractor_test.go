package behavior

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func keystroke(sessionID, key, action string, ts float64) *Event {
	return &Event{
		SessionID: sessionID,
		Type:      EventKeystroke,
		Payload:   map[string]interface{}{"key": key, "action": action},
		Timestamp: ts,
	}
}

func mouseMove(sessionID string, x, y, ts float64) *Event {
	return &Event{
		SessionID: sessionID,
		Type:      EventMouse,
		Payload:   map[string]interface{}{"action": "move", "x": x, "y": y},
		Timestamp: ts,
	}
}

func mouseClick(sessionID string, ts float64) *Event {
	return &Event{
		SessionID: sessionID,
		Type:      EventMouse,
		Payload:   map[string]interface{}{"action": "click"},
		Timestamp: ts,
	}
}

func newTestExtractor(store *MemoryStore) *Extractor {
	return NewExtractor(store, store, 10*time.Second)
}

func TestExtract_EmptyWindow(t *testing.T) {
	store := NewMemoryStore()
	x := newTestExtractor(store)

	_, err := x.Extract(context.Background(), "sess1", "user1")
	assert.ErrorIs(t, err, ErrNoFeatures)
}

func TestExtract_KeystrokeFeatures(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	x := newTestExtractor(store)

	// Two keys, clean down/up pairs:
	// "a" held 0.10s, "b" held 0.20s.
	events := []*Event{
		keystroke("sess1", "a", ActionDown, 1.00),
		keystroke("sess1", "a", ActionUp, 1.10),
		keystroke("sess1", "b", ActionDown, 1.50),
		keystroke("sess1", "b", ActionUp, 1.70),
	}
	require.NoError(t, store.Insert(ctx, events))

	fv, err := x.Extract(ctx, "sess1", "user1")
	require.NoError(t, err)

	require.NotNil(t, fv.AvgKeyHoldTime)
	assert.InDelta(t, 0.15, *fv.AvgKeyHoldTime, 1e-9)
	require.NotNil(t, fv.KeyHoldStd)
	assert.InDelta(t, 0.05, *fv.KeyHoldStd, 1e-9)

	// Inter-key intervals across all 4 sorted timestamps: 0.10, 0.40, 0.20.
	require.NotNil(t, fv.AvgInterKeyInterval)
	assert.InDelta(t, (0.10+0.40+0.20)/3, *fv.AvgInterKeyInterval, 1e-9)

	// Typing speed: 4 events over 0.70s span.
	require.NotNil(t, fv.TypingSpeed)
	assert.InDelta(t, 4/0.70, *fv.TypingSpeed, 1e-9)

	assert.Equal(t, 4, fv.TotalEvents)
	assert.Equal(t, 4, fv.KeystrokeCount)
	assert.Equal(t, 0, fv.MouseCount)
}

func TestExtract_UnmatchedDownDiscarded(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	x := newTestExtractor(store)

	// "a" has a down with no later up, "b" pairs normally.
	events := []*Event{
		keystroke("sess1", "a", ActionDown, 2.00),
		keystroke("sess1", "b", ActionDown, 1.00),
		keystroke("sess1", "b", ActionUp, 1.25),
	}
	require.NoError(t, store.Insert(ctx, events))

	fv, err := x.Extract(ctx, "sess1", "user1")
	require.NoError(t, err)

	// Only b's hold time counts; the unmatched down must not zero-fill.
	require.NotNil(t, fv.AvgKeyHoldTime)
	assert.InDelta(t, 0.25, *fv.AvgKeyHoldTime, 1e-9)
	require.NotNil(t, fv.KeyHoldStd)
	assert.InDelta(t, 0.0, *fv.KeyHoldStd, 1e-9)
}

func TestExtract_MouseFeatures(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	x := newTestExtractor(store)

	// Straight-line movement: 100px per 0.1s = 1000 px/s, constant speed.
	events := []*Event{
		mouseMove("sess1", 0, 0, 1.0),
		mouseMove("sess1", 100, 0, 1.1),
		mouseMove("sess1", 200, 0, 1.2),
		mouseClick("sess1", 1.5),
	}
	require.NoError(t, store.Insert(ctx, events))

	fv, err := x.Extract(ctx, "sess1", "user1")
	require.NoError(t, err)

	require.NotNil(t, fv.AvgMouseSpeed)
	assert.InDelta(t, 1000, *fv.AvgMouseSpeed, 1e-6)
	require.NotNil(t, fv.MouseSpeedStd)
	assert.InDelta(t, 0, *fv.MouseSpeedStd, 1e-6)

	// Constant speed means zero acceleration magnitude.
	require.NotNil(t, fv.AvgMouseAcceleration)
	assert.InDelta(t, 0, *fv.AvgMouseAcceleration, 1e-6)

	// 1 click over the 0.5s span of all mouse events.
	require.NotNil(t, fv.ClickRate)
	assert.InDelta(t, 2.0, *fv.ClickRate, 1e-6)

	assert.Equal(t, 4, fv.MouseCount)
	assert.Equal(t, 0, fv.KeystrokeCount)
}

func TestExtract_MouseOnlyLeavesKeystrokeFieldsAbsent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	x := newTestExtractor(store)

	events := []*Event{
		mouseMove("sess1", 0, 0, 1.0),
		mouseMove("sess1", 10, 10, 1.1),
		mouseMove("sess1", 20, 20, 1.2),
	}
	require.NoError(t, store.Insert(ctx, events))

	fv, err := x.Extract(ctx, "sess1", "user1")
	require.NoError(t, err)

	assert.Nil(t, fv.AvgKeyHoldTime)
	assert.Nil(t, fv.TypingSpeed)
	assert.Nil(t, fv.InterKeyStd)
	assert.Equal(t, 3, fv.TotalEvents)
	assert.Equal(t, 0, fv.KeystrokeCount)

	// The flattened array coerces absent to 0.
	arr := fv.Array()
	require.Len(t, arr, FeatureDim)
	assert.Zero(t, arr[0])
	assert.Zero(t, arr[2])
	assert.Equal(t, 3.0, arr[9])
}

func TestExtract_MalformedPayloadsIgnored(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	x := newTestExtractor(store)

	events := []*Event{
		{SessionID: "sess1", Type: EventKeystroke, Payload: map[string]interface{}{"bogus": true}, Timestamp: 1.0},
		keystroke("sess1", "a", ActionDown, 2.0),
		keystroke("sess1", "a", ActionUp, 2.1),
	}
	require.NoError(t, store.Insert(ctx, events))

	fv, err := x.Extract(ctx, "sess1", "user1")
	require.NoError(t, err)

	require.NotNil(t, fv.AvgKeyHoldTime)
	assert.InDelta(t, 0.1, *fv.AvgKeyHoldTime, 1e-9)
	// Malformed events still count toward totals; they just don't contribute
	// to the statistics.
	assert.Equal(t, 3, fv.TotalEvents)
}

func TestExtract_WindowExcludesOldEvents(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	x := newTestExtractor(store)

	old := []*Event{keystroke("sess1", "z", ActionDown, 0.5)}
	old[0].IngestedAt = time.Now().Add(-time.Minute)
	require.NoError(t, store.Insert(ctx, old))

	fresh := []*Event{
		keystroke("sess1", "a", ActionDown, 1.0),
		keystroke("sess1", "a", ActionUp, 1.1),
	}
	require.NoError(t, store.Insert(ctx, fresh))

	fv, err := x.Extract(ctx, "sess1", "user1")
	require.NoError(t, err)
	assert.Equal(t, 2, fv.TotalEvents)
}

func TestExtract_PersistsVector(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	x := newTestExtractor(store)

	require.NoError(t, store.Insert(ctx, []*Event{
		keystroke("sess1", "a", ActionDown, 1.0),
		keystroke("sess1", "a", ActionUp, 1.1),
	}))

	_, err := x.Extract(ctx, "sess1", "user1")
	require.NoError(t, err)

	count, err := store.CountByUser(ctx, "user1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMeanStd(t *testing.T) {
	mean, std := meanStd([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	assert.InDelta(t, 5.0, mean, 1e-9)
	assert.InDelta(t, 2.0, std, 1e-9)

	mean, std = meanStd(nil)
	assert.Zero(t, mean)
	assert.Zero(t, std)
}

func TestZeroTimeSpanLeavesRatesAbsent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	x := newTestExtractor(store)

	// All events share a timestamp: span is zero, rate features undefined.
	require.NoError(t, store.Insert(ctx, []*Event{
		keystroke("sess1", "a", ActionDown, 1.0),
		keystroke("sess1", "b", ActionDown, 1.0),
		mouseClick("sess1", 1.0),
		mouseClick("sess1", 1.0),
	}))

	fv, err := x.Extract(ctx, "sess1", "user1")
	require.NoError(t, err)
	assert.Nil(t, fv.TypingSpeed)
	assert.Nil(t, fv.ClickRate)
	assert.False(t, math.IsNaN(deref(fv.AvgInterKeyInterval)))
}
