package anomaly

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeHistory serves a fixed slice of samples, reporting its length as the
// user's sample count.
type fakeHistory struct {
	samples map[string][][]float64
	calls   int
}

func (f *fakeHistory) UserSampleCount(ctx context.Context, userID string) (int, error) {
	return len(f.samples[userID]), nil
}

func (f *fakeHistory) UserSamples(ctx context.Context, userID string, limit int) ([][]float64, error) {
	f.calls++
	s := f.samples[userID]
	if limit > 0 && len(s) > limit {
		s = s[:limit]
	}
	return s, nil
}

func (f *fakeHistory) grow(userID string, n int) {
	start := len(f.samples[userID])
	more := SyntheticTrainingSet(n, uint64(start+1))
	f.samples[userID] = append(f.samples[userID], more...)
}

func newCacheFixture(minSamples, retrainEvery int) (*Cache, *fakeHistory) {
	h := &fakeHistory{samples: make(map[string][][]float64)}
	c := NewCache(h, minSamples, retrainEvery, WithSeed(1), WithTrees(10))
	return c, h
}

func TestCache_NoModelBelowMinimum(t *testing.T) {
	c, h := newCacheFixture(30, 50)
	h.grow("u1", 29)

	m, err := c.Personal(context.Background(), "u1")
	require.NoError(t, err)
	assert.Nil(t, m)
	assert.Zero(t, h.calls, "no training below the minimum")
}

func TestCache_TrainsAtMinimum(t *testing.T) {
	c, h := newCacheFixture(30, 50)
	h.grow("u1", 30)

	m, err := c.Personal(context.Background(), "u1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.Equal(t, 1, h.calls)

	// Same count again: cached model, no retrain.
	again, err := c.Personal(context.Background(), "u1")
	require.NoError(t, err)
	assert.Same(t, m, again)
	assert.Equal(t, 1, h.calls)
}

func TestCache_RetrainsOnMultiple(t *testing.T) {
	ctx := context.Background()
	c, h := newCacheFixture(30, 50)
	h.grow("u1", 30)

	first, err := c.Personal(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, first)

	// 49 samples: not a retrain point.
	h.grow("u1", 19)
	m, err := c.Personal(ctx, "u1")
	require.NoError(t, err)
	assert.Same(t, first, m)

	// 50 samples: retrain.
	h.grow("u1", 1)
	m, err = c.Personal(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, m)
	assert.NotSame(t, first, m)

	// Still 50: the multiple only fires once.
	calls := h.calls
	_, err = c.Personal(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, calls, h.calls)
}

func TestCache_Forget(t *testing.T) {
	ctx := context.Background()
	c, h := newCacheFixture(30, 50)
	h.grow("u1", 30)

	first, err := c.Personal(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, first)

	c.Forget("u1")

	second, err := c.Personal(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.NotSame(t, first, second)
}

func TestCache_UsersIsolated(t *testing.T) {
	ctx := context.Background()
	c, h := newCacheFixture(30, 50)
	h.grow("u1", 30)
	h.grow("u2", 5)

	m1, err := c.Personal(ctx, "u1")
	require.NoError(t, err)
	assert.NotNil(t, m1)

	m2, err := c.Personal(ctx, "u2")
	require.NoError(t, err)
	assert.Nil(t, m2)
}
