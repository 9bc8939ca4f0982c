package anomaly

import (
	"context"
	"sync"

	"github.com/sentra-auth/sentra/internal/logging"
	"github.com/sentra-auth/sentra/internal/metrics"
)

// HistoryProvider serves the per-user feature history the cache trains on.
// Implemented by the engine over the behavioral feature store.
type HistoryProvider interface {
	UserSampleCount(ctx context.Context, userID string) (int, error)
	// UserSamples returns up to limit of the user's most recent feature
	// arrays.
	UserSamples(ctx context.Context, userID string, limit int) ([][]float64, error)
}

// maxTrainSamples caps how much history one personal model trains on.
const maxTrainSamples = 500

// Cache holds lazily trained per-user models. A user's model is first fit
// once their history reaches minSamples and refit each time the sample count
// crosses a multiple of retrainEvery.
//
// Training runs synchronously on the triggering caller, outside the cache
// lock; concurrent callers for the same user keep the previous model (or
// none) instead of waiting.
type Cache struct {
	history      HistoryProvider
	minSamples   int
	retrainEvery int
	trainOpts    []Option

	mu        sync.Mutex
	models    map[string]*Model
	trainedAt map[string]int // sample count at last fit
	training  map[string]bool
}

// NewCache creates a per-user model cache.
func NewCache(history HistoryProvider, minSamples, retrainEvery int, opts ...Option) *Cache {
	if minSamples < MinTrainSamples {
		minSamples = MinTrainSamples
	}
	if retrainEvery <= 0 {
		retrainEvery = 50
	}
	return &Cache{
		history:      history,
		minSamples:   minSamples,
		retrainEvery: retrainEvery,
		trainOpts:    opts,
		models:       make(map[string]*Model),
		trainedAt:    make(map[string]int),
		training:     make(map[string]bool),
	}
}

// Personal returns the user's model, training or retraining it first when
// their history warrants it. Returns (nil, nil) when the user has too little
// history for a personal model.
func (c *Cache) Personal(ctx context.Context, userID string) (*Model, error) {
	count, err := c.history.UserSampleCount(ctx, userID)
	if err != nil {
		return nil, err
	}
	if count < c.minSamples {
		return nil, nil
	}

	c.mu.Lock()
	current := c.models[userID]
	need := current == nil ||
		(count%c.retrainEvery == 0 && count != c.trainedAt[userID])
	if !need || c.training[userID] {
		c.mu.Unlock()
		return current, nil
	}
	c.training[userID] = true
	c.mu.Unlock()

	model, err := c.train(ctx, userID, count)

	c.mu.Lock()
	delete(c.training, userID)
	if model != nil {
		c.models[userID] = model
		c.trainedAt[userID] = count
		current = model
	}
	c.mu.Unlock()

	if err != nil {
		return current, err
	}
	return current, nil
}

// Forget drops a user's cached model, forcing a retrain on next use.
func (c *Cache) Forget(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.models, userID)
	delete(c.trainedAt, userID)
}

func (c *Cache) train(ctx context.Context, userID string, count int) (*Model, error) {
	samples, err := c.history.UserSamples(ctx, userID, maxTrainSamples)
	if err != nil {
		return nil, err
	}
	model, err := Train(samples, c.trainOpts...)
	if err != nil {
		return nil, err
	}

	metrics.ModelTrainingsTotal.WithLabelValues("personal").Inc()
	logging.L(ctx).Info("personal model trained",
		"user_id", userID,
		"samples", len(samples),
		"history_count", count,
	)
	return model, nil
}
