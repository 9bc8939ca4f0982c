package engine

import (
	"context"

	"github.com/sentra-auth/sentra/internal/anomaly"
	"github.com/sentra-auth/sentra/internal/behavior"
)

// FeatureHistory adapts the behavioral feature store to the model cache's
// training interface.
type FeatureHistory struct {
	features behavior.FeatureStore
}

var _ anomaly.HistoryProvider = (*FeatureHistory)(nil)

// NewFeatureHistory creates the adapter.
func NewFeatureHistory(features behavior.FeatureStore) *FeatureHistory {
	return &FeatureHistory{features: features}
}

func (h *FeatureHistory) UserSampleCount(ctx context.Context, userID string) (int, error) {
	return h.features.CountByUser(ctx, userID)
}

func (h *FeatureHistory) UserSamples(ctx context.Context, userID string, limit int) ([][]float64, error) {
	vectors, err := h.features.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	samples := make([][]float64, len(vectors))
	for i, fv := range vectors {
		samples[i] = fv.Array()
	}
	return samples, nil
}
