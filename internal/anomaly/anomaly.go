// Package anomaly implements isolation-ensemble anomaly detection over
// behavioral feature vectors.
//
// A Model is an isolation forest plus the feature scaler and score
// calibration fitted at training time. Models are immutable after Train;
// Score is safe for concurrent use. The Cache manages lazily trained
// per-user models on top of a shared global model.
package anomaly

import "errors"

// Errors
var (
	// ErrTooFewSamples means the training set is below the minimum viable
	// size for fitting a forest.
	ErrTooFewSamples = errors.New("too few samples to train model")

	// ErrDimensionMismatch means a scored vector's length differs from the
	// dimensionality the model was trained on.
	ErrDimensionMismatch = errors.New("feature dimension mismatch")
)

// Training defaults.
const (
	DefaultTrees         = 100
	DefaultSubsample     = 256
	DefaultContamination = 0.1

	// MinTrainSamples is the floor below which Train refuses to fit.
	MinTrainSamples = 10
)
