package trust

import (
	"context"
	"sync"

	"github.com/sentra-auth/sentra/internal/anomaly"
	"github.com/sentra-auth/sentra/internal/behavior"
	"github.com/sentra-auth/sentra/internal/logging"
	"github.com/sentra-auth/sentra/internal/metrics"
)

// Evaluation is the result of scoring one feature vector.
type Evaluation struct {
	Score    float64 `json:"score"`
	Baseline float64 `json:"baseline"`

	// Calibrated anomaly scores in [0,1]; nil when the model was not
	// available for this evaluation.
	GlobalAnomaly   *float64 `json:"globalAnomaly,omitempty"`
	PersonalAnomaly *float64 `json:"personalAnomaly,omitempty"`
}

// Engine fuses baseline rules with the global and per-user anomaly models.
// The global model can be swapped at runtime after a retrain; evaluations in
// flight keep the model they started with.
type Engine struct {
	mu       sync.RWMutex
	global   *anomaly.Model
	personal *anomaly.Cache
}

// NewEngine creates a trust engine. Either model source may be nil; scoring
// degrades to the weight row matching what is available.
func NewEngine(global *anomaly.Model, personal *anomaly.Cache) *Engine {
	return &Engine{global: global, personal: personal}
}

// SetGlobal replaces the global model.
func (e *Engine) SetGlobal(m *anomaly.Model) {
	e.mu.Lock()
	e.global = m
	e.mu.Unlock()
}

// Global returns the current global model, or nil.
func (e *Engine) Global() *anomaly.Model {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.global
}

// Evaluate scores a feature vector. Model failures degrade the evaluation to
// the remaining components rather than failing the pipeline; the baseline
// always applies.
func (e *Engine) Evaluate(ctx context.Context, fv *behavior.FeatureVector) *Evaluation {
	eval := &Evaluation{Baseline: Baseline(fv)}
	arr := fv.Array()

	if global := e.Global(); global != nil {
		score, err := global.Score(arr)
		if err != nil {
			logging.L(ctx).Warn("global model scoring failed", "error", err)
		} else {
			eval.GlobalAnomaly = &score
		}
	}

	// The personal model only contributes on top of the global one; a
	// personal score with no global score has no fusion row.
	if e.personal != nil && eval.GlobalAnomaly != nil {
		model, err := e.personal.Personal(ctx, fv.UserID)
		if err != nil {
			logging.L(ctx).Warn("personal model unavailable",
				"user_id", fv.UserID, "error", err)
		}
		if model != nil {
			score, err := model.Score(arr)
			if err != nil {
				logging.L(ctx).Warn("personal model scoring failed",
					"user_id", fv.UserID, "error", err)
			} else {
				eval.PersonalAnomaly = &score
			}
		}
	}

	eval.Score = Fuse(eval.Baseline, eval.GlobalAnomaly, eval.PersonalAnomaly)
	metrics.TrustScore.Observe(eval.Score)
	return eval
}
