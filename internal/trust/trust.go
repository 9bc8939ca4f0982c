// Package trust turns a behavioral feature vector into a trust score in
// [0,100] by fusing a rule-based baseline with global and per-user anomaly
// model scores.
package trust

import "github.com/sentra-auth/sentra/internal/behavior"

// Fusion weights. Which row applies depends on which model scores are
// available for the evaluation; the personal model dominates whenever the
// user has one.
const (
	// Baseline only.
	weightBaselineOnly = 1.0

	// Baseline + global model.
	weightBaselineWithGlobal = 0.30
	weightGlobal             = 0.70

	// Baseline + global + personal model.
	weightBaselineFull = 0.20
	weightGlobalFull   = 0.30
	weightPersonal     = 0.50
)

// Baseline scores a feature vector with fixed plausibility rules, starting
// from 100 and deducting per violated rule. Rules over absent fields are
// skipped, not treated as zero.
func Baseline(fv *behavior.FeatureVector) float64 {
	score := 100.0

	if fv.TypingSpeed != nil && *fv.TypingSpeed > 15 {
		score -= 20 // faster than plausible human typing
	}
	if fv.InterKeyStd != nil && *fv.InterKeyStd < 0.01 {
		score -= 15 // machine-regular key timing
	}
	if fv.AvgMouseSpeed != nil && *fv.AvgMouseSpeed > 5000 {
		score -= 15
	}
	if fv.TotalEvents < 5 {
		score -= 10 // too little signal
	}
	if fv.KeystrokeCount == 0 && fv.TotalEvents > 20 {
		score -= 10 // busy window with no typing at all
	}
	if fv.AvgKeyHoldTime != nil && (*fv.AvgKeyHoldTime < 0.03 || *fv.AvgKeyHoldTime > 0.5) {
		score -= 10
	}

	return clamp(score, 0, 100)
}

// Fuse combines the baseline with whichever model contributions are present.
// A model's trust contribution is (1 - anomaly) * 100.
func Fuse(baseline float64, globalAnomaly, personalAnomaly *float64) float64 {
	switch {
	case globalAnomaly == nil:
		return clamp(weightBaselineOnly*baseline, 0, 100)
	case personalAnomaly == nil:
		globalTrust := (1 - *globalAnomaly) * 100
		return clamp(weightBaselineWithGlobal*baseline+weightGlobal*globalTrust, 0, 100)
	default:
		globalTrust := (1 - *globalAnomaly) * 100
		personalTrust := (1 - *personalAnomaly) * 100
		return clamp(
			weightBaselineFull*baseline+
				weightGlobalFull*globalTrust+
				weightPersonal*personalTrust,
			0, 100)
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
