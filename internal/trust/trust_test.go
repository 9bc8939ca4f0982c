package trust

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sentra-auth/sentra/internal/anomaly"
	"github.com/sentra-auth/sentra/internal/behavior"
)

func f(v float64) *float64 { return &v }

func normalVector() *behavior.FeatureVector {
	return &behavior.FeatureVector{
		AvgKeyHoldTime:      f(0.1),
		KeyHoldStd:          f(0.02),
		AvgInterKeyInterval: f(0.2),
		InterKeyStd:         f(0.05),
		TypingSpeed:         f(5),
		AvgMouseSpeed:       f(800),
		TotalEvents:         40,
		KeystrokeCount:      25,
		MouseCount:          15,
	}
}

func TestBaseline_NormalBehavior(t *testing.T) {
	assert.Equal(t, 100.0, Baseline(normalVector()))
}

func TestBaseline_Deductions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*behavior.FeatureVector)
		want   float64
	}{
		{"superhuman typing speed", func(fv *behavior.FeatureVector) { fv.TypingSpeed = f(20) }, 80},
		{"machine-regular intervals", func(fv *behavior.FeatureVector) { fv.InterKeyStd = f(0.001) }, 85},
		{"implausible mouse speed", func(fv *behavior.FeatureVector) { fv.AvgMouseSpeed = f(9000) }, 85},
		{"hold time too short", func(fv *behavior.FeatureVector) { fv.AvgKeyHoldTime = f(0.01) }, 90},
		{"hold time too long", func(fv *behavior.FeatureVector) { fv.AvgKeyHoldTime = f(0.8) }, 90},
		{
			"sparse window",
			func(fv *behavior.FeatureVector) {
				fv.TotalEvents = 3
				fv.KeystrokeCount = 2
				fv.MouseCount = 1
			},
			90,
		},
		{
			"busy window without typing",
			func(fv *behavior.FeatureVector) {
				fv.KeystrokeCount = 0
				fv.MouseCount = 40
				fv.TotalEvents = 40
				fv.AvgKeyHoldTime = nil
				fv.KeyHoldStd = nil
				fv.AvgInterKeyInterval = nil
				fv.InterKeyStd = nil
				fv.TypingSpeed = nil
			},
			90,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fv := normalVector()
			tt.mutate(fv)
			assert.Equal(t, tt.want, Baseline(fv))
		})
	}
}

func TestBaseline_AbsentFieldsSkipRules(t *testing.T) {
	// Mouse-only window: keystroke rules must not fire on absent fields.
	fv := &behavior.FeatureVector{
		AvgMouseSpeed: f(800),
		TotalEvents:   10,
		MouseCount:    10,
	}
	// Only the no-typing rule is in range here, and TotalEvents is 10, so
	// nothing fires.
	assert.Equal(t, 100.0, Baseline(fv))
}

func TestBaseline_StacksAndClamps(t *testing.T) {
	fv := &behavior.FeatureVector{
		TypingSpeed:    f(20),   // -20
		InterKeyStd:    f(0.001), // -15
		AvgMouseSpeed:  f(9000), // -15
		AvgKeyHoldTime: f(0.01), // -10
		TotalEvents:    3,       // -10
	}
	assert.Equal(t, 30.0, Baseline(fv))
}

func TestFuse_BaselineOnly(t *testing.T) {
	assert.Equal(t, 100.0, Fuse(100, nil, nil))
	assert.Equal(t, 42.0, Fuse(42, nil, nil))
}

func TestFuse_WithGlobal(t *testing.T) {
	// baseline 100, global anomaly 0: fully trusted.
	assert.InDelta(t, 100, Fuse(100, f(0), nil), 1e-9)
	// baseline 100, global anomaly 1: 0.30*100 + 0.70*0.
	assert.InDelta(t, 30, Fuse(100, f(1), nil), 1e-9)
	// baseline 0, global anomaly 0: 0.70*100.
	assert.InDelta(t, 70, Fuse(0, f(0), nil), 1e-9)
}

func TestFuse_WithPersonal(t *testing.T) {
	// All components trusted.
	assert.InDelta(t, 100, Fuse(100, f(0), f(0)), 1e-9)
	// Personal model fully anomalous dominates: 0.20*100 + 0.30*100 + 0.50*0.
	assert.InDelta(t, 50, Fuse(100, f(0), f(1)), 1e-9)
	// Global fully anomalous: 0.20*100 + 0.30*0 + 0.50*100.
	assert.InDelta(t, 70, Fuse(100, f(1), f(0)), 1e-9)
}

func TestFuse_PersonalWeightDominatesModelRow(t *testing.T) {
	// With both models present, a personal anomaly swing moves the score
	// more than the same global anomaly swing.
	personalSwing := Fuse(80, f(0.2), f(0)) - Fuse(80, f(0.2), f(1))
	globalSwing := Fuse(80, f(0), f(0.2)) - Fuse(80, f(1), f(0.2))
	assert.Greater(t, personalSwing, globalSwing)
}

func TestEngine_NoModels(t *testing.T) {
	e := NewEngine(nil, nil)
	eval := e.Evaluate(context.Background(), normalVector())
	assert.Equal(t, 100.0, eval.Score)
	assert.Nil(t, eval.GlobalAnomaly)
	assert.Nil(t, eval.PersonalAnomaly)
}

func TestEngine_GlobalModel(t *testing.T) {
	global, err := anomaly.Train(anomaly.SyntheticTrainingSet(100, 1),
		anomaly.WithSeed(1), anomaly.WithTrees(20))
	require.NoError(t, err)

	e := NewEngine(global, nil)
	eval := e.Evaluate(context.Background(), normalVector())
	require.NotNil(t, eval.GlobalAnomaly)
	assert.Nil(t, eval.PersonalAnomaly)
	assert.GreaterOrEqual(t, eval.Score, 0.0)
	assert.LessOrEqual(t, eval.Score, 100.0)
}

func TestEngine_SetGlobalSwapsModel(t *testing.T) {
	e := NewEngine(nil, nil)
	assert.Nil(t, e.Global())

	global, err := anomaly.Train(anomaly.SyntheticTrainingSet(100, 2),
		anomaly.WithSeed(2), anomaly.WithTrees(10))
	require.NoError(t, err)
	e.SetGlobal(global)
	assert.Same(t, global, e.Global())
}
