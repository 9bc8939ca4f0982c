package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/sentra-auth/sentra/internal/session"
)

func TestEvaluate_Bands(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		score  float64
		action Action
		status session.Status
	}{
		{100, ActionContinue, session.StatusOK},
		{70.0001, ActionContinue, session.StatusOK},
		{69.9999, ActionMonitor, session.StatusMonitor},
		{50, ActionMonitor, session.StatusMonitor},
		{39.9999, ActionStepUp, session.StatusSuspicious},
		{25, ActionStepUp, session.StatusSuspicious},
		{19.9999, ActionTerminate, session.StatusCritical},
		{10, ActionTerminate, session.StatusCritical},
		{0, ActionTerminate, session.StatusCritical},
	}
	for _, tt := range tests {
		d := th.Evaluate(tt.score)
		assert.Equal(t, tt.action, d.Action, "score %v", tt.score)
		assert.Equal(t, tt.status, d.Status, "score %v", tt.score)
	}
}

func TestEvaluate_BoundaryBelongsToHigherBand(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, ActionContinue, th.Evaluate(70).Action)
	assert.Equal(t, ActionMonitor, th.Evaluate(40).Action)
	assert.Equal(t, ActionStepUp, th.Evaluate(20).Action)
}

func TestEvaluate_StepUpFlag(t *testing.T) {
	th := DefaultThresholds()
	assert.True(t, th.Evaluate(25).RequireStepUp)
	assert.False(t, th.Evaluate(75).RequireStepUp)
	assert.False(t, th.Evaluate(50).RequireStepUp)
	assert.False(t, th.Evaluate(5).RequireStepUp)
}

func TestThresholds_Validate(t *testing.T) {
	assert.NoError(t, DefaultThresholds().Validate())
	assert.Error(t, Thresholds{OK: 40, Monitor: 70, StepUp: 20}.Validate())
	assert.Error(t, Thresholds{OK: 70, Monitor: 70, StepUp: 20}.Validate())
	assert.Error(t, Thresholds{OK: 120, Monitor: 40, StepUp: 20}.Validate())
	assert.Error(t, Thresholds{OK: 70, Monitor: 40, StepUp: -5}.Validate())
}

func TestStatusForScore(t *testing.T) {
	th := DefaultThresholds()
	assert.Equal(t, session.StatusOK, th.StatusForScore(85))
	assert.Equal(t, session.StatusCritical, th.StatusForScore(10))
}
