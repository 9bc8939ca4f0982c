// Package policy maps trust scores to enforcement decisions.
package policy

import (
	"fmt"

	"github.com/sentra-auth/sentra/internal/session"
)

// Action is what the engine does with a scored session.
type Action string

const (
	ActionContinue  Action = "continue"
	ActionMonitor   Action = "monitor"
	ActionStepUp    Action = "stepup"
	ActionTerminate Action = "terminate"
)

// Default band boundaries. A score on a boundary belongs to the higher band.
const (
	DefaultOKThreshold      = 70.0
	DefaultMonitorThreshold = 40.0
	DefaultStepUpThreshold  = 20.0
)

// Thresholds are the band boundaries, ordered OK > Monitor > StepUp.
type Thresholds struct {
	OK      float64
	Monitor float64
	StepUp  float64
}

// DefaultThresholds returns the standard 70/40/20 bands.
func DefaultThresholds() Thresholds {
	return Thresholds{
		OK:      DefaultOKThreshold,
		Monitor: DefaultMonitorThreshold,
		StepUp:  DefaultStepUpThreshold,
	}
}

// Validate rejects unordered or out-of-range thresholds.
func (t Thresholds) Validate() error {
	if t.OK <= t.Monitor || t.Monitor <= t.StepUp {
		return fmt.Errorf("thresholds must be ordered OK > Monitor > StepUp, got %.0f/%.0f/%.0f",
			t.OK, t.Monitor, t.StepUp)
	}
	if t.OK > 100 || t.StepUp < 0 {
		return fmt.Errorf("thresholds must lie in [0,100], got %.0f/%.0f/%.0f",
			t.OK, t.Monitor, t.StepUp)
	}
	return nil
}

// Decision is the engine's response to one evaluation.
type Decision struct {
	Action        Action         `json:"action"`
	Status        session.Status `json:"status"`
	Message       string         `json:"message"`
	RequireStepUp bool           `json:"requireStepUp"`
}

// Evaluate maps a trust score to a decision. Total: every score lands in
// exactly one band.
func (t Thresholds) Evaluate(score float64) Decision {
	switch {
	case score >= t.OK:
		return Decision{
			Action:  ActionContinue,
			Status:  session.StatusOK,
			Message: "session in good standing",
		}
	case score >= t.Monitor:
		return Decision{
			Action:  ActionMonitor,
			Status:  session.StatusMonitor,
			Message: "elevated monitoring",
		}
	case score >= t.StepUp:
		return Decision{
			Action:        ActionStepUp,
			Status:        session.StatusSuspicious,
			Message:       "re-authentication required",
			RequireStepUp: true,
		}
	default:
		return Decision{
			Action:  ActionTerminate,
			Status:  session.StatusCritical,
			Message: "trust critically low",
		}
	}
}

// StatusForScore returns just the status band for a score.
func (t Thresholds) StatusForScore(score float64) session.Status {
	return t.Evaluate(score).Status
}
