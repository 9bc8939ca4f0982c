// Package alerts records security alerts raised by the trust pipeline and
// fans them out to live subscribers.
package alerts

import (
	"context"
	"time"
)

// Severity of an alert.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityDanger  Severity = "danger"
)

// Alert types raised by the pipeline.
const (
	TypeTrustDrop         = "trust_drop"
	TypeStepUpRequired    = "stepup_required"
	TypeStepUpFailed      = "stepup_failed"
	TypeStepUpSuccess     = "stepup_success"
	TypeSessionTerminated = "session_terminated"
)

// Alert is one recorded security event.
type Alert struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"sessionId"`
	UserID     string    `json:"userId"`
	Type       string    `json:"type"`
	Severity   Severity  `json:"severity"`
	Message    string    `json:"message"`
	TrustScore float64   `json:"trustScore"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Store persists alerts.
type Store interface {
	Insert(ctx context.Context, a *Alert) error
	// ListBySession returns a session's alerts, newest first, up to limit.
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*Alert, error)
	// ListRecent returns the newest alerts across all sessions.
	ListRecent(ctx context.Context, limit int) ([]*Alert, error)
}

// Notifier receives alerts as they are recorded. Implementations must not
// block; the recorder calls them inline on the evaluation path.
type Notifier interface {
	Notify(a *Alert)
}
