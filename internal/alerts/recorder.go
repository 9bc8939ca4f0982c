package alerts

import (
	"context"
	"time"

	"github.com/sentra-auth/sentra/internal/idgen"
	"github.com/sentra-auth/sentra/internal/logging"
)

// Recorder persists alerts and fans them out to notifiers.
type Recorder struct {
	store     Store
	notifiers []Notifier
	now       func() time.Time
}

// NewRecorder creates an alert recorder.
func NewRecorder(store Store, notifiers ...Notifier) *Recorder {
	return &Recorder{store: store, notifiers: notifiers, now: time.Now}
}

// Record stores the alert and notifies subscribers. A store failure is
// logged, not propagated: alerting must never fail the evaluation that
// raised it.
func (r *Recorder) Record(ctx context.Context, a *Alert) {
	if a.ID == "" {
		a.ID = idgen.WithPrefix("alrt_")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = r.now()
	}

	if err := r.store.Insert(ctx, a); err != nil {
		logging.L(ctx).Error("alert insert failed",
			"alert_type", a.Type, "session_id", a.SessionID, "error", err)
	}
	for _, n := range r.notifiers {
		n.Notify(a)
	}

	logging.L(ctx).Warn("security alert",
		"alert_type", a.Type,
		"severity", string(a.Severity),
		"session_id", a.SessionID,
		"user_id", a.UserID,
		"trust_score", a.TrustScore,
	)
}
