// Package engine orchestrates the continuous trust pipeline: event batches
// in, feature extraction, anomaly scoring, trust fusion, policy decision,
// session state update, enforcement, alerting.
//
// Batches for the same session are serialized with a per-session lock so
// interleaved windows cannot race their trust updates. Different sessions
// proceed in parallel.
package engine

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/sentra-auth/sentra/internal/account"
	"github.com/sentra-auth/sentra/internal/alerts"
	"github.com/sentra-auth/sentra/internal/behavior"
	"github.com/sentra-auth/sentra/internal/challenge"
	"github.com/sentra-auth/sentra/internal/credential"
	"github.com/sentra-auth/sentra/internal/idgen"
	"github.com/sentra-auth/sentra/internal/logging"
	"github.com/sentra-auth/sentra/internal/metrics"
	"github.com/sentra-auth/sentra/internal/policy"
	"github.com/sentra-auth/sentra/internal/session"
	"github.com/sentra-auth/sentra/internal/syncutil"
	"github.com/sentra-auth/sentra/internal/trust"
)

// Errors
var (
	ErrNoStepUpPending = errors.New("no step-up challenge pending")
)

// TrustBroadcaster streams trust updates to live subscribers. Implemented
// by the realtime hub; nil disables streaming.
type TrustBroadcaster interface {
	BroadcastTrustUpdate(sessionID, userID string, score float64, status session.Status)
}

// BatchResult is what the client learns from submitting a batch.
type BatchResult struct {
	EventsAccepted int            `json:"eventsAccepted"`
	Evaluated      bool           `json:"evaluated"`
	TrustScore     float64        `json:"trustScore"`
	Status         session.Status `json:"status"`
	Action         policy.Action  `json:"action"`
	Message        string         `json:"message"`
	RequireStepUp  bool           `json:"requireStepUp"`
}

// Engine wires the pipeline together.
type Engine struct {
	events     behavior.EventStore
	extractor  *behavior.Extractor
	trust      *trust.Engine
	policies   policy.Thresholds
	sessions   *session.Manager
	store      session.Store
	challenges challenge.Store
	accounts   *account.Service
	alerts     *alerts.Recorder
	alertStore alerts.Store
	broadcast  TrustBroadcaster

	locks     *syncutil.ContextShardedMutex
	stepUpTTL time.Duration
}

// Config collects the engine's collaborators.
type Config struct {
	Events     behavior.EventStore
	Extractor  *behavior.Extractor
	Trust      *trust.Engine
	Policies   policy.Thresholds
	Sessions   *session.Manager
	Store      session.Store
	Challenges challenge.Store
	Accounts   *account.Service
	Alerts     *alerts.Recorder
	AlertStore alerts.Store
	Broadcast  TrustBroadcaster
	StepUpTTL  time.Duration
}

// New creates the engine.
func New(cfg Config) *Engine {
	if cfg.StepUpTTL <= 0 {
		cfg.StepUpTTL = challenge.DefaultTTL
	}
	return &Engine{
		events:     cfg.Events,
		extractor:  cfg.Extractor,
		trust:      cfg.Trust,
		policies:   cfg.Policies,
		sessions:   cfg.Sessions,
		store:      cfg.Store,
		challenges: cfg.Challenges,
		accounts:   cfg.Accounts,
		alerts:     cfg.Alerts,
		alertStore: cfg.AlertStore,
		broadcast:  cfg.Broadcast,
		locks:      syncutil.NewContextShardedMutex(),
		stepUpTTL:  cfg.StepUpTTL,
	}
}

// SubmitEventBatch ingests a batch for the session and runs one evaluation
// cycle over the session's current feature window. A window with no events
// accepts the batch without evaluating.
func (e *Engine) SubmitEventBatch(ctx context.Context, sess *session.Session, events []*behavior.Event) (*BatchResult, error) {
	unlock, err := e.locks.LockContext(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	timer := prometheus.NewTimer(metrics.TrustEvaluationDuration)
	defer timer.ObserveDuration()

	now := time.Now()
	for _, ev := range events {
		ev.SessionID = sess.ID
		ev.IngestedAt = now
	}
	if err := e.events.Insert(ctx, events); err != nil {
		metrics.EventBatchesTotal.WithLabelValues("store_error").Inc()
		return nil, fmt.Errorf("store events: %w", err)
	}
	for _, ev := range events {
		metrics.EventsIngestedTotal.WithLabelValues(string(ev.Type)).Inc()
	}

	result, err := e.evaluateLocked(ctx, sess)
	if err != nil {
		metrics.EventBatchesTotal.WithLabelValues("evaluation_error").Inc()
		return nil, err
	}
	result.EventsAccepted = len(events)
	if result.Evaluated {
		metrics.EventBatchesTotal.WithLabelValues("evaluated").Inc()
	} else {
		metrics.EventBatchesTotal.WithLabelValues("accepted_no_features").Inc()
	}
	return result, nil
}

// ForceEvaluate runs an evaluation cycle over the session's current window
// without new events. Used by operators and monitoring probes.
func (e *Engine) ForceEvaluate(ctx context.Context, sess *session.Session) (*BatchResult, error) {
	unlock, err := e.locks.LockContext(ctx, sess.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return e.evaluateLocked(ctx, sess)
}

// evaluateLocked runs extraction, scoring, the policy decision, the session
// trust update, and enforcement. Caller holds the session lock.
func (e *Engine) evaluateLocked(ctx context.Context, sess *session.Session) (*BatchResult, error) {
	fv, err := e.extractor.Extract(ctx, sess.ID, sess.UserID)
	if errors.Is(err, behavior.ErrNoFeatures) {
		// Nothing in the window: keep the session's standing as is.
		current, err := e.store.Get(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		return &BatchResult{
			Evaluated:  false,
			TrustScore: current.TrustScore,
			Status:     current.Status,
			Action:     policy.ActionContinue,
			Message:    "no behavioral signal in window",
		}, nil
	}
	if err != nil {
		return nil, err
	}

	eval := e.trust.Evaluate(ctx, fv)
	decision := e.policies.Evaluate(eval.Score)
	metrics.PolicyActionsTotal.WithLabelValues(string(decision.Action)).Inc()

	// The trust update stands alone: it never deactivates the session.
	// Enforcement below is a separate step.
	if err := e.store.UpdateTrust(ctx, sess.ID, eval.Score, decision.Status); err != nil {
		return nil, err
	}
	if e.broadcast != nil {
		e.broadcast.BroadcastTrustUpdate(sess.ID, sess.UserID, eval.Score, decision.Status)
	}

	logging.L(ctx).Info("trust evaluated",
		"session_id", sess.ID,
		"score", eval.Score,
		"baseline", eval.Baseline,
		"action", string(decision.Action),
	)

	switch decision.Action {
	case policy.ActionTerminate:
		if err := e.sessions.Revoke(ctx, sess.ID); err != nil {
			return nil, err
		}
		e.alerts.Record(ctx, &alerts.Alert{
			SessionID:  sess.ID,
			UserID:     sess.UserID,
			Type:       alerts.TypeSessionTerminated,
			Severity:   alerts.SeverityDanger,
			Message:    decision.Message,
			TrustScore: eval.Score,
		})
	case policy.ActionStepUp:
		e.alerts.Record(ctx, &alerts.Alert{
			SessionID:  sess.ID,
			UserID:     sess.UserID,
			Type:       alerts.TypeStepUpRequired,
			Severity:   alerts.SeverityWarning,
			Message:    decision.Message,
			TrustScore: eval.Score,
		})
	case policy.ActionMonitor:
		e.alerts.Record(ctx, &alerts.Alert{
			SessionID:  sess.ID,
			UserID:     sess.UserID,
			Type:       alerts.TypeTrustDrop,
			Severity:   alerts.SeverityInfo,
			Message:    decision.Message,
			TrustScore: eval.Score,
		})
	}

	return &BatchResult{
		Evaluated:     true,
		TrustScore:    eval.Score,
		Status:        decision.Status,
		Action:        decision.Action,
		Message:       decision.Message,
		RequireStepUp: decision.RequireStepUp,
	}, nil
}

// TrustStatus reports the session's current standing without evaluating.
func (e *Engine) TrustStatus(ctx context.Context, sessionID string) (*session.Session, policy.Decision, error) {
	s, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, policy.Decision{}, err
	}
	return s, e.policies.Evaluate(s.TrustScore), nil
}

// BeginStepUp issues a step-up challenge for the session.
func (e *Engine) BeginStepUp(ctx context.Context, sess *session.Session) (string, error) {
	nonce := challengeNonce()
	key := challenge.StepUpKey(sess.ID)
	if err := e.challenges.Put(ctx, key, nonce, e.stepUpTTL); err != nil {
		return "", fmt.Errorf("store step-up challenge: %w", err)
	}
	return base64.StdEncoding.EncodeToString(nonce), nil
}

// CompleteStepUp verifies the challenge response and, on success, restores
// the session to full trust. A failed verification leaves the session's
// standing untouched; the client may retry with a fresh challenge.
func (e *Engine) CompleteStepUp(ctx context.Context, sess *session.Session, signature []byte, counter uint32) error {
	// Same lock as batch evaluation, so the trust reset cannot interleave
	// with a concurrent evaluation for this session.
	unlock, err := e.locks.LockContext(ctx, sess.ID)
	if err != nil {
		return err
	}
	defer unlock()

	nonce, err := e.challenges.Take(ctx, challenge.StepUpKey(sess.ID))
	if errors.Is(err, challenge.ErrNotFound) {
		metrics.StepUpsTotal.WithLabelValues("challenge_missing").Inc()
		return ErrNoStepUpPending
	}
	if err != nil {
		return err
	}

	if err := e.accounts.VerifyForUser(ctx, sess.UserID, nonce, signature, counter); err != nil {
		metrics.StepUpsTotal.WithLabelValues("verification_failed").Inc()
		e.alerts.Record(ctx, &alerts.Alert{
			SessionID:  sess.ID,
			UserID:     sess.UserID,
			Type:       alerts.TypeStepUpFailed,
			Severity:   alerts.SeverityWarning,
			Message:    "step-up verification failed",
			TrustScore: sess.TrustScore,
		})
		if errors.Is(err, credential.ErrVerificationFailed) {
			return err
		}
		return fmt.Errorf("verify step-up: %w", err)
	}

	if err := e.sessions.ResetTrust(ctx, sess.ID); err != nil {
		return err
	}
	metrics.StepUpsTotal.WithLabelValues("success").Inc()
	e.alerts.Record(ctx, &alerts.Alert{
		SessionID:  sess.ID,
		UserID:     sess.UserID,
		Type:       alerts.TypeStepUpSuccess,
		Severity:   alerts.SeverityInfo,
		Message:    "step-up verification succeeded, trust restored",
		TrustScore: session.InitialTrustScore,
	})
	logging.L(ctx).Info("step-up completed", "session_id", sess.ID, "user_id", sess.UserID)
	return nil
}

func challengeNonce() []byte {
	return idgen.Bytes(32)
}

// EventHistory returns the session's recent raw events, newest first.
func (e *Engine) EventHistory(ctx context.Context, sessionID string, limit int) ([]*behavior.Event, error) {
	return e.events.ListBySession(ctx, sessionID, limit)
}

// SessionAlerts returns the session's alerts, newest first.
func (e *Engine) SessionAlerts(ctx context.Context, sessionID string, limit int) ([]*alerts.Alert, error) {
	return e.alertStore.ListBySession(ctx, sessionID, limit)
}
