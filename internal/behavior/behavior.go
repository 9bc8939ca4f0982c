// Package behavior stores raw behavioral telemetry (keystroke and mouse
// events) and turns time windows of it into fixed-size feature vectors for
// anomaly scoring.
//
// Events are immutable once stored. Feature vectors are derived snapshots,
// computed once per batch-processing cycle and never updated.
package behavior

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	// ErrNoFeatures means the feature window held zero events. Callers are
	// expected to recover locally: the batch is still accepted, scoring is
	// skipped.
	ErrNoFeatures = errors.New("no behavioral events in window")
)

// EventType distinguishes the two telemetry sources.
type EventType string

const (
	EventKeystroke EventType = "keystroke"
	EventMouse     EventType = "mouse"
)

// Payload actions.
const (
	ActionDown  = "down"
	ActionUp    = "up"
	ActionMove  = "move"
	ActionClick = "click"
)

// Event is a single raw behavioral event as submitted by the client.
// Timestamp is the client clock in float seconds; IngestedAt is the server
// clock, used for windowing.
type Event struct {
	ID         string                 `json:"id"`
	SessionID  string                 `json:"sessionId"`
	Type       EventType              `json:"type"`
	Payload    map[string]interface{} `json:"payload"`
	Timestamp  float64                `json:"timestamp"`
	IngestedAt time.Time              `json:"ingestedAt"`
}

// KeystrokePayload is the typed view of a keystroke event payload.
type KeystrokePayload struct {
	Key    string
	Action string // "down" or "up"
}

// MousePayload is the typed view of a mouse event payload.
type MousePayload struct {
	Action string // "move" or "click"
	X      float64
	Y      float64
}

// Keystroke decodes the payload as a keystroke payload. Malformed payloads
// (missing key or action) return ok=false and are ignored by the extractor
// rather than propagated as errors.
func (e *Event) Keystroke() (KeystrokePayload, bool) {
	if e.Type != EventKeystroke {
		return KeystrokePayload{}, false
	}
	key, ok := e.Payload["key"].(string)
	if !ok || key == "" {
		return KeystrokePayload{}, false
	}
	action, ok := e.Payload["action"].(string)
	if !ok || (action != ActionDown && action != ActionUp) {
		return KeystrokePayload{}, false
	}
	return KeystrokePayload{Key: key, Action: action}, true
}

// Mouse decodes the payload as a mouse payload. Coordinates are required for
// move events only.
func (e *Event) Mouse() (MousePayload, bool) {
	if e.Type != EventMouse {
		return MousePayload{}, false
	}
	action, ok := e.Payload["action"].(string)
	if !ok || action == "" {
		return MousePayload{}, false
	}
	p := MousePayload{Action: action}
	if action == ActionMove {
		x, xok := toFloat(e.Payload["x"])
		y, yok := toFloat(e.Payload["y"])
		if !xok || !yok {
			return MousePayload{}, false
		}
		p.X, p.Y = x, y
	}
	return p, true
}

// toFloat accepts the numeric types JSON decoding can produce.
func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// FeatureDim is the length of the flattened feature array fed to the
// anomaly scorer.
const FeatureDim = 12

// FeatureVector is a derived, immutable snapshot of one feature window.
// Statistical fields are nil when the window lacked enough events of that
// type ("absent", not zero); only the flattened array coerces absent to 0.
type FeatureVector struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"sessionId"`
	UserID      string    `json:"userId"`
	WindowStart time.Time `json:"windowStart"`
	WindowEnd   time.Time `json:"windowEnd"`

	// Keystroke features
	AvgKeyHoldTime      *float64 `json:"avgKeyHoldTime,omitempty"`
	KeyHoldStd          *float64 `json:"keyHoldStd,omitempty"`
	AvgInterKeyInterval *float64 `json:"avgInterKeyInterval,omitempty"`
	InterKeyStd         *float64 `json:"interKeyStd,omitempty"`
	TypingSpeed         *float64 `json:"typingSpeed,omitempty"` // keys/sec

	// Mouse features
	AvgMouseSpeed        *float64 `json:"avgMouseSpeed,omitempty"` // px/sec
	MouseSpeedStd        *float64 `json:"mouseSpeedStd,omitempty"`
	AvgMouseAcceleration *float64 `json:"avgMouseAcceleration,omitempty"`
	ClickRate            *float64 `json:"clickRate,omitempty"` // clicks/sec

	TotalEvents    int `json:"totalEvents"`
	KeystrokeCount int `json:"keystrokeCount"`
	MouseCount     int `json:"mouseCount"`

	CreatedAt time.Time `json:"createdAt"`
}

// Array flattens the vector for the anomaly scorer. Absent fields become 0.
// This is a lossy numeric contract: the scorer cannot distinguish "absent"
// from a true zero, and is trained on arrays produced the same way.
func (f *FeatureVector) Array() []float64 {
	return []float64{
		deref(f.AvgKeyHoldTime),
		deref(f.AvgInterKeyInterval),
		deref(f.TypingSpeed),
		deref(f.KeyHoldStd),
		deref(f.InterKeyStd),
		deref(f.AvgMouseSpeed),
		deref(f.AvgMouseAcceleration),
		deref(f.ClickRate),
		deref(f.MouseSpeedStd),
		float64(f.TotalEvents),
		float64(f.KeystrokeCount),
		float64(f.MouseCount),
	}
}

func deref(p *float64) float64 {
	if p == nil {
		return 0
	}
	return *p
}

// EventStore persists behavioral events.
type EventStore interface {
	// Insert stores a batch of events. Events within one batch are durably
	// stored before feature extraction runs on that batch.
	Insert(ctx context.Context, events []*Event) error
	// ListBySessionSince returns events for a session with ingestion time >= since.
	ListBySessionSince(ctx context.Context, sessionID string, since time.Time) ([]*Event, error)
	// ListBySession returns events for a session, newest first, up to limit.
	ListBySession(ctx context.Context, sessionID string, limit int) ([]*Event, error)
}

// FeatureStore persists feature vectors and serves the per-user history used
// to train personal anomaly models.
type FeatureStore interface {
	Save(ctx context.Context, fv *FeatureVector) error
	// ListByUser returns feature vectors across all of a user's sessions,
	// newest first, up to limit.
	ListByUser(ctx context.Context, userID string, limit int) ([]*FeatureVector, error)
	CountByUser(ctx context.Context, userID string) (int, error)
}
