package behavior

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/sentra-auth/sentra/internal/idgen"
	"github.com/sentra-auth/sentra/internal/logging"
)

// DefaultWindow is the trailing interval of events used per feature vector.
const DefaultWindow = 10 * time.Second

// Extractor computes feature vectors from windowed behavioral events.
type Extractor struct {
	events   EventStore
	features FeatureStore
	window   time.Duration
	now      func() time.Time
}

// NewExtractor creates a feature extractor over the given stores.
func NewExtractor(events EventStore, features FeatureStore, window time.Duration) *Extractor {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Extractor{
		events:   events,
		features: features,
		window:   window,
		now:      time.Now,
	}
}

// WithClock overrides the clock (for tests).
func (x *Extractor) WithClock(now func() time.Time) *Extractor {
	x.now = now
	return x
}

// Extract pulls the session's events from the trailing window, computes a
// feature vector, persists it, and returns it. Returns ErrNoFeatures when the
// window holds zero events.
func (x *Extractor) Extract(ctx context.Context, sessionID, userID string) (*FeatureVector, error) {
	now := x.now()
	windowStart := now.Add(-x.window)

	events, err := x.events.ListBySessionSince(ctx, sessionID, windowStart)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, ErrNoFeatures
	}

	var keystrokes, mice []*Event
	for _, e := range events {
		switch e.Type {
		case EventKeystroke:
			keystrokes = append(keystrokes, e)
		case EventMouse:
			mice = append(mice, e)
		}
	}

	fv := &FeatureVector{
		ID:             idgen.WithPrefix("fv_"),
		SessionID:      sessionID,
		UserID:         userID,
		WindowStart:    windowStart,
		WindowEnd:      now,
		TotalEvents:    len(events),
		KeystrokeCount: len(keystrokes),
		MouseCount:     len(mice),
		CreatedAt:      now,
	}

	if len(keystrokes) > 0 {
		extractKeystrokeFeatures(keystrokes, fv)
	}
	if len(mice) > 0 {
		extractMouseFeatures(mice, fv)
	}

	if err := x.features.Save(ctx, fv); err != nil {
		return nil, err
	}

	logging.L(ctx).Debug("features extracted",
		"session_id", sessionID,
		"total_events", fv.TotalEvents,
		"keystroke_count", fv.KeystrokeCount,
		"mouse_count", fv.MouseCount,
	)

	return fv, nil
}

// extractKeystrokeFeatures fills the keystroke fields of fv.
//
// Hold times pair each key-down with the earliest later key-up for the same
// key; unmatched downs are discarded, not zero-filled. Inter-key intervals are
// consecutive differences across the sorted timestamps of all keystroke
// events, not just downs.
func extractKeystrokeFeatures(events []*Event, fv *FeatureVector) {
	type keyTimes struct {
		downs []float64
		ups   []float64
	}
	perKey := make(map[string]*keyTimes)

	for _, e := range events {
		p, ok := e.Keystroke()
		if !ok {
			continue // malformed payload, skipped
		}
		kt := perKey[p.Key]
		if kt == nil {
			kt = &keyTimes{}
			perKey[p.Key] = kt
		}
		if p.Action == ActionDown {
			kt.downs = append(kt.downs, e.Timestamp)
		} else {
			kt.ups = append(kt.ups, e.Timestamp)
		}
	}

	var holdTimes []float64
	for _, kt := range perKey {
		sort.Float64s(kt.downs)
		sort.Float64s(kt.ups)
		for _, down := range kt.downs {
			for _, up := range kt.ups {
				if up > down {
					holdTimes = append(holdTimes, up-down)
					break
				}
			}
		}
	}
	if len(holdTimes) > 0 {
		m, s := meanStd(holdTimes)
		fv.AvgKeyHoldTime = &m
		fv.KeyHoldStd = &s
	}

	timestamps := make([]float64, 0, len(events))
	for _, e := range events {
		timestamps = append(timestamps, e.Timestamp)
	}
	sort.Float64s(timestamps)

	if len(timestamps) > 1 {
		intervals := make([]float64, 0, len(timestamps)-1)
		for i := 1; i < len(timestamps); i++ {
			intervals = append(intervals, timestamps[i]-timestamps[i-1])
		}
		m, s := meanStd(intervals)
		fv.AvgInterKeyInterval = &m
		fv.InterKeyStd = &s

		// Typing speed is defined only over a positive span.
		if span := timestamps[len(timestamps)-1] - timestamps[0]; span > 0 {
			speed := float64(len(timestamps)) / span
			fv.TypingSpeed = &speed
		}
	}
}

// extractMouseFeatures fills the mouse fields of fv.
//
// Instantaneous speed is the Euclidean distance over elapsed time between
// consecutive move events; acceleration magnitude is |Δspeed/Δt| between
// consecutive speed samples. Click rate is clicks over the span of all mouse
// events in the window.
func extractMouseFeatures(events []*Event, fv *FeatureVector) {
	sorted := make([]*Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp < sorted[j].Timestamp })

	type movePoint struct {
		x, y, t float64
	}
	var moves []movePoint
	clicks := 0
	for _, e := range sorted {
		p, ok := e.Mouse()
		if !ok {
			continue
		}
		switch p.Action {
		case ActionMove:
			moves = append(moves, movePoint{x: p.X, y: p.Y, t: e.Timestamp})
		case ActionClick:
			clicks++
		}
	}

	if len(moves) > 1 {
		var speeds, accels []float64
		for i := 1; i < len(moves); i++ {
			dx := moves[i].x - moves[i-1].x
			dy := moves[i].y - moves[i-1].y
			dt := moves[i].t - moves[i-1].t
			if dt <= 0 {
				continue
			}
			speed := math.Sqrt(dx*dx+dy*dy) / dt
			if len(speeds) > 0 {
				accels = append(accels, math.Abs((speed-speeds[len(speeds)-1])/dt))
			}
			speeds = append(speeds, speed)
		}
		if len(speeds) > 0 {
			m, s := meanStd(speeds)
			fv.AvgMouseSpeed = &m
			fv.MouseSpeedStd = &s
		}
		if len(accels) > 0 {
			m, _ := meanStd(accels)
			fv.AvgMouseAcceleration = &m
		}
	}

	if clicks > 0 && len(sorted) > 1 {
		if span := sorted[len(sorted)-1].Timestamp - sorted[0].Timestamp; span > 0 {
			rate := float64(clicks) / span
			fv.ClickRate = &rate
		}
	}
}

// meanStd returns the mean and population standard deviation.
func meanStd(values []float64) (mean, std float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		d := v - mean
		std += d * d
	}
	std = math.Sqrt(std / float64(len(values)))
	return mean, std
}
