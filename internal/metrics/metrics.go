// Package metrics provides Prometheus instrumentation for the trust engine.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentra",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sentra",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// EventBatchesTotal counts behavioral event batches by outcome.
	EventBatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentra",
			Name:      "event_batches_total",
			Help:      "Total behavioral event batches by outcome (scored, no_features, rejected).",
		},
		[]string{"outcome"},
	)

	// EventsIngestedTotal counts individual behavioral events by type.
	EventsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentra",
			Name:      "events_ingested_total",
			Help:      "Total behavioral events ingested by type.",
		},
		[]string{"type"},
	)

	// TrustEvaluationDuration observes the full batch-to-decision pipeline latency.
	TrustEvaluationDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sentra",
			Name:      "trust_evaluation_duration_seconds",
			Help:      "Time to score one event batch end to end.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		},
	)

	// TrustScore observes the distribution of computed trust scores.
	TrustScore = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "sentra",
			Name:      "trust_score",
			Help:      "Distribution of computed trust scores.",
			Buckets:   []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)

	// PolicyActionsTotal counts policy decisions by action.
	PolicyActionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentra",
			Name:      "policy_actions_total",
			Help:      "Total policy decisions by action (continue, monitor, stepup, terminate).",
		},
		[]string{"action"},
	)

	// StepUpsTotal counts step-up re-authentication attempts by result.
	StepUpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentra",
			Name:      "stepups_total",
			Help:      "Total step-up attempts by result (success, verification_failed, challenge_missing).",
		},
		[]string{"result"},
	)

	// ModelTrainingsTotal counts anomaly model trainings by scope.
	ModelTrainingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sentra",
			Name:      "model_trainings_total",
			Help:      "Total anomaly model trainings by scope (global, personal).",
		},
		[]string{"scope"},
	)

	// ActiveSessions tracks currently active sessions.
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sentra",
			Name:      "active_sessions",
			Help:      "Number of currently active sessions.",
		},
	)

	// ActiveWebSocketClients tracks connected WebSocket clients.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sentra",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentra", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentra", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "sentra", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		EventBatchesTotal,
		EventsIngestedTotal,
		TrustEvaluationDuration,
		TrustScore,
		PolicyActionsTotal,
		StepUpsTotal,
		ModelTrainingsTotal,
		ActiveSessions,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the Prometheus metrics HTTP handler for /metrics endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups HTTP status codes into buckets (2xx, 3xx, 4xx, 5xx).
func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
