// Package server sets up the HTTP server with all routes
package server

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/sentra-auth/sentra/internal/account"
	"github.com/sentra-auth/sentra/internal/alerts"
	"github.com/sentra-auth/sentra/internal/anomaly"
	"github.com/sentra-auth/sentra/internal/behavior"
	"github.com/sentra-auth/sentra/internal/challenge"
	"github.com/sentra-auth/sentra/internal/config"
	"github.com/sentra-auth/sentra/internal/credential"
	"github.com/sentra-auth/sentra/internal/engine"
	"github.com/sentra-auth/sentra/internal/health"
	"github.com/sentra-auth/sentra/internal/logging"
	"github.com/sentra-auth/sentra/internal/metrics"
	"github.com/sentra-auth/sentra/internal/policy"
	"github.com/sentra-auth/sentra/internal/ratelimit"
	"github.com/sentra-auth/sentra/internal/realtime"
	"github.com/sentra-auth/sentra/internal/security"
	"github.com/sentra-auth/sentra/internal/session"
	"github.com/sentra-auth/sentra/internal/token"
	"github.com/sentra-auth/sentra/internal/traces"
	"github.com/sentra-auth/sentra/internal/trust"
	"github.com/sentra-auth/sentra/internal/validation"
)

// -----------------------------------------------------------------------------
// Server
// -----------------------------------------------------------------------------

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg            *config.Config
	sessionMgr     *session.Manager
	sessionStore   session.Store
	accounts       *account.Service
	trustEngine    *engine.Engine
	realtimeHub    *realtime.Hub
	challengeStore challenge.Store
	challengeSweep *challenge.MemoryStore // nil when Redis-backed
	alertRecorder  *alerts.Recorder
	rateLimiter    *ratelimit.Limiter
	healthChecks   *health.Registry
	tracesShutdown func(context.Context) error
	db             *sql.DB       // nil if using in-memory
	redisClient    *redis.Client // nil if using in-memory challenges
	router         *gin.Engine
	httpSrv        *http.Server
	logger         *slog.Logger
	cancelRunCtx   context.CancelFunc // cancels background goroutines started in Run

	// Health state
	ready   atomic.Bool
	healthy atomic.Bool
}

// Option configures the server
type Option func(*Server)

// WithLogger sets a custom logger
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New creates a new server instance
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{
		cfg:          cfg,
		logger:       logging.New(cfg.LogLevel, "json"),
		healthChecks: health.NewRegistry(),
	}

	// Apply options first (may set logger)
	for _, opt := range opts {
		opt(s)
	}

	// Context for initialization
	ctx := context.Background()

	var (
		users       credential.UserStore
		credentials credential.CredentialStore
		sessions    session.Store
		events      behavior.EventStore
		features    behavior.FeatureStore
		alertStore  alerts.Store
	)

	// Initialize storage (Postgres if DATABASE_URL set, otherwise in-memory)
	if cfg.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}

		// Configure connection pool
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)

		// Test connection
		if err := db.Ping(); err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}

		s.db = db
		s.logger.Info("using PostgreSQL storage", "url", maskDSN(cfg.DatabaseURL))

		credStore := credential.NewPostgresStore(db)
		if err := credStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate credential store", "error", err)
		}
		users = credStore
		credentials = credStore

		sessStore := session.NewPostgresStore(db)
		if err := sessStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate session store", "error", err)
		}
		sessions = sessStore

		behaviorStore := behavior.NewPostgresStore(db)
		if err := behaviorStore.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate behavior store", "error", err)
		}
		events = behaviorStore
		features = behaviorStore

		alertPG := alerts.NewPostgresStore(db)
		if err := alertPG.Migrate(ctx); err != nil {
			s.logger.Warn("failed to migrate alert store", "error", err)
		}
		alertStore = alertPG

		s.healthChecks.Register("postgres", health.Ping("postgres", db.PingContext))
	} else {
		s.logger.Info("using in-memory storage (data will not persist)")

		credStore := credential.NewMemoryStore()
		users = credStore
		credentials = credStore
		sessions = session.NewMemoryStore()
		behaviorStore := behavior.NewMemoryStore()
		events = behaviorStore
		features = behaviorStore
		alertStore = alerts.NewMemoryStore()
	}
	s.sessionStore = sessions

	// Challenge store (Redis if REDIS_URL set, otherwise in-memory with sweeper)
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to parse REDIS_URL: %w", err)
		}
		s.redisClient = redis.NewClient(redisOpts)
		if err := s.redisClient.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		s.challengeStore = challenge.NewRedisStore(s.redisClient, "sentra")
		s.logger.Info("using Redis challenge store")

		s.healthChecks.Register("redis", health.Ping("redis", func(ctx context.Context) error {
			return s.redisClient.Ping(ctx).Err()
		}))
	} else {
		mem := challenge.NewMemoryStore()
		s.challengeStore = mem
		s.challengeSweep = mem
		s.logger.Info("using in-memory challenge store")
	}

	// Session manager with JWT-backed tokens
	issuer := token.NewIssuer([]byte(cfg.JWTSecret), time.Duration(cfg.SessionTTLMinutes)*time.Minute)
	s.sessionMgr = session.NewManager(sessions, issuer, time.Duration(cfg.SessionTTLMinutes)*time.Minute)

	// Account ceremonies
	challengeTTL := time.Duration(cfg.ChallengeTTLSeconds) * time.Second
	s.accounts = account.NewService(
		users,
		credentials,
		credential.HMACVerifier{},
		s.challengeStore,
		s.sessionMgr,
		challengeTTL,
	)

	// Global anomaly model: load from disk, train on synthetic traffic if absent
	globalModel, err := loadOrTrainGlobalModel(cfg, s.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare global model: %w", err)
	}

	// Per-user model cache trained from stored feature history
	personalCache := anomaly.NewCache(
		engine.NewFeatureHistory(features),
		cfg.PersonalModelMinSamples,
		50,
		anomaly.WithTrees(cfg.ModelTrees),
		anomaly.WithContamination(cfg.ModelContamination),
	)

	trustEngine := trust.NewEngine(globalModel, personalCache)

	// Realtime hub for WebSocket trust streaming
	s.realtimeHub = realtime.NewHub(s.logger)
	s.logger.Info("realtime streaming enabled")

	// Alerts fan out to the hub so dashboards see them live
	s.alertRecorder = alerts.NewRecorder(alertStore, s.realtimeHub)

	thresholds := policy.Thresholds{
		OK:      float64(cfg.TrustThresholdOK),
		Monitor: float64(cfg.TrustThresholdMonitor),
		StepUp:  float64(cfg.TrustThresholdStepup),
	}
	if err := thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid trust thresholds: %w", err)
	}

	extractor := behavior.NewExtractor(events, features, time.Duration(cfg.FeatureWindowSeconds)*time.Second)

	s.trustEngine = engine.New(engine.Config{
		Events:     events,
		Extractor:  extractor,
		Trust:      trustEngine,
		Policies:   thresholds,
		Sessions:   s.sessionMgr,
		Store:      sessions,
		Challenges: s.challengeStore,
		Accounts:   s.accounts,
		Alerts:     s.alertRecorder,
		AlertStore: alertStore,
		Broadcast:  s.realtimeHub,
		StepUpTTL:  challengeTTL,
	})

	// Configure gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	s.router = gin.New()
	s.setupMiddleware()
	s.setupRoutes()

	s.healthy.Store(true)

	return s, nil
}

// loadOrTrainGlobalModel loads the population model from disk or, when no
// model file exists yet, trains one on synthetic typist traffic and saves it.
func loadOrTrainGlobalModel(cfg *config.Config, logger *slog.Logger) (*anomaly.Model, error) {
	if model, err := anomaly.Load(cfg.ModelPath); err == nil {
		logger.Info("loaded global anomaly model",
			"path", cfg.ModelPath,
			"samples", model.Samples,
			"trained_at", model.TrainedAt,
		)
		return model, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	logger.Info("no global model on disk, training on synthetic traffic", "path", cfg.ModelPath)
	data := anomaly.SyntheticTrainingSet(2000, uint64(time.Now().UnixNano()))
	model, err := anomaly.Train(data,
		anomaly.WithTrees(cfg.ModelTrees),
		anomaly.WithContamination(cfg.ModelContamination),
	)
	if err != nil {
		return nil, err
	}
	metrics.ModelTrainingsTotal.WithLabelValues("global").Inc()

	if err := model.Save(cfg.ModelPath); err != nil {
		logger.Warn("failed to save global model", "path", cfg.ModelPath, "error", err)
	}
	return model, nil
}

// maskDSN hides password in connection string for logging
func maskDSN(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil {
		return "***"
	}
	if u.User != nil {
		u.User = url.UserPassword(u.User.Username(), "***")
	}
	return u.String()
}

// -----------------------------------------------------------------------------
// Middleware
// -----------------------------------------------------------------------------

func (s *Server) setupMiddleware() {
	// Recovery with logging
	s.router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logging.L(c.Request.Context()).Error("panic recovered",
			"error", recovered,
			"path", c.Request.URL.Path,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error":   "internal_error",
			"message": "An unexpected error occurred",
		})
	}))

	// Security headers
	s.router.Use(security.HeadersMiddleware())

	// CORS (allow all origins for demo - restrict in production)
	s.router.Use(security.CORSMiddleware([]string{"*"}))

	// Request size limit (1MB)
	s.router.Use(validation.RequestSizeMiddleware(validation.MaxRequestSize))

	// Rate limiting
	limiterCfg := ratelimit.DefaultConfig()
	if s.cfg.RateLimitRPM > 0 {
		limiterCfg.RequestsPerMinute = s.cfg.RateLimitRPM
	}
	s.rateLimiter = ratelimit.New(limiterCfg)
	s.router.Use(s.rateLimiter.Middleware())

	// Prometheus metrics
	s.router.Use(metrics.Middleware())

	// Request ID
	s.router.Use(s.requestIDMiddleware())

	// Logging
	s.router.Use(s.loggingMiddleware())
}

func (s *Server) requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Check for existing request ID (from load balancer, etc.)
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = generateRequestID()
		}

		// Add to context
		ctx := logging.WithRequestID(c.Request.Context(), requestID)
		ctx = logging.WithLogger(ctx, s.logger)
		c.Request = c.Request.WithContext(ctx)

		// Set response header
		c.Header("X-Request-ID", requestID)

		c.Next()
	}
}

func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		logger := logging.L(c.Request.Context())

		// Log level based on status code
		switch {
		case status >= 500:
			logger.Error("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
				"client_ip", c.ClientIP(),
			)
		case status >= 400:
			logger.Warn("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		default:
			logger.Info("request completed",
				"method", c.Request.Method,
				"path", path,
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
	}
}

// -----------------------------------------------------------------------------
// Routes
// -----------------------------------------------------------------------------

func (s *Server) setupRoutes() {
	// Health & metrics endpoints
	s.router.GET("/health", s.healthHandler)
	s.router.GET("/health/live", s.livenessHandler)
	s.router.GET("/health/ready", s.readinessHandler)
	s.router.GET("/metrics", metrics.Handler())

	// WebSocket for real-time trust streaming
	s.router.GET("/ws", func(c *gin.Context) {
		s.realtimeHub.HandleWebSocket(c.Writer, c.Request)
	})

	// API info
	s.router.GET("/api", s.infoHandler)

	// V1 API group
	v1 := s.router.Group("/api/v1")

	// PUBLIC ROUTES (the auth ceremonies themselves)
	accountHandler := account.NewHandler(s.accounts)
	accountHandler.RegisterRoutes(v1)

	// SESSION-SCOPED ROUTES (require a valid session token)
	authed := v1.Group("")
	authed.Use(session.Middleware(s.sessionMgr))
	{
		accountHandler.RegisterSessionRoutes(authed)

		engineHandler := engine.NewHandler(s.trustEngine)
		engineHandler.RegisterRoutes(authed)
	}
}

// -----------------------------------------------------------------------------
// Handlers
// -----------------------------------------------------------------------------

// HealthResponse for health check endpoints
type HealthResponse struct {
	Status    string          `json:"status"`
	Version   string          `json:"version"`
	Checks    []health.Status `json:"checks,omitempty"`
	Timestamp string          `json:"timestamp"`
}

func (s *Server) healthHandler(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	healthy, checks := s.healthChecks.CheckAll(ctx)

	status := "healthy"
	httpStatus := http.StatusOK
	if !healthy {
		status = "degraded"
		httpStatus = http.StatusServiceUnavailable
	}

	c.JSON(httpStatus, HealthResponse{
		Status:    status,
		Version:   "0.1.0",
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) livenessHandler(c *gin.Context) {
	if !s.healthy.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

func (s *Server) readinessHandler(c *gin.Context) {
	if !s.ready.Load() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

func (s *Server) infoHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "Sentra",
		"description": "Continuous behavioral trust engine",
		"version":     "0.1.0",
		"websocket":   "/ws",
	})
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Run starts the HTTP server with graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	// Create a cancellable context for background goroutines so Shutdown() can stop them.
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRunCtx = cancel

	// Distributed tracing (no-op unless OTLP endpoint configured)
	shutdown, err := traces.Init(runCtx, s.cfg.OTLPEndpoint, s.logger)
	if err != nil {
		s.logger.Warn("failed to initialize tracing", "error", err)
	} else {
		s.tracesShutdown = shutdown
	}

	s.httpSrv = &http.Server{
		Addr:              ":" + s.cfg.Port,
		Handler:           s.router,
		ReadTimeout:       10 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Channel to catch server errors
	errChan := make(chan error, 1)

	// Start server in goroutine
	go func() {
		s.logger.Info("starting server", "port", s.cfg.Port, "env", s.cfg.Env)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	// Start realtime hub
	go s.realtimeHub.Run(runCtx)

	// Expired challenge sweeper (in-memory store only; Redis expires keys itself)
	if s.challengeSweep != nil {
		s.challengeSweep.StartSweeper(runCtx, time.Minute)
	}

	// Mark as ready after brief delay for startup
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.ready.Store(true)
		s.logger.Info("server ready")
	}()

	// Wait for shutdown signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case sig := <-sigChan:
		s.logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context cancelled")
	}

	return s.Shutdown()
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown() error {
	s.ready.Store(false)
	s.logger.Info("starting graceful shutdown")

	// Cancel the context for all background goroutines (hub, sweeper)
	if s.cancelRunCtx != nil {
		s.cancelRunCtx()
	}

	// Give load balancers time to stop sending traffic
	time.Sleep(5 * time.Second)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpSrv.Shutdown(ctx); err != nil {
		s.logger.Error("shutdown error", "error", err)
		return err
	}

	// Stop rate limiter cleanup goroutine
	if s.rateLimiter != nil {
		s.rateLimiter.Stop()
		s.logger.Info("rate limiter stopped")
	}

	// Flush pending spans
	if s.tracesShutdown != nil {
		if err := s.tracesShutdown(ctx); err != nil {
			s.logger.Error("traces shutdown error", "error", err)
		}
	}

	// Close Redis connection
	if s.redisClient != nil {
		if err := s.redisClient.Close(); err != nil {
			s.logger.Error("redis close error", "error", err)
		}
	}

	// Close database connection pool
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("database close error", "error", err)
		} else {
			s.logger.Info("database connection closed")
		}
	}

	s.logger.Info("server stopped")
	return nil
}

// Router returns the gin router for testing
func (s *Server) Router() *gin.Engine {
	return s.router
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func generateRequestID() string {
	bytes := make([]byte, 16)
	if _, err := rand.Read(bytes); err != nil {
		// Fallback to timestamp-based ID
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(bytes)
}
