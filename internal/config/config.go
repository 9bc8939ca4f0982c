// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Storage
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)
	RedisURL    string // Redis connection string for the challenge store (optional)

	// Session tokens
	JWTSecret         string
	SessionTTLMinutes int

	// Trust thresholds (0-100, OK > MONITOR > STEPUP)
	TrustThresholdOK      int
	TrustThresholdMonitor int
	TrustThresholdStepup  int

	// Behavioral monitoring
	FeatureWindowSeconds int
	ChallengeTTLSeconds  int

	// Anomaly model
	ModelTrees              int
	ModelContamination      float64
	PersonalModelMinSamples int
	ModelPath               string

	// Observability
	OTLPEndpoint string
	RateLimitRPM int
}

// Defaults
const (
	DefaultPort                 = "8080"
	DefaultEnv                  = "development"
	DefaultLogLevel             = "info"
	DefaultSessionTTLMinutes    = 60
	DefaultThresholdOK          = 70
	DefaultThresholdMonitor     = 40
	DefaultThresholdStepup      = 20
	DefaultFeatureWindowSeconds = 10
	DefaultChallengeTTLSeconds  = 300
	DefaultModelTrees           = 100
	DefaultModelContamination   = 0.1
	DefaultPersonalMinSamples   = 30
	DefaultModelPath            = "data/models/global.json"
	DefaultRateLimitRPM         = 300
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                    getEnv("PORT", DefaultPort),
		Env:                     getEnv("ENV", DefaultEnv),
		LogLevel:                getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:             os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		RedisURL:                os.Getenv("REDIS_URL"),    // Optional, uses in-memory if not set
		JWTSecret:               os.Getenv("JWT_SECRET"),
		SessionTTLMinutes:       getEnvInt("SESSION_TTL_MINUTES", DefaultSessionTTLMinutes),
		TrustThresholdOK:        getEnvInt("TRUST_THRESHOLD_OK", DefaultThresholdOK),
		TrustThresholdMonitor:   getEnvInt("TRUST_THRESHOLD_MONITOR", DefaultThresholdMonitor),
		TrustThresholdStepup:    getEnvInt("TRUST_THRESHOLD_STEPUP", DefaultThresholdStepup),
		FeatureWindowSeconds:    getEnvInt("FEATURE_WINDOW_SECONDS", DefaultFeatureWindowSeconds),
		ChallengeTTLSeconds:     getEnvInt("CHALLENGE_TTL_SECONDS", DefaultChallengeTTLSeconds),
		ModelTrees:              getEnvInt("MODEL_TREES", DefaultModelTrees),
		ModelContamination:      getEnvFloat("MODEL_CONTAMINATION", DefaultModelContamination),
		PersonalModelMinSamples: getEnvInt("PERSONAL_MODEL_MIN_SAMPLES", DefaultPersonalMinSamples),
		ModelPath:               getEnv("MODEL_PATH", DefaultModelPath),
		OTLPEndpoint:            os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPM:            getEnvInt("RATE_LIMIT_RPM", DefaultRateLimitRPM),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present and coherent
func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}

	for name, v := range map[string]int{
		"TRUST_THRESHOLD_OK":      c.TrustThresholdOK,
		"TRUST_THRESHOLD_MONITOR": c.TrustThresholdMonitor,
		"TRUST_THRESHOLD_STEPUP":  c.TrustThresholdStepup,
	} {
		if v < 0 || v > 100 {
			return fmt.Errorf("%s must be between 0 and 100, got %d", name, v)
		}
	}
	if !(c.TrustThresholdOK > c.TrustThresholdMonitor && c.TrustThresholdMonitor > c.TrustThresholdStepup) {
		return fmt.Errorf("trust thresholds must satisfy OK > MONITOR > STEPUP, got %d/%d/%d",
			c.TrustThresholdOK, c.TrustThresholdMonitor, c.TrustThresholdStepup)
	}

	if c.FeatureWindowSeconds <= 0 {
		return fmt.Errorf("FEATURE_WINDOW_SECONDS must be positive")
	}
	if c.ChallengeTTLSeconds <= 0 {
		return fmt.Errorf("CHALLENGE_TTL_SECONDS must be positive")
	}
	if c.ModelTrees <= 0 {
		return fmt.Errorf("MODEL_TREES must be positive")
	}
	if c.ModelContamination <= 0 || c.ModelContamination >= 0.5 {
		return fmt.Errorf("MODEL_CONTAMINATION must be in (0, 0.5), got %v", c.ModelContamination)
	}
	if c.PersonalModelMinSamples <= 0 {
		return fmt.Errorf("PERSONAL_MODEL_MIN_SAMPLES must be positive")
	}

	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}
