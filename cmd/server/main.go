// Sentra - Continuous behavioral trust engine
package main

import (
	"context"
	"os"

	"github.com/sentra-auth/sentra/internal/config"
	"github.com/sentra-auth/sentra/internal/logging"
	"github.com/sentra-auth/sentra/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Create logger
	logger := logging.New("info", "text")

	logger.Info("starting sentra",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"env", cfg.Env,
		"thresholds", []int{cfg.TrustThresholdOK, cfg.TrustThresholdMonitor, cfg.TrustThresholdStepup},
		"feature_window_seconds", cfg.FeatureWindowSeconds,
	)

	// Create and run server
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
