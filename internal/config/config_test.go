package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func validConfig() *Config {
	return &Config{
		Port:                    DefaultPort,
		Env:                     DefaultEnv,
		JWTSecret:               testSecret,
		SessionTTLMinutes:       DefaultSessionTTLMinutes,
		TrustThresholdOK:        DefaultThresholdOK,
		TrustThresholdMonitor:   DefaultThresholdMonitor,
		TrustThresholdStepup:    DefaultThresholdStepup,
		FeatureWindowSeconds:    DefaultFeatureWindowSeconds,
		ChallengeTTLSeconds:     DefaultChallengeTTLSeconds,
		ModelTrees:              DefaultModelTrees,
		ModelContamination:      DefaultModelContamination,
		PersonalModelMinSamples: DefaultPersonalMinSamples,
	}
}

func TestValidate_OK(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidate_RequiresSecret(t *testing.T) {
	cfg := validConfig()
	cfg.JWTSecret = ""
	assert.Error(t, cfg.Validate())

	cfg.JWTSecret = "too-short"
	assert.Error(t, cfg.Validate())
}

func TestValidate_ThresholdOrdering(t *testing.T) {
	cfg := validConfig()
	cfg.TrustThresholdMonitor = 80 // above OK
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.TrustThresholdStepup = 40 // equal to MONITOR
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.TrustThresholdOK = 101
	assert.Error(t, cfg.Validate())
}

func TestValidate_ModelParams(t *testing.T) {
	cfg := validConfig()
	cfg.ModelContamination = 0.6
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.ModelTrees = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.PersonalModelMinSamples = 0
	assert.Error(t, cfg.Validate())
}

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("TRUST_THRESHOLD_OK", "")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultThresholdOK, cfg.TrustThresholdOK)
	assert.Equal(t, DefaultFeatureWindowSeconds, cfg.FeatureWindowSeconds)
	assert.Equal(t, DefaultChallengeTTLSeconds, cfg.ChallengeTTLSeconds)
	assert.Equal(t, DefaultModelContamination, cfg.ModelContamination)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("JWT_SECRET", testSecret)
	t.Setenv("FEATURE_WINDOW_SECONDS", "30")
	t.Setenv("MODEL_CONTAMINATION", "0.05")
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 30, cfg.FeatureWindowSeconds)
	assert.Equal(t, 0.05, cfg.ModelContamination)
}
