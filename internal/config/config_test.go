package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Markets:           []string{"SOL-PERP"},
			MinFundingApy:     20,
			ExitApyThreshold:  5,
			MaxPositionUsd:    10000,
			MinPositionUsd:    100,
			CheckIntervalMs:   60000,
			UnwindMaxAttempts: 3,
		},
	}
}

func TestConfig_ValidateAccepts(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestConfig_ValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "no markets",
			mutate:  func(c *Config) { c.Engine.Markets = nil },
			wantErr: "engine.markets",
		},
		{
			name:    "zero entry threshold",
			mutate:  func(c *Config) { c.Engine.MinFundingApy = 0 },
			wantErr: "engine.min_funding_apy",
		},
		{
			name:    "exit threshold equals entry threshold",
			mutate:  func(c *Config) { c.Engine.ExitApyThreshold = 20 },
			wantErr: "engine.exit_apy_threshold",
		},
		{
			name:    "exit threshold above entry threshold",
			mutate:  func(c *Config) { c.Engine.ExitApyThreshold = 25 },
			wantErr: "engine.exit_apy_threshold",
		},
		{
			name:    "zero max position",
			mutate:  func(c *Config) { c.Engine.MaxPositionUsd = 0 },
			wantErr: "engine.max_position_usd",
		},
		{
			name:    "zero check interval",
			mutate:  func(c *Config) { c.Engine.CheckIntervalMs = 0 },
			wantErr: "engine.check_interval_ms",
		},
		{
			name:    "zero unwind attempts",
			mutate:  func(c *Config) { c.Engine.UnwindMaxAttempts = 0 },
			wantErr: "engine.unwind_max_attempts",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_NegativeExitThresholdRejected(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.ExitApyThreshold = -1
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine.exit_apy_threshold")
}

func TestEngineConfig_DurationHelpers(t *testing.T) {
	engine := EngineConfig{
		CheckIntervalMs: 60000,
		VenueTimeoutMs:  10000,
		LegTimeoutMs:    5000,
	}

	assert.Equal(t, "1m0s", engine.CheckInterval().String())
	assert.Equal(t, "10s", engine.VenueTimeout().String())
	assert.Equal(t, "5s", engine.LegTimeout().String())
}
