package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultFactorWeightsValid(t *testing.T) {
	fw := DefaultFactorWeights()
	require.NoError(t, fw.Validate())
	assert.Equal(t, []string{"cyclical", "financial", "sentiment", "technical", "trend"}, fw.ProviderIDs())
}

func TestFactorWeightsValidate(t *testing.T) {
	tests := []struct {
		name    string
		weights map[string]float64
		wantErr bool
	}{
		{
			name:    "valid sum",
			weights: map[string]float64{"a": 0.6, "b": 0.4},
			wantErr: false,
		},
		{
			name:    "empty",
			weights: nil,
			wantErr: true,
		},
		{
			name:    "negative weight",
			weights: map[string]float64{"a": -0.1, "b": 1.1},
			wantErr: true,
		},
		{
			name:    "does not sum to one",
			weights: map[string]float64{"a": 0.5, "b": 0.4},
			wantErr: true,
		},
		{
			name:    "single factor carries everything",
			weights: map[string]float64{"a": 1.0},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FactorWeights{Weights: tt.weights}.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadFactorWeightsEmptyPathReturnsDefaults(t *testing.T) {
	fw, err := LoadFactorWeights("")
	require.NoError(t, err)
	assert.Equal(t, DefaultFactorWeights(), fw)
}

func TestLoadFactorWeightsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	content := "weights:\n  momentum: 0.7\n  value: 0.3\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	fw, err := LoadFactorWeights(path)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, fw.Weights["momentum"], 1e-9)
	assert.InDelta(t, 0.3, fw.Weights["value"], 1e-9)
}

func TestLoadFactorWeightsRejectsInvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.yaml")
	content := "weights:\n  momentum: 0.7\n  value: 0.7\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	_, err := LoadFactorWeights(path)
	assert.Error(t, err)
}

func TestLoadFactorWeightsMissingFile(t *testing.T) {
	_, err := LoadFactorWeights(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "DEV_MODE", "FACTOR_WEIGHTS_PATH",
		"RISK_FREE_RATE", "OPTIMIZER_BUDGET_SECONDS",
		"MAX_WEIGHT_PER_ASSET", "RISK_SNAPSHOT_SCHEDULE", "INITIAL_CAPITAL",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8090, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.InDelta(t, 0.02, cfg.RiskFreeRate, 1e-9)
	assert.InDelta(t, 0.30, cfg.MaxWeightPerAsset, 1e-9)
	assert.InDelta(t, 100000.0, cfg.InitialCapital, 1e-9)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"PORT", "not-a-port"},
		{"RISK_FREE_RATE", "two percent"},
		{"OPTIMIZER_BUDGET_SECONDS", "-1"},
		{"MAX_WEIGHT_PER_ASSET", "1.5"},
		{"INITIAL_CAPITAL", "0"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
