// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	Port     int
	LogLevel string
	DevMode  bool

	// WeightsPath points to the factor weight YAML file. Empty means defaults.
	WeightsPath string

	// RiskFreeRate is the annualized risk-free rate used for Sharpe ratios.
	RiskFreeRate float64

	// OptimizerBudget is the wall-clock budget for a single optimization run.
	OptimizerBudget time.Duration

	// MaxWeightPerAsset caps any single asset's optimized weight.
	MaxWeightPerAsset float64

	// RiskSnapshotSchedule is a cron expression for the periodic risk job.
	RiskSnapshotSchedule string

	// InitialCapital is the starting cash balance of the portfolio book.
	InitialCapital float64
}

// Load reads configuration from environment variables. A .env file is loaded
// first when present; explicit environment variables win.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 8090,
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		DevMode:              getEnv("DEV_MODE", "false") == "true",
		WeightsPath:          getEnv("FACTOR_WEIGHTS_PATH", ""),
		RiskFreeRate:         0.02,
		OptimizerBudget:      5 * time.Second,
		MaxWeightPerAsset:    0.30,
		RiskSnapshotSchedule: getEnv("RISK_SNAPSHOT_SCHEDULE", "@every 15m"),
		InitialCapital:       100000,
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = port
	}

	if v := os.Getenv("RISK_FREE_RATE"); v != "" {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid RISK_FREE_RATE %q: %w", v, err)
		}
		cfg.RiskFreeRate = rate
	}

	if v := os.Getenv("OPTIMIZER_BUDGET_SECONDS"); v != "" {
		secs, err := strconv.ParseFloat(v, 64)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("invalid OPTIMIZER_BUDGET_SECONDS %q", v)
		}
		cfg.OptimizerBudget = time.Duration(secs * float64(time.Second))
	}

	if v := os.Getenv("INITIAL_CAPITAL"); v != "" {
		capital, err := strconv.ParseFloat(v, 64)
		if err != nil || capital <= 0 {
			return nil, fmt.Errorf("invalid INITIAL_CAPITAL %q", v)
		}
		cfg.InitialCapital = capital
	}

	if v := os.Getenv("MAX_WEIGHT_PER_ASSET"); v != "" {
		maxW, err := strconv.ParseFloat(v, 64)
		if err != nil || maxW <= 0 || maxW > 1 {
			return nil, fmt.Errorf("invalid MAX_WEIGHT_PER_ASSET %q", v)
		}
		cfg.MaxWeightPerAsset = maxW
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
