package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/planbmotoru/engine/internal/config"
	"github.com/planbmotoru/engine/internal/modules/holding"
	"github.com/planbmotoru/engine/internal/modules/ledger"
	"github.com/planbmotoru/engine/internal/modules/optimization"
	"github.com/planbmotoru/engine/internal/modules/risk"
	"github.com/planbmotoru/engine/internal/modules/signals"
	"github.com/planbmotoru/engine/internal/scheduler"
	"github.com/planbmotoru/engine/internal/server"
	"github.com/planbmotoru/engine/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().Msg("Starting engine")

	weights := config.DefaultFactorWeights()
	if cfg.WeightsPath != "" {
		loaded, err := config.LoadFactorWeights(cfg.WeightsPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.WeightsPath).Msg("Failed to load factor weights")
		}
		weights = loaded
		log.Info().Str("path", cfg.WeightsPath).Msg("Factor weights loaded")
	}

	aggregator, err := signals.NewAggregator(weights, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create signal aggregator")
	}

	advisor := holding.NewAdvisor(log)

	book, err := ledger.New("main", cfg.InitialCapital, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create portfolio ledger")
	}

	analyzer := risk.NewAnalyzer(cfg.RiskFreeRate, log)
	optimizer := optimization.NewOptimizer(cfg.OptimizerBudget, cfg.RiskFreeRate, log)

	// Returns observed through the price update endpoint feed the scheduled
	// risk snapshot. An empty history is fine: the job degrades to
	// concentration-only reports until enough observations arrive.
	store := newReturnsStore()

	riskJob := scheduler.NewRiskSnapshotJob(book, analyzer, store.Series, log)

	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.RiskSnapshotSchedule, riskJob); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.RiskSnapshotSchedule).Msg("Failed to schedule risk snapshot job")
	}

	sched.Start()

	srv := server.New(server.Config{
		Log:        log,
		Port:       cfg.Port,
		DevMode:    cfg.DevMode,
		Aggregator: aggregator,
		Advisor:    advisor,
		Book:       book,
		Analyzer:   analyzer,
		Optimizer:  optimizer,
		RiskJob:    riskJob,
		OnPrice:    store.Record,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	sched.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}

// returnsStore accumulates per-symbol daily returns observed at runtime.
type returnsStore struct {
	mu     sync.RWMutex
	series map[string][]float64
}

func newReturnsStore() *returnsStore {
	return &returnsStore{series: make(map[string][]float64)}
}

// Record appends an observed return for a symbol.
func (s *returnsStore) Record(symbol string, ret float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series[symbol] = append(s.series[symbol], ret)
}

// Series returns a detached copy safe to hand to the risk analyzer.
func (s *returnsStore) Series() map[string][]float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string][]float64, len(s.series))
	for symbol, rets := range s.series {
		out[symbol] = append([]float64(nil), rets...)
	}
	return out
}
