// Package risk computes portfolio-level risk metrics from a ledger snapshot
// and historical return series. Concentration is always computable; the
// statistical block degrades to nil fields when history is too thin.
package risk

import (
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/planbmotoru/engine/internal/domain"
	"github.com/planbmotoru/engine/internal/modules/ledger"
)

const (
	tradingDaysPerYear = 252

	// DefaultRiskFreeRate is the annual risk-free rate used for Sharpe when
	// none is configured.
	DefaultRiskFreeRate = 0.02

	// minUsableSeries is the number of return series below which only the
	// concentration block is populated.
	minUsableSeries = 2

	// Concentration thresholds on HHI and single-position weight.
	hhiHigh       = 0.25
	hhiMedium     = 0.15
	maxWeightHigh = 0.30
	maxWeightMed  = 0.20
)

// Analyzer computes RiskReports. Safe for concurrent use; it holds no mutable
// state.
type Analyzer struct {
	riskFreeRate float64
	log          zerolog.Logger
}

// NewAnalyzer creates an analyzer with the given annual risk-free rate. A
// non-positive rate falls back to the default.
func NewAnalyzer(riskFreeRate float64, log zerolog.Logger) *Analyzer {
	if riskFreeRate <= 0 {
		riskFreeRate = DefaultRiskFreeRate
	}
	return &Analyzer{
		riskFreeRate: riskFreeRate,
		log:          log.With().Str("service", "risk").Logger(),
	}
}

// Analyze builds a RiskReport for the snapshot. returnsHistory maps symbol to
// its daily return series, oldest first. Concentration metrics are computed
// from position weights alone; VaR, expected shortfall, Sharpe and drawdown
// additionally need at least 2 usable return series and stay nil otherwise.
func (a *Analyzer) Analyze(snap ledger.Snapshot, returnsHistory map[string][]float64) domain.RiskReport {
	report := domain.RiskReport{
		RiskLevel:     domain.RiskLow,
		PositionCount: len(snap.Positions),
		TotalValue:    snap.TotalValue,
		GeneratedAt:   time.Now().UTC(),
	}

	weights := riskAssetWeights(snap)
	report.HHI, report.MaxWeight, report.Top5Concentration = concentration(weights)
	report.RiskLevel = concentrationLevel(report.HHI, report.MaxWeight)

	symbols, aligned := usableSeries(snap, returnsHistory)
	if len(symbols) < minUsableSeries {
		report.Degraded = true
		a.log.Warn().
			Int("usable_series", len(symbols)).
			Int("positions", len(snap.Positions)).
			Msg("Insufficient return history, concentration metrics only")
		return report
	}

	w := alignedWeights(weights, symbols)

	cov, err := CovarianceMatrix(aligned, symbols)
	if err != nil {
		report.Degraded = true
		a.log.Warn().Err(err).Msg("Covariance estimation failed, concentration metrics only")
		return report
	}

	variance := portfolioVariance(w, cov)
	annVol := math.Sqrt(variance * tradingDaysPerYear)
	report.AnnualizedVolatility = domain.Float64Ptr(annVol)

	portfolioReturns := combineReturns(aligned, symbols, w)

	meanDaily := stat.Mean(portfolioReturns, nil)
	annReturn := meanDaily * tradingDaysPerYear
	report.AnnualizedReturn = domain.Float64Ptr(annReturn)

	var95, es95 := tailRisk(portfolioReturns, 0.95)
	var99, es99 := tailRisk(portfolioReturns, 0.99)
	report.VaR95 = domain.Float64Ptr(var95)
	report.ES95 = domain.Float64Ptr(es95)
	report.VaR99 = domain.Float64Ptr(var99)
	report.ES99 = domain.Float64Ptr(es99)

	if annVol > 0 {
		report.SharpeRatio = domain.Float64Ptr((annReturn - a.riskFreeRate) / annVol)
	}
	report.MaxDrawdown = domain.Float64Ptr(maxDrawdown(portfolioReturns))

	a.log.Debug().
		Float64("hhi", report.HHI).
		Float64("annualized_volatility", annVol).
		Float64("var_95", var95).
		Str("risk_level", string(report.RiskLevel)).
		Msg("Risk report generated")

	return report
}

// riskAssetWeights normalizes position weights over the risk sleeve only,
// excluding cash, so a single-asset portfolio always has weight 1.
func riskAssetWeights(snap ledger.Snapshot) map[string]float64 {
	total := 0.0
	for _, pos := range snap.Positions {
		total += pos.MarketValue()
	}

	weights := make(map[string]float64, len(snap.Positions))
	if total <= 0 {
		return weights
	}
	for symbol, pos := range snap.Positions {
		weights[symbol] = pos.MarketValue() / total
	}
	return weights
}

func concentration(weights map[string]float64) (hhi, maxWeight, top5 float64) {
	sorted := make([]float64, 0, len(weights))
	for _, w := range weights {
		hhi += w * w
		maxWeight = math.Max(maxWeight, w)
		sorted = append(sorted, w)
	}

	sort.Sort(sort.Reverse(sort.Float64Slice(sorted)))
	for i, w := range sorted {
		if i >= 5 {
			break
		}
		top5 += w
	}
	return hhi, maxWeight, top5
}

func concentrationLevel(hhi, maxWeight float64) domain.RiskLevel {
	switch {
	case hhi > hhiHigh || maxWeight > maxWeightHigh:
		return domain.RiskHigh
	case hhi > hhiMedium || maxWeight > maxWeightMed:
		return domain.RiskMedium
	default:
		return domain.RiskLow
	}
}

// usableSeries picks the held symbols with enough history and truncates all
// series to a common length, keeping the most recent observations. Symbols
// come back sorted for deterministic matrix order.
func usableSeries(snap ledger.Snapshot, returnsHistory map[string][]float64) ([]string, map[string][]float64) {
	symbols := make([]string, 0, len(snap.Positions))
	minLen := math.MaxInt
	for symbol := range snap.Positions {
		series, ok := returnsHistory[symbol]
		if !ok || len(series) < 2 {
			continue
		}
		symbols = append(symbols, symbol)
		if len(series) < minLen {
			minLen = len(series)
		}
	}
	sort.Strings(symbols)

	aligned := make(map[string][]float64, len(symbols))
	for _, symbol := range symbols {
		series := returnsHistory[symbol]
		aligned[symbol] = series[len(series)-minLen:]
	}
	return symbols, aligned
}

// alignedWeights renormalizes the usable symbols' weights to sum to 1, in
// symbol order.
func alignedWeights(weights map[string]float64, symbols []string) []float64 {
	w := make([]float64, len(symbols))
	sum := 0.0
	for i, symbol := range symbols {
		w[i] = weights[symbol]
		sum += w[i]
	}
	if sum > 0 {
		for i := range w {
			w[i] /= sum
		}
	} else {
		for i := range w {
			w[i] = 1.0 / float64(len(symbols))
		}
	}
	return w
}

// combineReturns builds the weighted portfolio return series.
func combineReturns(aligned map[string][]float64, symbols []string, weights []float64) []float64 {
	obs := len(aligned[symbols[0]])
	out := make([]float64, obs)
	for t := 0; t < obs; t++ {
		for i, symbol := range symbols {
			out[t] += weights[i] * aligned[symbol][t]
		}
	}
	return out
}

// tailRisk returns the historical VaR at the given confidence and the
// expected shortfall, the mean of returns at or below the VaR. |ES| >= |VaR|
// always holds.
func tailRisk(returns []float64, confidence float64) (valueAtRisk, expectedShortfall float64) {
	sorted := make([]float64, len(returns))
	copy(sorted, returns)
	sort.Float64s(sorted)

	valueAtRisk = stat.Quantile(1-confidence, stat.Empirical, sorted, nil)

	tailSum := 0.0
	tailCount := 0
	for _, r := range sorted {
		if r <= valueAtRisk {
			tailSum += r
			tailCount++
		}
	}
	if tailCount > 0 {
		expectedShortfall = tailSum / float64(tailCount)
	} else {
		expectedShortfall = valueAtRisk
	}
	return valueAtRisk, expectedShortfall
}

// maxDrawdown is the largest peak-to-trough decline of the cumulative return
// path, as a non-positive fraction.
func maxDrawdown(returns []float64) float64 {
	wealth := 1.0
	peak := 1.0
	maxDD := 0.0
	for _, r := range returns {
		wealth *= 1 + r
		if wealth > peak {
			peak = wealth
		}
		dd := (wealth - peak) / peak
		if dd < maxDD {
			maxDD = dd
		}
	}
	return maxDD
}
