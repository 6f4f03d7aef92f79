package holding

import (
	"math"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planbmotoru/engine/internal/domain"
)

func candles(closes []float64) []domain.Candle {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]domain.Candle, len(closes))
	for i, c := range closes {
		out[i] = domain.Candle{
			Timestamp: start.AddDate(0, 0, i),
			Open:      c,
			High:      c,
			Low:       c,
			Close:     c,
			Volume:    1000,
		}
	}
	return out
}

// geometric builds a deterministic series with constant daily growth, so the
// return series has exactly zero standard deviation.
func geometric(n int, start, dailyGrowth float64) []float64 {
	out := make([]float64, n)
	price := start
	for i := range out {
		out[i] = price
		price *= 1 + dailyGrowth
	}
	return out
}

// alternating builds a series that swings by pct up then down each day.
func alternating(n int, start, pct float64) []float64 {
	out := make([]float64, n)
	price := start
	for i := range out {
		out[i] = price
		if i%2 == 0 {
			price *= 1 + pct
		} else {
			price *= 1 - pct
		}
	}
	return out
}

func TestRecommend_ShortHistoryFallsBackToDefault(t *testing.T) {
	advisor := NewAdvisor(zerolog.Nop())

	rec := advisor.Recommend("THYAO", candles([]float64{100}), 50, 50)

	assert.True(t, rec.Degraded)
	assert.Equal(t, defaultHoldingDays, rec.PeriodDays)
	assert.Empty(t, rec.Targets)
	assert.Equal(t, "medium_term", rec.PeriodType)
}

func TestRecommend_LowVolatilityLongBase(t *testing.T) {
	advisor := NewAdvisor(zerolog.Nop())

	// Flat series: zero volatility, neutral trend, neutral momentum.
	rec := advisor.Recommend("AKBNK", candles(geometric(60, 100, 0)), 50, 50)

	assert.Equal(t, "low", rec.Volatility.Level)
	assert.Equal(t, TrendNeutral, rec.Trend.Direction)
	assert.Equal(t, basePeriodLowVol, rec.PeriodDays)
	assert.False(t, rec.Degraded)
}

func TestRecommend_StrongUptrendExtendsPeriod(t *testing.T) {
	advisor := NewAdvisor(zerolog.Nop())

	// Steady 2% daily growth: strong upward trend, zero return variance.
	rec := advisor.Recommend("TCELL", candles(geometric(100, 100, 0.02)), 50, 50)

	require.Equal(t, TrendUpward, rec.Trend.Direction)
	require.Greater(t, rec.Trend.Strength, trendStrong)
	assert.Equal(t, basePeriodLowVol+14, rec.PeriodDays)
	assert.Equal(t, "long_term", rec.PeriodType)
}

func TestRecommend_StrongDowntrendShortensPeriod(t *testing.T) {
	advisor := NewAdvisor(zerolog.Nop())

	rec := advisor.Recommend("GARAN", candles(geometric(100, 400, -0.02)), 50, 50)

	require.Equal(t, TrendDownward, rec.Trend.Direction)
	require.Greater(t, rec.Trend.Strength, trendStrong)
	assert.Equal(t, basePeriodLowVol-7, rec.PeriodDays)
}

func TestRecommend_HighVolatilityMomentumAndBreakout(t *testing.T) {
	advisor := NewAdvisor(zerolog.Nop())

	// 10% daily swings annualize far above the high-volatility bound.
	history := candles(alternating(60, 100, 0.10))

	rec := advisor.Recommend("BTC-USD", history, 80, 80)

	require.Equal(t, "high", rec.Volatility.Level)
	// base 7 + momentum 7 + breakout 10
	assert.Equal(t, basePeriodHighVol+7+10, rec.PeriodDays)
}

func TestRecommend_PeriodClampedAtMinimum(t *testing.T) {
	advisor := NewAdvisor(zerolog.Nop())

	history := candles(alternating(60, 100, 0.10))

	// High volatility base 7, weak momentum pulls it down, clamp holds at 3.
	rec := advisor.Recommend("DOGE-USD", history, 10, 50)

	assert.Equal(t, MinHoldingDays, rec.PeriodDays)
}

func TestRecommend_LadderScalesWithVolatility(t *testing.T) {
	advisor := NewAdvisor(zerolog.Nop())

	history := candles(alternating(60, 100, 0.02))
	rec := advisor.Recommend("SISE", history, 50, 50)

	require.Len(t, rec.Targets, 4)

	price := history[len(history)-1].Close
	daily := rec.Volatility.Daily
	require.Greater(t, daily, 0.0)

	ks := []float64{1.5, 3, 6, 12}
	ms := []float64{1, 2, 4, 8}
	for i, target := range rec.Targets {
		assert.InDelta(t, price*(1+ks[i]*daily), target.Target, 1e-9, "target %s", target.Horizon)
		assert.InDelta(t, price*(1-ms[i]*daily), target.StopLoss, 1e-9, "stop %s", target.Horizon)
		assert.Less(t, target.StopLoss, price)
		assert.Greater(t, target.Target, price)
	}
}

func TestRecommend_UptrendLiftsTargetsOnly(t *testing.T) {
	advisor := NewAdvisor(zerolog.Nop())

	// Uptrend with real variance: growth plus alternating noise.
	closes := make([]float64, 100)
	price := 100.0
	for i := range closes {
		closes[i] = price
		step := 0.03
		if i%2 == 0 {
			step = 0.01
		}
		price *= 1 + step
	}

	rec := advisor.Recommend("ASELS", candles(closes), 50, 50)
	require.Equal(t, TrendUpward, rec.Trend.Direction)

	last := closes[len(closes)-1]
	daily := rec.Volatility.Daily
	for i, target := range rec.Targets {
		k := []float64{1.5, 3, 6, 12}[i]
		m := []float64{1, 2, 4, 8}[i]
		assert.InDelta(t, last*(1+k*daily)*1.1, target.Target, 1e-9)
		assert.InDelta(t, last*(1-m*daily), target.StopLoss, 1e-9)
	}
}

func TestRecommend_RiskRewardAveragesLadder(t *testing.T) {
	advisor := NewAdvisor(zerolog.Nop())

	history := candles(alternating(60, 100, 0.02))
	rec := advisor.Recommend("EREGL", history, 50, 50)

	sum := 0.0
	for _, target := range rec.Targets {
		sum += target.Ratio
	}
	assert.InDelta(t, sum/4, rec.RiskReward.Average, 1e-9)
	assert.Contains(t, []string{"excellent", "good", "fair", "poor"}, rec.RiskReward.Level)
}

func TestRiskRewardLevels(t *testing.T) {
	assert.Equal(t, "excellent", riskRewardLevel(2.5))
	assert.Equal(t, "good", riskRewardLevel(1.8))
	assert.Equal(t, "fair", riskRewardLevel(1.2))
	assert.Equal(t, "poor", riskRewardLevel(0.9))
}

func TestStopForPeriodPicksNearestHorizon(t *testing.T) {
	targets := []domain.HorizonTarget{
		{Horizon: "1d", Days: 1, StopLoss: 99},
		{Horizon: "1w", Days: 7, StopLoss: 97},
		{Horizon: "1m", Days: 30, StopLoss: 94},
		{Horizon: "3m", Days: 90, StopLoss: 88},
	}

	assert.InDelta(t, 97.0, stopForPeriod(targets, 5), 1e-9)
	assert.InDelta(t, 94.0, stopForPeriod(targets, 28), 1e-9)
	assert.InDelta(t, 88.0, stopForPeriod(targets, 75), 1e-9)
}

func TestComputeVolatilityClassification(t *testing.T) {
	// Alternating 0.5% swings: annualized volatility well under 20%.
	low := computeVolatility(alternating(60, 100, 0.005))
	assert.Equal(t, "low", low.Level)

	// Alternating 1.5% swings land in the medium band.
	medium := computeVolatility(alternating(60, 100, 0.015))
	assert.Equal(t, "medium", medium.Level)

	high := computeVolatility(alternating(60, 100, 0.10))
	assert.Equal(t, "high", high.Level)

	for _, v := range []Volatility{low, medium, high} {
		assert.InDelta(t, v.Daily*math.Sqrt(252), v.Annualized, 1e-9)
	}
}

func TestRecommend_ShortButUsableHistoryIsDegraded(t *testing.T) {
	advisor := NewAdvisor(zerolog.Nop())

	rec := advisor.Recommend("NEW-IPO", candles(alternating(10, 100, 0.02)), 50, 50)

	assert.True(t, rec.Degraded)
	assert.NotEmpty(t, rec.Targets)
	assert.GreaterOrEqual(t, rec.PeriodDays, MinHoldingDays)
	assert.LessOrEqual(t, rec.PeriodDays, MaxHoldingDays)
}
