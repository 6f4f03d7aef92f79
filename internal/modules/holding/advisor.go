// Package holding derives holding horizons and price target ladders from
// volatility, trend, and momentum.
package holding

import (
	"math"

	talib "github.com/markcheno/go-talib"
	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/stat"

	"github.com/planbmotoru/engine/internal/domain"
)

// Volatility classification bounds, annualized.
const (
	lowVolatility  = 0.20
	highVolatility = 0.40
)

// Holding period bounds and bases, in days.
const (
	MinHoldingDays = 3
	MaxHoldingDays = 90

	basePeriodLowVol    = 30
	basePeriodMediumVol = 14
	basePeriodHighVol   = 7

	defaultHoldingDays = 14

	// minVolatilityObservations is the minimum history length for a reliable
	// volatility estimate; shorter series still produce a recommendation but
	// it is flagged degraded.
	minVolatilityObservations = 20

	trendLookback = 50
	trendStrong   = 70.0
)

// Ladder multipliers per horizon: target = price*(1 + k*dailyVol),
// stop = price*(1 - m*dailyVol).
var horizons = []struct {
	label string
	days  int
	k     float64
	m     float64
}{
	{"1d", 1, 1.5, 1.0},
	{"1w", 7, 3.0, 2.0},
	{"1m", 30, 6.0, 4.0},
	{"3m", 90, 12.0, 8.0},
}

// TrendDirection labels the moving-average trend.
type TrendDirection string

const (
	TrendUpward   TrendDirection = "upward"
	TrendDownward TrendDirection = "downward"
	TrendNeutral  TrendDirection = "neutral"
)

// Volatility describes the realized volatility of a price series.
type Volatility struct {
	Daily      float64 `json:"daily"`
	Annualized float64 `json:"annualized"`
	Level      string  `json:"level"` // low, medium, high
}

// Trend describes the MA20/MA50 trend state.
type Trend struct {
	Direction TrendDirection `json:"direction"`
	Strength  float64        `json:"strength"` // 0-100, magnitude of the move
	MA20      float64        `json:"ma20"`
	MA50      float64        `json:"ma50"`
}

// Recommendation is the advisor's full output for one symbol.
type Recommendation struct {
	Symbol     string                 `json:"symbol"`
	PeriodDays int                    `json:"period_days"`
	PeriodType string                 `json:"period_type"` // short_term, medium_term, long_term
	Volatility Volatility             `json:"volatility"`
	Trend      Trend                  `json:"trend"`
	Targets    []domain.HorizonTarget `json:"target_ladder"`
	StopLoss   float64                `json:"stop_loss"`
	RiskReward domain.RiskReward      `json:"risk_reward"`
	Degraded   bool                   `json:"degraded,omitempty"`
}

// Advisor recommends holding periods and price ladders. It is stateless and
// performs no I/O; price history is supplied by the caller.
type Advisor struct {
	log zerolog.Logger
}

// NewAdvisor creates a holding period advisor.
func NewAdvisor(log zerolog.Logger) *Advisor {
	return &Advisor{log: log.With().Str("service", "holding_advisor").Logger()}
}

// Recommend derives the holding horizon and target ladder for a symbol.
// momentumScore and breakoutScore are bounded [0,100] factor outputs.
//
// With fewer than 2 closes no returns exist, so the advisor emits the default
// horizon with no ladder rather than failing. Between 2 and 19 observations the
// result is computed but flagged degraded.
func (a *Advisor) Recommend(symbol string, history []domain.Candle, momentumScore, breakoutScore float64) Recommendation {
	closes := domain.Closes(history)

	if len(closes) < 2 {
		a.log.Warn().
			Str("symbol", symbol).
			Int("observations", len(closes)).
			Msg("Price history too short for returns, using default holding period")
		return Recommendation{
			Symbol:     symbol,
			PeriodDays: defaultHoldingDays,
			PeriodType: periodType(defaultHoldingDays),
			Volatility: Volatility{Level: "medium"},
			Trend:      Trend{Direction: TrendNeutral, Strength: 50},
			RiskReward: domain.RiskReward{Average: 1.0, Level: riskRewardLevel(1.0)},
			Degraded:   true,
		}
	}

	vol := computeVolatility(closes)
	trend := computeTrend(closes)
	price := closes[len(closes)-1]

	period := basePeriod(vol.Level)

	// Adjustments apply in a fixed order: trend, momentum, breakout.
	if trend.Direction == TrendUpward && trend.Strength > trendStrong {
		period += 14
	} else if trend.Direction == TrendDownward && trend.Strength > trendStrong {
		period = maxInt(MinHoldingDays, period-7)
	}
	if momentumScore > 70 {
		period += 7
	} else if momentumScore < 30 {
		period = maxInt(MinHoldingDays, period-7)
	}
	if breakoutScore > 70 {
		period += 10
	}
	period = clampInt(period, MinHoldingDays, MaxHoldingDays)

	targets := buildLadder(price, vol.Daily, trend.Direction)
	rr := averageRiskReward(targets)

	return Recommendation{
		Symbol:     symbol,
		PeriodDays: period,
		PeriodType: periodType(period),
		Volatility: vol,
		Trend:      trend,
		Targets:    targets,
		StopLoss:   stopForPeriod(targets, period),
		RiskReward: rr,
		Degraded:   len(closes) < minVolatilityObservations,
	}
}

// computeVolatility derives daily and annualized volatility from simple daily
// returns and classifies the annualized figure.
func computeVolatility(closes []float64) Volatility {
	returns := dailyReturns(closes)
	daily := stat.StdDev(returns, nil)
	if math.IsNaN(daily) {
		daily = 0
	}
	annualized := daily * math.Sqrt(252)

	level := "high"
	switch {
	case annualized < lowVolatility:
		level = "low"
	case annualized < highVolatility:
		level = "medium"
	}

	return Volatility{Daily: daily, Annualized: annualized, Level: level}
}

// computeTrend classifies the MA20/MA50 trend. Strength measures the magnitude
// of the price's displacement from MA50 in either direction, so a steep
// downtrend registers as strong too. Histories shorter than 50 observations
// are treated as neutral.
func computeTrend(closes []float64) Trend {
	if len(closes) < trendLookback {
		return Trend{Direction: TrendNeutral, Strength: 50}
	}

	ma20 := talib.Sma(closes, 20)
	ma50 := talib.Sma(closes, 50)

	price := closes[len(closes)-1]
	currentMA20 := ma20[len(ma20)-1]
	currentMA50 := ma50[len(ma50)-1]

	trend := Trend{MA20: currentMA20, MA50: currentMA50}

	switch {
	case price > currentMA20 && currentMA20 > currentMA50:
		trend.Direction = TrendUpward
		trend.Strength = math.Min(100, 50+((price-currentMA50)/currentMA50)*100)
	case price < currentMA20 && currentMA20 < currentMA50:
		trend.Direction = TrendDownward
		trend.Strength = math.Min(100, 50+((currentMA50-price)/currentMA50)*100)
	default:
		trend.Direction = TrendNeutral
		trend.Strength = 50
	}

	return trend
}

// buildLadder produces the volatility-scaled target and stop for each horizon.
// An upward trend lifts all targets by 10%, a downward trend cuts them by 10%;
// stops are left untouched.
func buildLadder(price, dailyVol float64, direction TrendDirection) []domain.HorizonTarget {
	trendMultiplier := 1.0
	switch direction {
	case TrendUpward:
		trendMultiplier = 1.1
	case TrendDownward:
		trendMultiplier = 0.9
	}

	targets := make([]domain.HorizonTarget, 0, len(horizons))
	for _, h := range horizons {
		target := price * (1 + h.k*dailyVol) * trendMultiplier
		stop := price * (1 - h.m*dailyVol)

		reward := target - price
		risk := price - stop
		ratio := 1.0
		if risk > 0 {
			ratio = reward / risk
		}

		targets = append(targets, domain.HorizonTarget{
			Horizon:  h.label,
			Days:     h.days,
			Target:   target,
			StopLoss: stop,
			Reward:   reward,
			Risk:     risk,
			Ratio:    ratio,
		})
	}

	return targets
}

// averageRiskReward averages the ladder's reward/risk ratios and labels the
// result.
func averageRiskReward(targets []domain.HorizonTarget) domain.RiskReward {
	if len(targets) == 0 {
		return domain.RiskReward{Average: 1.0, Level: riskRewardLevel(1.0)}
	}

	sum := 0.0
	for _, t := range targets {
		sum += t.Ratio
	}
	avg := sum / float64(len(targets))

	return domain.RiskReward{Average: avg, Level: riskRewardLevel(avg)}
}

func riskRewardLevel(ratio float64) string {
	switch {
	case ratio > 2.0:
		return "excellent"
	case ratio > 1.5:
		return "good"
	case ratio > 1.0:
		return "fair"
	default:
		return "poor"
	}
}

// stopForPeriod picks the ladder stop whose horizon sits closest to the
// recommended holding period.
func stopForPeriod(targets []domain.HorizonTarget, periodDays int) float64 {
	if len(targets) == 0 {
		return 0
	}

	best := targets[0]
	bestDist := math.Abs(float64(best.Days - periodDays))
	for _, t := range targets[1:] {
		dist := math.Abs(float64(t.Days - periodDays))
		if dist < bestDist {
			best = t
			bestDist = dist
		}
	}
	return best.StopLoss
}

func basePeriod(volLevel string) int {
	switch volLevel {
	case "low":
		return basePeriodLowVol
	case "medium":
		return basePeriodMediumVol
	default:
		return basePeriodHighVol
	}
}

func periodType(days int) string {
	switch {
	case days <= 7:
		return "short_term"
	case days <= 30:
		return "medium_term"
	default:
		return "long_term"
	}
}

func dailyReturns(closes []float64) []float64 {
	returns := make([]float64, 0, len(closes)-1)
	for i := 1; i < len(closes); i++ {
		if closes[i-1] == 0 {
			continue
		}
		returns = append(returns, (closes[i]-closes[i-1])/closes[i-1])
	}
	return returns
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
