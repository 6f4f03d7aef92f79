// Package domain holds the shared types exchanged between the engine's
// modules: factor scores, trade decisions, price history, and risk reports.
// Everything here is a plain serializable record with no behaviour beyond
// derived getters; business logic lives in the modules that produce them.
package domain

import "time"

// Signal is a trade action recommendation.
type Signal string

const (
	SignalBuy  Signal = "BUY"
	SignalHold Signal = "HOLD"
	SignalSell Signal = "SELL"
)

// TradeSide is the direction of a ledger trade.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// RiskLevel classifies portfolio concentration risk.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// FactorScore is a single provider's contribution to a decision.
// Scores are bounded to [0,100], weight and confidence to [0,1].
// FactorScores are produced fresh on every evaluation and never persisted.
type FactorScore struct {
	ProviderID string  `json:"provider_id"`
	Score      float64 `json:"score"`
	Weight     float64 `json:"weight"`
	Confidence float64 `json:"confidence"`
}

// ProviderResult is the outcome of asking one FactorScoreProvider for a score.
// A failed provider is represented explicitly rather than as a neutral value,
// so "provider failed" and "provider legitimately computed 50" stay distinct.
type ProviderResult struct {
	ProviderID string
	Score      float64
	Confidence float64
	Err        error
}

// OK reports whether the provider produced a usable score.
func (r ProviderResult) OK() bool {
	return r.Err == nil && r.Score >= 0 && r.Score <= 100
}

// BreakoutSignal is the momentum/breakout override input to the aggregator.
// A BUY action takes priority over the weighted ensemble score.
type BreakoutSignal struct {
	Action     Signal  `json:"action"`
	Confidence float64 `json:"confidence"`
}

// HorizonTarget is one rung of the price target ladder.
type HorizonTarget struct {
	Horizon  string  `json:"horizon"` // "1d", "1w", "1m", "3m"
	Days     int     `json:"days"`
	Target   float64 `json:"target"`
	StopLoss float64 `json:"stop_loss"`
	Reward   float64 `json:"reward"`
	Risk     float64 `json:"risk"`
	Ratio    float64 `json:"ratio"`
}

// RiskReward summarizes the target ladder's average reward/risk ratio.
type RiskReward struct {
	Average float64 `json:"average"`
	Level   string  `json:"level"` // excellent, good, fair, poor
}

// Decision is the engine's output for one symbol: the combined signal plus the
// holding horizon and price ladder when price history was available. It is
// recomputed per call and never mutates portfolio state; execution is an
// external act.
type Decision struct {
	Symbol       string  `json:"symbol"`
	Signal       Signal  `json:"signal"`
	TotalScore   float64 `json:"total_score"`
	Confidence   float64 `json:"confidence"`
	Insufficient bool    `json:"insufficient,omitempty"` // fewer than 2 usable factor scores

	// Per-provider weighted contributions, keyed by provider ID.
	Components map[string]float64 `json:"components,omitempty"`

	// Holding horizon and ladder, populated when price history allowed it.
	HoldingDays int             `json:"recommended_holding_days,omitempty"`
	Targets     []HorizonTarget `json:"target_ladder,omitempty"`
	StopLoss    float64         `json:"stop_loss,omitempty"`
	RiskReward  *RiskReward     `json:"risk_reward,omitempty"`

	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Candle is one observation of a price history series.
type Candle struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Closes extracts the close series from a candle slice.
func Closes(candles []Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}

// RiskReport is the portfolio-level risk summary. Pointer fields distinguish
// "not computed" (nil) from "computed as zero": with fewer than 2 usable
// return series only the concentration block is populated.
type RiskReport struct {
	HHI               float64   `json:"hhi"`
	MaxWeight         float64   `json:"max_weight"`
	Top5Concentration float64   `json:"top5_concentration"`
	RiskLevel         RiskLevel `json:"risk_level"`

	AnnualizedReturn     *float64 `json:"annualized_return,omitempty"`
	AnnualizedVolatility *float64 `json:"annualized_volatility,omitempty"`
	VaR95                *float64 `json:"var_95,omitempty"`
	VaR99                *float64 `json:"var_99,omitempty"`
	ES95                 *float64 `json:"es_95,omitempty"`
	ES99                 *float64 `json:"es_99,omitempty"`
	SharpeRatio          *float64 `json:"sharpe_ratio,omitempty"`
	MaxDrawdown          *float64 `json:"max_drawdown,omitempty"`

	PositionCount int       `json:"position_count"`
	TotalValue    float64   `json:"total_value"`
	Degraded      bool      `json:"degraded,omitempty"` // advanced metrics were skipped
	GeneratedAt   time.Time `json:"generated_at"`
}

// Float64Ptr returns a pointer to v. Used when populating optional report fields.
func Float64Ptr(v float64) *float64 { return &v }
