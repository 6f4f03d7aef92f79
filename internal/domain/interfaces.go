package domain

import "context"

// MarketSnapshot is the point-in-time market view handed to factor providers.
type MarketSnapshot struct {
	Symbol  string
	Price   float64
	History []Candle
}

// FactorScoreProvider computes one bounded factor score for a symbol.
// Implementations live outside this engine (technical indicators, fundamental
// screens, cyclical heuristics, ML ensembles); the engine only combines their
// outputs. A provider that cannot score returns an error wrapping
// ErrProviderUnavailable and the aggregator degrades gracefully.
//
// Providers are stateless capabilities injected into the aggregator; they may
// be invoked concurrently for distinct symbols.
type FactorScoreProvider interface {
	// ID identifies the provider within weight configuration and decision
	// component breakdowns.
	ID() string

	// Compute returns a score in [0,100] and a confidence in [0,1].
	Compute(ctx context.Context, symbol string, snapshot MarketSnapshot) (score, confidence float64, err error)
}

// PriceHistoryProvider supplies ordered OHLCV history. A shorter-than-requested
// series is acceptable and must not be treated as an error; consumers degrade
// based on what they receive (20 observations for volatility, 2 for returns).
type PriceHistoryProvider interface {
	Get(ctx context.Context, symbol string, lookback int) ([]Candle, error)
}
