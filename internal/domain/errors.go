package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors for the engine's error taxonomy. Callers match with
// errors.Is; the ledger and optimizer wrap these with call-specific context.
var (
	// ErrProviderUnavailable marks a factor score that could not be computed.
	// Aggregation recovers from it locally by substituting a neutral score.
	ErrProviderUnavailable = errors.New("factor provider unavailable")

	// ErrInsufficientData signals that a return series or price history is too
	// short for a given metric. Affected fields degrade to nil, the rest of the
	// result is still populated.
	ErrInsufficientData = errors.New("insufficient data")

	// ErrInsufficientFunds rejects a BUY that would make cash negative.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrInsufficientPosition rejects a SELL that would make quantity negative.
	ErrInsufficientPosition = errors.New("insufficient position")

	// ErrInsufficientAssets rejects an optimization with fewer than 2 assets.
	ErrInsufficientAssets = errors.New("optimization requires at least 2 assets")

	// ErrOptimizationTimeout indicates the solver did not converge within its
	// wall-clock budget. The result falls back to current weights.
	ErrOptimizationTimeout = errors.New("optimization timed out")

	// ErrInvalidTrade rejects a trade with a non-positive quantity or price, a
	// negative commission, or an unknown side.
	ErrInvalidTrade = errors.New("invalid trade")

	// ErrUnknownSymbol signals a price update or lookup for a symbol the
	// ledger holds no position in.
	ErrUnknownSymbol = errors.New("unknown symbol")
)

// InsufficientFundsError carries the details of a rejected BUY.
type InsufficientFundsError struct {
	Symbol    string
	Required  float64
	Available float64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds for %s: need %.2f, have %.2f", e.Symbol, e.Required, e.Available)
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

// InsufficientPositionError carries the details of a rejected SELL.
type InsufficientPositionError struct {
	Symbol    string
	Requested float64
	Held      float64
}

func (e *InsufficientPositionError) Error() string {
	return fmt.Sprintf("insufficient position in %s: selling %.4f, holding %.4f", e.Symbol, e.Requested, e.Held)
}

func (e *InsufficientPositionError) Unwrap() error { return ErrInsufficientPosition }
