// Package ledger owns portfolio state: cash, positions and the trade log.
// It is the single source of truth for portfolio weights and total value.
package ledger

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/planbmotoru/engine/internal/domain"
)

// quantityEpsilon absorbs floating-point dust when a SELL closes a position.
const quantityEpsilon = 1e-9

// Position is a single holding. Derived values are computed on read so they
// always reflect the latest price.
type Position struct {
	Symbol       string  `json:"symbol"`
	Quantity     float64 `json:"quantity"`
	AvgPrice     float64 `json:"avg_price"`
	CurrentPrice float64 `json:"current_price"`
}

// MarketValue is the position's value at the current price.
func (p Position) MarketValue() float64 { return p.Quantity * p.CurrentPrice }

// CostBasis is the total amount paid for the position at its average price.
func (p Position) CostBasis() float64 { return p.Quantity * p.AvgPrice }

// UnrealizedPnL is market value minus cost basis.
func (p Position) UnrealizedPnL() float64 { return p.MarketValue() - p.CostBasis() }

// UnrealizedPnLPercent is the unrealized gain relative to cost basis.
func (p Position) UnrealizedPnLPercent() float64 {
	basis := p.CostBasis()
	if basis == 0 {
		return 0
	}
	return p.UnrealizedPnL() / basis * 100
}

// Trade is an executed ledger entry.
type Trade struct {
	ID         string           `json:"id"`
	Symbol     string           `json:"symbol"`
	Side       domain.TradeSide `json:"side"`
	Quantity   float64          `json:"quantity"`
	Price      float64          `json:"price"`
	Commission float64          `json:"commission"`
	ExecutedAt time.Time        `json:"executed_at"`
}

// Snapshot is an immutable copy of the ledger state, safe to hand to the risk
// analyzer or optimizer while trades keep flowing.
type Snapshot struct {
	Name           string              `json:"name"`
	Cash           float64             `json:"cash"`
	InitialCapital float64             `json:"initial_capital"`
	Positions      map[string]Position `json:"positions"`
	TotalValue     float64             `json:"total_value"`
	TakenAt        time.Time           `json:"taken_at"`
}

// Ledger serializes all mutations of a single portfolio. Weight recomputation
// is not atomic with position mutation, so every operation holds the lock.
type Ledger struct {
	mu             sync.Mutex
	name           string
	cash           float64
	initialCapital float64
	positions      map[string]Position
	trades         []Trade

	log zerolog.Logger
}

// New creates a ledger holding only cash.
func New(name string, initialCapital float64, log zerolog.Logger) (*Ledger, error) {
	if initialCapital <= 0 {
		return nil, fmt.Errorf("initial capital must be positive, got %.2f", initialCapital)
	}

	return &Ledger{
		name:           name,
		cash:           initialCapital,
		initialCapital: initialCapital,
		positions:      make(map[string]Position),
		log:            log.With().Str("service", "ledger").Str("portfolio", name).Logger(),
	}, nil
}

// ApplyTrade executes a single trade atomically: either position and cash both
// update, or nothing changes. A BUY that would overdraw cash fails with
// InsufficientFundsError; a SELL of more than the held quantity fails with
// InsufficientPositionError.
func (l *Ledger) ApplyTrade(symbol string, side domain.TradeSide, qty, price, commission float64) (Position, error) {
	if qty <= 0 {
		return Position{}, fmt.Errorf("%w: quantity %.4f must be positive", domain.ErrInvalidTrade, qty)
	}
	if price <= 0 {
		return Position{}, fmt.Errorf("%w: price %.4f must be positive", domain.ErrInvalidTrade, price)
	}
	if commission < 0 {
		return Position{}, fmt.Errorf("%w: commission %.4f must not be negative", domain.ErrInvalidTrade, commission)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var pos Position
	switch side {
	case domain.SideBuy:
		cost := qty*price + commission
		if cost > l.cash {
			return Position{}, &domain.InsufficientFundsError{Symbol: symbol, Required: cost, Available: l.cash}
		}

		pos = l.positions[symbol]
		pos.Symbol = symbol
		totalQty := pos.Quantity + qty
		pos.AvgPrice = (pos.Quantity*pos.AvgPrice + qty*price) / totalQty
		pos.Quantity = totalQty
		pos.CurrentPrice = price

		l.cash -= cost
		l.positions[symbol] = pos

	case domain.SideSell:
		pos = l.positions[symbol]
		if qty > pos.Quantity {
			return Position{}, &domain.InsufficientPositionError{Symbol: symbol, Requested: qty, Held: pos.Quantity}
		}

		pos.Quantity -= qty
		pos.CurrentPrice = price
		l.cash += qty*price - commission

		if pos.Quantity <= quantityEpsilon {
			pos.Quantity = 0
			delete(l.positions, symbol)
		} else {
			l.positions[symbol] = pos
		}

	default:
		return Position{}, fmt.Errorf("%w: side %q", domain.ErrInvalidTrade, side)
	}

	trade := Trade{
		ID:         uuid.New().String(),
		Symbol:     symbol,
		Side:       side,
		Quantity:   qty,
		Price:      price,
		Commission: commission,
		ExecutedAt: time.Now().UTC(),
	}
	l.trades = append(l.trades, trade)

	l.log.Info().
		Str("trade_id", trade.ID).
		Str("symbol", symbol).
		Str("side", string(side)).
		Float64("quantity", qty).
		Float64("price", price).
		Float64("cash", l.cash).
		Msg("Trade applied")

	return pos, nil
}

// UpdatePrice marks a held position to the given price.
func (l *Ledger) UpdatePrice(symbol string, price float64) error {
	if price <= 0 {
		return fmt.Errorf("%w: price %.4f must be positive", domain.ErrInvalidTrade, price)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[symbol]
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrUnknownSymbol, symbol)
	}
	pos.CurrentPrice = price
	l.positions[symbol] = pos
	return nil
}

// TotalValue is cash plus the market value of all positions.
func (l *Ledger) TotalValue() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalValueLocked()
}

func (l *Ledger) totalValueLocked() float64 {
	total := l.cash
	for _, pos := range l.positions {
		total += pos.MarketValue()
	}
	return total
}

// Weights recomputes each position's share of total value on every call. Cash
// stays in the denominator, so the risk-asset weights sum to at most 1.
func (l *Ledger) Weights() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.weightsLocked()
}

func (l *Ledger) weightsLocked() map[string]float64 {
	total := l.totalValueLocked()
	weights := make(map[string]float64, len(l.positions))
	if total <= 0 {
		return weights
	}
	for symbol, pos := range l.positions {
		weights[symbol] = pos.MarketValue() / total
	}
	return weights
}

// Allocation is the full weight vector with cash folded in as a zero-variance
// asset under the "CASH" key, summing to 1.
func (l *Ledger) Allocation() map[string]float64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	weights := l.weightsLocked()
	if total := l.totalValueLocked(); total > 0 {
		weights["CASH"] = l.cash / total
	}
	return weights
}

// Cash returns the available cash balance.
func (l *Ledger) Cash() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cash
}

// Position returns a held position by symbol.
func (l *Ledger) Position(symbol string) (Position, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	pos, ok := l.positions[symbol]
	return pos, ok
}

// Positions returns a copy of all held positions.
func (l *Ledger) Positions() map[string]Position {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.positionsLocked()
}

func (l *Ledger) positionsLocked() map[string]Position {
	out := make(map[string]Position, len(l.positions))
	for symbol, pos := range l.positions {
		out[symbol] = pos
	}
	return out
}

// Trades returns a copy of the trade log in execution order.
func (l *Ledger) Trades() []Trade {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Trade, len(l.trades))
	copy(out, l.trades)
	return out
}

// TotalReturnPercent is the portfolio's gain over initial capital.
func (l *Ledger) TotalReturnPercent() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return (l.totalValueLocked() - l.initialCapital) / l.initialCapital * 100
}

// Snapshot captures an immutable copy of the ledger for background analysis.
func (l *Ledger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Snapshot{
		Name:           l.name,
		Cash:           l.cash,
		InitialCapital: l.initialCapital,
		Positions:      l.positionsLocked(),
		TotalValue:     l.totalValueLocked(),
		TakenAt:        time.Now().UTC(),
	}
}

// Weights recomputes the snapshot's position weights, cash included in the
// denominator.
func (s Snapshot) Weights() map[string]float64 {
	weights := make(map[string]float64, len(s.Positions))
	if s.TotalValue <= 0 {
		return weights
	}
	for symbol, pos := range s.Positions {
		weights[symbol] = pos.MarketValue() / s.TotalValue
	}
	return weights
}

// MaxWeight returns the largest single-position weight in the snapshot.
func (s Snapshot) MaxWeight() float64 {
	maxW := 0.0
	for _, w := range s.Weights() {
		maxW = math.Max(maxW, w)
	}
	return maxW
}
