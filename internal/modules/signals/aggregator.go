// Package signals combines weighted factor scores into trade decisions.
package signals

import (
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/planbmotoru/engine/internal/config"
	"github.com/planbmotoru/engine/internal/domain"
)

const (
	// NeutralScore substitutes for a missing or failed provider. The provider's
	// configured weight still applies; other providers are never renormalized.
	NeutralScore = 50.0

	// BuyThreshold and HoldThreshold bound the decision buckets. Both are
	// inclusive on the lower edge: 70.0 is a BUY, 40.0 is a HOLD.
	BuyThreshold  = 70.0
	HoldThreshold = 40.0

	// MinUsableScores is the minimum number of successfully computed factor
	// scores required to emit a directional decision.
	MinUsableScores = 2

	// confidenceSpan normalizes threshold distance into [0,1]. The widest
	// meaningful distance above the BUY threshold is 100-70=30.
	confidenceSpan = 30.0
)

// Aggregator combines per-provider factor scores into a single Decision using
// configured category weights. It is stateless and safe for concurrent use
// across symbols.
type Aggregator struct {
	weights config.FactorWeights
	log     zerolog.Logger
}

// NewAggregator creates an aggregator with the given factor weights.
// The weights must sum to 1.0.
func NewAggregator(weights config.FactorWeights, log zerolog.Logger) (*Aggregator, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{
		weights: weights,
		log:     log.With().Str("service", "signal_aggregator").Logger(),
	}, nil
}

// Evaluate combines factor scores and an optional breakout signal into a
// Decision for the symbol.
//
// Decision rules, in priority order:
//  1. breakout BUY overrides the ensemble unconditionally
//  2. fewer than 2 usable factor scores: HOLD with zero confidence
//  3. total score >= 70: BUY; >= 40: HOLD; otherwise SELL
//
// A provider that failed (or is missing from results entirely) contributes the
// neutral score at its configured weight. Degradation is fault-tolerant by
// construction: no single provider failure can abort the aggregate.
func (a *Aggregator) Evaluate(symbol string, results []domain.ProviderResult, breakout *domain.BreakoutSignal) domain.Decision {
	byProvider := make(map[string]domain.ProviderResult, len(results))
	for _, r := range results {
		byProvider[r.ProviderID] = r
	}

	totalScore := 0.0
	usable := 0
	components := make(map[string]float64, len(a.weights.Weights))

	for _, id := range a.weights.ProviderIDs() {
		weight := a.weights.Weights[id]
		score := NeutralScore

		r, present := byProvider[id]
		switch {
		case present && r.OK():
			score = r.Score
			usable++
		case present:
			a.log.Debug().
				Str("symbol", symbol).
				Str("provider", id).
				Err(r.Err).
				Msg("Provider failed, substituting neutral score")
		default:
			a.log.Debug().
				Str("symbol", symbol).
				Str("provider", id).
				Msg("Provider missing, substituting neutral score")
		}

		contribution := score * weight
		totalScore += contribution
		components[id] = contribution
	}

	decision := domain.Decision{
		Symbol:      symbol,
		TotalScore:  totalScore,
		Components:  components,
		EvaluatedAt: time.Now().UTC(),
	}

	if breakout != nil && breakout.Action == domain.SignalBuy {
		decision.Signal = domain.SignalBuy
		decision.Confidence = clamp01(breakout.Confidence)
		return decision
	}

	if usable < MinUsableScores {
		decision.Signal = domain.SignalHold
		decision.Confidence = 0
		decision.Insufficient = true
		a.log.Warn().
			Str("symbol", symbol).
			Int("usable", usable).
			Msg("Insufficient factor scores, emitting neutral HOLD")
		return decision
	}

	switch {
	case totalScore >= BuyThreshold:
		decision.Signal = domain.SignalBuy
	case totalScore >= HoldThreshold:
		decision.Signal = domain.SignalHold
	default:
		decision.Signal = domain.SignalSell
	}
	decision.Confidence = thresholdConfidence(totalScore)

	return decision
}

// thresholdConfidence measures how far a score sits from the nearest decision
// boundary, normalized into [0,1]. Scores right on a boundary have zero
// confidence; deep in a bucket they approach 1.
func thresholdConfidence(score float64) float64 {
	distance := math.Min(math.Abs(score-BuyThreshold), math.Abs(score-HoldThreshold))
	return clamp01(distance / confidenceSpan)
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
