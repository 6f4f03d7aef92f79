package signals

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planbmotoru/engine/internal/domain"
)

type stubProvider struct {
	id         string
	score      float64
	confidence float64
	err        error
}

func (p stubProvider) ID() string { return p.id }

func (p stubProvider) Compute(_ context.Context, _ string, _ domain.MarketSnapshot) (float64, float64, error) {
	return p.score, p.confidence, p.err
}

func TestCollectScores(t *testing.T) {
	providers := []domain.FactorScoreProvider{
		stubProvider{id: "technical", score: 72, confidence: 0.9},
		stubProvider{id: "financial", score: 55, confidence: 0.6},
		stubProvider{id: "sentiment", err: errors.New("feed down")},
	}

	results := CollectScores(context.Background(), providers, "AAPL", domain.MarketSnapshot{Symbol: "AAPL", Price: 180})
	require.Len(t, results, 3)

	byID := make(map[string]domain.ProviderResult, len(results))
	for _, r := range results {
		byID[r.ProviderID] = r
	}

	assert.InDelta(t, 72, byID["technical"].Score, 1e-9)
	assert.True(t, byID["technical"].OK())
	assert.InDelta(t, 0.6, byID["financial"].Confidence, 1e-9)
	assert.False(t, byID["sentiment"].OK())
	assert.Error(t, byID["sentiment"].Err)
}

func TestCollectScoresFeedsAggregator(t *testing.T) {
	agg := newTestAggregator(t, map[string]float64{
		"technical": 0.5,
		"financial": 0.5,
	})

	providers := []domain.FactorScoreProvider{
		stubProvider{id: "technical", score: 80, confidence: 0.8},
		stubProvider{id: "financial", score: 80, confidence: 0.8},
	}

	results := CollectScores(context.Background(), providers, "MSFT", domain.MarketSnapshot{Symbol: "MSFT"})
	decision := agg.Evaluate("MSFT", results, nil)

	assert.Equal(t, domain.SignalBuy, decision.Signal)
	assert.InDelta(t, 80, decision.TotalScore, 1e-9)
}

func TestCollectScoresNoProviders(t *testing.T) {
	results := CollectScores(context.Background(), nil, "AAPL", domain.MarketSnapshot{})
	assert.Empty(t, results)
}
