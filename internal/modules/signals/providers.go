package signals

import (
	"context"
	"sync"

	"github.com/planbmotoru/engine/internal/domain"
)

// CollectScores invokes every provider for the symbol and returns one result
// per provider, failures included. Providers run concurrently; there is no
// ordering dependency among them and the slowest provider bounds the call.
//
// A provider error never aborts collection: it is captured in the result so
// the aggregator can substitute the neutral score for that factor.
func CollectScores(ctx context.Context, providers []domain.FactorScoreProvider, symbol string, snapshot domain.MarketSnapshot) []domain.ProviderResult {
	results := make([]domain.ProviderResult, len(providers))

	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Add(1)
		go func(i int, p domain.FactorScoreProvider) {
			defer wg.Done()
			score, confidence, err := p.Compute(ctx, symbol, snapshot)
			results[i] = domain.ProviderResult{
				ProviderID: p.ID(),
				Score:      score,
				Confidence: confidence,
				Err:        err,
			}
		}(i, p)
	}
	wg.Wait()

	return results
}
