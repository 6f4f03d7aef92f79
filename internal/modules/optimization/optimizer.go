// Package optimization proposes risk-minimizing portfolio weights. The
// objective w'Σw is convex quadratic, solved with a penalty method for the
// full-investment constraint and projection for the per-asset bounds.
package optimization

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"

	"github.com/planbmotoru/engine/internal/domain"
)

const (
	// DefaultMaxWeightPerAsset caps any single asset's share of the
	// portfolio.
	DefaultMaxWeightPerAsset = 0.3

	// DefaultBudget bounds solver wall-clock time. Convergence is not
	// guaranteed, so a run that exceeds the budget is abandoned.
	DefaultBudget = 5 * time.Second

	penaltyWeight = 1000.0
)

// Result is a reallocation proposal. Return and volatility are expressed in
// the same periodicity as the covariance and expected-return inputs. The
// improvement compares excess-return Sharpe ratios of the optimal and current weights under
// the same inputs, an internally consistent comparison rather than a backtest
// claim.
type Result struct {
	OptimalWeights       map[string]float64 `json:"optimal_weights"`
	OptimalReturn        float64            `json:"optimal_return"`
	OptimalVolatility    float64            `json:"optimal_volatility"`
	ImprovementVsCurrent float64            `json:"improvement_vs_current"`
	TimedOut             bool               `json:"timed_out,omitempty"`
}

// Optimizer solves the minimum-variance allocation problem under a wall-clock
// budget.
type Optimizer struct {
	budget       time.Duration
	riskFreeRate float64
	log          zerolog.Logger
}

// NewOptimizer creates an optimizer. A non-positive budget falls back to the
// default. riskFreeRate enters the Sharpe comparison behind
// ImprovementVsCurrent and must be expressed in the same periodicity as the
// expected returns passed to Optimize.
func NewOptimizer(budget time.Duration, riskFreeRate float64, log zerolog.Logger) *Optimizer {
	if budget <= 0 {
		budget = DefaultBudget
	}
	return &Optimizer{
		budget:       budget,
		riskFreeRate: riskFreeRate,
		log:          log.With().Str("service", "optimization").Logger(),
	}
}

// Optimize minimizes w'Σw subject to Σw=1 and 0 <= w_i <= maxWeightPerAsset.
// On timeout it returns the current weights with the TimedOut flag and
// ErrOptimizationTimeout instead of blocking indefinitely.
func (o *Optimizer) Optimize(
	ctx context.Context,
	symbols []string,
	expectedReturns map[string]float64,
	covMatrix [][]float64,
	currentWeights map[string]float64,
	maxWeightPerAsset float64,
) (Result, error) {
	n := len(symbols)
	if n < 2 {
		return Result{}, fmt.Errorf("%w: got %d", domain.ErrInsufficientAssets, n)
	}
	if maxWeightPerAsset <= 0 {
		maxWeightPerAsset = DefaultMaxWeightPerAsset
	}
	if maxWeightPerAsset*float64(n) < 1 {
		return Result{}, fmt.Errorf("infeasible constraints: %d assets capped at %.2f cannot sum to 1", n, maxWeightPerAsset)
	}

	if len(covMatrix) != n {
		return Result{}, fmt.Errorf("covariance matrix size %d doesn't match symbol count %d", len(covMatrix), n)
	}
	for i := range covMatrix {
		if len(covMatrix[i]) != n {
			return Result{}, fmt.Errorf("covariance matrix row %d has size %d, expected %d", i, len(covMatrix[i]), n)
		}
	}

	mu := make([]float64, n)
	for i, symbol := range symbols {
		ret, ok := expectedReturns[symbol]
		if !ok {
			return Result{}, fmt.Errorf("missing expected return for symbol %s", symbol)
		}
		mu[i] = ret
	}

	sigma := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			sigma.Set(i, j, covMatrix[i][j])
		}
	}

	ctx, cancel := context.WithTimeout(ctx, o.budget)
	defer cancel()

	type solveOutcome struct {
		weights []float64
		err     error
	}
	done := make(chan solveOutcome, 1)

	if ctx.Err() == nil {
		go func() {
			weights, err := o.solveMinVolatility(sigma, n, maxWeightPerAsset)
			done <- solveOutcome{weights: weights, err: err}
		}()
	}

	var x []float64
	select {
	case <-ctx.Done():
		o.log.Warn().
			Dur("budget", o.budget).
			Int("assets", n).
			Msg("Optimization timed out, falling back to current weights")
		return o.fallbackResult(symbols, mu, sigma, currentWeights), domain.ErrOptimizationTimeout
	case outcome := <-done:
		if outcome.err != nil {
			return Result{}, outcome.err
		}
		x = outcome.weights
	}

	weights := make(map[string]float64, n)
	for i, symbol := range symbols {
		weights[symbol] = x[i]
	}

	optReturn, optVol := evaluate(x, mu, sigma)

	result := Result{
		OptimalWeights:    weights,
		OptimalReturn:     optReturn,
		OptimalVolatility: optVol,
	}

	if current := weightVector(symbols, currentWeights); current != nil {
		curReturn, curVol := evaluate(current, mu, sigma)
		result.ImprovementVsCurrent = o.sharpe(optReturn, optVol) - o.sharpe(curReturn, curVol)
	}

	o.log.Info().
		Int("assets", n).
		Float64("optimal_volatility", optVol).
		Float64("improvement", result.ImprovementVsCurrent).
		Msg("Optimization complete")

	return result, nil
}

// solveMinVolatility minimizes w'Σw with a quadratic penalty on Σw=1 and
// bounds projection to [0, cap]. Tries BFGS first, Nelder-Mead as fallback.
func (o *Optimizer) solveMinVolatility(sigma *mat.Dense, n int, maxW float64) ([]float64, error) {
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			xProj := projectToBounds(x, maxW)

			var variance float64
			for i := 0; i < n; i++ {
				for j := 0; j < n; j++ {
					variance += xProj[i] * xProj[j] * sigma.At(i, j)
				}
			}

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += xProj[i]
			}

			return variance + penaltyWeight*(sum-1.0)*(sum-1.0)
		},
		Grad: func(grad, x []float64) {
			xProj := projectToBounds(x, maxW)

			for i := 0; i < n; i++ {
				grad[i] = 0
				for j := 0; j < n; j++ {
					grad[i] += 2 * sigma.At(i, j) * xProj[j]
				}
			}

			sum := 0.0
			for i := 0; i < n; i++ {
				sum += xProj[i]
			}
			for i := 0; i < n; i++ {
				grad[i] += 2 * penaltyWeight * (sum - 1.0)
			}
		},
	}

	initial := make([]float64, n)
	for i := range initial {
		initial[i] = 1.0 / float64(n)
	}

	result, err := optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.BFGS{})
	if err != nil || !converged(result.Status) {
		result, err = optimize.Minimize(problem, initial, &optimize.Settings{}, &optimize.NelderMead{})
		if err != nil {
			return nil, fmt.Errorf("optimization failed: %w", err)
		}
		if !converged(result.Status) {
			return nil, fmt.Errorf("optimization did not converge: status=%v", result.Status)
		}
	}

	return normalizeCapped(projectToBounds(result.X, maxW), maxW), nil
}

func converged(status optimize.Status) bool {
	switch status {
	case optimize.Success, optimize.GradientThreshold, optimize.FunctionConvergence:
		return true
	default:
		return false
	}
}

// projectToBounds clamps each weight to [0, cap].
func projectToBounds(x []float64, maxW float64) []float64 {
	proj := make([]float64, len(x))
	for i := range x {
		proj[i] = math.Max(0, math.Min(maxW, x[i]))
	}
	return proj
}

// normalizeCapped scales weights to sum to 1. Assets pushed above the cap by
// normalization are pinned there and the remaining mass is redistributed over
// the uncapped assets; every pass pins at least one asset, so this terminates
// in at most len(x) rounds.
func normalizeCapped(x []float64, maxW float64) []float64 {
	out := make([]float64, len(x))
	copy(out, x)
	pinned := make([]bool, len(x))
	remaining := 1.0

	for round := 0; round < len(x); round++ {
		active := 0
		sumActive := 0.0
		for i := range out {
			if !pinned[i] {
				active++
				sumActive += out[i]
			}
		}
		if active == 0 {
			break
		}

		if sumActive > 0 {
			scale := remaining / sumActive
			for i := range out {
				if !pinned[i] {
					out[i] *= scale
				}
			}
		} else {
			for i := range out {
				if !pinned[i] {
					out[i] = remaining / float64(active)
				}
			}
		}

		newlyPinned := false
		for i := range out {
			if !pinned[i] && out[i] > maxW {
				out[i] = maxW
				pinned[i] = true
				remaining -= maxW
				newlyPinned = true
			}
		}
		if !newlyPinned {
			break
		}
	}
	return out
}

// fallbackResult evaluates the current weights so a timed-out call still
// carries a usable allocation.
func (o *Optimizer) fallbackResult(symbols []string, mu []float64, sigma *mat.Dense, currentWeights map[string]float64) Result {
	result := Result{OptimalWeights: currentWeights, TimedOut: true}
	if current := weightVector(symbols, currentWeights); current != nil {
		result.OptimalReturn, result.OptimalVolatility = evaluate(current, mu, sigma)
	}
	return result
}

// weightVector orders the weight map by symbols. Returns nil when no weights
// are present.
func weightVector(symbols []string, weights map[string]float64) []float64 {
	if len(weights) == 0 {
		return nil
	}
	out := make([]float64, len(symbols))
	for i, symbol := range symbols {
		out[i] = weights[symbol]
	}
	return out
}

// evaluate computes μ'w and sqrt(w'Σw).
func evaluate(x, mu []float64, sigma *mat.Dense) (ret, vol float64) {
	var variance float64
	for i := range x {
		ret += mu[i] * x[i]
		for j := range x {
			variance += x[i] * x[j] * sigma.At(i, j)
		}
	}
	return ret, math.Sqrt(math.Max(variance, 0))
}

func (o *Optimizer) sharpe(ret, vol float64) float64 {
	if vol <= 0 {
		return 0
	}
	return (ret - o.riskFreeRate) / vol
}
