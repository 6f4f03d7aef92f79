package risk

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// shrinkageMinObservations is the sample size below which Ledoit-Wolf
// shrinkage is skipped. With fewer observations the shrinkage intensity
// estimate is itself too noisy to help.
const shrinkageMinObservations = 30

// CovarianceMatrix estimates the covariance of the given return series, in
// symbol order. Series must all have the same length with at least 2
// observations. Ledoit-Wolf shrinkage is applied when the sample is large
// enough, plain sample covariance otherwise.
func CovarianceMatrix(returns map[string][]float64, symbols []string) ([][]float64, error) {
	sample, obs, err := sampleCovariance(returns, symbols)
	if err != nil {
		return nil, err
	}
	if obs < shrinkageMinObservations {
		return sample, nil
	}
	return ledoitWolfShrinkage(sample)
}

// sampleCovariance calculates the sample covariance matrix from returns.
// Returns a symmetric matrix where element (i,j) is the covariance between
// symbols[i] and symbols[j], plus the number of observations used.
func sampleCovariance(returns map[string][]float64, symbols []string) ([][]float64, int, error) {
	if len(symbols) == 0 {
		return nil, 0, fmt.Errorf("no symbols provided")
	}

	var obs int
	for _, symbol := range symbols {
		ret, ok := returns[symbol]
		if !ok {
			return nil, 0, fmt.Errorf("missing returns for symbol %s", symbol)
		}
		if obs == 0 {
			obs = len(ret)
		}
		if len(ret) != obs {
			return nil, 0, fmt.Errorf("inconsistent return lengths: expected %d, got %d for symbol %s", obs, len(ret), symbol)
		}
	}

	if obs < 2 {
		return nil, 0, fmt.Errorf("insufficient data: need at least 2 observations, got %d", obs)
	}

	n := len(symbols)
	cov := make([][]float64, n)
	for i := range cov {
		cov[i] = make([]float64, n)
	}

	for i := 0; i < n; i++ {
		for j := i; j < n; j++ {
			c := stat.Covariance(returns[symbols[i]], returns[symbols[j]], nil)
			cov[i][j] = c
			if i != j {
				cov[j][i] = c
			}
		}
	}

	return cov, obs, nil
}

// ledoitWolfShrinkage shrinks a sample covariance matrix towards a constant
// correlation target. Reduces small-sample estimation noise at the cost of a
// small bias toward the structured target.
//
// Reference: Ledoit, O., & Wolf, M. (2004). "A well-conditioned estimator for
// large-dimensional covariance matrices"
func ledoitWolfShrinkage(sampleCov [][]float64) ([][]float64, error) {
	n := len(sampleCov)
	if n == 0 {
		return nil, fmt.Errorf("empty covariance matrix")
	}

	// Shrinkage target: average variance on the diagonal, average covariance
	// off it (the constant correlation model).
	var avgVar, avgCov float64
	for i := 0; i < n; i++ {
		avgVar += sampleCov[i][i]
		for j := 0; j < n; j++ {
			if i != j {
				avgCov += sampleCov[i][j]
			}
		}
	}
	avgVar /= float64(n)
	if n > 1 {
		avgCov /= float64(n * (n - 1))
	}

	target := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			switch {
			case i == j:
				target.Set(i, j, avgVar)
			case avgVar > 0:
				target.Set(i, j, avgCov)
			default:
				target.Set(i, j, 0)
			}
		}
	}

	// Simplified shrinkage intensity: ratio of the sample elements' variance
	// to that variance plus the mean squared sample-target gap, capped at 0.5.
	shrinkage := 0.2
	if n > 2 && avgVar > 0 {
		var sumSqDiff float64
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				diff := sampleCov[i][j] - target.At(i, j)
				sumSqDiff += diff * diff
			}
		}
		meanSqDiff := sumSqDiff / float64(n*n)

		var sumSample, sumSqSample float64
		for i := 0; i < n; i++ {
			for j := 0; j < n; j++ {
				v := sampleCov[i][j]
				sumSample += v
				sumSqSample += v * v
			}
		}
		count := float64(n * n)
		meanSample := sumSample / count
		varSample := sumSqSample/count - meanSample*meanSample

		if varSample > 0 && meanSqDiff > 0 {
			shrinkage = math.Min(0.5, math.Max(0.0, varSample/(varSample+meanSqDiff)))
		}
	}

	// Σ_shrunk = (1-δ)·Σ_sample + δ·Σ_target
	shrunk := make([][]float64, n)
	for i := 0; i < n; i++ {
		shrunk[i] = make([]float64, n)
		for j := 0; j < n; j++ {
			shrunk[i][j] = (1-shrinkage)*sampleCov[i][j] + shrinkage*target.At(i, j)
		}
	}

	return shrunk, nil
}

// portfolioVariance computes wᵗΣw.
func portfolioVariance(weights []float64, cov [][]float64) float64 {
	variance := 0.0
	for i := range weights {
		for j := range weights {
			variance += weights[i] * cov[i][j] * weights[j]
		}
	}
	return variance
}
