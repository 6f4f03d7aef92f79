package config

import (
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// WeightSumTolerance is how far the configured factor weights may drift from
// summing to exactly 1.0 before the config is rejected.
const WeightSumTolerance = 1e-6

// FactorWeights maps provider IDs to their share of the ensemble score.
// The weights are configuration data: no particular split is endorsed here,
// and cyclical/secondary factors are tunable down to zero.
type FactorWeights struct {
	Weights map[string]float64 `yaml:"weights"`
}

// DefaultFactorWeights returns the built-in weight split: the three primary
// categories carry equal base shares, the remainder is split across the
// secondary factors.
func DefaultFactorWeights() FactorWeights {
	return FactorWeights{
		Weights: map[string]float64{
			"financial": 0.25,
			"technical": 0.25,
			"trend":     0.25,
			"cyclical":  0.15,
			"sentiment": 0.10,
		},
	}
}

// LoadFactorWeights reads factor weights from a YAML file. An empty path
// returns the defaults.
func LoadFactorWeights(path string) (FactorWeights, error) {
	if path == "" {
		return DefaultFactorWeights(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return FactorWeights{}, fmt.Errorf("failed to read weights file %s: %w", path, err)
	}

	var fw FactorWeights
	if err := yaml.Unmarshal(data, &fw); err != nil {
		return FactorWeights{}, fmt.Errorf("failed to parse weights file %s: %w", path, err)
	}

	if err := fw.Validate(); err != nil {
		return FactorWeights{}, fmt.Errorf("weights file %s: %w", path, err)
	}

	return fw, nil
}

// Validate checks that every weight is in [0,1] and the weights sum to 1.0.
func (fw FactorWeights) Validate() error {
	if len(fw.Weights) == 0 {
		return fmt.Errorf("no factor weights configured")
	}

	sum := 0.0
	for id, w := range fw.Weights {
		if w < 0 || w > 1 {
			return fmt.Errorf("weight for %q out of range [0,1]: %f", id, w)
		}
		sum += w
	}

	if math.Abs(sum-1.0) > WeightSumTolerance {
		return fmt.Errorf("factor weights sum to %f, expected 1.0", sum)
	}

	return nil
}

// ProviderIDs returns the configured provider IDs in stable order.
func (fw FactorWeights) ProviderIDs() []string {
	ids := make([]string, 0, len(fw.Weights))
	for id := range fw.Weights {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
