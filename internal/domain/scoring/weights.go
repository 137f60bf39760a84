package scoring

import (
	"fmt"
	"math"
)

// weightEpsilon is the tolerance on the weight sum.
const weightEpsilon = 1e-6

// Weights are the relative contributions of each sub-score. They must sum to 1.
type Weights struct {
	Distance     float64 `koanf:"weight_distance" json:"weight_distance"`
	Availability float64 `koanf:"weight_availability" json:"weight_availability"`
	Specialty    float64 `koanf:"weight_specialty" json:"weight_specialty"`
	Performance  float64 `koanf:"weight_performance" json:"weight_performance"`
	Quality      float64 `koanf:"weight_quality" json:"weight_quality"`
}

// DefaultWeights returns 0.40/0.25/0.20/0.10/0.05.
func DefaultWeights() Weights {
	return Weights{
		Distance:     0.40,
		Availability: 0.25,
		Specialty:    0.20,
		Performance:  0.10,
		Quality:      0.05,
	}
}

// Sum returns the total of all weights.
func (w Weights) Sum() float64 {
	return w.Distance + w.Availability + w.Specialty + w.Performance + w.Quality
}

// Validate rejects negative weights and sums other than 1.
func (w Weights) Validate() error {
	for name, v := range map[string]float64{
		"weight_distance":     w.Distance,
		"weight_availability": w.Availability,
		"weight_specialty":    w.Specialty,
		"weight_performance":  w.Performance,
		"weight_quality":      w.Quality,
	} {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("%w: %s is %v", ErrInvalidWeights, name, v)
		}
	}
	if sum := w.Sum(); math.Abs(sum-1) > weightEpsilon {
		return fmt.Errorf("%w: weights sum to %.6f, want 1.0", ErrInvalidWeights, sum)
	}
	return nil
}
