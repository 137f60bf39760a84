package scoring

import (
	"time"

	"github.com/okian/leadflow/internal/domain/model"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithWeights sets the sub-score weights. Validation happens in NewEngine.
func WithWeights(w Weights) Option {
	return func(e *Engine) {
		e.weights = w
	}
}

// WithDistanceFloor sets the distance sub-score at the edge of the radius.
func WithDistanceFloor(floor float64) Option {
	return func(e *Engine) {
		if floor >= 0 && floor <= maxScore {
			e.distanceFloor = floor
		}
	}
}

// WithWorkloadCaps sets the soft and hard caps on a candidate's active jobs.
func WithWorkloadCaps(soft, hard int) Option {
	return func(e *Engine) {
		if soft > 0 && hard > 0 {
			e.softCap = soft
			e.hardCap = hard
		}
	}
}

// WithUrgencyWindow overrides how far ahead availability is checked for a tier.
func WithUrgencyWindow(u model.Urgency, d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.urgencyWindows[u] = d
		}
	}
}
