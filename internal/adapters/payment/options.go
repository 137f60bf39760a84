package payment

import (
	"time"

	"github.com/okian/leadflow/pkg/logger"
)

// Option applies a configuration option to the Simulator.
type Option func(*Simulator)

// WithLatency delays every charge.
func WithLatency(d time.Duration) Option {
	return func(s *Simulator) {
		if d > 0 {
			s.latency = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Simulator) {
		if l != nil {
			s.logger = l
		}
	}
}
