package claim

import (
	"time"

	"github.com/okian/leadflow/pkg/logger"
)

// Option applies a configuration option to the Coordinator.
type Option func(*Coordinator)

// WithPaymentTimeout bounds each gateway call.
func WithPaymentTimeout(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithMaxAttempts sets how many times a charge is tried with the same key.
func WithMaxAttempts(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// WithBackoff sets the base delay between charge attempts.
func WithBackoff(d time.Duration) Option {
	return func(c *Coordinator) {
		if d >= 0 {
			c.backoff = d
		}
	}
}

// WithTracker shares a failure tracker, usually with the ranker.
func WithTracker(t *Tracker) Option {
	return func(c *Coordinator) {
		if t != nil {
			c.tracker = t
		}
	}
}

// WithNow sets the clock used to stamp resolutions.
func WithNow(now func() time.Time) Option {
	return func(c *Coordinator) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Coordinator) {
		if l != nil {
			c.logger = l
		}
	}
}
