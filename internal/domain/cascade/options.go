package cascade

import (
	"time"

	"github.com/okian/leadflow/internal/domain/model"
	"github.com/okian/leadflow/pkg/logger"
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithBatchSize sets how many offers may be pending at once.
// 1 is a strict sequential cascade.
func WithBatchSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.batchSize = n
		}
	}
}

// WithTimeout sets the response window for an urgency tier.
func WithTimeout(u model.Urgency, d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeouts[u] = d
		}
	}
}

// WithStore sets where transitions are written.
func WithStore(s Store) Option {
	return func(e *Engine) {
		if s != nil {
			e.store = s
		}
	}
}

// WithNotifier sets the offer notification port.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		e.notifier = n
	}
}

// WithOriginator sets the port told about terminal leads.
func WithOriginator(o Originator) Option {
	return func(e *Engine) {
		e.originator = o
	}
}

// WithLinks sets the response link issuer.
func WithLinks(l LinkIssuer) Option {
	return func(e *Engine) {
		e.links = l
	}
}

// WithClock replaces the wall clock.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		if c != nil {
			e.clock = c
		}
	}
}

// WithExpiryDispatcher routes fired deadlines through a task queue.
// When dispatch returns false the expiry is processed inline.
func WithExpiryDispatcher(dispatch func(model.Task) bool) Option {
	return func(e *Engine) {
		e.dispatch = dispatch
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}
