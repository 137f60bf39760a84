package service

import (
	"github.com/okian/leadflow/internal/config"
	"github.com/okian/leadflow/internal/domain/cascade"
	"github.com/okian/leadflow/internal/domain/claim"
	"github.com/okian/leadflow/internal/domain/model"
	"github.com/okian/leadflow/pkg/logger"
)

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithConfig replaces the default configuration.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		if cfg != nil {
			s.cfg = cfg
		}
	}
}

// WithCandidates seeds the directory instead of reading candidates_file.
func WithCandidates(cands []*model.Candidate) Option {
	return func(s *Service) {
		s.seed = cands
	}
}

// WithPaymentPort replaces the simulated gateway.
func WithPaymentPort(p claim.PaymentPort) Option {
	return func(s *Service) {
		if p != nil {
			s.payment = p
		}
	}
}

// WithNotifier replaces the log notifier. Rate limiting still applies.
func WithNotifier(n cascade.Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notifier = n
		}
	}
}

// WithOriginator replaces the log originator.
func WithOriginator(o cascade.Originator) Option {
	return func(s *Service) {
		if o != nil {
			s.originator = o
		}
	}
}

// WithClock sets the clock used for deadlines, tokens and claims.
func WithClock(c cascade.Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}
