package ranking

import (
	"github.com/okian/leadflow/internal/domain/geo"
	"github.com/okian/leadflow/pkg/logger"
)

// Option applies a configuration option to the Ranker.
type Option func(*Ranker)

// WithMinScore drops candidates scoring below min.
func WithMinScore(minScore float64) Option {
	return func(r *Ranker) {
		if minScore >= 0 {
			r.minScore = minScore
		}
	}
}

// WithMaxCandidates truncates rankings to n entries. 0 means unlimited.
func WithMaxCandidates(n int) Option {
	return func(r *Ranker) {
		if n >= 0 {
			r.maxCandidates = n
		}
	}
}

// WithSuspensions sets the suspension checker.
func WithSuspensions(s Suspensions) Option {
	return func(r *Ranker) {
		r.suspensions = s
	}
}

// WithGeoOptions passes options through to the geo index.
func WithGeoOptions(opts ...geo.Option) Option {
	return func(r *Ranker) {
		r.geoOpts = append(r.geoOpts, opts...)
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Ranker) {
		if l != nil {
			r.logger = l
		}
	}
}
