// Package notify delivers offer and lead notices.
package notify

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/leadflow/internal/domain/model"
	"github.com/okian/leadflow/pkg/logger"
)

// Notifier delivers an offer to a candidate.
type Notifier interface {
	Offer(ctx context.Context, candidateID string, summary model.Summary, deadline time.Time) error
}

// Log writes notices to the structured log. It serves both the candidate
// and originator sides.
type Log struct {
	logger logger.Logger
}

// NewLog creates a log-backed notifier.
func NewLog(l logger.Logger) *Log {
	if l == nil {
		l = logger.Get().Named("notify")
	}
	return &Log{logger: l}
}

// Offer logs the offer.
func (n *Log) Offer(ctx context.Context, candidateID string, summary model.Summary, deadline time.Time) error {
	n.logger.Info(ctx, "offer sent",
		logger.String("candidate_id", candidateID),
		logger.String("lead_id", summary.LeadID),
		logger.String("category", summary.Category),
		logger.Float64("distance_km", summary.DistanceKM),
		logger.Int64("fee", summary.Fee),
		logger.String("link", summary.ResponseLink),
		logger.Any("deadline", deadline))
	return nil
}

// LeadFinalized logs the terminal state of a lead.
func (n *Log) LeadFinalized(ctx context.Context, lead model.Lead) error {
	n.logger.Info(ctx, "lead finalized",
		logger.String("lead_id", lead.ID),
		logger.String("originator", lead.Originator),
		logger.String("status", string(lead.Status)),
		logger.String("candidate_id", lead.AssignedCandidateID))
	return nil
}

// Limited throttles offers sent through the wrapped notifier.
type Limited struct {
	next    Notifier
	limiter *rate.Limiter
}

// NewLimited allows perSecond offers with the given burst. A non-positive
// rate disables throttling.
func NewLimited(next Notifier, perSecond float64, burst int) *Limited {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Limited{next: next, limiter: rate.NewLimiter(limit, burst)}
}

// Offer waits for a token then delegates.
func (l *Limited) Offer(ctx context.Context, candidateID string, summary model.Summary, deadline time.Time) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notify: rate limit wait: %w", err)
	}
	return l.next.Offer(ctx, candidateID, summary, deadline)
}
