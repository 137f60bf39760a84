package cascade

import (
	"context"
	"time"

	"github.com/okian/leadflow/internal/domain/model"
	"github.com/okian/leadflow/internal/domain/ranking"
)

// Notifier delivers an offer to a candidate.
type Notifier interface {
	Offer(ctx context.Context, candidateID string, summary model.Summary, deadline time.Time) error
}

// Originator is told when a lead reaches a terminal state.
type Originator interface {
	LeadFinalized(ctx context.Context, lead model.Lead) error
}

// Ranker produces the candidate order for a lead.
type Ranker interface {
	Rank(ctx context.Context, lead *model.Lead) (*ranking.Ranking, error)
}

// Claimer reserves and settles claims.
type Claimer interface {
	Reserve(lead *model.Lead, offer *model.Offer, now time.Time) (model.Claim, error)
	Settle(ctx context.Context, cl model.Claim, paymentRef string) model.Claim
}

// Store persists every transition.
type Store interface {
	SaveLead(ctx context.Context, lead model.Lead) error
	SaveOffer(ctx context.Context, offer model.Offer) error
	SaveClaim(ctx context.Context, cl model.Claim) error
}

// LinkIssuer builds the response link embedded in an offer summary.
type LinkIssuer interface {
	Link(offer model.Offer) (string, error)
}

type nopStore struct{}

func (nopStore) SaveLead(context.Context, model.Lead) error   { return nil }
func (nopStore) SaveOffer(context.Context, model.Offer) error { return nil }
func (nopStore) SaveClaim(context.Context, model.Claim) error { return nil }
