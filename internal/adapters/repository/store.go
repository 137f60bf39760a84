// Package repository persists leads, offers and claims.
package repository

import (
	"context"

	"github.com/okian/leadflow/internal/domain/model"
)

// Store is the durable record of every cascade transition. Saves are
// upserts keyed by id.
type Store interface {
	SaveLead(ctx context.Context, lead model.Lead) error
	SaveOffer(ctx context.Context, offer model.Offer) error
	// SaveClaim rejects a second claim with the same idempotency key and a
	// second CONFIRMED claim for one lead with ErrConflict.
	SaveClaim(ctx context.Context, cl model.Claim) error

	// Lead, Offer and Claim return ErrNotFound for unknown ids.
	Lead(ctx context.Context, id string) (model.Lead, error)
	Offer(ctx context.Context, id string) (model.Offer, error)
	Claim(ctx context.Context, id string) (model.Claim, error)

	// OffersByLead returns offers in issue order.
	OffersByLead(ctx context.Context, leadID string) ([]model.Offer, error)
	// ClaimsByLead returns claims in creation order.
	ClaimsByLead(ctx context.Context, leadID string) ([]model.Claim, error)

	// CountLeads returns the number of leads per status.
	CountLeads(ctx context.Context) (map[model.LeadStatus]int, error)

	Close() error
}
