package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/okian/leadflow/internal/domain/model"
)

// MemoryStore keeps every record in maps. It enforces the same uniqueness
// rules as the SQLite store.
type MemoryStore struct {
	mu     sync.RWMutex
	leads  map[string]model.Lead
	offers map[string]model.Offer
	claims map[string]model.Claim
	keys   map[string]string // idempotency key -> claim id
	seq    map[string]int    // insertion order of offers and claims
	next   int
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		leads:  make(map[string]model.Lead),
		offers: make(map[string]model.Offer),
		claims: make(map[string]model.Claim),
		keys:   make(map[string]string),
		seq:    make(map[string]int),
	}
}

func (s *MemoryStore) SaveLead(_ context.Context, lead model.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	lead.RequiredCertifications = append([]string(nil), lead.RequiredCertifications...)
	s.leads[lead.ID] = lead
	return nil
}

func (s *MemoryStore) SaveOffer(_ context.Context, offer model.Offer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.order(offer.ID)
	s.offers[offer.ID] = offer
	return nil
}

func (s *MemoryStore) SaveClaim(_ context.Context, cl model.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if owner, ok := s.keys[cl.IdempotencyKey]; ok && owner != cl.ID {
		return fmt.Errorf("save claim %s: %w: idempotency key in use", cl.ID, ErrConflict)
	}
	if cl.Status == model.ClaimConfirmed {
		for id, other := range s.claims {
			if id != cl.ID && other.LeadID == cl.LeadID && other.Status == model.ClaimConfirmed {
				return fmt.Errorf("save claim %s: %w: lead %s already confirmed", cl.ID, ErrConflict, cl.LeadID)
			}
		}
	}
	s.order(cl.ID)
	s.keys[cl.IdempotencyKey] = cl.ID
	s.claims[cl.ID] = cl
	return nil
}

func (s *MemoryStore) Lead(_ context.Context, id string) (model.Lead, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	l, ok := s.leads[id]
	if !ok {
		return model.Lead{}, fmt.Errorf("lead %s: %w", id, ErrNotFound)
	}
	return l, nil
}

func (s *MemoryStore) Offer(_ context.Context, id string) (model.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.offers[id]
	if !ok {
		return model.Offer{}, fmt.Errorf("offer %s: %w", id, ErrNotFound)
	}
	return o, nil
}

func (s *MemoryStore) Claim(_ context.Context, id string) (model.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.claims[id]
	if !ok {
		return model.Claim{}, fmt.Errorf("claim %s: %w", id, ErrNotFound)
	}
	return c, nil
}

func (s *MemoryStore) OffersByLead(_ context.Context, leadID string) ([]model.Offer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Offer, 0)
	for _, o := range s.offers {
		if o.LeadID == leadID {
			out = append(out, o)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.seq[out[i].ID] < s.seq[out[j].ID] })
	return out, nil
}

func (s *MemoryStore) ClaimsByLead(_ context.Context, leadID string) ([]model.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Claim, 0)
	for _, c := range s.claims {
		if c.LeadID == leadID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return s.seq[out[i].ID] < s.seq[out[j].ID] })
	return out, nil
}

func (s *MemoryStore) CountLeads(_ context.Context) (map[model.LeadStatus]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[model.LeadStatus]int)
	for _, l := range s.leads {
		out[l.Status]++
	}
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }

// order records first-insertion order for id. Callers hold s.mu.
func (s *MemoryStore) order(id string) {
	if _, ok := s.seq[id]; !ok {
		s.next++
		s.seq[id] = s.next
	}
}
