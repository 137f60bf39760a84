package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/okian/leadflow/internal/domain/model"
)

// IntakeDependencies accepts leads for distribution.
type IntakeDependencies interface {
	// Submit returns duplicate=true for a lead id already accepted.
	Submit(ctx context.Context, lead model.Lead) (duplicate bool, err error)
}

// LeadDependencies exposes lead state and cancellation.
type LeadDependencies interface {
	Lead(ctx context.Context, id string) (model.Lead, error)
	Offers(ctx context.Context, leadID string) ([]model.Offer, error)
	Claims(ctx context.Context, leadID string) ([]model.Claim, error)
	Cancel(ctx context.Context, leadID string) (model.Lead, error)
}

// LeadsDependencies is what the leads handler needs.
type LeadsDependencies interface {
	IntakeDependencies
	LeadDependencies
}

// LeadsHandler handles /leads routes.
type LeadsHandler struct {
	deps LeadsDependencies
	now  func() time.Time
}

// NewLeadsHandler creates a new leads handler.
func NewLeadsHandler(deps LeadsDependencies) *LeadsHandler {
	return &LeadsHandler{deps: deps, now: time.Now}
}

// leadRequest is the intake payload. The fee is computed upstream.
type leadRequest struct {
	ID                     string         `json:"id"`
	Location               model.Location `json:"location"`
	Category               string         `json:"category"`
	Urgency                model.Urgency  `json:"urgency"`
	ValueEstimate          float64        `json:"value_estimate"`
	Fee                    int64          `json:"fee"`
	RequiredCertifications []string       `json:"required_certifications"`
	Originator             string         `json:"originator"`
	CreatedAt              *time.Time     `json:"created_at"`
}

func (r *leadRequest) lead(now time.Time) model.Lead {
	created := now.UTC()
	if r.CreatedAt != nil {
		created = *r.CreatedAt
	}
	return model.Lead{
		ID:                     r.ID,
		Location:               r.Location,
		Category:               r.Category,
		Urgency:                r.Urgency,
		ValueEstimate:          r.ValueEstimate,
		Fee:                    r.Fee,
		RequiredCertifications: r.RequiredCertifications,
		Originator:             r.Originator,
		CreatedAt:              created,
	}
}

type ackResponse struct {
	Status    string `json:"status"`
	LeadID    string `json:"lead_id"`
	Duplicate bool   `json:"duplicate"`
}

// HandlePostLead handles POST /leads.
func (h *LeadsHandler) HandlePostLead(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_lead"
	var req leadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	lead := req.lead(h.now())
	if err := lead.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	dup, err := h.deps.Submit(r.Context(), lead)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if dup {
		writeJSON(w, http.StatusOK, ackResponse{Status: "duplicate", LeadID: lead.ID, Duplicate: true})
		return
	}
	writeJSON(w, http.StatusAccepted, ackResponse{Status: "accepted", LeadID: lead.ID})
}

// HandleGetLead handles GET /leads/{id}.
func (h *LeadsHandler) HandleGetLead(w http.ResponseWriter, r *http.Request) {
	lead, err := h.deps.Lead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

// HandleGetOffers handles GET /leads/{id}/offers.
func (h *LeadsHandler) HandleGetOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := h.deps.Offers(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offers)
}

// HandleGetClaims handles GET /leads/{id}/claims.
func (h *LeadsHandler) HandleGetClaims(w http.ResponseWriter, r *http.Request) {
	claims, err := h.deps.Claims(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

// HandleCancel handles POST /leads/{id}/cancel.
func (h *LeadsHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	lead, err := h.deps.Cancel(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}
