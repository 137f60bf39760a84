package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/okian/leadflow/internal/domain/cascade"
	"github.com/okian/leadflow/internal/domain/model"
)

// OfferDependencies answers offers and exposes their state.
type OfferDependencies interface {
	Offer(ctx context.Context, id string) (model.Offer, error)
	Respond(ctx context.Context, token string, decision model.Decision) (cascade.Response, error)
}

// ClaimDependencies exposes claim state.
type ClaimDependencies interface {
	Claim(ctx context.Context, id string) (model.Claim, error)
}

// OffersHandler handles /offers routes.
type OffersHandler struct {
	deps           OfferDependencies
	respondTimeout time.Duration
}

// NewOffersHandler creates a new offers handler.
func NewOffersHandler(deps OfferDependencies) *OffersHandler {
	return &OffersHandler{deps: deps}
}

type respondRequest struct {
	Token    string         `json:"token"`
	Decision model.Decision `json:"decision"`
}

// HandleRespond handles POST /offers/respond. The token and decision may
// come from the JSON body or, for links, from the query string.
func (h *OffersHandler) HandleRespond(w http.ResponseWriter, r *http.Request) {
	const op = "api.respond"
	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	q := r.URL.Query()
	if req.Token == "" {
		req.Token = q.Get("token")
	}
	if req.Decision == "" {
		req.Decision = model.Decision(q.Get("decision"))
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, errors.New("missing token")))
		return
	}
	if !req.Decision.Valid() {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, cascade.ErrInvalidDecision))
		return
	}

	if h.respondTimeout > 0 {
		// Settling an accept can outlast the server's write timeout.
		_ = http.NewResponseController(w).SetWriteDeadline(time.Now().Add(h.respondTimeout))
	}
	resp, err := h.deps.Respond(r.Context(), req.Token, req.Decision)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleGetOffer handles GET /offers/{id}.
func (h *OffersHandler) HandleGetOffer(w http.ResponseWriter, r *http.Request) {
	offer, err := h.deps.Offer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, offer)
}

// ClaimsHandler handles /claims routes.
type ClaimsHandler struct {
	deps ClaimDependencies
}

// NewClaimsHandler creates a new claims handler.
func NewClaimsHandler(deps ClaimDependencies) *ClaimsHandler {
	return &ClaimsHandler{deps: deps}
}

// HandleGetClaim handles GET /claims/{id}.
func (h *ClaimsHandler) HandleGetClaim(w http.ResponseWriter, r *http.Request) {
	cl, err := h.deps.Claim(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cl)
}
