// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/okian/leadflow/internal/adapters/token"
	"github.com/okian/leadflow/internal/domain/cascade"
	"github.com/okian/leadflow/internal/domain/model"
	"github.com/okian/leadflow/internal/domain/scoring"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	IntakeDependencies
	LeadDependencies
	OfferDependencies
	ClaimDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler *HealthHandler
	statsHandler  *StatsHandler
	leadsHandler  *LeadsHandler
	offersHandler *OffersHandler
	claimsHandler *ClaimsHandler
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithRespondTimeout gives POST /offers/respond its own write deadline of d
// from the start of the request, so a slow payment still reaches the caller.
func WithRespondTimeout(d time.Duration) ServerOption {
	return func(s *Server) {
		s.offersHandler.respondTimeout = d
	}
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider, opts ...ServerOption) *Server {
	s := &Server{
		healthHandler: NewHealthHandler(),
		statsHandler:  NewStatsHandler(statsProvider),
		leadsHandler:  NewLeadsHandler(deps),
		offersHandler: NewOffersHandler(deps),
		claimsHandler: NewClaimsHandler(deps),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to r.
func (s *Server) Register(r chi.Router) {
	r.Use(middleware.RequestID, middleware.Recoverer)

	r.Get("/healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	r.Get("/metrics", MetricsMiddleware(s.healthHandler.HandleMetrics, "metrics"))
	r.Get("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	r.Route("/leads", func(r chi.Router) {
		r.Post("/", MetricsMiddleware(s.leadsHandler.HandlePostLead, "leads"))
		r.Get("/{id}", MetricsMiddleware(s.leadsHandler.HandleGetLead, "lead"))
		r.Get("/{id}/offers", MetricsMiddleware(s.leadsHandler.HandleGetOffers, "lead_offers"))
		r.Get("/{id}/claims", MetricsMiddleware(s.leadsHandler.HandleGetClaims, "lead_claims"))
		r.Post("/{id}/cancel", MetricsMiddleware(s.leadsHandler.HandleCancel, "lead_cancel"))
	})
	r.Post("/offers/respond", MetricsMiddleware(s.offersHandler.HandleRespond, "offer_respond"))
	r.Get("/offers/{id}", MetricsMiddleware(s.offersHandler.HandleGetOffer, "offer"))
	r.Get("/claims/{id}", MetricsMiddleware(s.claimsHandler.HandleGetClaim, "claim"))
}

// Handler returns a router with every route registered.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	s.Register(r)
	return r
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps an upstream error to a status code.
func writeFailure(w http.ResponseWriter, err error) {
	var invalid *scoring.InvalidInputError
	switch {
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, model.ErrInvalidLead),
		errors.Is(err, cascade.ErrInvalidDecision),
		errors.As(err, &invalid):
		writeError(w, http.StatusBadRequest, "bad_request", err)
	case errors.Is(err, token.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid_token", err)
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err)
	case errors.Is(err, cascade.ErrLeadFinalized), errors.Is(err, cascade.ErrLeadExists):
		writeError(w, http.StatusConflict, "conflict", err)
	case errors.Is(err, ErrBackpressure):
		writeError(w, http.StatusTooManyRequests, "backpressure", err)
	case errors.Is(err, ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "unavailable", err)
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err)
	}
}
