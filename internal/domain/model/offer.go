package model

import "time"

// OfferStatus is the state of one (lead, candidate) attempt.
type OfferStatus string

// Offer states.
const (
	OfferPending    OfferStatus = "PENDING"
	OfferDeclined   OfferStatus = "DECLINED"
	OfferExpired    OfferStatus = "EXPIRED"
	OfferAccepted   OfferStatus = "ACCEPTED"
	OfferSuperseded OfferStatus = "SUPERSEDED"
)

// Offer is one assignment attempt with a deadline.
type Offer struct {
	ID             string      `json:"id"`
	LeadID         string      `json:"lead_id"`
	CandidateID    string      `json:"candidate_id"`
	Rank           int         `json:"rank"`
	Score          float64     `json:"score"`
	DistanceKM     float64     `json:"distance_km"`
	Status         OfferStatus `json:"status"`
	SystemDeclined bool        `json:"system_declined,omitempty"`
	IssuedAt       time.Time   `json:"issued_at"`
	Deadline       time.Time   `json:"deadline"`
	RespondedAt    time.Time   `json:"responded_at,omitzero"`
}

// Decision is a candidate's answer to an offer.
type Decision string

// Candidate decisions.
const (
	DecisionAccept  Decision = "accept"
	DecisionDecline Decision = "decline"
)

// Valid reports whether d is a known decision.
func (d Decision) Valid() bool {
	return d == DecisionAccept || d == DecisionDecline
}

// Outcome is what a responding candidate is told.
type Outcome string

// Response outcomes. Every response resolves to exactly one of these.
const (
	OutcomeAccepted      Outcome = "accepted"       // claim confirmed and charged
	OutcomeDeclined      Outcome = "declined"       // decline recorded
	OutcomeUnavailable   Outcome = "unavailable"    // lead no longer available
	OutcomePaymentFailed Outcome = "payment_failed" // claim reserved but the charge failed
)
