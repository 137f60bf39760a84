// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// LeadStatus is the lifecycle state of a lead.
type LeadStatus string

// Lead states. CLAIMING is transient: a claim is reserved and its payment
// is in flight.
const (
	LeadOpen      LeadStatus = "OPEN"
	LeadOffering  LeadStatus = "OFFERING"
	LeadClaiming  LeadStatus = "CLAIMING"
	LeadClaimed   LeadStatus = "CLAIMED"
	LeadExhausted LeadStatus = "EXHAUSTED"
	LeadCancelled LeadStatus = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s LeadStatus) Terminal() bool {
	switch s {
	case LeadClaimed, LeadExhausted, LeadCancelled:
		return true
	default:
		return false
	}
}

// Urgency is the lead's time-sensitivity tier.
type Urgency string

// Urgency tiers.
const (
	UrgencyEmergency Urgency = "emergency"
	UrgencyToday     Urgency = "today"
	UrgencyThisWeek  Urgency = "this_week"
	UrgencyFlexible  Urgency = "flexible"
)

// Valid reports whether u is a known tier.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyEmergency, UrgencyToday, UrgencyThisWeek, UrgencyFlexible:
		return true
	default:
		return false
	}
}

// Location is a WGS84 coordinate.
type Location struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Valid reports whether the coordinate is finite and in range.
func (l Location) Valid() bool {
	if math.IsNaN(l.Lat) || math.IsNaN(l.Lng) || math.IsInf(l.Lat, 0) || math.IsInf(l.Lng, 0) {
		return false
	}
	return l.Lat >= -90 && l.Lat <= 90 && l.Lng >= -180 && l.Lng <= 180
}

// Lead is an incoming request needing assignment to a candidate.
type Lead struct {
	ID                     string     `json:"id"`
	Location               Location   `json:"location"`
	Category               string     `json:"category"`
	Urgency                Urgency    `json:"urgency"`
	ValueEstimate          float64    `json:"value_estimate"`
	Fee                    int64      `json:"fee"` // minor currency units, computed upstream
	RequiredCertifications []string   `json:"required_certifications,omitempty"`
	Originator             string     `json:"originator,omitempty"`
	CreatedAt              time.Time  `json:"created_at"`
	Status                 LeadStatus `json:"status"`
	AssignedCandidateID    string     `json:"assigned_candidate_id,omitempty"`
	ActiveClaimID          string     `json:"active_claim_id,omitempty"`
	CancelRequested        bool       `json:"cancel_requested,omitempty"`
	Pointer                int        `json:"pointer"`
	ClaimAttempts          int        `json:"claim_attempts"`
	RankingSize            int        `json:"ranking_size"`
	FinalizedAt            time.Time  `json:"finalized_at,omitzero"`
}

// Validate checks the fields the cascade relies on.
func (l *Lead) Validate() error {
	switch {
	case strings.TrimSpace(l.ID) == "":
		return fmt.Errorf("%w: missing id", ErrInvalidLead)
	case strings.TrimSpace(l.Category) == "":
		return fmt.Errorf("%w: missing category", ErrInvalidLead)
	case !l.Urgency.Valid():
		return fmt.Errorf("%w: unknown urgency %q", ErrInvalidLead, l.Urgency)
	case !l.Location.Valid():
		return fmt.Errorf("%w: invalid location", ErrInvalidLead)
	case l.Fee <= 0:
		return fmt.Errorf("%w: fee must be positive", ErrInvalidLead)
	case l.ValueEstimate < 0 || math.IsNaN(l.ValueEstimate):
		return fmt.Errorf("%w: invalid value estimate", ErrInvalidLead)
	case l.CreatedAt.IsZero():
		return fmt.Errorf("%w: missing created_at", ErrInvalidLead)
	}
	return nil
}

// Summary is the part of a lead shown to a candidate before they accept.
type Summary struct {
	LeadID        string  `json:"lead_id"`
	Category      string  `json:"category"`
	Urgency       Urgency `json:"urgency"`
	Fee           int64   `json:"fee"`
	ValueEstimate float64 `json:"value_estimate"`
	DistanceKM    float64 `json:"distance_km"`
	ResponseLink  string  `json:"response_link,omitempty"`
}
