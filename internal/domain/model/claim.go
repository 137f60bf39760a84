package model

import "time"

// ClaimStatus is the settlement state of a claim.
type ClaimStatus string

// Claim states.
const (
	ClaimPending   ClaimStatus = "PENDING"
	ClaimConfirmed ClaimStatus = "CONFIRMED"
	ClaimFailed    ClaimStatus = "FAILED"
)

// Claim binds one accepted offer to exactly one payment attempt.
type Claim struct {
	ID             string      `json:"id"`
	LeadID         string      `json:"lead_id"`
	CandidateID    string      `json:"candidate_id"`
	OfferID        string      `json:"offer_id"`
	Attempt        int         `json:"attempt"`
	Amount         int64       `json:"amount"`
	Status         ClaimStatus `json:"status"`
	IdempotencyKey string      `json:"idempotency_key"`
	ChargeID       string      `json:"charge_id,omitempty"`
	FailureReason  string      `json:"failure_reason,omitempty"`
	CreatedAt      time.Time   `json:"created_at"`
	ResolvedAt     time.Time   `json:"resolved_at,omitzero"`
}

// TaskKind identifies work dispatched through the task queue.
type TaskKind string

// Task kinds.
const (
	TaskIntake TaskKind = "intake"
	TaskExpire TaskKind = "expire"
)

// Task is a unit of work for the worker pool.
type Task struct {
	Kind    TaskKind
	Lead    Lead   // TaskIntake
	LeadID  string // TaskExpire
	OfferID string // TaskExpire
}
