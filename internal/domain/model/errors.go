package model

import "errors"

// Sentinel errors shared across layers.
var (
	ErrInvalidLead = errors.New("invalid lead")
	ErrNotFound    = errors.New("not found")
)
