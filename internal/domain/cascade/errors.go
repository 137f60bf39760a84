package cascade

import "errors"

// Sentinel errors for the offer cascade.
var (
	ErrLeadExists      = errors.New("lead already open")
	ErrLeadFinalized   = errors.New("lead already finalized")
	ErrInvalidDecision = errors.New("invalid decision")
)
