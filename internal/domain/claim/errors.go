package claim

import "errors"

// Sentinel errors for claim coordination.
var (
	// ErrLeadUnavailable means the lead can no longer be claimed through
	// this offer: it is finalized, already claiming, or the offer is stale.
	ErrLeadUnavailable = errors.New("lead unavailable")
	// ErrPaymentTransport is a charge that could not be confirmed or refused
	// by the gateway (timeout, connection failure).
	ErrPaymentTransport = errors.New("payment transport failure")
)
