package loadgen

import "time"

// Defaults applied by normalize.
const (
	DefaultNumLeads   = 1000
	DefaultSpreadKM   = 25
	DefaultTimeout    = 10 * time.Second
	DefaultSettleWait = 30 * time.Second
	pollInterval      = 250 * time.Millisecond
	percent           = 100
)

// submission results.
const (
	resultAccepted  = "accepted"
	resultDuplicate = "duplicate"
	resultRejected  = "rejected"
	resultThrottled = "throttled"
	resultFailed    = "failed"
)
