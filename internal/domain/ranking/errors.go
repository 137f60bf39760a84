package ranking

import "errors"

// Sentinel errors for ranking.
var (
	ErrDirectoryUnavailable = errors.New("candidate directory unavailable")
)
