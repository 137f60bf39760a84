package service

import (
	"fmt"

	"github.com/okian/leadflow/internal/adapters/http/api"
)

// Sentinel errors returned by the service. They wrap the API kinds so the
// HTTP layer maps them without knowing about this package.
var (
	ErrNotStarted   = fmt.Errorf("service not started: %w", api.ErrUnavailable)
	ErrBackpressure = fmt.Errorf("intake queue full: %w", api.ErrBackpressure)
)
