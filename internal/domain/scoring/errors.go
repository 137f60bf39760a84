package scoring

import (
	"errors"
	"fmt"
)

// Sentinel errors for scoring.
var (
	ErrInvalidWeights = errors.New("invalid scoring weights")
	ErrOutsideRadius  = errors.New("candidate outside service radius")
)

// InvalidInputError reports a malformed lead or candidate.
type InvalidInputError struct {
	Field  string
	Reason string
}

func (e *InvalidInputError) Error() string {
	return fmt.Sprintf("invalid scoring input: %s %s", e.Field, e.Reason)
}
