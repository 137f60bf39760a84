package token

import "errors"

var (
	// ErrMissingSecret is returned when the signing secret is empty.
	ErrMissingSecret = errors.New("token secret is required")
	// ErrInvalidToken reports a token that is malformed, forged or expired.
	ErrInvalidToken = errors.New("invalid offer token")
)
