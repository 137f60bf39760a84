package token

import "time"

// Option applies a configuration option to the Issuer.
type Option func(*Issuer)

// WithGrace sets how long a token stays valid after its offer's deadline.
// A late response then reaches the cascade and gets a definitive answer.
func WithGrace(d time.Duration) Option {
	return func(i *Issuer) {
		if d >= 0 {
			i.grace = d
		}
	}
}

// WithBaseURL sets the prefix of generated response links.
func WithBaseURL(u string) Option {
	return func(i *Issuer) {
		i.baseURL = u
	}
}

// WithNow sets the clock used for issuing and verifying.
func WithNow(now func() time.Time) Option {
	return func(i *Issuer) {
		if now != nil {
			i.now = now
		}
	}
}
