// Package token signs per-offer response links.
package token

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/okian/leadflow/internal/domain/model"
)

const (
	issuer       = "leadflow"
	defaultGrace = 24 * time.Hour
	respondPath  = "/offers/respond"
)

// Claims identifies the offer a token answers.
type Claims struct {
	LeadID string `json:"lid"`
	jwt.RegisteredClaims
}

// OfferID returns the offer the token was issued for.
func (c Claims) OfferID() string { return c.ID }

// CandidateID returns the candidate the offer was made to.
func (c Claims) CandidateID() string { return c.Subject }

// Issuer signs and verifies offer tokens with HS256.
type Issuer struct {
	secret  []byte
	grace   time.Duration
	baseURL string
	now     func() time.Time
}

// NewIssuer creates an issuer for secret.
func NewIssuer(secret string, opts ...Option) (*Issuer, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	i := &Issuer{
		secret: []byte(secret),
		grace:  defaultGrace,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue signs a token naming the offer, its lead and its candidate.
func (i *Issuer) Issue(offer model.Offer) (string, error) {
	issued := offer.IssuedAt
	if issued.IsZero() {
		issued = i.now()
	}
	claims := Claims{
		LeadID: offer.LeadID,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   offer.CandidateID,
			ID:        offer.ID,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(offer.Deadline.Add(i.grace)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign offer token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of raw.
func (i *Issuer) Verify(raw string) (Claims, error) {
	var claims Claims
	parsed, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !parsed.Valid || claims.ID == "" || claims.Subject == "" {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}

// Link returns the response URL embedded in an offer summary.
func (i *Issuer) Link(offer model.Offer) (string, error) {
	signed, err := i.Issue(offer)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(i.baseURL, "/") + respondPath + "?token=" + url.QueryEscape(signed), nil
}
