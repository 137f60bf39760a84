// Package payment provides an idempotent in-process payment gateway.
package payment

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/leadflow/internal/domain/claim"
	"github.com/okian/leadflow/pkg/logger"
)

const (
	// DeclinedPrefix marks payment references the simulator refuses.
	DeclinedPrefix = "declined_"

	reasonDeclined      = "card declined"
	reasonInvalidAmount = "invalid amount"
)

// Simulator charges payment references without moving money. Results are
// stored per idempotency key; a repeated key returns the stored result.
type Simulator struct {
	mu      sync.Mutex
	results map[string]claim.ChargeResult
	charged int64
	latency time.Duration
	logger  logger.Logger
}

// NewSimulator creates a gateway.
func NewSimulator(opts ...Option) *Simulator {
	s := &Simulator{
		results: make(map[string]claim.ChargeResult),
		logger:  logger.Get().Named("payment"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Charge implements claim.PaymentPort.
func (s *Simulator) Charge(ctx context.Context, key, paymentRef string, amount int64) (claim.ChargeResult, error) {
	if s.latency > 0 {
		t := time.NewTimer(s.latency)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return claim.ChargeResult{}, ctx.Err()
		case <-t.C:
		}
	} else if err := ctx.Err(); err != nil {
		return claim.ChargeResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if res, ok := s.results[key]; ok {
		return res, nil
	}

	var res claim.ChargeResult
	switch {
	case amount <= 0:
		res = claim.ChargeResult{Status: claim.ChargeFailed, Reason: reasonInvalidAmount}
	case strings.HasPrefix(paymentRef, DeclinedPrefix):
		res = claim.ChargeResult{Status: claim.ChargeFailed, Reason: reasonDeclined}
	default:
		res = claim.ChargeResult{Status: claim.ChargeConfirmed, ChargeID: "ch_" + uuid.NewString()}
		s.charged += amount
	}
	s.results[key] = res
	s.logger.Debug(ctx, "charge processed",
		logger.String("key", key),
		logger.String("status", string(res.Status)),
		logger.Int64("amount", amount))
	return res, nil
}

// Charged returns the total amount confirmed so far.
func (s *Simulator) Charged() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.charged
}

// Result returns the stored result for key.
func (s *Simulator) Result(key string) (claim.ChargeResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, ok := s.results[key]
	return res, ok
}
