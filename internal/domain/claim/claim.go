// Package claim turns an accepted offer into exactly one charge.
//
// Reserve runs under the caller's lead lock and is the only place a lead
// enters CLAIMING. Settle runs without the lock and talks to the gateway.
package claim

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/okian/leadflow/internal/domain/model"
	"github.com/okian/leadflow/pkg/logger"
	"github.com/okian/leadflow/pkg/metrics"
)

const (
	defaultPaymentTimeout = 10 * time.Second
	defaultMaxAttempts    = 3
	defaultBackoff        = 100 * time.Millisecond

	reasonMissingRef = "missing payment reference"
	reasonTransport  = "payment gateway unreachable"
)

// MaxBackoff caps the pause between two charge attempts.
const MaxBackoff = 2 * time.Second

// keyNamespace scopes idempotency keys to this service.
var keyNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("leadflow/claims"))

// ChargeStatus is the gateway's definitive answer.
type ChargeStatus string

// Charge outcomes.
const (
	ChargeConfirmed ChargeStatus = "CONFIRMED"
	ChargeFailed    ChargeStatus = "FAILED"
)

// ChargeResult is a definitive gateway response.
type ChargeResult struct {
	Status   ChargeStatus
	ChargeID string
	Reason   string
}

// PaymentPort charges a candidate. Repeating a call with the same key must
// return the original result without charging again. A non-nil error means
// the outcome is unknown and the call may be retried with the same key.
type PaymentPort interface {
	Charge(ctx context.Context, key, paymentRef string, amount int64) (ChargeResult, error)
}

// IdempotencyKey derives the charge key for a lead's n-th claim attempt.
func IdempotencyKey(leadID string, attempt int) string {
	name := fmt.Sprintf("lead:%s:attempt:%d", leadID, attempt)
	return uuid.NewSHA1(keyNamespace, []byte(name)).String()
}

// Coordinator reserves claims and settles them against the PaymentPort.
type Coordinator struct {
	payment     PaymentPort
	tracker     *Tracker
	timeout     time.Duration
	maxAttempts int
	backoff     time.Duration
	now         func() time.Time
	logger      logger.Logger
}

// NewCoordinator creates a coordinator over payment.
func NewCoordinator(payment PaymentPort, opts ...Option) *Coordinator {
	c := &Coordinator{
		payment:     payment,
		timeout:     defaultPaymentTimeout,
		maxAttempts: defaultMaxAttempts,
		backoff:     defaultBackoff,
		now:         time.Now,
		logger:      logger.Get().Named("claim"),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.tracker == nil {
		c.tracker = NewTracker(defaultSuspendAfter)
	}
	return c
}

// Tracker returns the payment-failure tracker.
func (c *Coordinator) Tracker() *Tracker {
	return c.tracker
}

// Reserve creates a PENDING claim for offer, moving the lead to CLAIMING
// and the offer to ACCEPTED. The caller must hold the lead lock and persist
// the result before releasing it.
func (c *Coordinator) Reserve(lead *model.Lead, offer *model.Offer, now time.Time) (model.Claim, error) {
	switch {
	case lead.Status != model.LeadOffering,
		lead.ActiveClaimID != "",
		lead.CancelRequested,
		offer.LeadID != lead.ID,
		offer.Status != model.OfferPending,
		!now.Before(offer.Deadline):
		metrics.RecordClaimContention()
		return model.Claim{}, ErrLeadUnavailable
	}

	lead.ClaimAttempts++
	cl := model.Claim{
		ID:             uuid.NewString(),
		LeadID:         lead.ID,
		CandidateID:    offer.CandidateID,
		OfferID:        offer.ID,
		Attempt:        lead.ClaimAttempts,
		Amount:         lead.Fee,
		Status:         model.ClaimPending,
		IdempotencyKey: IdempotencyKey(lead.ID, lead.ClaimAttempts),
		CreatedAt:      now,
	}
	lead.Status = model.LeadClaiming
	lead.ActiveClaimID = cl.ID
	offer.Status = model.OfferAccepted
	offer.RespondedAt = now
	metrics.RecordClaim(string(model.ClaimPending))
	return cl, nil
}

// Settle charges the claim and returns it resolved to CONFIRMED or FAILED.
// It never returns a PENDING claim. Transport failures are retried with the
// same idempotency key; when retries run out the claim is FAILED.
func (c *Coordinator) Settle(ctx context.Context, cl model.Claim, paymentRef string) model.Claim {
	if paymentRef == "" {
		return c.resolve(ctx, cl, ChargeResult{Status: ChargeFailed, Reason: reasonMissingRef})
	}

	var (
		res     ChargeResult
		lastErr error
	)
	for attempt := 0; attempt < c.maxAttempts; attempt++ {
		res, lastErr = c.charge(ctx, cl, paymentRef)
		if lastErr == nil {
			break
		}
		c.logger.Warn(ctx, "charge attempt failed",
			logger.String("claim_id", cl.ID),
			logger.Int("attempt", attempt+1),
			logger.Error(lastErr),
		)
		if ctx.Err() != nil || attempt >= c.maxAttempts-1 {
			break
		}
		metrics.RecordPaymentRetry()
		timer := time.NewTimer(c.backoffFor(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}
	if lastErr != nil {
		res = ChargeResult{Status: ChargeFailed, Reason: reasonTransport}
	}
	return c.resolve(ctx, cl, res)
}

func (c *Coordinator) charge(ctx context.Context, cl model.Claim, paymentRef string) (ChargeResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	res, err := c.payment.Charge(callCtx, cl.IdempotencyKey, paymentRef, cl.Amount)
	metrics.RecordPaymentLatency(metrics.Since(start))
	if err != nil {
		return ChargeResult{}, fmt.Errorf("charge %s: %w: %w", cl.ID, ErrPaymentTransport, err)
	}
	switch res.Status {
	case ChargeConfirmed, ChargeFailed:
		return res, nil
	default:
		return ChargeResult{}, fmt.Errorf("charge %s: %w: unknown status %q", cl.ID, ErrPaymentTransport, res.Status)
	}
}

func (c *Coordinator) resolve(ctx context.Context, cl model.Claim, res ChargeResult) model.Claim {
	cl.ResolvedAt = c.now()
	if res.Status == ChargeConfirmed {
		cl.Status = model.ClaimConfirmed
		cl.ChargeID = res.ChargeID
		c.tracker.RecordSuccess(cl.CandidateID)
	} else {
		cl.Status = model.ClaimFailed
		cl.FailureReason = res.Reason
		if c.tracker.RecordFailure(cl.CandidateID) {
			metrics.RecordSuspension()
			c.logger.Warn(ctx, "candidate suspended after repeated payment failures",
				logger.String("candidate_id", cl.CandidateID),
			)
		}
	}
	metrics.RecordClaim(string(cl.Status))
	c.logger.Info(ctx, "claim settled",
		logger.String("claim_id", cl.ID),
		logger.String("lead_id", cl.LeadID),
		logger.String("candidate_id", cl.CandidateID),
		logger.String("status", string(cl.Status)),
	)
	return cl
}

func (c *Coordinator) backoffFor(attempt int) time.Duration {
	d := float64(c.backoff) * math.Pow(2, float64(attempt))
	return time.Duration(math.Min(d, float64(MaxBackoff)))
}
