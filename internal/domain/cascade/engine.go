// Package cascade walks a lead down its ranked candidates until one of them
// claims it, the ranking runs out, or the lead is cancelled.
//
// Each lead is a small state machine guarded by its own mutex. Payment and
// notification calls never run while that mutex is held.
package cascade

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/okian/leadflow/internal/domain/model"
	"github.com/okian/leadflow/internal/domain/ranking"
	"github.com/okian/leadflow/pkg/logger"
	"github.com/okian/leadflow/pkg/metrics"
)

const defaultBatchSize = 1

// Response is what a responding candidate is told.
type Response struct {
	Outcome model.Outcome `json:"outcome"`
	LeadID  string        `json:"lead_id,omitempty"`
	OfferID string        `json:"offer_id"`
	Claim   *model.Claim  `json:"claim,omitempty"`
}

// Stats is a point-in-time count of leads by status.
type Stats struct {
	Leads    int                      `json:"leads"`
	Active   int                      `json:"active"`
	ByStatus map[model.LeadStatus]int `json:"by_status"`
}

// inflight tracks a claim whose payment is being settled.
type inflight struct {
	offerID string
	done    chan struct{}
	outcome model.Outcome
	claim   model.Claim
}

type leadState struct {
	mu       sync.Mutex
	lead     model.Lead
	ranking  *ranking.Ranking
	offers   map[string]*model.Offer
	order    []string
	timers   map[string]Timer
	claims   []model.Claim
	inflight *inflight
}

// notice is a notification to deliver once the lead lock is released.
type notice struct {
	candidateID string
	summary     model.Summary
	deadline    time.Time
}

// effects are collected under the lead lock and run after it is released.
type effects struct {
	notices   []notice
	finalized []model.Lead
}

// Engine runs the offer cascade for every open lead.
type Engine struct {
	ranker     Ranker
	claims     Claimer
	store      Store
	notifier   Notifier
	originator Originator
	links      LinkIssuer
	clock      Clock
	dispatch   func(model.Task) bool
	batchSize  int
	timeouts   map[model.Urgency]time.Duration
	logger     logger.Logger

	mu      sync.RWMutex
	leads   map[string]*leadState
	offerTo map[string]string // offer id -> lead id
	claimTo map[string]string // claim id -> lead id
	active  atomic.Int64

	async sync.WaitGroup
}

// NewEngine creates a cascade engine.
func NewEngine(ranker Ranker, claims Claimer, opts ...Option) *Engine {
	e := &Engine{
		ranker:    ranker,
		claims:    claims,
		store:     nopStore{},
		clock:     SystemClock{},
		batchSize: defaultBatchSize,
		timeouts: map[model.Urgency]time.Duration{
			model.UrgencyEmergency: 2 * time.Minute,
			model.UrgencyToday:     10 * time.Minute,
			model.UrgencyThisWeek:  30 * time.Minute,
			model.UrgencyFlexible:  2 * time.Hour,
		},
		logger:  logger.Get().Named("cascade"),
		leads:   make(map[string]*leadState),
		offerTo: make(map[string]string),
		claimTo: make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Open ranks a new lead and issues its first offers. A lead with no eligible
// candidate is EXHAUSTED immediately.
func (e *Engine) Open(ctx context.Context, lead model.Lead) (model.Lead, error) {
	if err := lead.Validate(); err != nil {
		return model.Lead{}, fmt.Errorf("open: %w", err)
	}
	lead.Status = model.LeadOpen
	lead.Pointer = 0
	lead.ClaimAttempts = 0
	lead.AssignedCandidateID = ""
	lead.ActiveClaimID = ""
	lead.CancelRequested = false
	lead.FinalizedAt = time.Time{}

	r, err := e.ranker.Rank(ctx, &lead)
	if err != nil {
		return model.Lead{}, fmt.Errorf("open %s: %w", lead.ID, err)
	}

	st := &leadState{
		lead:    lead,
		ranking: r,
		offers:  make(map[string]*model.Offer),
		timers:  make(map[string]Timer),
	}
	st.mu.Lock()

	e.mu.Lock()
	if _, ok := e.leads[lead.ID]; ok {
		e.mu.Unlock()
		st.mu.Unlock()
		return model.Lead{}, fmt.Errorf("open %s: %w", lead.ID, ErrLeadExists)
	}
	e.leads[lead.ID] = st
	e.mu.Unlock()
	metrics.UpdateLeadsActive(int(e.active.Add(1)))

	var fx effects
	st.lead.Status = model.LeadOffering
	st.lead.RankingSize = r.Len()
	e.persistLead(ctx, st)
	e.fill(ctx, st, &fx)
	out := st.lead
	st.mu.Unlock()

	e.logger.Info(ctx, "lead opened",
		logger.String("lead_id", lead.ID),
		logger.Int("candidates", r.Len()),
		logger.String("status", string(out.Status)),
	)
	e.apply(fx)
	return out, nil
}

// Respond records a candidate's answer to an offer. Stale, foreign and late
// responses resolve to OutcomeUnavailable rather than an error.
func (e *Engine) Respond(ctx context.Context, offerID, candidateID string, decision model.Decision) (Response, error) {
	if !decision.Valid() {
		return Response{}, fmt.Errorf("respond %s: %w: %q", offerID, ErrInvalidDecision, decision)
	}
	resp := Response{Outcome: model.OutcomeUnavailable, OfferID: offerID}

	st := e.stateForOffer(offerID)
	if st == nil {
		e.recordResponse(resp.Outcome)
		return resp, nil
	}

	st.mu.Lock()
	resp.LeadID = st.lead.ID
	offer, ok := st.offers[offerID]
	if !ok || offer.CandidateID != candidateID {
		st.mu.Unlock()
		e.recordResponse(resp.Outcome)
		return resp, nil
	}

	if decision == model.DecisionDecline {
		resp.Outcome = e.declineLocked(ctx, st, offer)
		var fx effects
		if resp.Outcome == model.OutcomeDeclined {
			e.fill(ctx, st, &fx)
		}
		st.mu.Unlock()
		e.apply(fx)
		e.recordResponse(resp.Outcome)
		return resp, nil
	}

	if in := st.inflight; in != nil && in.offerID == offerID {
		st.mu.Unlock()
		return e.await(ctx, in, resp)
	}
	if outcome, cl, done := settledOutcome(st, offer); done {
		st.mu.Unlock()
		resp.Outcome = outcome
		resp.Claim = cl
		e.recordResponse(resp.Outcome)
		return resp, nil
	}

	now := e.clock.Now()
	cl, err := e.claims.Reserve(&st.lead, offer, now)
	if err != nil {
		// Losing a race to another acceptance retires the offer.
		if offer.Status == model.OfferPending && st.lead.Status != model.LeadOffering {
			offer.Status = model.OfferSuperseded
			offer.RespondedAt = now
			e.stopTimer(st, offer.ID)
			e.persistOffer(ctx, *offer)
		}
		st.mu.Unlock()
		e.logger.Debug(ctx, "accept refused",
			logger.String("offer_id", offerID),
			logger.String("candidate_id", candidateID),
			logger.Error(err),
		)
		e.recordResponse(resp.Outcome)
		return resp, nil
	}
	e.stopTimer(st, offer.ID)
	st.claims = append(st.claims, cl)
	in := &inflight{offerID: offer.ID, done: make(chan struct{})}
	st.inflight = in
	paymentRef := e.paymentRef(st, offer)
	e.mu.Lock()
	e.claimTo[cl.ID] = st.lead.ID
	e.mu.Unlock()
	e.persistClaim(ctx, cl)
	e.persistOffer(ctx, *offer)
	e.persistLead(ctx, st)
	st.mu.Unlock()

	// A started charge always settles, even if the caller has gone away.
	settled := e.claims.Settle(context.WithoutCancel(ctx), cl, paymentRef)

	st.mu.Lock()
	var fx effects
	in.outcome = e.settleLocked(ctx, st, offer, settled, &fx)
	in.claim = settled
	st.inflight = nil
	close(in.done)
	st.mu.Unlock()
	e.apply(fx)

	resp.Outcome = in.outcome
	resp.Claim = &settled
	e.recordResponse(resp.Outcome)
	return resp, nil
}

// Expire moves a pending offer past its deadline to EXPIRED and refills the
// window. Offers that are no longer pending are left alone.
func (e *Engine) Expire(ctx context.Context, leadID, offerID string) error {
	st := e.state(leadID)
	if st == nil {
		return fmt.Errorf("expire %s: %w", leadID, model.ErrNotFound)
	}

	st.mu.Lock()
	offer, ok := st.offers[offerID]
	if !ok || offer.Status != model.OfferPending || e.clock.Now().Before(offer.Deadline) {
		st.mu.Unlock()
		return nil
	}
	offer.Status = model.OfferExpired
	delete(st.timers, offerID)
	e.persistOffer(ctx, *offer)
	metrics.RecordOfferExpired()

	var fx effects
	e.fill(ctx, st, &fx)
	st.mu.Unlock()

	e.logger.Debug(ctx, "offer expired",
		logger.String("lead_id", leadID),
		logger.String("offer_id", offerID),
	)
	e.apply(fx)
	return nil
}

// Cancel withdraws a lead. A lead whose payment is in flight is cancelled
// once the payment resolves, unless the payment confirms.
func (e *Engine) Cancel(ctx context.Context, leadID string) (model.Lead, error) {
	st := e.state(leadID)
	if st == nil {
		return model.Lead{}, fmt.Errorf("cancel %s: %w", leadID, model.ErrNotFound)
	}

	st.mu.Lock()
	var fx effects
	switch st.lead.Status {
	case model.LeadCancelled:
	case model.LeadClaimed, model.LeadExhausted:
		out := st.lead
		st.mu.Unlock()
		return out, fmt.Errorf("cancel %s: %w", leadID, ErrLeadFinalized)
	case model.LeadClaiming:
		st.lead.CancelRequested = true
		e.persistLead(ctx, st)
	default:
		e.finalizeLocked(ctx, st, model.LeadCancelled, &fx)
	}
	out := st.lead
	st.mu.Unlock()

	e.apply(fx)
	return out, nil
}

// Lead returns the current state of a lead.
func (e *Engine) Lead(_ context.Context, leadID string) (model.Lead, error) {
	st := e.state(leadID)
	if st == nil {
		return model.Lead{}, fmt.Errorf("lead %s: %w", leadID, model.ErrNotFound)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lead, nil
}

// Offers returns a lead's offers in issue order.
func (e *Engine) Offers(_ context.Context, leadID string) ([]model.Offer, error) {
	st := e.state(leadID)
	if st == nil {
		return nil, fmt.Errorf("offers %s: %w", leadID, model.ErrNotFound)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	out := make([]model.Offer, 0, len(st.order))
	for _, id := range st.order {
		out = append(out, *st.offers[id])
	}
	return out, nil
}

// Offer returns a single offer.
func (e *Engine) Offer(_ context.Context, offerID string) (model.Offer, error) {
	st := e.stateForOffer(offerID)
	if st == nil {
		return model.Offer{}, fmt.Errorf("offer %s: %w", offerID, model.ErrNotFound)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return *st.offers[offerID], nil
}

// Claims returns a lead's claims in creation order.
func (e *Engine) Claims(_ context.Context, leadID string) ([]model.Claim, error) {
	st := e.state(leadID)
	if st == nil {
		return nil, fmt.Errorf("claims %s: %w", leadID, model.ErrNotFound)
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return append([]model.Claim(nil), st.claims...), nil
}

// Claim returns a single claim.
func (e *Engine) Claim(_ context.Context, claimID string) (model.Claim, error) {
	e.mu.RLock()
	leadID, ok := e.claimTo[claimID]
	e.mu.RUnlock()
	if st := e.state(leadID); ok && st != nil {
		st.mu.Lock()
		defer st.mu.Unlock()
		for _, cl := range st.claims {
			if cl.ID == claimID {
				return cl, nil
			}
		}
	}
	return model.Claim{}, fmt.Errorf("claim %s: %w", claimID, model.ErrNotFound)
}

// Stats counts leads by status.
func (e *Engine) Stats(_ context.Context) Stats {
	e.mu.RLock()
	states := make([]*leadState, 0, len(e.leads))
	for _, st := range e.leads {
		states = append(states, st)
	}
	e.mu.RUnlock()

	s := Stats{ByStatus: make(map[model.LeadStatus]int)}
	for _, st := range states {
		st.mu.Lock()
		s.ByStatus[st.lead.Status]++
		if !st.lead.Status.Terminal() {
			s.Active++
		}
		st.mu.Unlock()
	}
	s.Leads = len(states)
	return s
}

// Wait blocks until notifications and originator callbacks already
// scheduled have run.
func (e *Engine) Wait() {
	e.async.Wait()
}

// Shutdown stops every deadline timer and waits for background callbacks.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.RLock()
	states := make([]*leadState, 0, len(e.leads))
	for _, st := range e.leads {
		states = append(states, st)
	}
	e.mu.RUnlock()
	for _, st := range states {
		st.mu.Lock()
		for id := range st.timers {
			e.stopTimer(st, id)
		}
		st.mu.Unlock()
	}

	done := make(chan struct{})
	go func() {
		e.async.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cascade shutdown: %w", ctx.Err())
	}
}

// fill issues offers from the pointer until the window is full, then
// finalizes the lead as EXHAUSTED if nothing is left to wait for.
func (e *Engine) fill(ctx context.Context, st *leadState, fx *effects) {
	if st.lead.Status != model.LeadOffering {
		return
	}
	pending := 0
	for _, o := range st.offers {
		if o.Status == model.OfferPending {
			pending++
		}
	}

	now := e.clock.Now()
	for pending < e.batchSize && st.lead.Pointer < st.ranking.Len() {
		entry, _ := st.ranking.At(st.lead.Pointer)
		st.lead.Pointer++
		e.issue(ctx, st, entry, now, fx)
		pending++
	}

	if pending == 0 && st.lead.Pointer >= st.ranking.Len() && st.lead.ActiveClaimID == "" {
		e.finalizeLocked(ctx, st, model.LeadExhausted, fx)
		return
	}
	e.persistLead(ctx, st)
}

func (e *Engine) issue(ctx context.Context, st *leadState, entry ranking.Entry, now time.Time, fx *effects) {
	timeout := e.timeouts[st.lead.Urgency]
	offer := &model.Offer{
		ID:          uuid.NewString(),
		LeadID:      st.lead.ID,
		CandidateID: entry.CandidateID(),
		Rank:        entry.Rank,
		Score:       entry.Score,
		DistanceKM:  entry.DistanceKM,
		Status:      model.OfferPending,
		IssuedAt:    now,
		Deadline:    now.Add(timeout),
	}
	st.offers[offer.ID] = offer
	st.order = append(st.order, offer.ID)

	e.mu.Lock()
	e.offerTo[offer.ID] = st.lead.ID
	e.mu.Unlock()

	leadID, offerID := st.lead.ID, offer.ID
	st.timers[offer.ID] = e.clock.AfterFunc(timeout, func() {
		e.deadline(leadID, offerID)
	})
	e.persistOffer(ctx, *offer)
	metrics.RecordOfferIssued()

	summary := model.Summary{
		LeadID:        st.lead.ID,
		Category:      st.lead.Category,
		Urgency:       st.lead.Urgency,
		Fee:           st.lead.Fee,
		ValueEstimate: st.lead.ValueEstimate,
		DistanceKM:    entry.DistanceKM,
	}
	if e.links != nil {
		link, err := e.links.Link(*offer)
		if err != nil {
			e.logger.Error(ctx, "response link failed", logger.String("offer_id", offer.ID), logger.Error(err))
			metrics.RecordError("cascade", "link")
		}
		summary.ResponseLink = link
	}
	fx.notices = append(fx.notices, notice{candidateID: offer.CandidateID, summary: summary, deadline: offer.Deadline})
}

func (e *Engine) declineLocked(ctx context.Context, st *leadState, offer *model.Offer) model.Outcome {
	switch {
	case offer.Status == model.OfferDeclined && !offer.SystemDeclined:
		return model.OutcomeDeclined
	case offer.Status != model.OfferPending, !e.clock.Now().Before(offer.Deadline):
		return model.OutcomeUnavailable
	}
	offer.Status = model.OfferDeclined
	offer.RespondedAt = e.clock.Now()
	e.stopTimer(st, offer.ID)
	e.persistOffer(ctx, *offer)
	return model.OutcomeDeclined
}

// settleLocked applies a resolved claim to the lead.
func (e *Engine) settleLocked(ctx context.Context, st *leadState, offer *model.Offer, cl model.Claim, fx *effects) model.Outcome {
	for i := range st.claims {
		if st.claims[i].ID == cl.ID {
			st.claims[i] = cl
		}
	}
	e.persistClaim(ctx, cl)
	st.lead.ActiveClaimID = ""

	if cl.Status == model.ClaimConfirmed {
		st.lead.AssignedCandidateID = cl.CandidateID
		e.finalizeLocked(ctx, st, model.LeadClaimed, fx)
		return model.OutcomeAccepted
	}

	offer.Status = model.OfferDeclined
	offer.SystemDeclined = true
	e.persistOffer(ctx, *offer)
	if st.lead.CancelRequested {
		e.finalizeLocked(ctx, st, model.LeadCancelled, fx)
	} else {
		st.lead.Status = model.LeadOffering
		e.fill(ctx, st, fx)
	}
	return model.OutcomePaymentFailed
}

// finalizeLocked supersedes pending offers and moves the lead to status.
func (e *Engine) finalizeLocked(ctx context.Context, st *leadState, status model.LeadStatus, fx *effects) {
	for _, id := range st.order {
		o := st.offers[id]
		if o.Status != model.OfferPending {
			continue
		}
		o.Status = model.OfferSuperseded
		e.stopTimer(st, id)
		e.persistOffer(ctx, *o)
	}
	st.lead.Status = status
	st.lead.FinalizedAt = e.clock.Now()
	e.persistLead(ctx, st)
	fx.finalized = append(fx.finalized, st.lead)

	metrics.RecordLeadFinalized(string(status))
	metrics.UpdateLeadsActive(int(e.active.Add(-1)))

	e.logger.Info(ctx, "lead finalized",
		logger.String("lead_id", st.lead.ID),
		logger.String("status", string(status)),
		logger.String("candidate_id", st.lead.AssignedCandidateID),
	)
}

// await waits for an in-flight settlement started by an earlier accept.
func (e *Engine) await(ctx context.Context, in *inflight, resp Response) (Response, error) {
	select {
	case <-in.done:
		resp.Outcome = in.outcome
		cl := in.claim
		resp.Claim = &cl
		e.recordResponse(resp.Outcome)
		return resp, nil
	case <-ctx.Done():
		return resp, fmt.Errorf("respond %s: %w", resp.OfferID, ctx.Err())
	}
}

// settledOutcome answers a repeated accept for an offer whose claim has
// already resolved.
func settledOutcome(st *leadState, offer *model.Offer) (model.Outcome, *model.Claim, bool) {
	var last *model.Claim
	for i := range st.claims {
		if st.claims[i].OfferID == offer.ID {
			cl := st.claims[i]
			last = &cl
		}
	}
	if last == nil {
		return "", nil, false
	}
	switch last.Status {
	case model.ClaimConfirmed:
		return model.OutcomeAccepted, last, true
	case model.ClaimFailed:
		return model.OutcomePaymentFailed, last, true
	default:
		return "", nil, false
	}
}

func (e *Engine) paymentRef(st *leadState, offer *model.Offer) string {
	entry, ok := st.ranking.At(offer.Rank)
	if !ok || entry.CandidateID() != offer.CandidateID {
		return ""
	}
	return entry.Candidate.PaymentRef
}

// deadline runs when an offer timer fires.
func (e *Engine) deadline(leadID, offerID string) {
	task := model.Task{Kind: model.TaskExpire, LeadID: leadID, OfferID: offerID}
	if e.dispatch != nil && e.dispatch(task) {
		return
	}
	if err := e.Expire(context.Background(), leadID, offerID); err != nil {
		e.logger.Error(context.Background(), "expire failed", logger.String("offer_id", offerID), logger.Error(err))
	}
}

func (e *Engine) stopTimer(st *leadState, offerID string) {
	if t, ok := st.timers[offerID]; ok {
		t.Stop()
		delete(st.timers, offerID)
	}
}

func (e *Engine) state(leadID string) *leadState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.leads[leadID]
}

func (e *Engine) stateForOffer(offerID string) *leadState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	leadID, ok := e.offerTo[offerID]
	if !ok {
		return nil
	}
	return e.leads[leadID]
}

// apply runs collected side effects in the background.
func (e *Engine) apply(fx effects) {
	for _, n := range fx.notices {
		if e.notifier == nil {
			break
		}
		e.async.Add(1)
		go func() {
			defer e.async.Done()
			ctx := context.Background()
			if err := e.notifier.Offer(ctx, n.candidateID, n.summary, n.deadline); err != nil {
				metrics.RecordNotification("offer", "error")
				e.logger.Warn(ctx, "offer notification failed",
					logger.String("lead_id", n.summary.LeadID),
					logger.String("candidate_id", n.candidateID),
					logger.Error(err),
				)
				return
			}
			metrics.RecordNotification("offer", "ok")
		}()
	}
	for _, lead := range fx.finalized {
		if e.originator == nil {
			break
		}
		e.async.Add(1)
		go func() {
			defer e.async.Done()
			ctx := context.Background()
			if err := e.originator.LeadFinalized(ctx, lead); err != nil {
				metrics.RecordNotification("finalized", "error")
				e.logger.Warn(ctx, "originator notification failed",
					logger.String("lead_id", lead.ID),
					logger.Error(err),
				)
				return
			}
			metrics.RecordNotification("finalized", "ok")
		}()
	}
}

func (e *Engine) recordResponse(o model.Outcome) {
	metrics.RecordOfferResponse(string(o))
}

func (e *Engine) persistLead(ctx context.Context, st *leadState) {
	e.persist(ctx, "lead", st.lead.ID, e.store.SaveLead(context.WithoutCancel(ctx), st.lead))
}

func (e *Engine) persistOffer(ctx context.Context, o model.Offer) {
	e.persist(ctx, "offer", o.ID, e.store.SaveOffer(context.WithoutCancel(ctx), o))
}

func (e *Engine) persistClaim(ctx context.Context, cl model.Claim) {
	e.persist(ctx, "claim", cl.ID, e.store.SaveClaim(context.WithoutCancel(ctx), cl))
}

func (e *Engine) persist(ctx context.Context, kind, id string, err error) {
	if err == nil {
		return
	}
	metrics.RecordError("cascade", "store_"+kind)
	e.logger.Error(ctx, "write-through failed",
		logger.String("kind", kind),
		logger.String("id", id),
		logger.Error(err),
	)
}
