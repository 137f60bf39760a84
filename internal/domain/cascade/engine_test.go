package cascade_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/leadflow/internal/domain/cascade"
	"github.com/okian/leadflow/internal/domain/claim"
	"github.com/okian/leadflow/internal/domain/model"
	"github.com/okian/leadflow/internal/domain/ranking"
	"github.com/okian/leadflow/internal/domain/scoring"
)

var start = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

type staticDir struct{ candidates []*model.Candidate }

func (d staticDir) Snapshot(context.Context) (ranking.Snapshot, error) {
	return ranking.Snapshot{Version: 1, Candidates: d.candidates}, nil
}

// gateway confirms every payment ref except those starting with "declined".
// When gate is set each charge blocks until gate is closed.
type gateway struct {
	mu      sync.Mutex
	charged map[string]claim.ChargeResult
	calls   int
	gate    chan struct{}
	entered chan string
}

func newGateway() *gateway {
	return &gateway{charged: make(map[string]claim.ChargeResult)}
}

func (g *gateway) Charge(ctx context.Context, key, ref string, _ int64) (claim.ChargeResult, error) {
	if g.entered != nil {
		g.entered <- ref
	}
	if g.gate != nil {
		select {
		case <-g.gate:
		case <-ctx.Done():
			return claim.ChargeResult{}, ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	if res, ok := g.charged[key]; ok {
		return res, nil
	}
	g.calls++
	res := claim.ChargeResult{Status: claim.ChargeConfirmed, ChargeID: "ch_" + key[:8]}
	if strings.HasPrefix(ref, "declined") {
		res = claim.ChargeResult{Status: claim.ChargeFailed, Reason: "card_declined"}
	}
	g.charged[key] = res
	return res, nil
}

func (g *gateway) confirmedCharges() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, r := range g.charged {
		if r.Status == claim.ChargeConfirmed {
			n++
		}
	}
	return n
}

type notifier struct {
	mu     sync.Mutex
	offers []string
	err    error
}

func (n *notifier) Offer(_ context.Context, candidateID string, s model.Summary, _ time.Time) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offers = append(n.offers, candidateID+":"+s.LeadID)
	return n.err
}

func (n *notifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.offers...)
}

type originator struct {
	mu    sync.Mutex
	leads []model.Lead
}

func (o *originator) LeadFinalized(_ context.Context, l model.Lead) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.leads = append(o.leads, l)
	return nil
}

func (o *originator) final() []model.Lead {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]model.Lead(nil), o.leads...)
}

// candidateAt places a candidate kmNorth of the lead, so nearer ranks higher.
func candidateAt(id string, kmNorth float64, paymentRef string) *model.Candidate {
	return &model.Candidate{
		ID:           id,
		Location:     model.Location{Lat: 51.5 + kmNorth/111.2, Lng: -0.12},
		RadiusKM:     25,
		Skills:       []string{"boiler_repair"},
		Availability: model.Window{From: start.Add(-time.Hour)},
		Stats:        model.Stats{AcceptRate: 0.8, CompletionRate: 0.6, Quality: 0.9},
		PaymentRef:   paymentRef,
	}
}

func newLead(id string) model.Lead {
	return model.Lead{
		ID:        id,
		Location:  model.Location{Lat: 51.5, Lng: -0.12},
		Category:  "boiler_repair",
		Urgency:   model.UrgencyEmergency,
		Fee:       1800,
		CreatedAt: start,
	}
}

type harness struct {
	clock  *cascade.ManualClock
	gw     *gateway
	notes  *notifier
	origin *originator
	engine *cascade.Engine
}

func newHarness(candidates []*model.Candidate, opts ...cascade.Option) *harness {
	h := &harness{
		clock:  cascade.NewManualClock(start),
		gw:     newGateway(),
		notes:  &notifier{},
		origin: &originator{},
	}
	scorer, err := scoring.NewEngine()
	if err != nil {
		panic(err)
	}
	ranker := ranking.NewRanker(staticDir{candidates: candidates}, scorer)
	coord := claim.NewCoordinator(h.gw, claim.WithBackoff(0), claim.WithNow(h.clock.Now))
	opts = append([]cascade.Option{
		cascade.WithClock(h.clock),
		cascade.WithNotifier(h.notes),
		cascade.WithOriginator(h.origin),
	}, opts...)
	h.engine = cascade.NewEngine(ranker, coord, opts...)
	return h
}

// offerFor returns the offer issued to candidateID on leadID.
func (h *harness) offerFor(leadID, candidateID string) model.Offer {
	offers, err := h.engine.Offers(context.Background(), leadID)
	So(err, ShouldBeNil)
	for _, o := range offers {
		if o.CandidateID == candidateID {
			return o
		}
	}
	return model.Offer{}
}

func (h *harness) statuses(leadID string) map[string]model.OfferStatus {
	offers, err := h.engine.Offers(context.Background(), leadID)
	So(err, ShouldBeNil)
	out := make(map[string]model.OfferStatus)
	for _, o := range offers {
		out[o.CandidateID] = o.Status
	}
	return out
}

func abc() []*model.Candidate {
	return []*model.Candidate{
		candidateAt("A", 0, "pm_a"),
		candidateAt("B", 5, "pm_b"),
		candidateAt("C", 10, "pm_c"),
	}
}

func TestEngine_Scenarios(t *testing.T) {
	ctx := context.Background()

	Convey("Given three qualifying candidates ranked A, B, C", t, func() {
		Convey("When A declines and B accepts under a window of two", func() {
			h := newHarness(abc(), cascade.WithBatchSize(2))
			lead, err := h.engine.Open(ctx, newLead("L1"))
			So(err, ShouldBeNil)
			So(lead.Status, ShouldEqual, model.LeadOffering)
			So(lead.Pointer, ShouldEqual, 2)

			resp, err := h.engine.Respond(ctx, h.offerFor("L1", "A").ID, "A", model.DecisionDecline)
			So(err, ShouldBeNil)
			So(resp.Outcome, ShouldEqual, model.OutcomeDeclined)

			resp, err = h.engine.Respond(ctx, h.offerFor("L1", "B").ID, "B", model.DecisionAccept)
			So(err, ShouldBeNil)
			h.engine.Wait()

			Convey("Then the lead is CLAIMED by B and the others are retired", func() {
				So(resp.Outcome, ShouldEqual, model.OutcomeAccepted)
				got, _ := h.engine.Lead(ctx, "L1")
				So(got.Status, ShouldEqual, model.LeadClaimed)
				So(got.AssignedCandidateID, ShouldEqual, "B")
				So(h.statuses("L1"), ShouldResemble, map[string]model.OfferStatus{
					"A": model.OfferDeclined,
					"B": model.OfferAccepted,
					"C": model.OfferSuperseded,
				})
				So(h.gw.confirmedCharges(), ShouldEqual, 1)
				So(len(h.origin.final()), ShouldEqual, 1)
				So(h.clock.Pending(), ShouldEqual, 0)
			})
		})

		Convey("When A and B race to accept within the same window", func() {
			h := newHarness(abc(), cascade.WithBatchSize(3))
			h.gw.gate = make(chan struct{})
			h.gw.entered = make(chan string, 1)
			_, err := h.engine.Open(ctx, newLead("L2"))
			So(err, ShouldBeNil)

			offerA := h.offerFor("L2", "A")
			first := make(chan cascade.Response, 1)
			go func() {
				r, _ := h.engine.Respond(ctx, offerA.ID, "A", model.DecisionAccept)
				first <- r
			}()
			So(<-h.gw.entered, ShouldEqual, "pm_a")

			second, err := h.engine.Respond(ctx, h.offerFor("L2", "B").ID, "B", model.DecisionAccept)
			So(err, ShouldBeNil)
			close(h.gw.gate)
			winner := <-first

			Convey("Then only one claim exists and the loser is told unavailable", func() {
				So(second.Outcome, ShouldEqual, model.OutcomeUnavailable)
				So(winner.Outcome, ShouldEqual, model.OutcomeAccepted)
				claims, _ := h.engine.Claims(ctx, "L2")
				So(len(claims), ShouldEqual, 1)
				So(claims[0].CandidateID, ShouldEqual, "A")
				So(h.statuses("L2")["B"], ShouldEqual, model.OfferSuperseded)
			})
		})

		Convey("When the top candidate's payment fails", func() {
			cands := abc()
			cands[0].PaymentRef = "declined_card"
			h := newHarness(cands)
			_, err := h.engine.Open(ctx, newLead("L3"))
			So(err, ShouldBeNil)

			resp, err := h.engine.Respond(ctx, h.offerFor("L3", "A").ID, "A", model.DecisionAccept)
			So(err, ShouldBeNil)
			So(resp.Outcome, ShouldEqual, model.OutcomePaymentFailed)

			mid, _ := h.engine.Lead(ctx, "L3")
			So(mid.Status, ShouldEqual, model.LeadOffering)
			So(mid.Pointer, ShouldEqual, 2)
			failed := h.offerFor("L3", "A")
			So(failed.Status, ShouldEqual, model.OfferDeclined)
			So(failed.SystemDeclined, ShouldBeTrue)

			resp, err = h.engine.Respond(ctx, h.offerFor("L3", "B").ID, "B", model.DecisionAccept)
			So(err, ShouldBeNil)

			Convey("Then rank two claims the lead, never rank one", func() {
				So(resp.Outcome, ShouldEqual, model.OutcomeAccepted)
				got, _ := h.engine.Lead(ctx, "L3")
				So(got.Status, ShouldEqual, model.LeadClaimed)
				So(got.AssignedCandidateID, ShouldEqual, "B")
				claims, _ := h.engine.Claims(ctx, "L3")
				So(len(claims), ShouldEqual, 2)
				So(claims[0].Status, ShouldEqual, model.ClaimFailed)
				So(claims[1].Status, ShouldEqual, model.ClaimConfirmed)
				So(claims[0].IdempotencyKey, ShouldNotEqual, claims[1].IdempotencyKey)
			})

			Convey("Then a repeated accept from A reports the failure again", func() {
				again, err := h.engine.Respond(ctx, failed.ID, "A", model.DecisionAccept)
				So(err, ShouldBeNil)
				So(again.Outcome, ShouldEqual, model.OutcomePaymentFailed)
			})
		})

		Convey("When nobody responds before any deadline", func() {
			h := newHarness(abc())
			_, err := h.engine.Open(ctx, newLead("L4"))
			So(err, ShouldBeNil)
			for range 3 {
				h.clock.Advance(2 * time.Minute)
			}
			h.engine.Wait()

			Convey("Then the lead is EXHAUSTED with zero claims", func() {
				got, _ := h.engine.Lead(ctx, "L4")
				So(got.Status, ShouldEqual, model.LeadExhausted)
				claims, _ := h.engine.Claims(ctx, "L4")
				So(claims, ShouldBeEmpty)
				So(h.statuses("L4"), ShouldResemble, map[string]model.OfferStatus{
					"A": model.OfferExpired,
					"B": model.OfferExpired,
					"C": model.OfferExpired,
				})
				sent := h.notes.sent()
				So(len(sent), ShouldEqual, 3)
				So(sent, ShouldContain, "A:L4")
				So(sent, ShouldContain, "C:L4")
				final := h.origin.final()
				So(len(final), ShouldEqual, 1)
				So(final[0].Status, ShouldEqual, model.LeadExhausted)
			})
		})

		Convey("When the lead is cancelled while an offer is pending", func() {
			h := newHarness(abc(), cascade.WithBatchSize(2))
			_, err := h.engine.Open(ctx, newLead("L5"))
			So(err, ShouldBeNil)

			got, err := h.engine.Cancel(ctx, "L5")
			So(err, ShouldBeNil)

			Convey("Then the lead is CANCELLED and every offer SUPERSEDED", func() {
				So(got.Status, ShouldEqual, model.LeadCancelled)
				for _, st := range h.statuses("L5") {
					So(st, ShouldEqual, model.OfferSuperseded)
				}
				claims, _ := h.engine.Claims(ctx, "L5")
				So(claims, ShouldBeEmpty)
				So(h.clock.Pending(), ShouldEqual, 0)
			})

			Convey("Then cancelling again is a no-op", func() {
				again, err := h.engine.Cancel(ctx, "L5")
				So(err, ShouldBeNil)
				So(again.Status, ShouldEqual, model.LeadCancelled)
				So(len(h.engine.Stats(ctx).ByStatus), ShouldEqual, 1)
			})

			Convey("Then a late accept is unavailable", func() {
				resp, err := h.engine.Respond(ctx, h.offerFor("L5", "A").ID, "A", model.DecisionAccept)
				So(err, ShouldBeNil)
				So(resp.Outcome, ShouldEqual, model.OutcomeUnavailable)
			})
		})
	})
}

func TestEngine_CancelDuringPayment(t *testing.T) {
	ctx := context.Background()

	Convey("Given a claim whose payment is in flight", t, func() {
		run := func(ref string) (*harness, cascade.Response, model.Lead) {
			cands := abc()
			cands[0].PaymentRef = ref
			h := newHarness(cands)
			h.gw.gate = make(chan struct{})
			h.gw.entered = make(chan string, 1)
			_, err := h.engine.Open(ctx, newLead("L6"))
			So(err, ShouldBeNil)

			offerA := h.offerFor("L6", "A")
			done := make(chan cascade.Response, 1)
			go func() {
				r, _ := h.engine.Respond(ctx, offerA.ID, "A", model.DecisionAccept)
				done <- r
			}()
			<-h.gw.entered

			lead, err := h.engine.Cancel(ctx, "L6")
			So(err, ShouldBeNil)
			So(lead.Status, ShouldEqual, model.LeadClaiming)
			So(lead.CancelRequested, ShouldBeTrue)

			close(h.gw.gate)
			resp := <-done
			final, _ := h.engine.Lead(ctx, "L6")
			return h, resp, final
		}

		Convey("When the payment confirms", func() {
			h, resp, final := run("pm_a")
			So(resp.Outcome, ShouldEqual, model.OutcomeAccepted)
			So(final.Status, ShouldEqual, model.LeadClaimed)

			Convey("Then a later cancel reports the lead finalized", func() {
				_, err := h.engine.Cancel(ctx, "L6")
				So(errors.Is(err, cascade.ErrLeadFinalized), ShouldBeTrue)
			})
		})

		Convey("When the payment fails", func() {
			h, resp, final := run("declined_card")
			So(resp.Outcome, ShouldEqual, model.OutcomePaymentFailed)
			So(final.Status, ShouldEqual, model.LeadCancelled)
			_, offeredB := h.statuses("L6")["B"]
			So(offeredB, ShouldBeFalse)
		})
	})
}

func TestEngine_Responses(t *testing.T) {
	ctx := context.Background()

	Convey("Given an open lead", t, func() {
		h := newHarness(abc())
		_, err := h.engine.Open(ctx, newLead("L7"))
		So(err, ShouldBeNil)
		offerA := h.offerFor("L7", "A")

		Convey("When the decision is unknown", func() {
			_, err := h.engine.Respond(ctx, offerA.ID, "A", "maybe")
			So(errors.Is(err, cascade.ErrInvalidDecision), ShouldBeTrue)
		})

		Convey("When another candidate answers the offer", func() {
			resp, err := h.engine.Respond(ctx, offerA.ID, "B", model.DecisionAccept)
			So(err, ShouldBeNil)
			So(resp.Outcome, ShouldEqual, model.OutcomeUnavailable)
			So(h.offerFor("L7", "A").Status, ShouldEqual, model.OfferPending)
		})

		Convey("When the offer id is unknown", func() {
			resp, err := h.engine.Respond(ctx, "nope", "A", model.DecisionAccept)
			So(err, ShouldBeNil)
			So(resp.Outcome, ShouldEqual, model.OutcomeUnavailable)
		})

		Convey("When the response arrives after the deadline", func() {
			h.clock.Advance(2 * time.Minute)
			resp, err := h.engine.Respond(ctx, offerA.ID, "A", model.DecisionAccept)
			So(err, ShouldBeNil)
			So(resp.Outcome, ShouldEqual, model.OutcomeUnavailable)
			So(h.offerFor("L7", "A").Status, ShouldEqual, model.OfferExpired)
		})

		Convey("When the same decline is sent twice", func() {
			first, _ := h.engine.Respond(ctx, offerA.ID, "A", model.DecisionDecline)
			second, _ := h.engine.Respond(ctx, offerA.ID, "A", model.DecisionDecline)
			So(first.Outcome, ShouldEqual, model.OutcomeDeclined)
			So(second.Outcome, ShouldEqual, model.OutcomeDeclined)
			lead, _ := h.engine.Lead(ctx, "L7")
			So(lead.Pointer, ShouldEqual, 2)
		})

		Convey("When an accept is repeated while the payment is in flight", func() {
			h.gw.gate = make(chan struct{})
			h.gw.entered = make(chan string, 1)
			results := make(chan cascade.Response, 2)
			go func() {
				r, _ := h.engine.Respond(ctx, offerA.ID, "A", model.DecisionAccept)
				results <- r
			}()
			<-h.gw.entered
			go func() {
				r, _ := h.engine.Respond(ctx, offerA.ID, "A", model.DecisionAccept)
				results <- r
			}()
			close(h.gw.gate)
			a, b := <-results, <-results

			Convey("Then both see the same definitive outcome and one charge", func() {
				So(a.Outcome, ShouldEqual, model.OutcomeAccepted)
				So(b.Outcome, ShouldEqual, model.OutcomeAccepted)
				So(h.gw.confirmedCharges(), ShouldEqual, 1)
			})
		})

		Convey("When the same lead is opened twice", func() {
			_, err := h.engine.Open(ctx, newLead("L7"))
			So(errors.Is(err, cascade.ErrLeadExists), ShouldBeTrue)
		})

		Convey("When an unknown lead is cancelled", func() {
			_, err := h.engine.Cancel(ctx, "ghost")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("When querying offers and claims by id", func() {
			o, err := h.engine.Offer(ctx, offerA.ID)
			So(err, ShouldBeNil)
			So(o.CandidateID, ShouldEqual, "A")
			resp, _ := h.engine.Respond(ctx, offerA.ID, "A", model.DecisionAccept)
			cl, err := h.engine.Claim(ctx, resp.Claim.ID)
			So(err, ShouldBeNil)
			So(cl.Status, ShouldEqual, model.ClaimConfirmed)
			_, err = h.engine.Claim(ctx, "ghost")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})
	})
}

func TestEngine_Open(t *testing.T) {
	ctx := context.Background()

	Convey("Given the cascade engine", t, func() {
		Convey("When the lead is malformed", func() {
			h := newHarness(abc())
			bad := newLead("L8")
			bad.Fee = 0
			_, err := h.engine.Open(ctx, bad)
			So(errors.Is(err, model.ErrInvalidLead), ShouldBeTrue)
			_, err = h.engine.Lead(ctx, "L8")
			So(errors.Is(err, model.ErrNotFound), ShouldBeTrue)
		})

		Convey("When no candidate qualifies", func() {
			h := newHarness(nil)
			lead, err := h.engine.Open(ctx, newLead("L9"))
			So(err, ShouldBeNil)
			So(lead.Status, ShouldEqual, model.LeadExhausted)
			h.engine.Wait()
			So(len(h.origin.final()), ShouldEqual, 1)
		})

		Convey("When notifications fail the cascade still advances", func() {
			h := newHarness(abc())
			h.notes.err = errors.New("sms gateway down")
			_, err := h.engine.Open(ctx, newLead("L10"))
			So(err, ShouldBeNil)
			h.clock.Advance(2 * time.Minute)
			h.engine.Wait()
			lead, _ := h.engine.Lead(ctx, "L10")
			So(lead.Pointer, ShouldEqual, 2)
			So(len(h.notes.sent()), ShouldEqual, 2)
		})

		Convey("When expiries are dispatched through a queue", func() {
			var (
				mu    sync.Mutex
				tasks []model.Task
			)
			h := newHarness(abc(), cascade.WithExpiryDispatcher(func(task model.Task) bool {
				mu.Lock()
				defer mu.Unlock()
				tasks = append(tasks, task)
				return true
			}))
			_, err := h.engine.Open(ctx, newLead("L11"))
			So(err, ShouldBeNil)
			h.clock.Advance(2 * time.Minute)

			mu.Lock()
			So(len(tasks), ShouldEqual, 1)
			task := tasks[0]
			mu.Unlock()
			So(task.Kind, ShouldEqual, model.TaskExpire)
			So(h.offerFor("L11", "A").Status, ShouldEqual, model.OfferPending)

			So(h.engine.Expire(ctx, task.LeadID, task.OfferID), ShouldBeNil)
			So(h.offerFor("L11", "A").Status, ShouldEqual, model.OfferExpired)
			So(h.offerFor("L11", "B").Status, ShouldEqual, model.OfferPending)
		})

		Convey("When the urgency tier has its own timeout", func() {
			h := newHarness(abc(), cascade.WithTimeout(model.UrgencyFlexible, time.Hour))
			l := newLead("L12")
			l.Urgency = model.UrgencyFlexible
			_, err := h.engine.Open(ctx, l)
			So(err, ShouldBeNil)
			o := h.offerFor("L12", "A")
			So(o.Deadline.Sub(o.IssuedAt), ShouldEqual, time.Hour)
		})

		Convey("When shutting down", func() {
			h := newHarness(abc())
			_, err := h.engine.Open(ctx, newLead("L13"))
			So(err, ShouldBeNil)
			So(h.engine.Shutdown(ctx), ShouldBeNil)
			So(h.clock.Pending(), ShouldEqual, 0)
		})
	})
}
