package api_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/leadflow/internal/adapters/http/api"
	"github.com/okian/leadflow/internal/adapters/token"
	"github.com/okian/leadflow/internal/domain/cascade"
	"github.com/okian/leadflow/internal/domain/model"
)

type mockDeps struct {
	mu        sync.Mutex
	submitted map[string]bool
	submitErr error
	leads     map[string]model.Lead
	offers    map[string]model.Offer
	claims    map[string]model.Claim
	responses []string
	delay     time.Duration
}

func newMockDeps() *mockDeps {
	return &mockDeps{
		submitted: make(map[string]bool),
		leads: map[string]model.Lead{
			"lead-1": {ID: "lead-1", Status: model.LeadOffering},
			"lead-2": {ID: "lead-2", Status: model.LeadClaimed},
		},
		offers: map[string]model.Offer{"offer-1": {ID: "offer-1", LeadID: "lead-1", CandidateID: "cand-a"}},
		claims: map[string]model.Claim{"claim-1": {ID: "claim-1", LeadID: "lead-2", Status: model.ClaimConfirmed}},
	}
}

func (m *mockDeps) Submit(_ context.Context, lead model.Lead) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.submitErr != nil {
		return false, m.submitErr
	}
	dup := m.submitted[lead.ID]
	m.submitted[lead.ID] = true
	return dup, nil
}

func (m *mockDeps) Lead(_ context.Context, id string) (model.Lead, error) {
	if l, ok := m.leads[id]; ok {
		return l, nil
	}
	return model.Lead{}, fmt.Errorf("lead %s: %w", id, model.ErrNotFound)
}

func (m *mockDeps) Offers(_ context.Context, leadID string) ([]model.Offer, error) {
	if _, ok := m.leads[leadID]; !ok {
		return nil, model.ErrNotFound
	}
	var out []model.Offer
	for _, o := range m.offers {
		if o.LeadID == leadID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (m *mockDeps) Claims(_ context.Context, leadID string) ([]model.Claim, error) {
	if _, ok := m.leads[leadID]; !ok {
		return nil, model.ErrNotFound
	}
	var out []model.Claim
	for _, c := range m.claims {
		if c.LeadID == leadID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockDeps) Cancel(_ context.Context, leadID string) (model.Lead, error) {
	l, ok := m.leads[leadID]
	switch {
	case !ok:
		return model.Lead{}, model.ErrNotFound
	case l.Status.Terminal():
		return l, fmt.Errorf("cancel %s: %w", leadID, cascade.ErrLeadFinalized)
	}
	l.Status = model.LeadCancelled
	return l, nil
}

func (m *mockDeps) Offer(_ context.Context, id string) (model.Offer, error) {
	if o, ok := m.offers[id]; ok {
		return o, nil
	}
	return model.Offer{}, model.ErrNotFound
}

func (m *mockDeps) Respond(_ context.Context, raw string, decision model.Decision) (cascade.Response, error) {
	m.mu.Lock()
	m.responses = append(m.responses, raw+":"+string(decision))
	m.mu.Unlock()
	time.Sleep(m.delay)
	if raw != "good" {
		return cascade.Response{}, fmt.Errorf("verify: %w", token.ErrInvalidToken)
	}
	if decision == model.DecisionDecline {
		return cascade.Response{Outcome: model.OutcomeDeclined, OfferID: "offer-1"}, nil
	}
	return cascade.Response{Outcome: model.OutcomeAccepted, OfferID: "offer-1"}, nil
}

func (m *mockDeps) Claim(_ context.Context, id string) (model.Claim, error) {
	if c, ok := m.claims[id]; ok {
		return c, nil
	}
	return model.Claim{}, model.ErrNotFound
}

type mockStats struct{}

func (mockStats) GetStats() map[string]any { return map[string]any{"started": true, "leads": 2} }

func do(h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder, v any) {
	So(json.Unmarshal(w.Body.Bytes(), v), ShouldBeNil)
}

const validLead = `{
	"id": "lead-9",
	"location": {"lat": 51.5, "lng": -0.12},
	"category": "boiler_repair",
	"urgency": "today",
	"fee": 1800,
	"created_at": "2026-03-02T09:00:00Z"
}`

func TestServer_Routes(t *testing.T) {
	Convey("Given an API server", t, func() {
		deps := newMockDeps()
		h := api.NewServer(deps, mockStats{}).Handler()

		Convey("When probing health, metrics and stats", func() {
			So(do(h, http.MethodGet, "/healthz", "").Code, ShouldEqual, http.StatusOK)
			So(do(h, http.MethodGet, "/metrics", "").Code, ShouldEqual, http.StatusOK)

			w := do(h, http.MethodGet, "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var stats map[string]any
			decode(w, &stats)
			So(stats["started"], ShouldEqual, true)
		})

		Convey("When the route does not exist", func() {
			So(do(h, http.MethodGet, "/nope", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When the method is wrong", func() {
			So(do(h, http.MethodDelete, "/leads/lead-1", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestLeadsHandler(t *testing.T) {
	Convey("Given an API server", t, func() {
		deps := newMockDeps()
		h := api.NewServer(deps, mockStats{}).Handler()

		Convey("When a valid lead is posted", func() {
			w := do(h, http.MethodPost, "/leads", validLead)
			So(w.Code, ShouldEqual, http.StatusAccepted)
			var ack map[string]any
			decode(w, &ack)
			So(ack["status"], ShouldEqual, "accepted")
			So(ack["lead_id"], ShouldEqual, "lead-9")

			Convey("Then posting it again is a duplicate", func() {
				w := do(h, http.MethodPost, "/leads", validLead)
				So(w.Code, ShouldEqual, http.StatusOK)
				decode(w, &ack)
				So(ack["duplicate"], ShouldEqual, true)
			})
		})

		Convey("When the intake queue is full", func() {
			deps.submitErr = fmt.Errorf("submit: %w", api.ErrBackpressure)
			So(do(h, http.MethodPost, "/leads", validLead).Code, ShouldEqual, http.StatusTooManyRequests)
		})

		Convey("When the service is not running", func() {
			deps.submitErr = fmt.Errorf("submit: %w", api.ErrUnavailable)
			So(do(h, http.MethodPost, "/leads", validLead).Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		bad := []struct {
			name string
			body string
		}{
			{"malformed JSON", `{"id":`},
			{"missing id", `{"location":{"lat":1,"lng":1},"category":"x","urgency":"today","fee":1}`},
			{"unknown urgency", `{"id":"l","location":{"lat":1,"lng":1},"category":"x","urgency":"soon","fee":1}`},
			{"zero fee", `{"id":"l","location":{"lat":1,"lng":1},"category":"x","urgency":"today","fee":0}`},
			{"latitude out of range", `{"id":"l","location":{"lat":91,"lng":1},"category":"x","urgency":"today","fee":1}`},
		}
		for _, tc := range bad {
			Convey("When the lead has "+tc.name, func() {
				w := do(h, http.MethodPost, "/leads", tc.body)
				So(w.Code, ShouldEqual, http.StatusBadRequest)
				var e map[string]string
				decode(w, &e)
				So(e["code"], ShouldEqual, "bad_request")
			})
		}

		Convey("When reading a lead", func() {
			w := do(h, http.MethodGet, "/leads/lead-1", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var l model.Lead
			decode(w, &l)
			So(l.Status, ShouldEqual, model.LeadOffering)

			So(do(h, http.MethodGet, "/leads/missing", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When listing offers and claims", func() {
			w := do(h, http.MethodGet, "/leads/lead-1/offers", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var offers []model.Offer
			decode(w, &offers)
			So(len(offers), ShouldEqual, 1)

			w = do(h, http.MethodGet, "/leads/lead-2/claims", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var claims []model.Claim
			decode(w, &claims)
			So(len(claims), ShouldEqual, 1)

			So(do(h, http.MethodGet, "/leads/missing/offers", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When cancelling", func() {
			w := do(h, http.MethodPost, "/leads/lead-1/cancel", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var l model.Lead
			decode(w, &l)
			So(l.Status, ShouldEqual, model.LeadCancelled)

			So(do(h, http.MethodPost, "/leads/lead-2/cancel", "").Code, ShouldEqual, http.StatusConflict)
			So(do(h, http.MethodPost, "/leads/missing/cancel", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestOffersHandler(t *testing.T) {
	Convey("Given an API server", t, func() {
		deps := newMockDeps()
		h := api.NewServer(deps, mockStats{}).Handler()

		Convey("When responding with a JSON body", func() {
			w := do(h, http.MethodPost, "/offers/respond", `{"token":"good","decision":"accept"}`)
			So(w.Code, ShouldEqual, http.StatusOK)
			var resp cascade.Response
			decode(w, &resp)
			So(resp.Outcome, ShouldEqual, model.OutcomeAccepted)
		})

		Convey("When responding through a link", func() {
			w := do(h, http.MethodPost, "/offers/respond?token=good&decision=decline", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			var resp cascade.Response
			decode(w, &resp)
			So(resp.Outcome, ShouldEqual, model.OutcomeDeclined)
		})

		Convey("When the token is forged", func() {
			w := do(h, http.MethodPost, "/offers/respond", `{"token":"forged","decision":"accept"}`)
			So(w.Code, ShouldEqual, http.StatusUnauthorized)
		})

		Convey("When the token or decision is missing", func() {
			So(do(h, http.MethodPost, "/offers/respond", `{"decision":"accept"}`).Code, ShouldEqual, http.StatusBadRequest)
			So(do(h, http.MethodPost, "/offers/respond", `{"token":"good","decision":"maybe"}`).Code, ShouldEqual, http.StatusBadRequest)
			So(len(deps.responses), ShouldEqual, 0)
		})

		Convey("When reading offers and claims by id", func() {
			So(do(h, http.MethodGet, "/offers/offer-1", "").Code, ShouldEqual, http.StatusOK)
			So(do(h, http.MethodGet, "/offers/missing", "").Code, ShouldEqual, http.StatusNotFound)
			So(do(h, http.MethodGet, "/claims/claim-1", "").Code, ShouldEqual, http.StatusOK)
			So(do(h, http.MethodGet, "/claims/missing", "").Code, ShouldEqual, http.StatusNotFound)
		})
	})
}

func TestOffersHandler_SlowSettle(t *testing.T) {
	Convey("Given a server whose write timeout is shorter than settling", t, func() {
		deps := newMockDeps()
		deps.delay = 300 * time.Millisecond

		start := func(opts ...api.ServerOption) *httptest.Server {
			srv := httptest.NewUnstartedServer(api.NewServer(deps, mockStats{}, opts...).Handler())
			srv.Config.WriteTimeout = 100 * time.Millisecond
			srv.Start()
			return srv
		}
		post := func(srv *httptest.Server) (*http.Response, error) {
			return srv.Client().Post(srv.URL+"/offers/respond", "application/json",
				strings.NewReader(`{"token":"good","decision":"accept"}`))
		}

		Convey("When the respond route carries its own deadline", func() {
			srv := start(api.WithRespondTimeout(2 * time.Second))
			defer srv.Close()

			resp, err := post(srv)
			So(err, ShouldBeNil)
			defer resp.Body.Close()

			Convey("Then the accepted outcome still reaches the caller", func() {
				So(resp.StatusCode, ShouldEqual, http.StatusOK)
				var out cascade.Response
				So(json.NewDecoder(resp.Body).Decode(&out), ShouldBeNil)
				So(out.Outcome, ShouldEqual, model.OutcomeAccepted)
				So(out.OfferID, ShouldEqual, "offer-1")
			})
		})

		Convey("When it relies on the server write timeout alone", func() {
			srv := start()
			defer srv.Close()

			resp, err := post(srv)
			if err == nil {
				defer resp.Body.Close()
				var out cascade.Response
				err = json.NewDecoder(resp.Body).Decode(&out)
			}

			Convey("Then the outcome is lost", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestRealTokenFlow(t *testing.T) {
	Convey("Given links issued by a real token issuer", t, func() {
		now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
		iss, err := token.NewIssuer("secret", token.WithNow(func() time.Time { return now }))
		So(err, ShouldBeNil)
		link, err := iss.Link(model.Offer{ID: "offer-1", LeadID: "lead-1", CandidateID: "cand-a", IssuedAt: now, Deadline: now.Add(time.Minute)})
		So(err, ShouldBeNil)

		Convey("Then the link points at the respond route", func() {
			So(link, ShouldStartWith, "/offers/respond?token=")
		})
	})
}
