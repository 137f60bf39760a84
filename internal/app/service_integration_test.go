package service_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	service "github.com/okian/leadflow/internal/app"
	"github.com/okian/leadflow/internal/domain/model"
)

const candidateFile = `
candidates:
  - id: cand-near
    location: {lat: 51.5, lng: -0.12}
    radius_km: 20
    skills: [boiler_repair]
    stats: {accept_rate: 0.9, completion_rate: 0.9, quality: 0.9}
    payment_ref: pm_near
`

func TestServiceIntegration_SQLite(t *testing.T) {
	Convey("Given a service backed by SQLite and a candidates file", t, func() {
		ctx := context.Background()
		dir := t.TempDir()
		path := filepath.Join(dir, "candidates.yaml")
		So(os.WriteFile(path, []byte(candidateFile), 0o600), ShouldBeNil)

		cfg := testConfig()
		cfg.StoreDSN = filepath.Join(dir, "leadflow.db")
		cfg.CandidatesFile = path

		notes := newInbox()
		svc := service.New(service.WithConfig(cfg), service.WithNotifier(notes))
		So(svc.Start(ctx), ShouldBeNil)

		Convey("When a lead is claimed and the service restarts", func() {
			_, err := svc.Submit(ctx, lead("lead-db"))
			So(err, ShouldBeNil)
			So(eventually(func() bool { return notes.token("cand-near") != "" }), ShouldBeTrue)

			resp, err := svc.Respond(ctx, notes.token("cand-near"), model.DecisionAccept)
			So(err, ShouldBeNil)
			So(resp.Outcome, ShouldEqual, model.OutcomeAccepted)
			So(svc.ReloadCandidates(ctx), ShouldBeNil)
			So(svc.Stop(ctx), ShouldBeNil)

			restarted := service.New(service.WithConfig(cfg))
			So(restarted.Start(ctx), ShouldBeNil)
			defer func() { _ = restarted.Stop(ctx) }()

			Convey("Then the admin reads fall back to the store", func() {
				l, err := restarted.Lead(ctx, "lead-db")
				So(err, ShouldBeNil)
				So(l.Status, ShouldEqual, model.LeadClaimed)

				offers, err := restarted.Offers(ctx, "lead-db")
				So(err, ShouldBeNil)
				So(len(offers), ShouldEqual, 1)
				So(offers[0].Status, ShouldEqual, model.OfferAccepted)

				claims, err := restarted.Claims(ctx, "lead-db")
				So(err, ShouldBeNil)
				So(len(claims), ShouldEqual, 1)
				So(claims[0].Status, ShouldEqual, model.ClaimConfirmed)

				o, err := restarted.Offer(ctx, offers[0].ID)
				So(err, ShouldBeNil)
				So(o.CandidateID, ShouldEqual, "cand-near")
			})
		})
	})
}
