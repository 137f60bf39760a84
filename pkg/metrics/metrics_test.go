package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	. "github.com/smartystreets/goconvey/convey"
)

func TestManagerCreation(t *testing.T) {
	Convey("Given a private registry", t, func() {
		registry := prometheus.NewRegistry()

		Convey("When creating a manager with custom options", func() {
			m := NewManager(
				WithNamespace("test"),
				WithSubsystem("cascade"),
				WithHistogramBuckets([]float64{1, 10, 100}),
				WithRefreshInterval(5*time.Second),
				WithConstLabels(map[string]string{"env": "test"}),
				WithPrometheusRegistry(registry),
			)

			Convey("Then every collector is registered on that registry", func() {
				So(m, ShouldNotBeNil)
				So(m.RefreshInterval(), ShouldEqual, 5*time.Second)

				m.leadsIngested.Inc()
				m.leadsFinalized.WithLabelValues("CLAIMED").Inc()
				families, err := registry.Gather()
				So(err, ShouldBeNil)

				names := map[string]bool{}
				for _, f := range families {
					names[f.GetName()] = true
				}
				So(names["test_cascade_leads_ingested_total"], ShouldBeTrue)
				So(names["test_cascade_leads_finalized_total"], ShouldBeTrue)
			})
		})
	})
}

func TestPackageRecorders(t *testing.T) {
	Convey("Given the global manager", t, func() {
		Convey("When recording lead lifecycle events", func() {
			before := testutil.ToFloat64(globalManager.leadsFinalized.WithLabelValues("EXHAUSTED"))
			RecordLeadFinalized("EXHAUSTED")

			Convey("Then the labelled counter advances", func() {
				after := testutil.ToFloat64(globalManager.leadsFinalized.WithLabelValues("EXHAUSTED"))
				So(after-before, ShouldEqual, 1)
			})
		})

		Convey("When calling every recorder", func() {
			Convey("Then none of them panic", func() {
				So(func() {
					RecordLeadIngested()
					RecordLeadDuplicate()
					RecordLeadRejected()
					UpdateLeadsActive(3)
					RecordRanking(1.5, 4)
					RecordOfferIssued()
					RecordOfferResponse("accepted")
					RecordOfferExpired()
					RecordClaim("CONFIRMED")
					RecordClaimContention()
					RecordPaymentLatency(12)
					RecordPaymentRetry()
					RecordNotification("offer", "ok")
					RecordSuspension()
					UpdateQueueSize(1)
					UpdateQueueCapacity(10)
					UpdateQueueUtilization(0.1)
					RecordQueueEnqueue()
					RecordQueueDequeue()
					RecordQueueRejected()
					UpdateWorkerCount(2)
					RecordWorkerProcessingLatency(3)
					RecordWorkerError()
					RecordHTTPRequest("leads", "POST", "202", 0.4)
					RecordError("cascade", "store")
					UpdateSystemMemoryUsage(1024)
					UpdateSystemGoroutineCount(8)
					RecordSystemGCPauseTime(0.2)
				}, ShouldNotPanic)
			})
		})

		Convey("When measuring elapsed time", func() {
			start := time.Now().Add(-2 * time.Millisecond)
			So(Since(start), ShouldBeGreaterThanOrEqualTo, 2)
		})

		So(GetRegistry(), ShouldNotBeNil)
	})
}
