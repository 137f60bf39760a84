package dedupe_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/leadflow/internal/domain/dedupe"
)

func TestInMemoryDeduper(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new InMemoryDeduper", t, func() {
		Convey("When created with default options", func() {
			d := dedupe.NewInMemoryDeduper()
			So(d, ShouldNotBeNil)
			So(d.Size(), ShouldEqual, 0)
		})

		Convey("When recording leads", func() {
			d := dedupe.NewInMemoryDeduper()

			Convey("And the lead is new", func() {
				So(d.SeenAndRecord(ctx, "lead-1"), ShouldBeFalse)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And the lead was already seen", func() {
				d.SeenAndRecord(ctx, "lead-1")
				So(d.SeenAndRecord(ctx, "lead-1"), ShouldBeTrue)
				So(d.Size(), ShouldEqual, 1)
			})

			Convey("And the lead is unrecorded", func() {
				d.SeenAndRecord(ctx, "lead-1")
				d.Unrecord(ctx, "lead-1")
				So(d.Size(), ShouldEqual, 0)
				So(d.SeenAndRecord(ctx, "lead-1"), ShouldBeFalse)
			})

			Convey("And an unknown lead is unrecorded", func() {
				d.Unrecord(ctx, "missing")
				So(d.Size(), ShouldEqual, 0)
			})
		})

		Convey("When the deduper is bounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(2))
			d.SeenAndRecord(ctx, "lead-1")
			d.SeenAndRecord(ctx, "lead-2")
			d.SeenAndRecord(ctx, "lead-3")

			Convey("Then the oldest lead is forgotten first", func() {
				So(d.Size(), ShouldEqual, 2)
				So(d.SeenAndRecord(ctx, "lead-3"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "lead-2"), ShouldBeTrue)
				So(d.SeenAndRecord(ctx, "lead-1"), ShouldBeFalse)
			})

			Convey("Then an unrecorded slot is not evicted twice", func() {
				d.Unrecord(ctx, "lead-2")
				So(d.Size(), ShouldEqual, 1)
				d.SeenAndRecord(ctx, "lead-4")
				d.SeenAndRecord(ctx, "lead-5")
				So(d.Size(), ShouldEqual, 2)
				So(d.SeenAndRecord(ctx, "lead-5"), ShouldBeTrue)
			})
		})

		Convey("When the deduper is unbounded", func() {
			d := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(0))
			for i := range 1000 {
				d.SeenAndRecord(ctx, fmt.Sprintf("lead-%d", i))
			}
			So(d.Size(), ShouldEqual, 1000)
			So(d.SeenAndRecord(ctx, "lead-0"), ShouldBeTrue)
		})

		Convey("When many goroutines submit the same lead", func() {
			d := dedupe.NewInMemoryDeduper()
			var (
				wg    sync.WaitGroup
				mu    sync.Mutex
				fresh int
			)
			for range 50 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					if !d.SeenAndRecord(ctx, "lead-hot") {
						mu.Lock()
						fresh++
						mu.Unlock()
					}
				}()
			}
			wg.Wait()
			So(fresh, ShouldEqual, 1)
			So(d.Size(), ShouldEqual, 1)
		})
	})
}
