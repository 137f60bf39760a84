package config_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/leadflow/internal/config"
	"github.com/okian/leadflow/internal/domain/claim"
	"github.com/okian/leadflow/internal/domain/model"
	"github.com/okian/leadflow/internal/domain/scoring"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config with defaults", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.Addr, convey.ShouldEqual, ":9080")
			convey.So(cfg.QueueSize, convey.ShouldEqual, 10_000)
			convey.So(cfg.BatchSize, convey.ShouldEqual, 1)
			convey.So(cfg.Weights(), convey.ShouldResemble, scoring.DefaultWeights())
			convey.So(cfg.OfferTimeouts()[model.UrgencyEmergency], convey.ShouldEqual, 2*time.Minute)
			convey.So(cfg.PaymentTimeout(), convey.ShouldEqual, 10*time.Second)
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given a default config", t, func() {
		cases := []struct {
			name   string
			mutate func(*config.Config)
		}{
			{"empty addr", func(c *config.Config) { c.Addr = "" }},
			{"weights off by a tenth", func(c *config.Config) { c.WeightQuality = 0.15 }},
			{"negative weight", func(c *config.Config) { c.WeightQuality = -0.05; c.WeightDistance = 0.5 }},
			{"zero batch size", func(c *config.Config) { c.BatchSize = 0 }},
			{"inverted workload caps", func(c *config.Config) { c.SoftWorkloadCap = 12 }},
			{"payment timeout above the emergency window", func(c *config.Config) { c.PaymentTimeoutMS = 3 * 60 * 1000 }},
			{"payment timeout equal to an offer timeout", func(c *config.Config) { c.OfferTimeoutTodayMS = c.PaymentTimeoutMS }},
			{"retries outlasting the emergency window", func(c *config.Config) {
				c.PaymentTimeoutMS = 50_000
				c.PaymentMaxAttempts = 3
			}},
			{"no payment attempts", func(c *config.Config) { c.PaymentMaxAttempts = 0 }},
			{"empty token secret", func(c *config.Config) { c.TokenSecret = "" }},
		}
		for _, tc := range cases {
			convey.Convey("When it has "+tc.name, func() {
				cfg := config.New(context.Background())
				tc.mutate(cfg)
				convey.So(errors.Is(cfg.Validate(), config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		}
	})
}

func TestConfig_SettleBudget(t *testing.T) {
	convey.Convey("Given the default payment settings", t, func() {
		cfg := config.New(context.Background())

		convey.Convey("Then the budget covers every attempt and the pauses between them", func() {
			convey.So(cfg.SettleBudget(), convey.ShouldEqual, 3*10*time.Second+2*claim.MaxBackoff)
			convey.So(cfg.SettleBudget(), convey.ShouldBeLessThan, cfg.OfferTimeouts()[model.UrgencyEmergency])
		})

		convey.Convey("When a single attempt is allowed there is no pause", func() {
			cfg.PaymentMaxAttempts = 1
			convey.So(cfg.SettleBudget(), convey.ShouldEqual, 10*time.Second)
		})
	})
}
