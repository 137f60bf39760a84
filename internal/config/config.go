// Package config defines service configuration and its loading.
package config

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/okian/leadflow/internal/domain/claim"
	"github.com/okian/leadflow/internal/domain/model"
	"github.com/okian/leadflow/internal/domain/scoring"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`
	// BaseURL prefixes offer response links.
	BaseURL string `koanf:"base_url"`

	// QueueSize bounds the task queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of task workers; 0 scales with CPUs.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize bounds the intake dedupe window; 0 is unbounded.
	DedupeSize int `koanf:"dedupe_size"`

	// StoreDSN selects persistence: empty for memory, otherwise a SQLite DSN.
	StoreDSN string `koanf:"store_dsn"`
	// CandidatesFile is the YAML candidate directory.
	CandidatesFile string `koanf:"candidates_file"`

	WeightDistance     float64 `koanf:"weight_distance"`
	WeightAvailability float64 `koanf:"weight_availability"`
	WeightSpecialty    float64 `koanf:"weight_specialty"`
	WeightPerformance  float64 `koanf:"weight_performance"`
	WeightQuality      float64 `koanf:"weight_quality"`

	DistanceFloor   float64 `koanf:"distance_floor"`
	SoftWorkloadCap int     `koanf:"soft_workload_cap"`
	HardWorkloadCap int     `koanf:"hard_workload_cap"`
	MinScore        float64 `koanf:"min_score"`
	MaxCandidates   int     `koanf:"max_candidates"`
	GeoCellDegrees  float64 `koanf:"geo_cell_degrees"`

	// BatchSize is the offer window: 1 is sequential, K > 1 is top-K.
	BatchSize int `koanf:"batch_size"`

	OfferTimeoutEmergencyMS int `koanf:"offer_timeout_emergency_ms"`
	OfferTimeoutTodayMS     int `koanf:"offer_timeout_today_ms"`
	OfferTimeoutThisWeekMS  int `koanf:"offer_timeout_this_week_ms"`
	OfferTimeoutFlexibleMS  int `koanf:"offer_timeout_flexible_ms"`

	PaymentTimeoutMS     int `koanf:"payment_timeout_ms"`
	PaymentMaxAttempts   int `koanf:"payment_max_attempts"`
	SuspendAfterFailures int `koanf:"suspend_after_failures"`

	NotifyRatePerSec float64 `koanf:"notify_rate_per_sec"`
	NotifyBurst      int     `koanf:"notify_burst"`

	TokenSecret string `koanf:"token_secret"`
	// TokenTTLMS is how long a response link outlives its offer deadline.
	TokenTTLMS int `koanf:"token_ttl_ms"`
}

// New creates a Config populated with defaults.
func New(_ context.Context) *Config {
	w := scoring.DefaultWeights()
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":9080",
		BaseURL:                 "http://localhost:9080",
		QueueSize:               10_000,
		WorkerCount:             runtime.NumCPU() * 4,
		DedupeSize:              50_000,
		WeightDistance:          w.Distance,
		WeightAvailability:      w.Availability,
		WeightSpecialty:         w.Specialty,
		WeightPerformance:       w.Performance,
		WeightQuality:           w.Quality,
		DistanceFloor:           20,
		SoftWorkloadCap:         5,
		HardWorkloadCap:         10,
		MinScore:                30,
		MaxCandidates:           20,
		GeoCellDegrees:          0.5,
		BatchSize:               1,
		OfferTimeoutEmergencyMS: int((2 * time.Minute).Milliseconds()),
		OfferTimeoutTodayMS:     int((10 * time.Minute).Milliseconds()),
		OfferTimeoutThisWeekMS:  int((30 * time.Minute).Milliseconds()),
		OfferTimeoutFlexibleMS:  int((2 * time.Hour).Milliseconds()),
		PaymentTimeoutMS:        10_000,
		PaymentMaxAttempts:      3,
		SuspendAfterFailures:    3,
		NotifyRatePerSec:        50,
		NotifyBurst:             10,
		TokenSecret:             "change-me",
		TokenTTLMS:              int((24 * time.Hour).Milliseconds()),
	}
}

// Weights returns the scoring weights.
func (c *Config) Weights() scoring.Weights {
	return scoring.Weights{
		Distance:     c.WeightDistance,
		Availability: c.WeightAvailability,
		Specialty:    c.WeightSpecialty,
		Performance:  c.WeightPerformance,
		Quality:      c.WeightQuality,
	}
}

// OfferTimeouts returns the response window per urgency tier.
func (c *Config) OfferTimeouts() map[model.Urgency]time.Duration {
	return map[model.Urgency]time.Duration{
		model.UrgencyEmergency: ms(c.OfferTimeoutEmergencyMS),
		model.UrgencyToday:     ms(c.OfferTimeoutTodayMS),
		model.UrgencyThisWeek:  ms(c.OfferTimeoutThisWeekMS),
		model.UrgencyFlexible:  ms(c.OfferTimeoutFlexibleMS),
	}
}

// PaymentTimeout returns the bound on one gateway call.
func (c *Config) PaymentTimeout() time.Duration { return ms(c.PaymentTimeoutMS) }

// SettleBudget bounds how long settling one claim may take: every gateway
// attempt at its timeout plus the longest pause between attempts.
func (c *Config) SettleBudget() time.Duration {
	attempts := max(c.PaymentMaxAttempts, 1)
	return c.PaymentTimeout()*time.Duration(attempts) + claim.MaxBackoff*time.Duration(attempts-1)
}

// TokenTTL returns how long a link stays valid after its deadline.
func (c *Config) TokenTTL() time.Duration { return ms(c.TokenTTLMS) }

// Validate reports the first inconsistency, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if err := c.Weights().Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.SoftWorkloadCap <= 0 || c.HardWorkloadCap < c.SoftWorkloadCap {
		return fmt.Errorf("%w: workload caps %d/%d", ErrInvalidConfig, c.SoftWorkloadCap, c.HardWorkloadCap)
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("%w: batch_size must be at least 1", ErrInvalidConfig)
	}
	if c.PaymentTimeoutMS <= 0 || c.PaymentMaxAttempts < 1 {
		return fmt.Errorf("%w: payment timeout and attempts must be positive", ErrInvalidConfig)
	}
	for u, d := range c.OfferTimeouts() {
		if d <= 0 {
			return fmt.Errorf("%w: offer timeout for %s must be positive", ErrInvalidConfig, u)
		}
		if c.SettleBudget() >= d {
			return fmt.Errorf("%w: settling a claim may take %s, which must be below the %s offer timeout %s",
				ErrInvalidConfig, c.SettleBudget(), u, d)
		}
	}
	if c.TokenSecret == "" {
		return fmt.Errorf("%w: token_secret must not be empty", ErrInvalidConfig)
	}
	return nil
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }
