package loadgen

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/leadflow/pkg/logger"
)

// File permission constants.
const (
	directoryPermission = 0750
	filePermission      = 0600
)

// ErrInvalidConfig is returned when a run cannot start with the given config.
var ErrInvalidConfig = errors.New("invalid load config")

// Run executes a complete load run: health check, generation, submission
// and settlement. The returned stats are filled even when an error occurs.
func Run(ctx context.Context, cfg *Config, rng *rand.Rand) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	if err := normalize(cfg); err != nil {
		return stats, err
	}
	log := logger.Get().Named("loadgen")

	log.Info(ctx, "starting leadflow load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("leads", cfg.NumLeads),
		logger.Int("workers", cfg.Workers),
		logger.Float64("rate", cfg.Rate),
		logger.Int("duplicatePct", cfg.DuplicatePct))

	c := newClient(cfg)
	if err := checkServiceHealth(ctx, c); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	leads := generateLeads(cfg, rng)
	stats.LeadsGenerated = len(leads)

	if err := submitLeads(ctx, cfg, c, leads, stats); err != nil {
		return stats, fmt.Errorf("lead submission failed: %w", err)
	}

	if cfg.SettleWait > 0 {
		if err := awaitSettled(ctx, cfg, c, uniqueIDs(leads), stats); err != nil {
			return stats, fmt.Errorf("settlement check failed: %w", err)
		}
	}

	if cfg.OutputFile != "" {
		if err := saveLeads(cfg.OutputFile, leads); err != nil {
			log.Warn(ctx, "failed to save leads to file", logger.Error(err))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)
	return stats, nil
}

func normalize(cfg *Config) error {
	switch {
	case cfg.BaseURL == "":
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	case cfg.NumLeads < 0:
		return fmt.Errorf("%w: negative lead count", ErrInvalidConfig)
	case cfg.DuplicatePct < 0 || cfg.DuplicatePct >= percent:
		return fmt.Errorf("%w: duplicate percentage must be in [0,100)", ErrInvalidConfig)
	case !cfg.Center.Valid():
		return fmt.Errorf("%w: invalid center", ErrInvalidConfig)
	}
	if cfg.NumLeads == 0 {
		cfg.NumLeads = DefaultNumLeads
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.SpreadKM <= 0 {
		cfg.SpreadKM = DefaultSpreadKM
	}
	if len(cfg.Categories) == 0 {
		cfg.Categories = []string{"boiler_repair"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, c *client) error {
	resp, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}

// saveLeads writes the submission plan as a JSON array.
func saveLeads(filename string, leads []leadRequest) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	buf, err := json.MarshalIndent(leads, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal leads: %w", err)
	}
	return os.WriteFile(filename, buf, filePermission)
}

func displayFinalStats(ctx context.Context, stats *Stats) {
	var acceptRate, leadsPerSecond float64
	if stats.LeadsSubmitted > 0 {
		acceptRate = float64(stats.LeadsAccepted) / float64(stats.LeadsSubmitted) * percent
	}
	if stats.Duration > 0 {
		leadsPerSecond = float64(stats.LeadsSubmitted) / stats.Duration.Seconds()
	}

	logger.Get().Named("loadgen").Info(ctx, "final statistics",
		logger.Int("leadsGenerated", stats.LeadsGenerated),
		logger.Int("leadsSubmitted", stats.LeadsSubmitted),
		logger.Int("leadsAccepted", stats.LeadsAccepted),
		logger.Int("leadsDuplicate", stats.LeadsDuplicate),
		logger.Int("leadsFinalized", stats.LeadsFinalized),
		logger.Int("leadsUnsettled", stats.LeadsUnsettled),
		logger.Any("finalByStatus", stats.FinalByStatus),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("leadsPerSecond", leadsPerSecond))
}
