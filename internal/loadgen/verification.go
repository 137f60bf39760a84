package loadgen

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/leadflow/internal/domain/model"
	"github.com/okian/leadflow/pkg/logger"
)

// awaitSettled polls every lead until it reaches a terminal status or
// cfg.SettleWait elapses, and tallies the final statuses.
func awaitSettled(ctx context.Context, cfg *Config, c *client, ids []string, stats *Stats) error {
	log := logger.Get().Named("loadgen")
	log.Info(ctx, "waiting for leads to settle", logger.Int("leads", len(ids)), logger.Duration("wait", cfg.SettleWait))

	ctx, cancel := context.WithTimeout(ctx, cfg.SettleWait)
	defer cancel()

	final := make([]model.LeadStatus, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for i, id := range ids {
		g.Go(func() error {
			final[i] = pollLead(gctx, c, id)
			return nil
		})
	}
	_ = g.Wait()

	stats.FinalByStatus = make(map[model.LeadStatus]int)
	for _, st := range final {
		if st.Terminal() {
			stats.LeadsFinalized++
			stats.FinalByStatus[st]++
			continue
		}
		stats.LeadsUnsettled++
	}

	if stats.LeadsUnsettled > 0 {
		log.Warn(ctx, "some leads did not settle", logger.Int("unsettled", stats.LeadsUnsettled))
	}
	return nil
}

// pollLead returns the last observed status, or "" if the lead was never read.
func pollLead(ctx context.Context, c *client, id string) model.LeadStatus {
	var last model.LeadStatus
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		if l, err := c.lead(ctx, id); err == nil {
			last = l.Status
			if last.Terminal() {
				return last
			}
		}
		select {
		case <-ctx.Done():
			return last
		case <-ticker.C:
		}
	}
}
