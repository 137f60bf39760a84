package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/okian/leadflow/internal/domain/model"
	"github.com/okian/leadflow/pkg/logger"
)

// client wraps http.Client with the service base URL.
type client struct {
	http    *http.Client
	baseURL string
}

func newClient(cfg *Config) *client {
	return &client{http: &http.Client{Timeout: cfg.Timeout}, baseURL: cfg.BaseURL}
}

func (c *client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		rd = bytes.NewReader(buf)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.http.Do(req)
}

// lead fetches a lead's current state.
func (c *client) lead(ctx context.Context, id string) (model.Lead, error) {
	resp, err := c.do(ctx, http.MethodGet, "/leads/"+url.PathEscape(id), nil)
	if err != nil {
		return model.Lead{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return model.Lead{}, fmt.Errorf("get lead %s: status %d", id, resp.StatusCode)
	}
	var l model.Lead
	if err := json.NewDecoder(resp.Body).Decode(&l); err != nil {
		return model.Lead{}, fmt.Errorf("decode lead %s: %w", id, err)
	}
	return l, nil
}

// submitLeads posts leads with at most cfg.Workers in flight, paced by cfg.Rate.
func submitLeads(ctx context.Context, cfg *Config, c *client, leads []leadRequest, stats *Stats) error {
	log := logger.Get().Named("loadgen")
	log.Info(ctx, "submitting leads", logger.Int("count", len(leads)), logger.Int("workers", cfg.Workers))

	limit := rate.Inf
	if cfg.Rate > 0 {
		limit = rate.Limit(cfg.Rate)
	}
	limiter := rate.NewLimiter(limit, max(1, cfg.Workers))

	var counts struct {
		submitted, accepted, duplicate, rejected, throttled, failed atomic.Int64
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Workers)
	for _, l := range leads {
		if err := limiter.Wait(gctx); err != nil {
			break
		}
		g.Go(func() error {
			res := submitLead(gctx, c, l)
			counts.submitted.Add(1)
			switch res {
			case resultAccepted:
				counts.accepted.Add(1)
			case resultDuplicate:
				counts.duplicate.Add(1)
			case resultRejected:
				counts.rejected.Add(1)
			case resultThrottled:
				counts.throttled.Add(1)
			default:
				counts.failed.Add(1)
			}
			if cfg.Verbose {
				log.Debug(gctx, "lead submitted", logger.String("leadID", l.ID), logger.String("result", res))
			}
			return nil
		})
	}
	_ = g.Wait()

	stats.LeadsSubmitted = int(counts.submitted.Load())
	stats.LeadsAccepted = int(counts.accepted.Load())
	stats.LeadsDuplicate = int(counts.duplicate.Load())
	stats.LeadsRejected = int(counts.rejected.Load())
	stats.LeadsThrottled = int(counts.throttled.Load())
	stats.LeadsFailed = int(counts.failed.Load())

	log.Info(ctx, "lead submission completed",
		logger.Int("accepted", stats.LeadsAccepted),
		logger.Int("duplicate", stats.LeadsDuplicate),
		logger.Int("rejected", stats.LeadsRejected),
		logger.Int("throttled", stats.LeadsThrottled),
		logger.Int("failed", stats.LeadsFailed))

	return ctx.Err()
}

// submitLead posts one lead and classifies the reply.
func submitLead(ctx context.Context, c *client, l leadRequest) string {
	resp, err := c.do(ctx, http.MethodPost, "/leads", l)
	if err != nil {
		return resultFailed
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusAccepted:
		return resultAccepted
	case http.StatusOK:
		var ack ackResponse
		if err := json.NewDecoder(resp.Body).Decode(&ack); err == nil && ack.Duplicate {
			return resultDuplicate
		}
		return resultFailed
	case http.StatusBadRequest:
		return resultRejected
	case http.StatusTooManyRequests:
		return resultThrottled
	default:
		return resultFailed
	}
}
