// Package ranking orders the candidates able to serve a lead.
package ranking

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sort"
	"sync"
	"time"

	"github.com/okian/leadflow/internal/domain/geo"
	"github.com/okian/leadflow/internal/domain/model"
	"github.com/okian/leadflow/internal/domain/scoring"
	"github.com/okian/leadflow/pkg/logger"
	"github.com/okian/leadflow/pkg/metrics"
)

const defaultMinScore = 30.0

// Snapshot is a consistent, versioned view of the candidate pool.
type Snapshot struct {
	Version    uint64
	Candidates []*model.Candidate
}

// Directory supplies candidate snapshots. Candidates are read-only.
type Directory interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// Suspensions reports candidates temporarily barred from new offers.
type Suspensions interface {
	Suspended(candidateID string) bool
}

// Entry is one ranked candidate.
type Entry struct {
	Rank       int               `json:"rank"`
	Candidate  *model.Candidate  `json:"-"`
	Score      float64           `json:"score"`
	DistanceKM float64           `json:"distance_km"`
	Breakdown  scoring.Breakdown `json:"breakdown"`
}

// CandidateID is shorthand for e.Candidate.ID.
func (e Entry) CandidateID() string {
	return e.Candidate.ID
}

// Ranking is the immutable ordered result for one lead.
type Ranking struct {
	leadID  string
	version uint64
	entries []Entry
}

// LeadID returns the lead the ranking was computed for.
func (r *Ranking) LeadID() string { return r.leadID }

// Version returns the directory snapshot version used.
func (r *Ranking) Version() uint64 { return r.version }

// Len returns the number of ranked candidates.
func (r *Ranking) Len() int {
	if r == nil {
		return 0
	}
	return len(r.entries)
}

// At returns the entry at rank index i.
func (r *Ranking) At(i int) (Entry, bool) {
	if r == nil || i < 0 || i >= len(r.entries) {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Entries returns a copy of all entries in rank order.
func (r *Ranking) Entries() []Entry {
	if r == nil {
		return nil
	}
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// All yields (rank index, entry) pairs lazily in rank order.
func (r *Ranking) All() iter.Seq2[int, Entry] {
	return func(yield func(int, Entry) bool) {
		for i := 0; i < r.Len(); i++ {
			if !yield(i, r.entries[i]) {
				return
			}
		}
	}
}

// Ranker filters, scores and orders candidates.
type Ranker struct {
	directory     Directory
	scorer        scoring.Scorer
	suspensions   Suspensions
	minScore      float64
	maxCandidates int
	geoOpts       []geo.Option
	logger        logger.Logger

	mu           sync.Mutex
	index        *geo.Index
	indexVersion uint64
}

// NewRanker creates a ranker over a directory and scorer.
func NewRanker(directory Directory, scorer scoring.Scorer, opts ...Option) *Ranker {
	r := &Ranker{
		directory: directory,
		scorer:    scorer,
		minScore:  defaultMinScore,
		logger:    logger.Get().Named("ranker"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rank computes the ranking for lead. The same lead and the same snapshot
// always produce the same order.
func (r *Ranker) Rank(ctx context.Context, lead *model.Lead) (*Ranking, error) {
	if lead == nil {
		return nil, fmt.Errorf("rank: %w: nil lead", model.ErrInvalidLead)
	}
	if err := lead.Validate(); err != nil {
		return nil, fmt.Errorf("rank: %w", err)
	}
	start := time.Now()

	snap, err := r.directory.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("rank: %w: %w", ErrDirectoryUnavailable, err)
	}
	idx := r.indexFor(snap)

	// A directory may list a candidate more than once; keep its best entry.
	best := make(map[string]Entry)
	for _, n := range idx.Nearby(lead.Location) {
		c := n.Candidate
		if !r.eligible(lead, c) {
			continue
		}
		res, err := r.scorer.Score(scoring.Input{Lead: lead, Candidate: c, DistanceKM: n.DistanceKM})
		if err != nil {
			if !errors.Is(err, scoring.ErrOutsideRadius) {
				r.logger.Warn(ctx, "candidate skipped",
					logger.String("lead_id", lead.ID),
					logger.String("candidate_id", c.ID),
					logger.Error(err),
				)
			}
			continue
		}
		if res.Score < r.minScore {
			continue
		}
		e := Entry{
			Candidate:  c,
			Score:      res.Score,
			DistanceKM: n.DistanceKM,
			Breakdown:  res.Breakdown,
		}
		if prev, ok := best[c.ID]; ok && !better(e, prev) {
			continue
		}
		best[c.ID] = e
	}

	entries := make([]Entry, 0, len(best))
	for _, e := range best {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].Candidate.ID < entries[j].Candidate.ID
	})
	if r.maxCandidates > 0 && len(entries) > r.maxCandidates {
		entries = entries[:r.maxCandidates]
	}
	for i := range entries {
		entries[i].Rank = i
	}

	metrics.RecordRanking(metrics.Since(start), len(entries))
	r.logger.Debug(ctx, "lead ranked",
		logger.String("lead_id", lead.ID),
		logger.Int("candidates", len(entries)),
		logger.Int64("snapshot_version", int64(snap.Version)),
	)
	return &Ranking{leadID: lead.ID, version: snap.Version, entries: entries}, nil
}

func better(a, b Entry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DistanceKM < b.DistanceKM
}

func (r *Ranker) eligible(lead *model.Lead, c *model.Candidate) bool {
	if c.Suspended {
		return false
	}
	if r.suspensions != nil && r.suspensions.Suspended(c.ID) {
		return false
	}
	if c.SkillMatch(lead.Category) == model.MatchNone {
		return false
	}
	return c.HasCertifications(lead.RequiredCertifications)
}

// indexFor returns the geo index for snap, rebuilding it on version change.
func (r *Ranker) indexFor(snap Snapshot) *geo.Index {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.index == nil || r.indexVersion != snap.Version {
		r.index = geo.NewIndex(snap.Candidates, r.geoOpts...)
		r.indexVersion = snap.Version
	}
	return r.index
}
