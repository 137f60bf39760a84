// Package scoring turns a (lead, candidate) pair into a single ranking score.
//
// Scoring is pure: the lead's creation time stands in for "now", so the same
// inputs always produce the same score.
package scoring

import (
	"math"
	"time"

	"github.com/okian/leadflow/internal/domain/model"
)

const (
	maxScore = 100.0

	defaultDistanceFloor = 20.0
	defaultSoftCap       = 5
	defaultHardCap       = 10

	availableScore = 100.0
	nearCapScore   = 50.0
	atCapScore     = 10.0

	exactScore      = 100.0
	relatedScore    = 70.0
	generalistScore = 40.0

	performanceBaseline = 50.0
)

// Input is everything needed to score one candidate for one lead.
type Input struct {
	Lead       *model.Lead
	Candidate  *model.Candidate
	DistanceKM float64
}

// Breakdown holds the unweighted sub-scores.
type Breakdown struct {
	Distance     float64 `json:"distance"`
	Availability float64 `json:"availability"`
	Specialty    float64 `json:"specialty"`
	Performance  float64 `json:"performance"`
	Quality      float64 `json:"quality"`
}

// Result is the weighted score for a candidate.
type Result struct {
	CandidateID string    `json:"candidate_id"`
	Score       float64   `json:"score"`
	Breakdown   Breakdown `json:"breakdown"`
}

// Scorer computes a score for an input.
type Scorer interface {
	Score(in Input) (Result, error)
}

// Engine is the weighted multi-factor Scorer.
type Engine struct {
	weights        Weights
	distanceFloor  float64
	softCap        int
	hardCap        int
	urgencyWindows map[model.Urgency]time.Duration
}

// NewEngine builds an engine. Invalid weights are rejected here so that a
// misconfigured process fails at startup.
func NewEngine(opts ...Option) (*Engine, error) {
	e := &Engine{
		weights:       DefaultWeights(),
		distanceFloor: defaultDistanceFloor,
		softCap:       defaultSoftCap,
		hardCap:       defaultHardCap,
		urgencyWindows: map[model.Urgency]time.Duration{
			model.UrgencyEmergency: 4 * time.Hour,
			model.UrgencyToday:     24 * time.Hour,
			model.UrgencyThisWeek:  7 * 24 * time.Hour,
			model.UrgencyFlexible:  30 * 24 * time.Hour,
		},
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := e.weights.Validate(); err != nil {
		return nil, err
	}
	if e.softCap > e.hardCap {
		return nil, &InvalidInputError{Field: "soft_workload_cap", Reason: "exceeds hard cap"}
	}
	return e, nil
}

// Weights returns the configured weights.
func (e *Engine) Weights() Weights {
	return e.weights
}

// Score computes the weighted score in [0,100].
func (e *Engine) Score(in Input) (Result, error) {
	if err := validate(in); err != nil {
		return Result{}, err
	}
	if in.DistanceKM > in.Candidate.RadiusKM {
		return Result{}, ErrOutsideRadius
	}

	b := Breakdown{
		Distance:     e.distance(in.DistanceKM, in.Candidate.RadiusKM),
		Availability: e.availability(in.Lead, in.Candidate),
		Specialty:    specialty(in.Candidate.SkillMatch(in.Lead.Category)),
		Performance:  performance(in.Candidate.Stats),
		Quality:      quality(in.Candidate.Stats.Quality),
	}
	w := e.weights
	total := b.Distance*w.Distance +
		b.Availability*w.Availability +
		b.Specialty*w.Specialty +
		b.Performance*w.Performance +
		b.Quality*w.Quality

	return Result{
		CandidateID: in.Candidate.ID,
		Score:       clamp(total),
		Breakdown:   b,
	}, nil
}

// distance decays linearly from 100 at the candidate's base to the floor at
// the edge of the service radius.
func (e *Engine) distance(d, radius float64) float64 {
	return maxScore - (maxScore-e.distanceFloor)*(d/radius)
}

func (e *Engine) availability(l *model.Lead, c *model.Candidate) float64 {
	if c.ActiveJobs >= e.hardCap {
		return atCapScore
	}
	window := e.urgencyWindows[l.Urgency]
	if !c.Availability.Overlaps(l.CreatedAt, l.CreatedAt.Add(window)) {
		return atCapScore
	}
	if c.ActiveJobs >= e.softCap {
		return nearCapScore
	}
	return availableScore
}

func specialty(m model.Match) float64 {
	switch m {
	case model.MatchExact:
		return exactScore
	case model.MatchRelated:
		return relatedScore
	case model.MatchGeneralist:
		return generalistScore
	default:
		return 0
	}
}

func performance(s model.Stats) float64 {
	score := performanceBaseline
	switch {
	case s.AcceptRate >= 0.9:
		score += 15
	case s.AcceptRate >= 0.7:
		score += 5
	case s.AcceptRate < 0.5:
		score -= 15
	}
	switch {
	case s.CompletionRate >= 0.5:
		score += 10
	case s.CompletionRate < 0.2:
		score -= 10
	}
	return clamp(score)
}

// quality maps a normalized quality signal onto the familiar five-star
// thresholds.
func quality(q float64) float64 {
	stars := q * 5
	switch {
	case stars >= 4.8:
		return 100
	case stars >= 4.5:
		return 90
	case stars >= 4.0:
		return 75
	case stars >= 3.5:
		return 50
	default:
		return 25
	}
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(maxScore, v))
}

func validate(in Input) error {
	switch {
	case in.Lead == nil:
		return &InvalidInputError{Field: "lead", Reason: "nil"}
	case in.Candidate == nil:
		return &InvalidInputError{Field: "candidate", Reason: "nil"}
	case in.Lead.ID == "":
		return &InvalidInputError{Field: "lead.id", Reason: "empty"}
	case in.Lead.Category == "":
		return &InvalidInputError{Field: "lead.category", Reason: "empty"}
	case !in.Lead.Urgency.Valid():
		return &InvalidInputError{Field: "lead.urgency", Reason: "unknown tier"}
	case in.Candidate.ID == "":
		return &InvalidInputError{Field: "candidate.id", Reason: "empty"}
	case !(in.Candidate.RadiusKM > 0) || math.IsInf(in.Candidate.RadiusKM, 0):
		return &InvalidInputError{Field: "candidate.radius_km", Reason: "must be positive"}
	case in.DistanceKM < 0 || math.IsNaN(in.DistanceKM):
		return &InvalidInputError{Field: "distance_km", Reason: "must be non-negative"}
	case !unit(in.Candidate.Stats.AcceptRate):
		return &InvalidInputError{Field: "candidate.stats.accept_rate", Reason: "outside [0,1]"}
	case !unit(in.Candidate.Stats.CompletionRate):
		return &InvalidInputError{Field: "candidate.stats.completion_rate", Reason: "outside [0,1]"}
	case !unit(in.Candidate.Stats.Quality):
		return &InvalidInputError{Field: "candidate.stats.quality", Reason: "outside [0,1]"}
	}
	return nil
}

func unit(v float64) bool {
	return v >= 0 && v <= 1
}
