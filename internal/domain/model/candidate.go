package model

import "time"

// Window is a half-open availability interval. A zero Until means open-ended.
type Window struct {
	From  time.Time `json:"from" yaml:"from"`
	Until time.Time `json:"until" yaml:"until"`
}

// Overlaps reports whether w intersects [from, until).
func (w Window) Overlaps(from, until time.Time) bool {
	if !w.Until.IsZero() && !w.Until.After(from) {
		return false
	}
	return w.From.Before(until)
}

// Stats are the rolling performance signals of a candidate, each in [0,1].
type Stats struct {
	AcceptRate     float64 `json:"accept_rate" yaml:"accept_rate"`
	CompletionRate float64 `json:"completion_rate" yaml:"completion_rate"`
	Quality        float64 `json:"quality" yaml:"quality"`
}

// Candidate is a service provider eligible to receive offers.
// The core treats it as read-only.
type Candidate struct {
	ID             string   `json:"id" yaml:"id"`
	Location       Location `json:"location" yaml:"location"`
	RadiusKM       float64  `json:"radius_km" yaml:"radius_km"`
	Skills         []string `json:"skills" yaml:"skills"`
	RelatedSkills  []string `json:"related_skills,omitempty" yaml:"related_skills"`
	Generalist     bool     `json:"generalist,omitempty" yaml:"generalist"`
	Certifications []string `json:"certifications,omitempty" yaml:"certifications"`
	Availability   Window   `json:"availability" yaml:"availability"`
	ActiveJobs     int      `json:"active_jobs" yaml:"active_jobs"`
	Stats          Stats    `json:"stats" yaml:"stats"`
	PaymentRef     string   `json:"-" yaml:"payment_ref"`
	Suspended      bool     `json:"suspended,omitempty" yaml:"suspended"`
}

// HasCertifications reports whether every required certification is held.
func (c *Candidate) HasCertifications(required []string) bool {
	for _, r := range required {
		if !contains(c.Certifications, r) {
			return false
		}
	}
	return true
}

// Match classifies how a candidate's declared skills cover a category.
type Match int

// Skill match levels, weakest first.
const (
	MatchNone Match = iota
	MatchGeneralist
	MatchRelated
	MatchExact
)

// SkillMatch reports how the candidate can serve category.
func (c *Candidate) SkillMatch(category string) Match {
	switch {
	case contains(c.Skills, category):
		return MatchExact
	case contains(c.RelatedSkills, category):
		return MatchRelated
	case c.Generalist:
		return MatchGeneralist
	default:
		return MatchNone
	}
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
