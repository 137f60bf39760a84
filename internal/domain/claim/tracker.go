package claim

import "sync"

const defaultSuspendAfter = 3

// Tracker counts consecutive payment failures per candidate.
type Tracker struct {
	mu        sync.RWMutex
	failures  map[string]int
	threshold int
}

// NewTracker suspends a candidate after threshold consecutive failures.
// threshold <= 0 disables suspension.
func NewTracker(threshold int) *Tracker {
	return &Tracker{
		failures:  make(map[string]int),
		threshold: threshold,
	}
}

// RecordFailure counts a failed charge and reports whether this failure
// crossed the suspension threshold.
func (t *Tracker) RecordFailure(candidateID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.failures[candidateID]++
	return t.threshold > 0 && t.failures[candidateID] == t.threshold
}

// RecordSuccess clears the failure streak.
func (t *Tracker) RecordSuccess(candidateID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.failures, candidateID)
}

// Reinstate lifts a suspension.
func (t *Tracker) Reinstate(candidateID string) {
	t.RecordSuccess(candidateID)
}

// Suspended reports whether the candidate is barred from new offers.
func (t *Tracker) Suspended(candidateID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.threshold > 0 && t.failures[candidateID] >= t.threshold
}

// Failures returns the current failure streak.
func (t *Tracker) Failures(candidateID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.failures[candidateID]
}
