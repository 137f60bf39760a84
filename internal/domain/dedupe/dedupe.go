// Package dedupe tracks lead ids that have already been admitted so that a
// retried submission from a lead source is acknowledged without being
// dispatched twice.
package dedupe

import (
	"context"
	"sync"
	"sync/atomic"
)

const defaultMaxSize = 50_000

// Deduper records seen ids to ensure at-most-once admission.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen, false if it was newly recorded.
	SeenAndRecord(ctx context.Context, id string) bool
	// Unrecord forgets id so that a submission rejected downstream (for
	// example on queue backpressure) can be retried.
	Unrecord(ctx context.Context, id string)
	Size() int64
}

type slot struct {
	id   string
	used bool
}

// inMemoryDeduper keeps ids in a map. In bounded mode a ring of insertion
// order evicts the oldest id once maxSize is reached.
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]int // id -> slot in ring (-1 when unbounded)
	ring    []slot
	next    int
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper creates a deduper. maxSize <= 0 means unbounded.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: defaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]int)
	if d.maxSize > 0 {
		d.ring = make([]slot, d.maxSize)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}
	if d.maxSize <= 0 {
		d.seen[id] = -1
		d.size.Add(1)
		return false
	}

	i := d.next
	d.next = (d.next + 1) % d.maxSize
	if old := d.ring[i]; old.used {
		delete(d.seen, old.id)
		d.size.Add(-1)
	}
	d.ring[i] = slot{id: id, used: true}
	d.seen[id] = i
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Unrecord(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	i, ok := d.seen[id]
	if !ok {
		return
	}
	delete(d.seen, id)
	if i >= 0 {
		d.ring[i] = slot{}
	}
	d.size.Add(-1)
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}
