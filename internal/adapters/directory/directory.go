// Package directory serves candidate snapshots loaded from YAML.
package directory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/okian/leadflow/internal/domain/model"
	"github.com/okian/leadflow/internal/domain/ranking"
)

// ErrInvalidCandidate reports a malformed directory entry.
var ErrInvalidCandidate = errors.New("invalid candidate")

type file struct {
	Candidates []*model.Candidate `yaml:"candidates"`
}

// Static holds an in-memory candidate pool. Every Replace bumps the version.
type Static struct {
	mu   sync.RWMutex
	snap ranking.Snapshot
}

// NewStatic creates a directory over candidates at version 1.
func NewStatic(candidates []*model.Candidate) *Static {
	return &Static{snap: ranking.Snapshot{Version: 1, Candidates: candidates}}
}

// LoadFile reads a YAML candidate file.
func LoadFile(path string) (*Static, error) {
	cands, err := readFile(path)
	if err != nil {
		return nil, err
	}
	return NewStatic(cands), nil
}

// Snapshot returns the current pool.
func (s *Static) Snapshot(_ context.Context) (ranking.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap, nil
}

// Replace swaps the pool.
func (s *Static) Replace(candidates []*model.Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = ranking.Snapshot{Version: s.snap.Version + 1, Candidates: candidates}
}

// Reload re-reads path and swaps the pool if it parses.
func (s *Static) Reload(path string) error {
	cands, err := readFile(path)
	if err != nil {
		return err
	}
	s.Replace(cands)
	return nil
}

// Parse decodes and validates a candidate document.
func Parse(r io.Reader) ([]*model.Candidate, error) {
	var f file
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode candidates: %w", err)
	}
	seen := make(map[string]struct{}, len(f.Candidates))
	for i, c := range f.Candidates {
		switch {
		case c == nil:
			return nil, fmt.Errorf("%w: entry %d is empty", ErrInvalidCandidate, i)
		case c.ID == "":
			return nil, fmt.Errorf("%w: entry %d has no id", ErrInvalidCandidate, i)
		case !c.Location.Valid():
			return nil, fmt.Errorf("%w: %s has an invalid location", ErrInvalidCandidate, c.ID)
		case c.RadiusKM <= 0:
			return nil, fmt.Errorf("%w: %s has no service radius", ErrInvalidCandidate, c.ID)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %s", ErrInvalidCandidate, c.ID)
		}
		seen[c.ID] = struct{}{}
	}
	return f.Candidates, nil
}

func readFile(path string) ([]*model.Candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open candidates: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}
