package filter

import (
	"sync"
	"sync/atomic"

	"github.com/pgEdge/cstore-insights/internal/dataset"
	"github.com/pgEdge/cstore-insights/internal/logging"
)

// Session computes the unified view once per filter change and hands the
// same result to every report that asks for it.
type Session struct {
	ds *dataset.Dataset

	mu   sync.Mutex
	key  string
	last *Unified

	computations atomic.Int64
}

// NewSession creates a Session over a loaded dataset.
func NewSession(ds *dataset.Dataset) *Session {
	return &Session{ds: ds}
}

// Dataset returns the underlying dataset.
func (s *Session) Dataset() *dataset.Dataset {
	return s.ds
}

// Unified returns the filtered view for p, reusing the previous result when
// the selection has not changed.
func (s *Session) Unified(p Params) (*Unified, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := p.Key()
	if s.last != nil && s.key == key {
		return s.last, nil
	}

	u := Apply(s.ds, p)
	s.key = key
	s.last = u
	s.computations.Add(1)

	logging.Debug().
		Str("filter", key).
		Int("daily", len(u.Daily)).
		Int("sets", len(u.Sets)).
		Int("items", len(u.Items)).
		Msg("Recomputed unified filter")

	return u, nil
}

// Computations returns how many times the filter has actually run.
func (s *Session) Computations() int64 {
	return s.computations.Load()
}
