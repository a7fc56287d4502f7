package router

import (
	"sync/atomic"
	"time"
)

// State bundles the route table with the proxy settings that apply to it.
// A State is immutable once published.
type State struct {
	Table *Table

	// ErrorServerHeader is written into the Server header of responses
	// synthesized by the proxy itself, so clients can tell a proxy error
	// from an upstream one. Empty when not configured.
	ErrorServerHeader string

	// LoadedAt records when this state was built from the config file.
	LoadedAt time.Time
}

// Snapshot shares the current State across concurrent request handlers.
// Reload replaces the whole State atomically; readers never see a partially
// updated table.
type Snapshot struct {
	v atomic.Pointer[State]
}

// NewSnapshot creates a Snapshot holding the initial state.
func NewSnapshot(s *State) *Snapshot {
	snap := &Snapshot{}
	snap.v.Store(s)
	return snap
}

// Load returns the current state.
func (s *Snapshot) Load() *State {
	return s.v.Load()
}

// Store publishes a new state.
func (s *Snapshot) Store(st *State) {
	s.v.Store(st)
}
