package visset

import (
	"sync/atomic"
	"time"
)

// Store provides thread-safe access to the active visualization set.
type Store struct {
	set      atomic.Pointer[VisSet]
	loadedAt atomic.Int64
}

// NewStore creates a new empty Store.
func NewStore() *Store {
	return &Store{}
}

// Get returns the active set, or nil if none has been loaded.
func (s *Store) Get() *VisSet {
	return s.set.Load()
}

// Set atomically replaces the active set.
func (s *Store) Set(vs *VisSet) {
	s.set.Store(vs)
	s.loadedAt.Store(time.Now().UnixNano())
}

// AgeSeconds returns how long ago the active set was loaded.
// Returns -1 if no set is loaded.
func (s *Store) AgeSeconds() float64 {
	if s.set.Load() == nil {
		return -1
	}
	return time.Since(time.Unix(0, s.loadedAt.Load())).Seconds()
}
