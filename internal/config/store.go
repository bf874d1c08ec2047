package config

import "sync/atomic"

// Store hands out the current config snapshot to handlers while the
// hot-reload watcher swaps new versions in underneath. Readers must not
// mutate the returned Config.
type Store struct {
	p atomic.Pointer[Config]
}

// NewStore creates a store holding the given initial config.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.p.Store(cfg)
	return s
}

// Get returns the current config snapshot.
func (s *Store) Get() *Config { return s.p.Load() }

// Swap replaces the current config atomically.
func (s *Store) Swap(cfg *Config) { s.p.Store(cfg) }
