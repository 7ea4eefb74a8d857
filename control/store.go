// File: control/store.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Thread-safe configuration store with dynamic update and hot-reload
// propagation.

package control

import "sync"

// Store holds the current EngineConfig behind a lock and notifies
// registered listeners on every update.
type Store struct {
	mu        sync.RWMutex
	cur       *EngineConfig
	listeners []func(*EngineConfig)
}

// NewStore initializes a store with an initial configuration.
func NewStore(cfg *EngineConfig) *Store {
	if cfg == nil {
		cfg = &EngineConfig{}
	}
	return &Store{cur: cfg}
}

// Snapshot returns a copy of the current configuration.
func (s *Store) Snapshot() EngineConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.cur
}

// OnReload registers a listener hook called on config changes.
func (s *Store) OnReload(fn func(*EngineConfig)) {
	s.mu.Lock()
	s.listeners = append(s.listeners, fn)
	s.mu.Unlock()
}

// Update replaces the configuration and notifies listeners
// synchronously, in registration order.
func (s *Store) Update(cfg *EngineConfig) {
	s.mu.Lock()
	s.cur = cfg
	listeners := make([]func(*EngineConfig), len(s.listeners))
	copy(listeners, s.listeners)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(cfg)
	}
}

// ReloadFile re-reads the TOML file and propagates the result.
func (s *Store) ReloadFile(path string) error {
	cfg, err := Load(path)
	if err != nil {
		return err
	}
	s.Update(cfg)
	return nil
}
