// File: internal/session/registry.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Sharded registry of live server-side connections.

package session

import (
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/momentics/secure-ws/protocol"
)

// Session binds a registry identifier to one live connection.
type Session struct {
	id        string
	conn      *protocol.WSConnection
	createdAt time.Time
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Conn returns the underlying connection.
func (s *Session) Conn() *protocol.WSConnection { return s.conn }

// CreatedAt returns when the session was registered.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Registry implements sharded storage for sessions.
type Registry struct {
	shards []*registryShard
	mask   uint32
}

type registryShard struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewRegistry constructs a registry with shardCount shards, rounded up
// to a power of two for bitmask selection.
func NewRegistry(shardCount int) *Registry {
	if shardCount <= 0 {
		shardCount = 16
	}
	m := nextPowerOfTwo(uint32(shardCount))
	shards := make([]*registryShard, m)
	for i := range shards {
		shards[i] = &registryShard{sessions: make(map[string]*Session)}
	}
	return &Registry{shards: shards, mask: m - 1}
}

func (r *Registry) shard(id string) *registryShard {
	return r.shards[fnv32(id)&r.mask]
}

// Add registers conn under a fresh unique identifier.
func (r *Registry) Add(conn *protocol.WSConnection) *Session {
	s := &Session{
		id:        uuid.NewString(),
		conn:      conn,
		createdAt: time.Now(),
	}
	sh := r.shard(s.id)
	sh.mu.Lock()
	sh.sessions[s.id] = s
	sh.mu.Unlock()
	return s
}

// Get fetches a session if present.
func (r *Registry) Get(id string) (*Session, bool) {
	sh := r.shard(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	s, ok := sh.sessions[id]
	return s, ok
}

// Remove drops the session from the registry.
func (r *Registry) Remove(id string) {
	sh := r.shard(id)
	sh.mu.Lock()
	delete(sh.sessions, id)
	sh.mu.Unlock()
}

// Len counts registered sessions.
func (r *Registry) Len() int {
	total := 0
	for _, sh := range r.shards {
		sh.mu.RLock()
		total += len(sh.sessions)
		sh.mu.RUnlock()
	}
	return total
}

// Range applies fn to every registered session.
func (r *Registry) Range(fn func(*Session)) {
	for _, sh := range r.shards {
		sh.mu.RLock()
		snapshot := make([]*Session, 0, len(sh.sessions))
		for _, s := range sh.sessions {
			snapshot = append(snapshot, s)
		}
		sh.mu.RUnlock()
		for _, s := range snapshot {
			fn(s)
		}
	}
}

// fnv32 hashes a string to uint32.
func fnv32(key string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(key))
	return h.Sum32()
}

// nextPowerOfTwo returns the next power-of-two >= v.
func nextPowerOfTwo(v uint32) uint32 {
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v++
	return v
}
