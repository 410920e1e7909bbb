// Package runtime owns the live-connection state and the supervised event
// pipeline. It orchestrates the system without containing domain rules.
package runtime

import (
	"sync"

	"chat-hub/contract"
)

// Registry maps a user to the set of their currently-open connections.
// Presence is derived: a user is online while the set is non-empty.
// State is purely in-memory and rebuilt from zero on restart.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]map[int64]contract.Conn
	nextID int64
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[string]map[int64]contract.Conn)}
}

// Register adds a connection and returns its id together with whether this
// was the user's 0->1 transition. The transition is decided under the same
// lock as the insertion so concurrent tabs can never produce two "became
// online" signals.
func (r *Registry) Register(userID string, conn contract.Conn) (int64, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		set = make(map[int64]contract.Conn)
		r.conns[userID] = set
	}
	r.nextID++
	id := r.nextID
	set[id] = conn
	return id, !ok
}

// Unregister removes one connection and reports whether the user just went
// offline. Removing an unknown id is a no-op, which makes disconnect paths
// safe to run twice (read-pump error plus explicit close).
func (r *Registry) Unregister(userID string, connID int64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.conns[userID]
	if !ok {
		return false
	}
	if _, ok := set[connID]; !ok {
		return false
	}
	delete(set, connID)
	if len(set) == 0 {
		delete(r.conns, userID)
		return true
	}
	return false
}

// ConnectionsFor returns a snapshot of the user's live connections. The
// snapshot is taken under the read lock so callers can push to it without
// holding the registry.
func (r *Registry) ConnectionsFor(userID string) []contract.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := r.conns[userID]
	if len(set) == 0 {
		return nil
	}
	out := make([]contract.Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// OnlineUserIDs returns every user with at least one live connection.
func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	return out
}

// Online reports whether a single user currently has a live connection.
func (r *Registry) Online(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns[userID]) > 0
}
