// Package presence owns the user → live-connection bookkeeping.
// The registry is the single piece of mutable shared state in the relay
// core; every other component reads it through its documented operations.
package presence

import "sync"

type Set map[string]struct{}

// Registry maps a user identity to the set of physical connections it
// currently holds. A user entry is created on first connection and purged
// when its set becomes empty, so map membership equals "online".
//
// All operations are O(1) amortized and hold the lock briefly; callers
// must never perform I/O while relying on a snapshot being current.
type Registry struct {
	mu    sync.RWMutex
	users map[string]Set
}

func NewRegistry() *Registry {
	return &Registry{users: make(map[string]Set)}
}

// AddConnection registers a connection for a user and reports whether this
// was the user's first live connection. Re-adding the same connection is
// a no-op and never re-reports first-connection.
func (r *Registry) AddConnection(userID, connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	connections, ok := r.users[userID]
	if !ok {
		r.users[userID] = Set{connectionID: {}}
		return true
	}
	connections[connectionID] = struct{}{}
	return false
}

// RemoveConnection drops a connection and reports whether the user just
// went offline. Removing an unknown connection, or a connection for a user
// that is already absent, is a no-op returning false.
func (r *Registry) RemoveConnection(userID, connectionID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	connections, ok := r.users[userID]
	if !ok {
		return false
	}
	if _, ok := connections[connectionID]; !ok {
		return false
	}
	delete(connections, connectionID)

	// No empty sets are left behind, membership stays equal to presence
	if len(connections) == 0 {
		delete(r.users, userID)
		return true
	}
	return false
}

// OnlineUserIDs returns a snapshot of currently-online identities.
// No ordering is guaranteed.
func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	userIDs := make([]string, 0, len(r.users))
	for userID := range r.users {
		userIDs = append(userIDs, userID)
	}
	return userIDs
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.users[userID]
	return ok
}

// Connections returns a snapshot of the connection IDs held by a user.
// The fanout emitter iterates this to deliver per-user events.
func (r *Registry) Connections(userID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connections, ok := r.users[userID]
	if !ok {
		return nil
	}
	connectionIDs := make([]string, 0, len(connections))
	for connectionID := range connections {
		connectionIDs = append(connectionIDs, connectionID)
	}
	return connectionIDs
}
