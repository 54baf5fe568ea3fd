package session

import (
	"sort"
	"sync"
)

// Registry tracks the live connections of every online user. A user is
// present in the map only while at least one of their connections is.
type Registry struct {
	mu    sync.RWMutex
	users map[string]map[string]struct{}
}

func NewRegistry() *Registry {
	return &Registry{
		users: make(map[string]map[string]struct{}),
	}
}

// Register adds connID to userID's set and reports whether it is the user's
// first live connection. Registering the same pair twice is a no-op.
func (r *Registry) Register(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.users[userID]
	if !ok {
		r.users[userID] = map[string]struct{}{connID: {}}
		return true
	}
	conns[connID] = struct{}{}
	return false
}

// Deregister removes connID from userID's set and reports whether the user
// has no connections left. Unknown pairs return false.
func (r *Registry) Deregister(userID, connID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	conns, ok := r.users[userID]
	if !ok {
		return false
	}
	if _, ok := conns[connID]; !ok {
		return false
	}

	delete(conns, connID)
	if len(conns) == 0 {
		delete(r.users, userID)
		return true
	}
	return false
}

func (r *Registry) IsOnline(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[userID]
	return ok
}

// OnlineUserIDs returns a sorted snapshot of the online users.
func (r *Registry) OnlineUserIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.users))
	for id := range r.users {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// ConnectionCount returns the number of live connections held by userID.
func (r *Registry) ConnectionCount(userID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users[userID])
}

// Len returns the number of online users.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}
