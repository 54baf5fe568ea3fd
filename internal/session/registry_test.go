package session

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()

	assert.NotNil(t, r)
	assert.NotNil(t, r.users)
	assert.Equal(t, 0, r.Len())
	assert.Empty(t, r.OnlineUserIDs())
}

func TestRegistry_RegisterDeregister(t *testing.T) {
	type step struct {
		op       string
		userID   string
		connID   string
		expected bool
	}

	tests := []struct {
		name        string
		steps       []step
		online      []string
		connections map[string]int
	}{
		{
			name: "first connection goes online",
			steps: []step{
				{op: "register", userID: "u1", connID: "c1", expected: true},
			},
			online:      []string{"u1"},
			connections: map[string]int{"u1": 1},
		},
		{
			name: "second connection is not first",
			steps: []step{
				{op: "register", userID: "u1", connID: "c1", expected: true},
				{op: "register", userID: "u1", connID: "c2", expected: false},
			},
			online:      []string{"u1"},
			connections: map[string]int{"u1": 2},
		},
		{
			name: "duplicate register is a no-op",
			steps: []step{
				{op: "register", userID: "u1", connID: "c1", expected: true},
				{op: "register", userID: "u1", connID: "c1", expected: false},
				{op: "deregister", userID: "u1", connID: "c1", expected: true},
			},
			online: []string{},
		},
		{
			name: "last deregistration goes offline",
			steps: []step{
				{op: "register", userID: "u1", connID: "c1", expected: true},
				{op: "register", userID: "u1", connID: "c2", expected: false},
				{op: "deregister", userID: "u1", connID: "c1", expected: false},
				{op: "deregister", userID: "u1", connID: "c2", expected: true},
			},
			online: []string{},
		},
		{
			name: "deregister is idempotent",
			steps: []step{
				{op: "register", userID: "u1", connID: "c1", expected: true},
				{op: "deregister", userID: "u1", connID: "c1", expected: true},
				{op: "deregister", userID: "u1", connID: "c1", expected: false},
			},
			online: []string{},
		},
		{
			name: "unknown connection of online user",
			steps: []step{
				{op: "register", userID: "u1", connID: "c1", expected: true},
				{op: "deregister", userID: "u1", connID: "c9", expected: false},
			},
			online:      []string{"u1"},
			connections: map[string]int{"u1": 1},
		},
		{
			name: "unknown user",
			steps: []step{
				{op: "deregister", userID: "ghost", connID: "c1", expected: false},
			},
			online: []string{},
		},
		{
			name: "users are independent",
			steps: []step{
				{op: "register", userID: "u2", connID: "c1", expected: true},
				{op: "register", userID: "u1", connID: "c2", expected: true},
				{op: "deregister", userID: "u2", connID: "c1", expected: true},
			},
			online:      []string{"u1"},
			connections: map[string]int{"u1": 1, "u2": 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry()
			for i, s := range tt.steps {
				var got bool
				if s.op == "register" {
					got = r.Register(s.userID, s.connID)
				} else {
					got = r.Deregister(s.userID, s.connID)
				}
				assert.Equal(t, s.expected, got, "step %d: %s(%s, %s)", i, s.op, s.userID, s.connID)
			}

			assert.Equal(t, tt.online, r.OnlineUserIDs())
			assert.Equal(t, len(tt.online), r.Len())
			for userID, n := range tt.connections {
				assert.Equal(t, n, r.ConnectionCount(userID))
				assert.Equal(t, n > 0, r.IsOnline(userID))
			}
		})
	}
}

func TestRegistry_NoEmptySets(t *testing.T) {
	r := NewRegistry()
	r.Register("u1", "c1")
	r.Deregister("u1", "c1")

	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.users["u1"]
	assert.False(t, exists)
}

func TestRegistry_OnlineUserIDsSorted(t *testing.T) {
	r := NewRegistry()
	r.Register("charlie", "c3")
	r.Register("alice", "c1")
	r.Register("bob", "c2")

	assert.Equal(t, []string{"alice", "bob", "charlie"}, r.OnlineUserIDs())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	r := NewRegistry()

	const numUsers = 10
	const connsPerUser = 50

	var firsts, lasts int32
	var wg sync.WaitGroup

	for u := 0; u < numUsers; u++ {
		for c := 0; c < connsPerUser; c++ {
			wg.Add(1)
			go func(userID, connID string) {
				defer wg.Done()
				if r.Register(userID, connID) {
					atomic.AddInt32(&firsts, 1)
				}
				_ = r.IsOnline(userID)
				_ = r.OnlineUserIDs()
			}(fmt.Sprintf("user-%d", u), fmt.Sprintf("conn-%d-%d", u, c))
		}
	}
	wg.Wait()

	assert.Equal(t, int32(numUsers), firsts)
	assert.Equal(t, numUsers, r.Len())

	for u := 0; u < numUsers; u++ {
		for c := 0; c < connsPerUser; c++ {
			wg.Add(1)
			go func(userID, connID string) {
				defer wg.Done()
				if r.Deregister(userID, connID) {
					atomic.AddInt32(&lasts, 1)
				}
			}(fmt.Sprintf("user-%d", u), fmt.Sprintf("conn-%d-%d", u, c))
		}
	}
	wg.Wait()

	assert.Equal(t, int32(numUsers), lasts)
	assert.Equal(t, 0, r.Len())
}
