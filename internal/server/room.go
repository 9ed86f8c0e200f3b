// Package server tracks live room state: the member set and the per-room
// critical section that keeps durable log order identical to delivery order.
package server

import (
	"slices"
	"sync"

	"github.com/samber/lo"
)

// room is the in-memory state for one named room with at least one member.
// mu serializes every mutating operation on the room (join, leave, publish)
// so that append order and fan-out order cannot diverge; rooms never share
// locks, so traffic in different rooms proceeds in parallel.
//
// The room entry is discarded from the hub's table once the member set is
// empty; the durable history outlives it. removed marks a discarded entry so
// a racing join can detect it and create a fresh one.
type room struct {
	name string

	mu      sync.Mutex
	members map[*Client]struct{}
	lastTS  int64
	removed bool
}

func newRoom(name string) *room {
	return &room{
		name:    name,
		members: make(map[*Client]struct{}),
	}
}

// memberNamesLocked returns the sorted display names of current members.
// Callers must hold r.mu.
func (r *room) memberNamesLocked() []string {
	names := lo.Map(lo.Keys(r.members), func(c *Client, _ int) string {
		return c.name
	})
	slices.Sort(names)
	return names
}

// hasNameLocked reports whether another member already holds the display
// name. Callers must hold r.mu.
func (r *room) hasNameLocked(name string, except *Client) bool {
	for m := range r.members {
		if m != except && m.name == name {
			return true
		}
	}
	return false
}

// broadcastLocked queues payload to every member except exclude and returns
// the members whose send queue was full. Callers must hold r.mu; delivery to
// one member never aborts delivery to the others, and the actual socket
// writes happen in each member's own write pump, outside this lock.
func (r *room) broadcastLocked(payload []byte, exclude *Client) []*Client {
	var overflowed []*Client
	for m := range r.members {
		if m == exclude {
			continue
		}
		if !m.enqueue(payload) {
			overflowed = append(overflowed, m)
		}
	}
	return overflowed
}

// stampLocked assigns the next timestamp for the room, clamped so the log's
// timestamps never decrease. Callers must hold r.mu.
func (r *room) stampLocked(now int64) int64 {
	if now < r.lastTS {
		now = r.lastTS
	}
	r.lastTS = now
	return now
}
