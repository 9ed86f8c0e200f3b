// Package server coordinates session registration, the per-session state
// machine, room membership, message fan-out, and connection cleanup via the
// Hub type.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/Amila20040220/Real-Time-Chat-Room-Application/internal/history"
	"github.com/Amila20040220/Real-Time-Chat-Room-Application/internal/protocol"
)

// Hub owns the room registry and the set of live sessions. Registration and
// teardown flow through its run loop; room traffic does not — each room has
// its own critical section, so publishes in unrelated rooms never serialize
// through a hub-wide point.
type Hub struct {
	store *history.Store

	// roomsMu guards only the rooms table itself (insert/remove); it is
	// never held across an append or a fan-out.
	roomsMu sync.Mutex
	rooms   map[string]*room

	// namesMu guards the global set of display names claimed at login.
	namesMu sync.Mutex
	names   map[string]*Client

	clientsMu sync.RWMutex
	clients   map[*Client]bool

	register   chan *Client
	unregister chan *Client

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewHub creates a Hub persisting room history through store.
func NewHub(store *history.Store) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		store:      store,
		rooms:      make(map[string]*room),
		names:      make(map[string]*Client),
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// GetRegisterChan returns the channel used for registering new sessions.
func (h *Hub) GetRegisterChan() chan<- *Client {
	return h.register
}

// GetUnregisterChan returns the channel used for unregistering sessions.
func (h *Hub) GetUnregisterChan() chan<- *Client {
	return h.unregister
}

// Run starts the hub's registration loop. This method should be called in a
// separate goroutine as it runs until Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				slog.Warn("received nil session registration, skipping")
				continue
			}

			h.clientsMu.Lock()
			h.clients[client] = true
			count := len(h.clients)
			h.clientsMu.Unlock()
			slog.Info("session connected", "addr", client.addr, "session", client.id, "total", count)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			h.clientsMu.Lock()
			_, ok := h.clients[client]
			if ok {
				delete(h.clients, client)
			}
			count := len(h.clients)
			h.clientsMu.Unlock()
			if !ok {
				continue
			}

			h.teardown(client)
			close(client.send)
			slog.Info("session disconnected", "addr", client.addr, "name", client.name, "total", count)
		}
	}
}

// dispatch validates one decoded envelope against the session's state and
// performs it. Invalid operations are soft failures: the session gets an
// error envelope and stays connected, in whatever state it was in before.
func (h *Hub) dispatch(c *Client, env protocol.Envelope) {
	var err error
	switch env.Type {
	case protocol.TypeLogin:
		err = h.handleLogin(c, env.Name)
	case protocol.TypeJoin:
		err = h.handleJoin(c, env.Room)
	case protocol.TypeLeave:
		err = h.handleLeave(c, env.Room)
	case protocol.TypePublish:
		err = h.handlePublish(c, env.Room, env.Body)
	default:
		err = fmt.Errorf("%w: %q is not a client request", ErrViolation, env.Type)
	}
	if err != nil {
		slog.Debug("request rejected", "addr", c.addr, "type", env.Type, "error", err)
		c.sendError(err)
	}
}

// handleLogin promotes a connected session to authenticated. The display
// name must pass validation and be unclaimed by any currently connected
// session. Success is acked with a presence envelope addressed to the
// session itself (empty room).
func (h *Hub) handleLogin(c *Client, name string) error {
	if c.name != "" {
		return ErrLoggedIn
	}
	name = strings.TrimSpace(name)
	if err := protocol.ValidateName(name); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidName, err)
	}

	h.namesMu.Lock()
	if _, taken := h.names[name]; taken {
		h.namesMu.Unlock()
		return ErrNameTaken
	}
	h.names[name] = c
	h.namesMu.Unlock()

	c.name = name
	slog.Info("session logged in", "addr", c.addr, "name", name)
	c.sendEnvelope(protocol.Presence("", protocol.EventJoined, name))
	return nil
}

// handleJoin adds the session to a room, replays the history tail together
// with the member snapshot, and notifies the other members. The tail is read
// inside the room's critical section, so every message is either in the
// replay or delivered live, never both and never neither.
func (h *Hub) handleJoin(c *Client, roomName string) error {
	if c.name == "" {
		return ErrNotLoggedIn
	}

	if r, ok := c.rooms[roomName]; ok {
		// Already a member: re-send the snapshot, no presence churn.
		r.mu.Lock()
		members := r.memberNamesLocked()
		records := h.store.Tail(roomName, historyDepth)
		r.mu.Unlock()
		c.sendEnvelope(protocol.History(roomName, members, records))
		return nil
	}

	r := h.lockJoinableRoom(roomName)
	if r.hasNameLocked(c.name, c) {
		r.mu.Unlock()
		h.discardIfEmpty(r)
		return fmt.Errorf("%w: %q in %q", ErrDuplicateName, c.name, roomName)
	}

	r.members[c] = struct{}{}
	c.rooms[roomName] = r
	members := r.memberNamesLocked()
	records := h.store.Tail(roomName, historyDepth)
	c.sendEnvelope(protocol.History(roomName, members, records))
	overflowed := h.fanoutLocked(r, protocol.Presence(roomName, protocol.EventJoined, c.name), c)
	r.mu.Unlock()

	h.dropOverflowed(overflowed)
	slog.Info("session joined room", "name", c.name, "room", roomName, "members", len(members))
	return nil
}

// handleLeave removes the session from a room and notifies the remaining
// members. An empty room is discarded from the registry; its history log
// stays on disk.
func (h *Hub) handleLeave(c *Client, roomName string) error {
	if c.name == "" {
		return ErrNotLoggedIn
	}
	r, ok := c.rooms[roomName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotMember, roomName)
	}

	delete(c.rooms, roomName)
	r.mu.Lock()
	delete(r.members, c)
	overflowed := h.fanoutLocked(r, protocol.Presence(roomName, protocol.EventLeft, c.name), nil)
	r.mu.Unlock()

	h.discardIfEmpty(r)
	h.dropOverflowed(overflowed)
	slog.Info("session left room", "name", c.name, "room", roomName)
	return nil
}

// handlePublish appends one message to the room's durable log and fans it
// out to every member, sender included. Append and fan-out form one step
// inside the room's critical section: a message nobody can ever see in the
// log is never delivered, and delivery order equals log order.
func (h *Hub) handlePublish(c *Client, roomName, body string) error {
	if c.name == "" {
		return ErrNotLoggedIn
	}
	body = strings.TrimSpace(body)
	if body == "" {
		return ErrBlankBody
	}
	r, ok := c.rooms[roomName]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotMember, roomName)
	}

	r.mu.Lock()
	rec := protocol.Record{
		Sender:    c.name,
		Body:      body,
		Timestamp: r.stampLocked(time.Now().Unix()),
	}
	if err := h.store.Append(roomName, rec); err != nil {
		r.mu.Unlock()
		slog.Error("could not persist message", "room", roomName, "error", err)
		return err
	}
	overflowed := h.fanoutLocked(r, protocol.Message(roomName, rec), nil)
	r.mu.Unlock()

	h.dropOverflowed(overflowed)
	return nil
}

// fanoutLocked encodes the envelope once and queues it to every member of r
// except exclude. Callers must hold r.mu.
func (h *Hub) fanoutLocked(r *room, env protocol.Envelope, exclude *Client) []*Client {
	payload, err := protocol.Encode(env)
	if err != nil {
		slog.Error("could not encode fan-out envelope", "type", env.Type, "error", err)
		return nil
	}
	return r.broadcastLocked(payload, exclude)
}

// dropOverflowed closes the transport of every session whose send queue was
// full during a fan-out. Each close is an implicit disconnect: the session's
// own read pump performs the leaves and presence broadcasts, outside the
// broadcast that detected the overflow.
func (h *Hub) dropOverflowed(overflowed []*Client) {
	for _, m := range overflowed {
		slog.Warn("dropping session with full send queue", "addr", m.addr, "name", m.name)
		m.beginClose()
	}
}

// lockJoinableRoom returns the live room entry for name with its mutex held,
// creating the entry if absent. The loop handles the race with discardIfEmpty:
// an entry discarded between lookup and lock is detected and retried.
func (h *Hub) lockJoinableRoom(name string) *room {
	for {
		h.roomsMu.Lock()
		r, ok := h.rooms[name]
		if !ok {
			r = newRoom(name)
			h.rooms[name] = r
		}
		h.roomsMu.Unlock()

		r.mu.Lock()
		if r.removed {
			r.mu.Unlock()
			continue
		}
		return r
	}
}

// discardIfEmpty removes the room's registry entry when its member set is
// empty. Lock order is roomsMu then r.mu, matching lockJoinableRoom.
func (h *Hub) discardIfEmpty(r *room) {
	h.roomsMu.Lock()
	r.mu.Lock()
	if len(r.members) == 0 && !r.removed {
		r.removed = true
		delete(h.rooms, r.name)
		slog.Debug("room discarded", "room", r.name)
	}
	r.mu.Unlock()
	h.roomsMu.Unlock()
}

// teardown releases everything a disconnecting session held: its global
// display name and every room membership, with one presence broadcast per
// room it occupied. It runs exactly once per session, from the run loop.
func (h *Hub) teardown(c *Client) {
	if c.name != "" {
		h.namesMu.Lock()
		if h.names[c.name] == c {
			delete(h.names, c.name)
		}
		h.namesMu.Unlock()
	}

	for roomName, r := range c.rooms {
		delete(c.rooms, roomName)
		r.mu.Lock()
		delete(r.members, c)
		overflowed := h.fanoutLocked(r, protocol.Presence(roomName, protocol.EventLeft, c.name), nil)
		r.mu.Unlock()

		h.discardIfEmpty(r)
		h.dropOverflowed(overflowed)
	}
}

// RoomMembers returns the sorted display names currently in a room, or nil
// if the room has no members.
func (h *Hub) RoomMembers(name string) []string {
	h.roomsMu.Lock()
	r, ok := h.rooms[name]
	h.roomsMu.Unlock()
	if !ok {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.removed {
		return nil
	}
	return r.memberNamesLocked()
}

// shutdownClients closes all active session connections.
func (h *Hub) shutdownClients() {
	slog.Info("closing all session connections")

	h.clientsMu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.clientsMu.Unlock()

	for _, client := range clients {
		client.beginClose()
	}

	slog.Info("closed session connections", "count", len(clients))
}

// Shutdown initiates graceful shutdown of the hub and waits for all pumps to
// complete, or until the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	slog.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		slog.Warn("hub shutdown timeout reached, some pumps may still be running")
		return context.DeadlineExceeded
	}
}
