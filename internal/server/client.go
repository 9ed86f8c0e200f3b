// Package server manages individual WebSocket sessions, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/Amila20040220/Real-Time-Chat-Room-Application/internal/protocol"
)

// Client is the server-side session for one WebSocket connection. It owns
// the transport exclusively and carries the session state: the display name
// assigned at login and the set of rooms currently joined.
//
// name and rooms are only ever touched from the read pump goroutine and,
// after the read pump has exited, from the hub's teardown path; the
// unregister channel hand-off orders those accesses.
type Client struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
	addr string

	name  string
	rooms map[string]*room

	closeOnce sync.Once

	maxMessageSize int64
	rateLimiter    *rateLimiter
	rateLimit      RateLimitConfig
}

// NewClient creates a session for the given WebSocket connection. The send
// queue is bounded; a session that cannot drain it fast enough is dropped.
func NewClient(conn *websocket.Conn, hub *Hub, addr string) *Client {
	cfg := currentConfig()
	if conn != nil {
		conn.SetReadLimit(cfg.MaxMessageSize)
	}
	limiter := newRateLimiter(cfg.RateLimit.Burst, cfg.RateLimit.RefillInterval)

	return &Client{
		id:             uuid.New(),
		conn:           conn,
		send:           make(chan []byte, sendQueueSize),
		hub:            hub,
		addr:           addr,
		rooms:          make(map[string]*room),
		maxMessageSize: cfg.MaxMessageSize,
		rateLimiter:    limiter,
		rateLimit:      cfg.RateLimit,
	}
}

// GetSendChan returns the client's send channel for reading outgoing frames.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// Name returns the display name assigned at login, empty before login.
func (c *Client) Name() string {
	return c.name
}

// enqueue appends an encoded envelope to the outbound queue without
// blocking. It reports false when the queue is full; the caller decides
// whether that costs the session its connection.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// sendEnvelope queues one envelope for delivery to this session. A full
// queue means the session is too far behind; it is closed asynchronously and
// its own read-pump teardown performs the leaves.
func (c *Client) sendEnvelope(env protocol.Envelope) {
	payload, err := protocol.Encode(env)
	if err != nil {
		slog.Error("could not encode envelope", "type", env.Type, "error", err)
		return
	}
	if !c.enqueue(payload) {
		slog.Warn("send queue full, dropping session", "addr", c.addr, "name", c.name)
		c.beginClose()
	}
}

// sendError answers the session with a soft error envelope.
func (c *Client) sendError(err error) {
	c.sendEnvelope(protocol.Error(wireCode(err), err.Error()))
}

// beginClose closes the transport exactly once. The read pump notices and
// runs the normal unregister path, so room state is torn down exactly once
// regardless of who initiates the close.
func (c *Client) beginClose() {
	c.closeOnce.Do(func() {
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection.
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
		slog.Error("could not set initial read deadline", "addr", c.addr, "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(60 * time.Second)); err != nil {
			slog.Error("could not extend read deadline on pong", "addr", c.addr, "error", err)
		}
		return nil
	})
}

// logReadError logs the read failure that ends the session with the right
// severity. Every read error terminates the loop; most are routine closes.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		slog.Warn("frame exceeded maximum size", "addr", c.addr, "limit", c.maxMessageSize)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure):
		slog.Debug("session disconnected", "addr", c.addr, "error", err)
	case errors.Is(err, io.EOF), isExpectedCloseError(err):
		slog.Debug("connection closed", "addr", c.addr, "error", err)
	default:
		slog.Warn("websocket read error", "addr", c.addr, "error", err)
	}
}

// checkRateLimit reports whether the next inbound envelope may be processed.
func (c *Client) checkRateLimit() bool {
	if c.rateLimiter != nil && !c.rateLimiter.allow() {
		slog.Warn("rate limit exceeded, discarding envelope",
			"addr", c.addr, "burst", c.rateLimit.Burst, "interval", c.rateLimit.RefillInterval)
		return false
	}
	return true
}

// processFrame decodes one inbound frame and hands it to the dispatcher.
// Decode failures are soft: the sender gets an error envelope and the
// connection stays open.
func (c *Client) processFrame(raw []byte) {
	env, err := protocol.Decode(raw)
	if err != nil {
		slog.Debug("rejecting undecodable frame", "addr", c.addr, "error", err)
		c.sendError(err)
		return
	}
	c.hub.dispatch(c, env)
}

func (c *Client) readPump() {
	defer func() {
		// During shutdown the run loop is gone; don't block on it.
		select {
		case c.hub.unregister <- c:
		case <-c.hub.ctx.Done():
		}
		c.beginClose()
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.logReadError(err)
			return
		}

		if !c.checkRateLimit() {
			continue
		}

		c.processFrame(raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.beginClose()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing. During hub shutdown the run loop is no longer
// draining unregister, so the send channel never closes; the context case
// lets the pump exit anyway.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case payload, ok := <-c.send:
		return c.handleWrite(payload, ok)
	case <-ticker.C:
		return c.handlePing()
	case <-c.hub.ctx.Done():
		return false
	}
}

// handleWrite flushes outgoing frames and returns false if the connection
// should be closed.
func (c *Client) handleWrite(payload []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		slog.Warn("could not set write deadline", "addr", c.addr, "error", err)
		return false
	}

	if !ok {
		if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil {
			if !isExpectedCloseError(err) {
				slog.Debug("could not write close frame", "addr", c.addr, "error", err)
			}
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if !isExpectedCloseError(err) {
			slog.Warn("could not write frame", "addr", c.addr, "error", err)
		}
		return false
	}

	// Flush anything already queued behind the frame we just wrote.
	n := len(c.send)
	for i := 0; i < n; i++ {
		if err := c.conn.WriteMessage(websocket.TextMessage, <-c.send); err != nil {
			if !isExpectedCloseError(err) {
				slog.Warn("could not write queued frame", "addr", c.addr, "error", err)
			}
			return false
		}
	}
	return true
}

// handlePing sends a ping message to keep the connection alive.
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second)); err != nil {
		slog.Warn("could not set write deadline for ping", "addr", c.addr, "error", err)
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			slog.Debug("could not write ping", "addr", c.addr, "error", err)
		}
		return false
	}
	return true
}
