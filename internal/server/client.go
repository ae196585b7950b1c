// Package server manages individual WebSocket clients, handling read/write
// pumps, rate limiting, and lifecycle control for each connection.
package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/relay"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
	writeWait  = 10 * time.Second
)

// Client is one WebSocket connection. It is the relay.Conn the relay routes
// to, and it feeds its inbound frames, in order, to its relay.Session.
type Client struct {
	id      uuid.UUID
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	addr    string
	session *relay.Session
	limiter *rateLimiter
	cfg     Config
	log     *slog.Logger

	mu       sync.Mutex
	closed   bool
	dropOnce sync.Once
}

var _ relay.Conn = (*Client)(nil)

// NewClient wraps conn and starts its Session in the unestablished state.
// The hub launches the pumps once the client is registered.
func NewClient(conn *websocket.Conn, hub *Hub, addr string, cfg Config) *Client {
	cfg = cfg.sanitize()
	if conn != nil {
		conn.SetReadLimit(int64(cfg.MaxMessageSize))
	}

	id := uuid.New()
	c := &Client{
		id:      id,
		conn:    conn,
		send:    make(chan []byte, cfg.SendBufferSize),
		hub:     hub,
		addr:    addr,
		limiter: newRateLimiter(cfg.RateLimit()),
		cfg:     cfg,
		log: hub.log.With(
			slog.String("connID", id.String()),
			slog.String("remoteAddr", addr),
		),
	}
	c.session = relay.NewSession(c, hub.router, c.log)
	return c
}

// ID returns the connection id.
func (c *Client) ID() uuid.UUID { return c.id }

// Session returns the relay session bound to this connection.
func (c *Client) Session() *relay.Session { return c.session }

// GetSendChan returns the client's send channel for reading outgoing messages.
func (c *Client) GetSendChan() <-chan []byte {
	return c.send
}

// Send queues payload without blocking. A full buffer means the peer is not
// reading: the payload is dropped and the connection is closed.
func (c *Client) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		c.dropSlowConsumer()
		return ErrSendBufferFull
	}
}

// dropSlowConsumer closes the socket; the read pump then fails and the hub
// unregisters the client.
func (c *Client) dropSlowConsumer() {
	c.dropOnce.Do(func() {
		c.log.Warn("Closing slow client", slog.Int("buffer", cap(c.send)))
		c.closeConnection()
	})
}

// markClosed stops further sends and lets the write pump drain and exit.
func (c *Client) markClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	c.closed = true
	close(c.send)
	return true
}

// setupReadConnection configures read deadlines and pong handler for the WebSocket connection
func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.log.Warn("Error setting initial read deadline", slog.Any("error", err))
	}
	c.conn.SetPongHandler(func(string) error {
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			c.log.Warn("Error setting read deadline in pong handler", slog.Any("error", err))
		}
		return nil
	})
}

// logReadError reports why the read loop stopped.
func (c *Client) logReadError(err error) {
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.log.Warn("Message exceeded maximum size", slog.Int("maxMessageSize", c.cfg.MaxMessageSize))
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		c.log.Info("Client disconnected", slog.Any("reason", err))
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.log.Info("Client connection closed", slog.Any("reason", err))
	case websocket.IsUnexpectedCloseError(err,
		websocket.CloseGoingAway,
		websocket.CloseAbnormalClosure,
		websocket.CloseMessageTooBig):
		c.log.Warn("Unexpected WebSocket close", slog.Any("error", err))
	default:
		c.log.Info("WebSocket read stopped", slog.Any("reason", err))
	}
}

// checkRateLimit verifies if the client has exceeded rate limits
// and returns true if the message should be processed
func (c *Client) checkRateLimit() bool {
	if c.limiter != nil && !c.limiter.allow() {
		c.log.Warn("Rate limit exceeded; discarding message",
			slog.Int("burst", c.cfg.RateLimitBurst),
			slog.Duration("refillInterval", c.cfg.RateLimitRefillInterval))
		return false
	}
	return true
}

// processMessage hands one frame to the session. Rejections are logged by
// the relay; the client is never told.
func (c *Client) processMessage(ctx context.Context, raw []byte) {
	if err := c.session.HandleFrame(ctx, raw); err != nil {
		c.log.DebugContext(ctx, "Frame not routed", slog.Any("error", err))
	}
}

func (c *Client) readPump(ctx context.Context) {
	defer func() {
		c.hub.unregisterClient(c)
		c.closeConnection()
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
		c.processMessage(ctx, raw)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for c.processWriteEvent(ticker) {
	}
}

// processWriteEvent waits for the next write event and returns false when the
// pump should stop processing.
func (c *Client) processWriteEvent(ticker *time.Ticker) bool {
	select {
	case message, ok := <-c.send:
		return c.handleMessage(message, ok)
	case <-ticker.C:
		return c.handlePing()
	}
}

// closeConnection safely closes the WebSocket connection with proper error handling
func (c *Client) closeConnection() {
	if c.conn == nil {
		return
	}
	if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("Error closing connection", slog.Any("error", err))
	}
}

// handleMessage processes outgoing messages and returns false if the connection should be closed
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("Error setting write deadline", slog.Any("error", err))
		return false
	}
	if !ok {
		return c.writeCloseMessage()
	}
	if !c.writeTextMessage(message) {
		return false
	}
	return c.writeQueuedMessages()
}

// writeCloseMessage sends a close message to the client
func (c *Client) writeCloseMessage() bool {
	if err := c.conn.WriteMessage(websocket.CloseMessage, []byte{}); err != nil && !isExpectedCloseError(err) {
		c.log.Warn("Error writing close message", slog.Any("error", err))
	}
	return false
}

// writeTextMessage writes one relay frame as its own WebSocket message.
func (c *Client) writeTextMessage(message []byte) bool {
	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing message", slog.Any("error", err))
		}
		return false
	}
	return true
}

// writeQueuedMessages flushes what queued up while the previous write was in
// flight. A closed channel stops the pump after the close frame.
func (c *Client) writeQueuedMessages() bool {
	n := len(c.send)
	for i := 0; i < n; i++ {
		message, ok := <-c.send
		if !ok {
			return c.writeCloseMessage()
		}
		if !c.writeTextMessage(message) {
			return false
		}
	}
	return true
}

// handlePing sends a ping message to keep the connection alive
func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.log.Warn("Error setting write deadline for ping", slog.Any("error", err))
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		if !isExpectedCloseError(err) {
			c.log.Warn("Error writing ping message", slog.Any("error", err))
		}
		return false
	}
	return true
}
