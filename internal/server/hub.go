// Package server coordinates client registration, relay session teardown, and
// connection cleanup for the WebSocket relay via the Hub type.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/relay"
)

// Hub owns the live clients. It starts their pumps on registration and, on
// unregistration, closes the client's relay session before closing its send
// channel, so the relay never dispatches to a client that is being torn down.
type Hub struct {
	clients    map[*Client]struct{}
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}

	router  *relay.Router
	metrics *Metrics
	log     *slog.Logger
}

// NewHub creates a Hub routing through router. metrics may be nil.
func NewHub(router *relay.Router, metrics *Metrics, log *slog.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		router:     router,
		metrics:    metrics,
		log:        log.With(slog.String("component", "hub")),
	}
}

// Router returns the relay router clients are bound to.
func (h *Hub) Router() *relay.Router { return h.router }

// Register hands c to the Run loop. It reports false if the hub is shutting
// down, in which case the caller still owns the connection.
func (h *Hub) Register(c *Client) bool {
	if c == nil {
		return false
	}
	select {
	case h.register <- c:
		return true
	case <-h.ctx.Done():
		return false
	}
}

// unregisterClient never blocks past shutdown: once Run has returned the
// client is removed inline.
func (h *Hub) unregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
		h.remove(c)
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Run starts the hub's main event loop, handling client registration and
// unregistration. It returns after Shutdown.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			h.add(client)

		case client := <-h.unregister:
			h.remove(client)
		}
	}
}

func (h *Hub) add(c *Client) {
	h.mutex.Lock()
	h.clients[c] = struct{}{}
	clientCount := len(h.clients)
	h.mutex.Unlock()

	if h.metrics != nil {
		h.metrics.connectionOpened()
	}
	c.log.Info("Client registered", slog.Int("clients", clientCount))

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		c.writePump()
	}()
	go func() {
		defer h.wg.Done()
		c.readPump(h.ctx)
	}()
}

// remove is idempotent. The session is closed first: Disconnect takes the
// registry and tracker write locks, which waits out any dispatch currently
// holding this client.
func (h *Hub) remove(c *Client) {
	h.mutex.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	clientCount := len(h.clients)
	h.mutex.Unlock()

	c.session.Close(h.ctx)
	c.markClosed()
	if !ok {
		return
	}

	if h.metrics != nil {
		h.metrics.connectionClosed()
	}
	c.log.Info("Client unregistered", slog.Int("clients", clientCount))
}

// shutdownClients tears down every client and closes its socket.
func (h *Hub) shutdownClients() {
	h.log.Info("Shutting down all client connections...")

	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		h.remove(client)
		client.closeConnection()
	}

	h.log.Info("Closed client connections", slog.Int("count", len(clients)))
}

// Shutdown initiates graceful shutdown of the hub and waits for all goroutines to complete.
// It returns after all client connections are closed and goroutines have finished,
// or when the timeout is reached.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.log.Info("Initiating hub shutdown...")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.log.Info("Hub shutdown completed successfully")
		return nil
	case <-time.After(timeout):
		h.log.Warn("Hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
