// Package server constructs and starts the relay HTTP service with helpers
// that apply sensible production defaults.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/relay"
	"github.com/gorilla/websocket"
)

// App wires the relay core to the WebSocket transport. Every piece of state
// is owned by the App; nothing is process-global.
type App struct {
	cfg      Config
	log      *slog.Logger
	hub      *Hub
	metrics  *Metrics
	origins  *originPolicy
	upgrader websocket.Upgrader
}

// NewApp builds the registry, tracker, router and hub for cfg. Call Start
// (or Run) before serving requests.
func NewApp(cfg Config, log *slog.Logger) *App {
	cfg = cfg.sanitize()
	metrics := NewMetrics()
	router := relay.NewRouter(relay.NewRegistry(), relay.NewTracker(), log, relay.WithRecorder(metrics))

	a := &App{
		cfg:     cfg,
		log:     log.With(slog.String("component", "server")),
		hub:     NewHub(router, metrics, log),
		metrics: metrics,
		origins: newOriginPolicy(cfg.Origins(), log),
	}
	a.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     a.origins.checkOrigin,
	}
	return a
}

// Hub returns the App's hub.
func (a *App) Hub() *Hub { return a.hub }

// Metrics returns the App's Prometheus collectors.
func (a *App) Metrics() *Metrics { return a.metrics }

// Start runs the hub loop in the background.
func (a *App) Start() {
	go a.hub.Run()
	a.log.Info("Hub started and ready to manage WebSocket connections")
}

// Run serves HTTP on the configured port until ctx is done, then shuts the
// server and the hub down.
func (a *App) Run(ctx context.Context) error {
	a.Start()
	httpServer := CreateServer(a.cfg.Port, a.SetupRoutes())

	errChan := make(chan error, 1)
	go func() {
		if err := StartServer(httpServer, a.log); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("Shutting down gracefully...")
	case err := <-errChan:
		_ = a.hub.Shutdown(a.cfg.ShutdownTimeout)
		return err
	}

	return errors.Join(
		ShutdownServer(httpServer, a.cfg.ShutdownTimeout, a.log),
		a.hub.Shutdown(a.cfg.ShutdownTimeout),
	)
}

// CreateServer creates and configures an HTTP server with the specified port and handler.
// It sets reasonable timeout values for production use.
func CreateServer(port string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// StartServer starts the HTTP server and begins listening for connections.
// It returns an error if the server fails to start.
func StartServer(server *http.Server, log *slog.Logger) error {
	log.Info("Server listening", slog.String("addr", server.Addr))
	return server.ListenAndServe()
}

// ShutdownServer gracefully shuts down the HTTP server without interrupting active connections.
// It waits for active connections to close or until the timeout is reached.
func ShutdownServer(server *http.Server, timeout time.Duration, log *slog.Logger) error {
	log.Info("Shutting down HTTP server...")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error("HTTP server shutdown error", slog.Any("error", err))
		return err
	}

	log.Info("HTTP server shutdown completed")
	return nil
}
