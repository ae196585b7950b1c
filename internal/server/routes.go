// Package server wires HTTP handlers into a ServeMux for the relay
// application via routing helpers.
package server

import "net/http"

// SetupRoutes configures and returns an HTTP ServeMux with all application routes:
// health check, WebSocket endpoint, test page, and Prometheus metrics.
func (a *App) SetupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", HealthHandler)
	mux.HandleFunc("/ws", a.WebSocketHandler)
	mux.HandleFunc("/test", a.TestPageHandler)
	mux.Handle("/metrics", a.metrics.Handler())
	return mux
}
