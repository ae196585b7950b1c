// Package server implements the HTTP and WebSocket transport of the chat relay.
//
// Each accepted WebSocket becomes a Client, which is the relay.Conn the relay
// routes to and which feeds its frames to a relay.Session. The Hub owns the
// clients and ties their teardown to the session's Disconnect handling. App
// wires the relay core, the hub, origin checks, rate limiting and Prometheus
// metrics together and runs the HTTP server.
package server
