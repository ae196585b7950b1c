// Package server exposes HTTP handlers, including WebSocket upgrades, health
// checks, and the built-in test page.
package server

import (
	"fmt"
	"log/slog"
	"net/http"
)

// WebSocketHandler upgrades GET requests from allowed origins and registers
// the new client with the hub, which launches its pumps.
func (a *App) WebSocketHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed. WebSocket endpoint only accepts GET requests.", http.StatusMethodNotAllowed)
		return
	}

	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.log.Warn("WebSocket upgrade failed", slog.Any("error", err))
		return
	}

	client := NewClient(conn, a.hub, r.RemoteAddr, a.cfg)
	if !a.hub.Register(client) {
		a.log.Warn("Hub is shutting down; rejecting connection", slog.String("remoteAddr", r.RemoteAddr))
		client.closeConnection()
	}
}

// HealthHandler provides a simple health check endpoint that returns server status.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	_, _ = fmt.Fprintf(w, "GoChat relay is running!")
}

// TestPageHandler serves a small HTML page that speaks the relay protocol,
// for poking at a running server by hand.
func (a *App) TestPageHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html")
	if _, err := fmt.Fprint(w, testPage); err != nil {
		a.log.Warn("Error writing HTML response", slog.Any("error", err))
	}
}

const testPage = `<!DOCTYPE html>
<html>
<head>
    <title>GoChat Relay Test</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        #events {
            border: 1px solid #ccc;
            height: 300px;
            padding: 10px;
            overflow-y: scroll;
            margin: 10px 0;
            background-color: #f9f9f9;
            font-family: monospace;
        }
        input[type="text"] { width: 180px; padding: 5px; margin-right: 6px; }
        button {
            padding: 5px 12px;
            background-color: #007cba;
            color: white;
            border: none;
            cursor: pointer;
        }
        button:hover { background-color: #005a87; }
        .row { margin: 6px 0; }
    </style>
</head>
<body>
    <h1>GoChat Relay Test</h1>

    <div class="row">
        <button onclick="connect()">Connect</button>
        <input type="text" id="user" placeholder="user id">
        <button onclick="emit('identify', value('user'))">Identify</button>
    </div>
    <div class="row">
        <input type="text" id="room" placeholder="room id">
        <button onclick="emit('join-room', value('room'))">Join</button>
        <button onclick="emit('leave-room', value('room'))">Leave</button>
        <button onclick="emit('typing', value('room'))">Typing</button>
        <button onclick="emit('stop-typing', value('room'))">Stop typing</button>
    </div>
    <div class="row">
        <input type="text" id="members" placeholder="members, comma separated">
        <input type="text" id="content" placeholder="message">
        <button onclick="sendMessage()">Send</button>
    </div>

    <div id="events"></div>

    <script>
        let ws = null;
        const events = document.getElementById('events');

        function value(id) { return document.getElementById(id).value.trim(); }

        function log(line) {
            const el = document.createElement('div');
            el.textContent = line;
            events.appendChild(el);
            events.scrollTop = events.scrollHeight;
        }

        function connect() {
            const scheme = location.protocol === 'https:' ? 'wss://' : 'ws://';
            ws = new WebSocket(scheme + location.host + '/ws');
            ws.onopen = () => log('-- connected');
            ws.onmessage = (e) => log('<- ' + e.data);
            ws.onclose = () => { log('-- closed'); ws = null; };
        }

        function emit(event, payload) {
            if (!ws || ws.readyState !== WebSocket.OPEN) { log('-- not connected'); return; }
            const frame = JSON.stringify({ event: event, payload: payload });
            ws.send(frame);
            log('-> ' + frame);
        }

        function sendMessage() {
            const members = value('members').split(',').map(s => s.trim()).filter(Boolean);
            emit('new-message', {
                room: value('room'),
                sender: value('user'),
                members: members,
                content: value('content'),
            });
        }
    </script>
</body>
</html>`
