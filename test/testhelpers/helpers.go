// Package testhelpers provides common utilities for the relay integration tests.
//
// It starts a fully wired App behind an httptest server and speaks the relay
// wire protocol on behalf of test clients, so the tests can read as a
// sequence of emits and expected frames.
package testhelpers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/server"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// TestOrigin is an origin the default configuration accepts.
const TestOrigin = "http://localhost:8080"

// FrameTimeout bounds every expected read.
const FrameTimeout = 2 * time.Second

// Frame is a decoded outbound relay frame.
type Frame struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// StartApp builds an App from the default configuration, lets customize
// adjust it, and serves it. The server and the hub are stopped on cleanup.
func StartApp(t *testing.T, customize func(cfg *server.Config)) (*server.App, *httptest.Server) {
	t.Helper()

	cfg := server.NewConfig()
	if customize != nil {
		customize(&cfg)
	}

	app := server.NewApp(cfg, logs.GetLoggerFromLevel(slog.LevelDebug))
	app.Start()
	srv := httptest.NewServer(app.SetupRoutes())
	t.Cleanup(func() {
		srv.Close()
		_ = app.Hub().Shutdown(5 * time.Second)
	})
	return app, srv
}

// WebSocketURL maps an httptest base URL to the relay endpoint.
func WebSocketURL(baseURL string) string {
	return "ws" + strings.TrimPrefix(baseURL, "http") + "/ws"
}

// ConnectWebSocket dials url presenting origin. The handshake response is
// returned so callers can inspect rejections.
func ConnectWebSocket(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, resp, err
}

// Dial connects to the relay with TestOrigin and closes the socket on cleanup.
func Dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	conn, _, err := ConnectWebSocket(WebSocketURL(srv.URL), TestOrigin)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// Emit writes one client frame.
func Emit(t *testing.T, conn *websocket.Conn, event string, payload any) {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"event": event, "payload": payload})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, raw))
}

// Identify binds conn to user and waits for the connected ack. Frames are
// handled in order per connection, so the ack also proves that every frame
// emitted earlier on conn has been applied.
func Identify(t *testing.T, conn *websocket.Conn, user string) {
	t.Helper()
	Emit(t, conn, "identify", user)
	frame := ExpectFrame(t, conn)
	require.Equal(t, "connected", frame.Event)
	require.JSONEq(t, `"`+user+`"`, string(frame.Payload))
}

// Join joins room and waits until the relay has applied it.
func Join(t *testing.T, conn *websocket.Conn, user, room string) {
	t.Helper()
	Emit(t, conn, "join-room", room)
	Identify(t, conn, user)
}

// ExpectFrame reads the next frame or fails the test.
func ExpectFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(FrameTimeout)))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var frame Frame
	require.NoError(t, json.Unmarshal(raw, &frame), "frame %s", raw)
	return frame
}

// ExpectNoFrame asserts that nothing arrives within wait. A timed out
// gorilla connection cannot be read again, so this must be the last read on
// conn.
func ExpectNoFrame(t *testing.T, conn *websocket.Conn, wait time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(wait)))
	_, raw, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame %s", raw)
}

// ExpectClosed asserts that the server closes conn. Frames still in flight
// are discarded.
func ExpectClosed(t *testing.T, conn *websocket.Conn) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(FrameTimeout)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			t.Fatalf("connection still open after %s", FrameTimeout)
		}
		return
	}
}

// MakeRequest executes an HTTP request with a 5 second timeout.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{Timeout: 5 * time.Second}
	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}
