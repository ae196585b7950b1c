package server

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/relay"
	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestHub(t *testing.T) *Hub {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	router := relay.NewRouter(relay.NewRegistry(), relay.NewTracker(), log)
	return NewHub(router, NewMetrics(), log)
}

func newDetachedClient(t *testing.T, hub *Hub, bufferSize int) *Client {
	t.Helper()
	cfg := NewConfig()
	cfg.SendBufferSize = bufferSize
	return NewClient(nil, hub, "127.0.0.1:12345", cfg)
}

// TestNewClient verifies that a fresh client has an id, an empty send
// channel and an unestablished session.
func TestNewClient(t *testing.T) {
	client := newDetachedClient(t, newTestHub(t), 4)

	assert.NotEqual(t, uuid.Nil, client.ID())
	assert.Equal(t, relay.StateUnestablished, client.Session().State())
	select {
	case <-client.GetSendChan():
		t.Error("Expected empty send channel but received a message")
	default:
	}
}

// TestClientSendQueues verifies that Send queues payloads in order.
func TestClientSendQueues(t *testing.T) {
	req := require.New(t)
	client := newDetachedClient(t, newTestHub(t), 4)

	req.NoError(client.Send([]byte("one")))
	req.NoError(client.Send([]byte("two")))

	req.Equal([]byte("one"), <-client.GetSendChan())
	req.Equal([]byte("two"), <-client.GetSendChan())
}

// TestClientSendBufferFull verifies that a slow client fails fast instead of
// blocking the dispatcher.
func TestClientSendBufferFull(t *testing.T) {
	client := newDetachedClient(t, newTestHub(t), 1)
	require.NoError(t, client.Send([]byte("one")))

	done := make(chan error, 1)
	go func() { done <- client.Send([]byte("two")) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrSendBufferFull)
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a full buffer")
	}
}

// TestClientSendAfterClose verifies that a torn-down client rejects sends
// without panicking on the closed channel.
func TestClientSendAfterClose(t *testing.T) {
	client := newDetachedClient(t, newTestHub(t), 4)

	assert.True(t, client.markClosed())
	assert.False(t, client.markClosed())
	assert.ErrorIs(t, client.Send([]byte("late")), ErrClientClosed)
}

// TestClientFramesReachSession verifies that inbound frames drive the
// session state machine.
func TestClientFramesReachSession(t *testing.T) {
	hub := newTestHub(t)
	client := newDetachedClient(t, hub, 4)
	ctx := context.Background()

	client.processMessage(ctx, []byte(`{"event":"identify","payload":"alice"}`))
	client.processMessage(ctx, []byte(`not json`))
	client.processMessage(ctx, []byte(`{"event":"join-room","payload":"r1"}`))

	assert.Equal(t, relay.StateActive, client.Session().State())
	assert.ElementsMatch(t, []relay.Conn{client}, hub.Router().Registry().ConnectionsFor("alice"))
	assert.JSONEq(t, `{"event":"connected","payload":"alice"}`, string(<-client.GetSendChan()))
}
