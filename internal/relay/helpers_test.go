package relay

import (
	"encoding/json"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

// fakeConn records every payload it is sent.
type fakeConn struct {
	id uuid.UUID

	mu     sync.Mutex
	frames [][]byte
	err    error
}

func newFakeConn() *fakeConn {
	return &fakeConn{id: uuid.New()}
}

func (c *fakeConn) ID() uuid.UUID { return c.id }

func (c *fakeConn) Send(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.frames = append(c.frames, payload)
	return nil
}

func (c *fakeConn) failWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

func (c *fakeConn) received() []frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]frame, 0, len(c.frames))
	for _, raw := range c.frames {
		var f frame
		if err := json.Unmarshal(raw, &f); err == nil {
			out = append(out, f)
		}
	}
	return out
}

// receivedOf keeps only frames of the given kind.
func (c *fakeConn) receivedOf(kind Kind) []frame {
	var out []frame
	for _, f := range c.received() {
		if f.Event == kind {
			out = append(out, f)
		}
	}
	return out
}

type countingRecorder struct {
	mu         sync.Mutex
	received   map[Kind]int
	dropped    map[string]int
	dispatched int
	failed     int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{received: map[Kind]int{}, dropped: map[string]int{}}
}

func (r *countingRecorder) EventReceived(kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.received[kind]++
}

func (r *countingRecorder) EventDropped(_ Kind, reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dropped[reason]++
}

func (r *countingRecorder) Dispatched(_ Kind, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil {
		r.failed++
		return
	}
	r.dispatched++
}

func newTestRouter(t *testing.T, opts ...RouterOption) *Router {
	t.Helper()
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	return NewRouter(NewRegistry(), NewTracker(), log, opts...)
}

func stringPayload(t *testing.T, f frame) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(f.Payload, &s))
	return s
}
