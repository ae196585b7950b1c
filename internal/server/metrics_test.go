package server

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetricsRecordRelayTraffic(t *testing.T) {
	m := NewMetrics()

	m.EventReceived("new-message")
	m.EventReceived("new-message")
	m.EventDropped("typing", "not identified")
	m.Dispatched("new-message", nil)
	m.Dispatched("new-message", errors.New("buffer full"))
	m.connectionOpened()
	m.connectionOpened()
	m.connectionClosed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.received.WithLabelValues("new-message")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dropped.WithLabelValues("typing", "not identified")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatched.WithLabelValues("new-message", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.dispatched.WithLabelValues("new-message", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.connections))
}
