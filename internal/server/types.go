// Package server defines transport errors and utility helpers that are reused
// across client and hub logic.
package server

import (
	"errors"
	"strings"
)

var (
	// ErrClientClosed is returned by Send once the client has been torn down.
	ErrClientClosed = errors.New("client closed")
	// ErrSendBufferFull is returned by Send when the client cannot keep up;
	// the client is disconnected as a slow consumer.
	ErrSendBufferFull = errors.New("client send buffer full")
)

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
