// Package relay defines the connection handle the relay routes to and the
// identifiers it keys its maps by.
package relay

//go:generate mockgen -source=conn.go -destination=../../mocks/mock_conn.go -package=mocks

import "github.com/google/uuid"

// UserID identifies a user. It is supplied by the auth layer and trusted
// verbatim.
type UserID string

// RoomID identifies a chat or group. The relay never interprets it.
type RoomID string

// Conn is one live transport connection as seen by the relay. The transport
// owns it; Registry and Tracker only reference it.
//
// Send must not block: it either queues the payload or returns an error.
// It is called while an index read lock is held.
type Conn interface {
	ID() uuid.UUID
	Send(payload []byte) error
}
