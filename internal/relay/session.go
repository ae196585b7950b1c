package relay

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// State is the lifecycle position of a Session.
type State int

const (
	StateUnestablished State = iota
	StateIdentified
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUnestablished:
		return "unestablished"
	case StateIdentified:
		return "identified"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// requiresIdentity lists the events a connection may only send once it has
// identified. Everything else is accepted in any state but Closed.
var requiresIdentity = map[Kind]bool{
	KindTyping:     true,
	KindStopTyping: true,
	KindNewMessage: true,
}

// Session is the per-connection state machine:
// Unestablished -> Identified -> Active -> Closed.
//
// The transport feeds it one connection's frames in arrival order. Close may
// be called from any goroutine, any number of times; teardown runs once.
type Session struct {
	conn   Conn
	router *Router
	log    *slog.Logger

	mu       sync.Mutex
	state    State
	identity UserID
	joined   bool
}

// NewSession starts a Session for conn in the Unestablished state.
func NewSession(conn Conn, router *Router, log *slog.Logger) *Session {
	return &Session{
		conn:   conn,
		router: router,
		log:    log.With(slog.String("connID", conn.ID().String())),
		state:  StateUnestablished,
	}
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the bound identity, if any.
func (s *Session) Identity() (UserID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.identity, s.identity != ""
}

// HandleFrame decodes a raw client frame and handles it. Malformed frames
// are dropped and reported to the caller only.
func (s *Session) HandleFrame(ctx context.Context, raw []byte) error {
	evt, err := Decode(raw)
	if err != nil {
		s.router.Drop(ctx, "frame", "malformed")
		s.log.WarnContext(ctx, "Dropping malformed frame", slog.Any("error", err))
		return err
	}
	return s.Handle(ctx, evt)
}

// Handle applies evt to the state machine and routes it when legal. A
// rejected event is dropped and logged; the returned error is for the
// transport, nothing is sent back to the client.
func (s *Session) Handle(ctx context.Context, evt Event) error {
	if evt.Kind == KindDisconnect {
		s.Close(ctx)
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		s.router.Drop(ctx, evt.Kind, "closed")
		return ErrSessionClosed
	}
	if requiresIdentity[evt.Kind] && s.state == StateUnestablished {
		s.router.Drop(ctx, evt.Kind, "not identified")
		s.log.WarnContext(ctx, "Dropping event from unidentified connection", slog.String("event", string(evt.Kind)))
		return fmt.Errorf("%w: %s", ErrNotIdentified, evt.Kind)
	}

	if err := s.router.Route(ctx, s.conn, s.identity, evt); err != nil {
		return err
	}

	switch evt.Kind {
	case KindIdentify:
		s.identity = evt.Identity
		if s.state == StateUnestablished {
			s.transition(ctx, StateIdentified)
		}
		if s.joined {
			s.transition(ctx, StateActive)
		}
	case KindJoinRoom:
		s.joined = true
		if s.state == StateIdentified {
			s.transition(ctx, StateActive)
		}
	}
	return nil
}

// Close moves the session to Closed and removes its connection from the
// Registry and the Tracker. Only the first call has any effect.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateClosed {
		return
	}
	s.transition(ctx, StateClosed)
	_ = s.router.Route(ctx, s.conn, s.identity, Event{Kind: KindDisconnect})
}

func (s *Session) transition(ctx context.Context, next State) {
	if s.state == next {
		return
	}
	s.log.DebugContext(ctx, "Session state changed", slog.String("from", s.state.String()), slog.String("to", next.String()))
	s.state = next
}
