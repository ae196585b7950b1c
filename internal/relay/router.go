package relay

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"
)

// Recorder observes relay traffic. The server plugs its metrics in here.
type Recorder interface {
	EventReceived(kind Kind)
	EventDropped(kind Kind, reason string)
	Dispatched(kind Kind, err error)
}

type nopRecorder struct{}

func (nopRecorder) EventReceived(Kind)        {}
func (nopRecorder) EventDropped(Kind, string) {}
func (nopRecorder) Dispatched(Kind, error)    {}

// Router turns one inbound event into zero or more outbound dispatches.
//
// Typing indicators go to the connections subscribed to the room in the
// Tracker. New messages go to every live connection of every user in the
// envelope's member list, looked up in the Registry. The two use different
// membership sources on purpose: the envelope is the caller's snapshot of the
// persisted room, the Tracker only knows who is looking at it right now.
type Router struct {
	registry *Registry
	tracker  *Tracker
	recorder Recorder
	log      *slog.Logger
}

// RouterOption customizes a Router.
type RouterOption func(*Router)

// WithRecorder installs a traffic observer.
func WithRecorder(rec Recorder) RouterOption {
	return func(r *Router) {
		if rec != nil {
			r.recorder = rec
		}
	}
}

// NewRouter builds a Router over the given Registry and Tracker.
func NewRouter(registry *Registry, tracker *Tracker, log *slog.Logger, opts ...RouterOption) *Router {
	r := &Router{
		registry: registry,
		tracker:  tracker,
		recorder: nopRecorder{},
		log:      log.With(slog.String("component", "event_router")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Registry returns the connection registry the router dispatches through.
func (r *Router) Registry() *Registry { return r.registry }

// Tracker returns the room membership tracker the router dispatches through.
func (r *Router) Tracker() *Tracker { return r.tracker }

// Route dispatches evt received on from. self is the identity bound to from,
// empty if it has not identified; the Session is responsible for rejecting
// events that need one.
func (r *Router) Route(ctx context.Context, from Conn, self UserID, evt Event) error {
	r.recorder.EventReceived(evt.Kind)

	switch evt.Kind {
	case KindIdentify:
		return r.Identify(ctx, from, evt.Identity)
	case KindJoinRoom:
		r.JoinRoom(ctx, from, evt.Room)
	case KindLeaveRoom:
		r.LeaveRoom(ctx, from, evt.Room)
	case KindTyping, KindStopTyping:
		r.Typing(ctx, from, evt.Kind, evt.Room)
	case KindNewMessage:
		return r.NewMessage(ctx, self, evt.Envelope)
	case KindDisconnect:
		r.Disconnect(ctx, from)
	default:
		r.Drop(ctx, evt.Kind, "unknown")
		return fmt.Errorf("%w: %q", ErrUnknownEvent, evt.Kind)
	}
	return nil
}

// Drop records and logs an event that will not be routed.
func (r *Router) Drop(ctx context.Context, kind Kind, reason string) {
	r.recorder.EventDropped(kind, reason)
	r.log.DebugContext(ctx, "Event dropped", slog.String("event", string(kind)), slog.String("reason", reason))
}

// Identify registers from under id and acknowledges it to from alone.
func (r *Router) Identify(ctx context.Context, from Conn, id UserID) error {
	if id == "" {
		r.Drop(ctx, KindIdentify, "empty identity")
		return fmt.Errorf("%w: empty identity", ErrMalformedEvent)
	}
	r.registry.Register(id, from)
	r.log.DebugContext(ctx, "Connection identified", slog.String("connID", from.ID().String()), slog.String("userID", string(id)))

	ack, err := encodeID(KindConnected, string(id))
	if err != nil {
		return err
	}
	r.send(ctx, KindConnected, from, ack)
	return nil
}

// JoinRoom subscribes from to room. Other members are not told.
func (r *Router) JoinRoom(ctx context.Context, from Conn, room RoomID) {
	if r.tracker.Join(room, from) {
		r.log.DebugContext(ctx, "Joined room", slog.String("connID", from.ID().String()), slog.String("room", string(room)))
	}
}

// LeaveRoom drops the subscription of from to room.
func (r *Router) LeaveRoom(ctx context.Context, from Conn, room RoomID) {
	if r.tracker.Leave(room, from) {
		r.log.DebugContext(ctx, "Left room", slog.String("connID", from.ID().String()), slog.String("room", string(room)))
	}
}

// Typing relays a typing or stop-typing indicator to every connection
// subscribed to room except from. Best effort.
func (r *Router) Typing(ctx context.Context, from Conn, kind Kind, room RoomID) {
	payload, err := encodeID(kind, string(room))
	if err != nil {
		r.Drop(ctx, kind, "encode")
		return
	}

	r.tracker.eachMember(room, func(c Conn) {
		if c == from {
			return
		}
		r.send(ctx, kind, c, payload)
	})
}

// NewMessage delivers env to every live connection of every member except
// the sender. Both the envelope's sender and self are excluded, so a caller
// that forgets to leave the sender out of the member list still never echoes
// the message back. Members without live connections are skipped.
func (r *Router) NewMessage(ctx context.Context, self UserID, env *Envelope) error {
	if env == nil {
		r.Drop(ctx, KindNewMessage, "missing envelope")
		return fmt.Errorf("%w: missing envelope", ErrMalformedEvent)
	}
	if err := env.Validate(); err != nil {
		r.Drop(ctx, KindNewMessage, "invalid envelope")
		return err
	}
	body, err := env.payload()
	if err != nil {
		r.Drop(ctx, KindNewMessage, "encode")
		return err
	}
	payload, err := Encode(KindNewMessage, body)
	if err != nil {
		r.Drop(ctx, KindNewMessage, "encode")
		return err
	}

	targets := lo.Without(lo.Uniq(env.Members), env.Sender, self)
	delivered := 0
	r.registry.each(targets, func(_ UserID, c Conn) {
		if r.send(ctx, KindNewMessage, c, payload) {
			delivered++
		}
	})

	r.log.DebugContext(ctx, "Message fanned out",
		slog.String("room", string(env.Room)),
		slog.String("sender", string(env.Sender)),
		slog.Int("members", len(targets)),
		slog.Int("delivered", delivered))
	return nil
}

// Disconnect removes every trace of c. Calling it again is a no-op.
func (r *Router) Disconnect(ctx context.Context, c Conn) {
	rooms := r.tracker.LeaveAll(c)
	r.registry.Unregister(c)
	r.log.DebugContext(ctx, "Connection removed", slog.String("connID", c.ID().String()), slog.Int("rooms", len(rooms)))
}

// send isolates a failing target: the error is recorded and logged, the
// caller moves on to the next one.
func (r *Router) send(ctx context.Context, kind Kind, c Conn, payload []byte) bool {
	err := c.Send(payload)
	r.recorder.Dispatched(kind, err)
	if err != nil {
		r.log.WarnContext(ctx, "Dispatch failed",
			slog.String("event", string(kind)),
			slog.String("connID", c.ID().String()),
			slog.Any("error", err))
		return false
	}
	return true
}
