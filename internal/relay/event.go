// Package relay defines the event vocabulary exchanged with clients and the
// JSON frame that carries it.
package relay

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Kind names an event on the wire.
type Kind string

const (
	KindIdentify   Kind = "identify"
	KindJoinRoom   Kind = "join-room"
	KindLeaveRoom  Kind = "leave-room"
	KindTyping     Kind = "typing"
	KindStopTyping Kind = "stop-typing"
	KindNewMessage Kind = "new-message"
	// KindDisconnect is raised by the transport, never accepted from a client.
	KindDisconnect Kind = "disconnect"
	// KindConnected acknowledges a successful identify to its sender.
	KindConnected Kind = "connected"
)

// Event is one inbound event. Which field is set depends on Kind:
// Identity for identify, Room for join/leave/typing, Envelope for
// new-message, nothing for disconnect.
type Event struct {
	Kind     Kind
	Identity UserID
	Room     RoomID
	Envelope *Envelope
}

// Envelope is a chat message plus the member list of its room, resolved by
// the persistence layer before the message reaches the relay.
type Envelope struct {
	Room    RoomID          `json:"room" validate:"required"`
	Sender  UserID          `json:"sender" validate:"required"`
	Members []UserID        `json:"members" validate:"required,dive,required"`
	Content json.RawMessage `json:"content,omitempty"`

	raw json.RawMessage
}

// Validate reports a missing room, sender or member list as ErrMalformedEvent.
// An empty member list is valid and reaches no one.
func (e *Envelope) Validate() error {
	if err := validate.Struct(e); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	return nil
}

// payload returns the bytes the envelope arrived with, so recipients get it
// verbatim. Envelopes built in code are marshalled.
func (e *Envelope) payload() (json.RawMessage, error) {
	if len(e.raw) > 0 {
		return e.raw, nil
	}
	return json.Marshal(e)
}

type frame struct {
	Event   Kind            `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Decode parses one client frame into an Event. Frames that are not JSON,
// carry an empty id, or an invalid envelope return ErrMalformedEvent; event
// names clients may not send return ErrUnknownEvent.
func Decode(raw []byte) (Event, error) {
	var f frame
	if err := json.Unmarshal(raw, &f); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	evt := Event{Kind: f.Event}
	switch f.Event {
	case KindIdentify:
		id, err := decodeID(f)
		if err != nil {
			return Event{}, err
		}
		evt.Identity = UserID(id)
	case KindJoinRoom, KindLeaveRoom, KindTyping, KindStopTyping:
		id, err := decodeID(f)
		if err != nil {
			return Event{}, err
		}
		evt.Room = RoomID(id)
	case KindNewMessage:
		env, err := decodeEnvelope(f)
		if err != nil {
			return Event{}, err
		}
		evt.Envelope = env
	default:
		return Event{}, fmt.Errorf("%w: %q", ErrUnknownEvent, f.Event)
	}
	return evt, nil
}

func decodeID(f frame) (string, error) {
	var id string
	if err := json.Unmarshal(f.Payload, &id); err != nil {
		return "", fmt.Errorf("%w: %s payload must be a string: %v", ErrMalformedEvent, f.Event, err)
	}
	if id == "" {
		return "", fmt.Errorf("%w: %s payload is empty", ErrMalformedEvent, f.Event)
	}
	return id, nil
}

func decodeEnvelope(f frame) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(f.Payload, &env); err != nil {
		return nil, fmt.Errorf("%w: envelope: %v", ErrMalformedEvent, err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	env.raw = append(json.RawMessage(nil), f.Payload...)
	return &env, nil
}

// Encode builds an outbound frame.
func Encode(kind Kind, payload json.RawMessage) ([]byte, error) {
	return json.Marshal(frame{Event: kind, Payload: payload})
}

func encodeID(kind Kind, id string) ([]byte, error) {
	payload, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}
	return Encode(kind, payload)
}
