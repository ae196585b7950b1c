package relay

import "errors"

var (
	ErrMalformedEvent = errors.New("malformed event")
	ErrUnknownEvent   = errors.New("unknown event")
	ErrNotIdentified  = errors.New("connection has not identified")
	ErrSessionClosed  = errors.New("session closed")
)
