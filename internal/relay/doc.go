// Package relay implements the in-memory real-time delivery layer of the chat
// service.
//
// It keeps track of which live connections belong to which user (Registry),
// which connections subscribed to which room (Tracker), and turns inbound
// events into outbound dispatches (Router). A Session wraps one connection
// and enforces which events are legal in its current lifecycle state.
//
// Nothing here is persisted. Room subscriptions are lost on restart and must
// be re-established by clients when they reconnect.
package relay
