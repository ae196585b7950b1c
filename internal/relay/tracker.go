package relay

// Tracker maps a room to the connections subscribed to it. Subscriptions are
// explicit: a connection only receives room-scoped events after joining.
//
// A connection is in a room's member set exactly when the room is in that
// connection's joined set; both directions are updated under the same lock.
type Tracker struct {
	idx *index[RoomID]
}

// NewTracker returns an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{idx: newIndex[RoomID]()}
}

// Join subscribes c to room. Joining twice is a no-op; the return value
// reports whether c was newly added.
func (t *Tracker) Join(room RoomID, c Conn) bool {
	return t.idx.add(room, c)
}

// Leave unsubscribes c from room and reports whether it was a member.
func (t *Tracker) Leave(room RoomID, c Conn) bool {
	return t.idx.remove(room, c)
}

// LeaveAll unsubscribes c from every room and returns the rooms it left.
func (t *Tracker) LeaveAll(c Conn) []RoomID {
	return t.idx.removeConn(c)
}

// MembersOf returns a snapshot of the connections subscribed to room.
func (t *Tracker) MembersOf(room RoomID) []Conn {
	return t.idx.conns(room)
}

// RoomsOf returns a snapshot of the rooms c has joined.
func (t *Tracker) RoomsOf(c Conn) []RoomID {
	return t.idx.keys(c)
}

// Rooms returns the number of rooms with at least one subscriber.
func (t *Tracker) Rooms() int {
	return t.idx.len()
}

func (t *Tracker) eachMember(room RoomID, fn func(c Conn)) {
	t.idx.visit([]RoomID{room}, func(_ RoomID, c Conn) { fn(c) })
}
