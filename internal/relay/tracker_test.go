package relay

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTracker_JoinThenLeaveAll(t *testing.T) {
	req := require.New(t)
	tracker := NewTracker()
	conn := newFakeConn()

	tracker.Join("r1", conn)
	tracker.Join("r2", conn)
	req.ElementsMatch([]RoomID{"r1", "r2"}, tracker.RoomsOf(conn))

	left := tracker.LeaveAll(conn)

	req.ElementsMatch([]RoomID{"r1", "r2"}, left)
	req.NotContains(tracker.MembersOf("r1"), Conn(conn))
	req.NotContains(tracker.MembersOf("r2"), Conn(conn))
	req.Empty(tracker.RoomsOf(conn))
	req.Equal(0, tracker.Rooms())
}

func TestTracker_JoinIsIdempotent(t *testing.T) {
	tracker := NewTracker()
	conn := newFakeConn()

	assert.True(t, tracker.Join("r1", conn))
	assert.False(t, tracker.Join("r1", conn))
	assert.Len(t, tracker.MembersOf("r1"), 1)
}

func TestTracker_Leave(t *testing.T) {
	req := require.New(t)
	tracker := NewTracker()
	a, b := newFakeConn(), newFakeConn()
	tracker.Join("r1", a)
	tracker.Join("r1", b)

	req.True(tracker.Leave("r1", a))
	req.False(tracker.Leave("r1", a))
	req.False(tracker.Leave("unknown", b))

	req.ElementsMatch([]Conn{b}, tracker.MembersOf("r1"))
	req.Empty(tracker.RoomsOf(a))
}

func TestTracker_LeaveAllTwice(t *testing.T) {
	tracker := NewTracker()
	conn := newFakeConn()
	tracker.Join("r1", conn)

	tracker.LeaveAll(conn)
	left := tracker.LeaveAll(conn)

	assert.Empty(t, left)
	assert.Empty(t, tracker.MembersOf("r1"))
}

// Both directions of the index must describe the same relation after any
// sequence of joins and leaves.
func TestTracker_StaysConsistent(t *testing.T) {
	tracker := NewTracker()
	rng := rand.New(rand.NewSource(42))
	conns := []*fakeConn{newFakeConn(), newFakeConn(), newFakeConn(), newFakeConn()}
	rooms := []RoomID{"a", "b", "c"}

	for i := 0; i < 500; i++ {
		c := conns[rng.Intn(len(conns))]
		room := rooms[rng.Intn(len(rooms))]
		switch rng.Intn(3) {
		case 0:
			tracker.Join(room, c)
		case 1:
			tracker.Leave(room, c)
		case 2:
			if rng.Intn(10) == 0 {
				tracker.LeaveAll(c)
			}
		}
	}

	for _, room := range rooms {
		for _, member := range tracker.MembersOf(room) {
			assert.Contains(t, tracker.RoomsOf(member), room)
		}
	}
	for _, c := range conns {
		for _, room := range tracker.RoomsOf(c) {
			assert.Contains(t, tracker.MembersOf(room), Conn(c))
		}
	}
}
