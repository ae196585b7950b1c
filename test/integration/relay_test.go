// Package integration drives a fully wired relay over real WebSocket
// connections: presence, typing indicators and message fan-out between
// several clients.
package integration

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/Tyrowin/gochat-relay/internal/relay"
	"github.com/Tyrowin/gochat-relay/test/testhelpers"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const quietPeriod = 300 * time.Millisecond

const hiEnvelope = `{"room":"r1","sender":"alice","members":["alice","bob","carol"],"content":"hi"}`

func expectEvent(t *testing.T, conn *websocket.Conn, event, payload string) {
	t.Helper()
	frame := testhelpers.ExpectFrame(t, conn)
	assert.Equal(t, event, frame.Event)
	assert.JSONEq(t, payload, string(frame.Payload))
}

// TestRoomScenario covers three users in one room: typing reaches the other
// members, the envelope reaches the other recipients verbatim, and the origin
// never hears its own events.
func TestRoomScenario(t *testing.T) {
	_, srv := testhelpers.StartApp(t, nil)

	alice := testhelpers.Dial(t, srv)
	bob := testhelpers.Dial(t, srv)
	carol := testhelpers.Dial(t, srv)

	testhelpers.Identify(t, alice, "alice")
	testhelpers.Identify(t, bob, "bob")
	testhelpers.Identify(t, carol, "carol")
	testhelpers.Join(t, alice, "alice", "r1")
	testhelpers.Join(t, bob, "bob", "r1")
	testhelpers.Join(t, carol, "carol", "r1")

	testhelpers.Emit(t, alice, "typing", "r1")
	expectEvent(t, bob, "typing", `"r1"`)
	expectEvent(t, carol, "typing", `"r1"`)

	testhelpers.Emit(t, alice, "stop-typing", "r1")
	expectEvent(t, bob, "stop-typing", `"r1"`)
	expectEvent(t, carol, "stop-typing", `"r1"`)

	testhelpers.Emit(t, alice, "new-message", json.RawMessage(hiEnvelope))
	expectEvent(t, bob, "new-message", hiEnvelope)
	expectEvent(t, carol, "new-message", hiEnvelope)

	testhelpers.ExpectNoFrame(t, alice, quietPeriod)
}

// TestUnidentifiedSenderIsDropped verifies that events requiring an identity
// are dropped for a connection that never identified, and that the
// connection stays usable.
func TestUnidentifiedSenderIsDropped(t *testing.T) {
	app, srv := testhelpers.StartApp(t, nil)

	dave := testhelpers.Dial(t, srv)
	bob := testhelpers.Dial(t, srv)
	testhelpers.Identify(t, bob, "bob")
	testhelpers.Join(t, bob, "bob", "r1")

	testhelpers.Emit(t, dave, "join-room", "r1")
	testhelpers.Emit(t, dave, "typing", "r1")
	testhelpers.Emit(t, dave, "new-message", json.RawMessage(
		`{"room":"r1","sender":"dave","members":["dave","bob"],"content":"hey"}`))

	// identify is still accepted afterwards and acts as a barrier
	testhelpers.Identify(t, dave, "dave")
	assert.Len(t, app.Hub().Router().Registry().ConnectionsFor("dave"), 1)

	testhelpers.ExpectNoFrame(t, bob, quietPeriod)
}

// TestMultiDeviceDelivery verifies that every connection of a recipient gets
// the message, while the sender's other devices stay quiet.
func TestMultiDeviceDelivery(t *testing.T) {
	app, srv := testhelpers.StartApp(t, nil)

	alicePhone := testhelpers.Dial(t, srv)
	aliceLaptop := testhelpers.Dial(t, srv)
	bobPhone := testhelpers.Dial(t, srv)
	bobLaptop := testhelpers.Dial(t, srv)
	for _, c := range []*websocket.Conn{alicePhone, aliceLaptop} {
		testhelpers.Identify(t, c, "alice")
	}
	for _, c := range []*websocket.Conn{bobPhone, bobLaptop} {
		testhelpers.Identify(t, c, "bob")
	}
	require.Len(t, app.Hub().Router().Registry().ConnectionsFor("bob"), 2)

	envelope := `{"room":"r1","sender":"alice","members":["alice","bob","bob"],"content":"hello"}`
	testhelpers.Emit(t, alicePhone, "new-message", json.RawMessage(envelope))

	expectEvent(t, bobPhone, "new-message", envelope)
	expectEvent(t, bobLaptop, "new-message", envelope)
	testhelpers.ExpectNoFrame(t, bobPhone, quietPeriod)
	testhelpers.ExpectNoFrame(t, aliceLaptop, quietPeriod)
}

// TestLeaveRoomStopsTyping verifies that a connection which left a room no
// longer receives its typing indicators.
func TestLeaveRoomStopsTyping(t *testing.T) {
	_, srv := testhelpers.StartApp(t, nil)

	alice := testhelpers.Dial(t, srv)
	bob := testhelpers.Dial(t, srv)
	testhelpers.Identify(t, alice, "alice")
	testhelpers.Identify(t, bob, "bob")
	testhelpers.Join(t, alice, "alice", "r1")
	testhelpers.Join(t, bob, "bob", "r1")

	testhelpers.Emit(t, bob, "leave-room", "r1")
	testhelpers.Identify(t, bob, "bob")

	testhelpers.Emit(t, alice, "typing", "r1")
	testhelpers.ExpectNoFrame(t, bob, quietPeriod)
}

// TestDisconnectCleansUp verifies that closing a socket removes the
// connection from every index and that later messages to the departed user
// are harmless.
func TestDisconnectCleansUp(t *testing.T) {
	app, srv := testhelpers.StartApp(t, nil)
	router := app.Hub().Router()

	alice := testhelpers.Dial(t, srv)
	bob := testhelpers.Dial(t, srv)
	testhelpers.Identify(t, alice, "alice")
	testhelpers.Identify(t, bob, "bob")
	testhelpers.Join(t, bob, "bob", "r1")

	require.NoError(t, bob.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	require.NoError(t, bob.Close())

	require.Eventually(t, func() bool {
		return len(router.Registry().ConnectionsFor("bob")) == 0 &&
			len(router.Tracker().MembersOf(relay.RoomID("r1"))) == 0
	}, 2*time.Second, 20*time.Millisecond)

	testhelpers.Emit(t, alice, "new-message", json.RawMessage(
		`{"room":"r1","sender":"alice","members":["alice","bob"],"content":"still there?"}`))
	testhelpers.Identify(t, alice, "alice")
	assert.Equal(t, 1, app.Hub().ClientCount())
}

// TestMalformedFramesAreIgnored verifies that garbage never reaches other
// clients nor kills the sender's connection.
func TestMalformedFramesAreIgnored(t *testing.T) {
	_, srv := testhelpers.StartApp(t, nil)

	alice := testhelpers.Dial(t, srv)
	bob := testhelpers.Dial(t, srv)
	testhelpers.Identify(t, alice, "alice")
	testhelpers.Identify(t, bob, "bob")
	testhelpers.Join(t, bob, "bob", "r1")

	for _, raw := range []string{
		`not json`,
		`{"event":"teleport","payload":"r1"}`,
		`{"event":"typing","payload":42}`,
		`{"event":"new-message","payload":{"room":"r1","members":["bob"]}}`,
		`{"event":"disconnect"}`,
	} {
		require.NoError(t, alice.WriteMessage(websocket.TextMessage, []byte(raw)))
	}

	testhelpers.Identify(t, alice, "alice")
	testhelpers.ExpectNoFrame(t, bob, quietPeriod)
}
