package broker

import (
	"net"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/GiulianoVenturo/TicTacToeServer/internal/game/rooms"
	"github.com/GiulianoVenturo/TicTacToeServer/internal/protocol"
	"github.com/GiulianoVenturo/TicTacToeServer/internal/storage/accounts"
	"github.com/GiulianoVenturo/TicTacToeServer/internal/transport"
)

// stubSource returns scripted first-mover picks so tests can follow the
// chosen player deterministically.
type stubSource struct {
	values []int
	calls  int
}

func (s *stubSource) Intn(int) int {
	if s.calls >= len(s.values) {
		return 0
	}
	v := s.values[s.calls]
	s.calls++
	return v
}

// testClient is one simulated player: the server half of a pipe registered
// with the broker, and a reader goroutine collecting everything the broker
// sends to it.
type testClient struct {
	conn *transport.Conn
	msgs chan []string
}

func newTestClient(t *testing.T, events chan transport.Event) *testClient {
	t.Helper()
	server, client := net.Pipe()
	conn := transport.NewConn(server, 0, 0, 65536)
	peer := transport.NewConn(client, 0, 0, 65536)
	t.Cleanup(func() {
		conn.Close()
		peer.Close()
	})

	c := &testClient{conn: conn, msgs: make(chan []string, 16)}
	go func() {
		for {
			fields, err := peer.ReadMessage()
			if err != nil {
				return
			}
			c.msgs <- fields
		}
	}()

	events <- transport.Event{Type: transport.EventConnect, Conn: conn}
	return c
}

func (c *testClient) send(events chan transport.Event, sig int, args ...string) {
	events <- transport.Event{Type: transport.EventMessage, Conn: c.conn, Fields: protocol.Message(sig, args...)}
}

func (c *testClient) disconnect(events chan transport.Event) {
	events <- transport.Event{Type: transport.EventDisconnect, Conn: c.conn}
}

func (c *testClient) recv(t *testing.T) []string {
	t.Helper()
	select {
	case fields := <-c.msgs:
		return fields
	case <-time.After(2 * time.Second):
		t.Fatal("no message received in time")
		return nil
	}
}

// expectSilence asserts that no message arrives within a short window.
func (c *testClient) expectSilence(t *testing.T) {
	t.Helper()
	select {
	case fields := <-c.msgs:
		t.Fatalf("unexpected message: %v", fields)
	case <-time.After(100 * time.Millisecond):
	}
}

// startBroker runs a broker over a file-backed account store and scripted
// first-mover picks, stopping it on test cleanup.
func startBroker(t *testing.T, picks ...int) (chan transport.Event, *Broker) {
	t.Helper()
	logger := zaptest.NewLogger(t)

	store, err := accounts.NewFileStore(filepath.Join(t.TempDir(), "PlayerAccounts.txt"), logger)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	registry := rooms.NewRegistry(&stubSource{values: picks})
	events := make(chan transport.Event)
	b := New(events, registry, store, logger)

	go func() {
		_ = b.Start()
	}()
	t.Cleanup(b.Stop)
	return events, b
}

func TestCreateAccountAndLogin(t *testing.T) {
	events, _ := startBroker(t)
	client := newTestClient(t, events)

	client.send(events, protocol.ClientCreateAccount, "alice", "pw1")
	assert.Equal(t, []string{"2"}, client.recv(t)) // AccountCreationComplete

	client.send(events, protocol.ClientCreateAccount, "alice", "other")
	assert.Equal(t, []string{"3"}, client.recv(t)) // AccountCreationFailed

	client.send(events, protocol.ClientLogin, "alice", "pw1")
	assert.Equal(t, []string{"0"}, client.recv(t)) // LoginComplete

	client.send(events, protocol.ClientLogin, "alice", "wrong")
	assert.Equal(t, []string{"1"}, client.recv(t)) // LoginFailed

	client.send(events, protocol.ClientLogin, "nobody", "pw1")
	assert.Equal(t, []string{"1"}, client.recv(t))
}

func TestQueueWaitsForOpponent(t *testing.T) {
	events, _ := startBroker(t)
	client := newTestClient(t, events)

	client.send(events, protocol.ClientOnQueue, "room1")
	assert.Equal(t, []string{"4"}, client.recv(t)) // WaitForOpponent
}

// TestMatchStartScenario walks the canonical four-connection session: one
// account creator, a queueing player, a spectator, and a second player whose
// queue attempt starts the match.
func TestMatchStartScenario(t *testing.T) {
	events, _ := startBroker(t, 0) // player1 moves first
	a := newTestClient(t, events)
	b := newTestClient(t, events)
	c := newTestClient(t, events)
	b2 := newTestClient(t, events)

	a.send(events, protocol.ClientCreateAccount, "alice", "pw1")
	assert.Equal(t, []string{"2"}, a.recv(t))

	b.send(events, protocol.ClientOnQueue, "room1")
	assert.Equal(t, []string{"4"}, b.recv(t))

	// Spectators get no ack until the match starts.
	c.send(events, protocol.ClientOnQueueViewer, "room1")
	c.expectSilence(t)

	b2.send(events, protocol.ClientOnQueue, "room1")

	assert.Equal(t, []string{"5", "X", "1"}, b.recv(t))
	assert.Equal(t, []string{"5", "O", "1"}, b2.recv(t))
	assert.Equal(t, []string{"5", "V", "1"}, c.recv(t))

	// Exactly one player gets the opening turn, with the empty-board payload.
	assert.Equal(t, []string{"6", "E"}, b.recv(t))
	b2.expectSilence(t)
}

func TestFirstMoverFollowsRandomPick(t *testing.T) {
	events, _ := startBroker(t, 1) // player2 moves first
	p1 := newTestClient(t, events)
	p2 := newTestClient(t, events)

	p1.send(events, protocol.ClientOnQueue, "room1")
	assert.Equal(t, []string{"4"}, p1.recv(t))
	p2.send(events, protocol.ClientOnQueue, "room1")

	assert.Equal(t, []string{"5", "X", "0"}, p1.recv(t))
	assert.Equal(t, []string{"5", "O", "0"}, p2.recv(t))
	assert.Equal(t, []string{"6", "E"}, p2.recv(t))
	p1.expectSilence(t)
}

func TestMoveRelay(t *testing.T) {
	events, _ := startBroker(t, 0)
	p1 := newTestClient(t, events)
	viewer := newTestClient(t, events)
	p2 := newTestClient(t, events)

	p1.send(events, protocol.ClientOnQueue, "room1")
	assert.Equal(t, []string{"4"}, p1.recv(t))
	viewer.send(events, protocol.ClientOnQueueViewer, "room1")
	p2.send(events, protocol.ClientOnQueue, "room1")

	assert.Equal(t, []string{"5", "X", "1"}, p1.recv(t))
	assert.Equal(t, []string{"5", "O", "1"}, p2.recv(t))
	assert.Equal(t, []string{"5", "V", "1"}, viewer.recv(t))
	assert.Equal(t, []string{"6", "E"}, p1.recv(t))

	p1.send(events, protocol.ClientMyMove, "X........")
	assert.Equal(t, []string{"6", "X........"}, p2.recv(t))
	assert.Equal(t, []string{"7", "X........", "p1"}, viewer.recv(t))

	p2.send(events, protocol.ClientMyMove, "XO.......")
	assert.Equal(t, []string{"6", "XO......."}, p1.recv(t))
	assert.Equal(t, []string{"7", "XO.......", "p2"}, viewer.recv(t))
}

// A move payload containing the delimiter arrives split across fields; the
// relay must reassemble and forward it byte for byte.
func TestMoveRelayPreservesDelimiterPayload(t *testing.T) {
	events, _ := startBroker(t, 0)
	p1 := newTestClient(t, events)
	p2 := newTestClient(t, events)

	p1.send(events, protocol.ClientOnQueue, "room1")
	assert.Equal(t, []string{"4"}, p1.recv(t))
	p2.send(events, protocol.ClientOnQueue, "room1")
	assert.Equal(t, []string{"5", "X", "0"}, p1.recv(t))
	assert.Equal(t, []string{"5", "O", "0"}, p2.recv(t))
	assert.Equal(t, []string{"6", "E"}, p1.recv(t))

	p1.send(events, protocol.ClientMyMove, "a", "b", "c")
	assert.Equal(t, []string{"6", "a", "b", "c"}, p2.recv(t))
}

func TestSurrender(t *testing.T) {
	events, _ := startBroker(t, 0)
	p1 := newTestClient(t, events)
	p2 := newTestClient(t, events)

	p1.send(events, protocol.ClientOnQueue, "room1")
	assert.Equal(t, []string{"4"}, p1.recv(t))
	p2.send(events, protocol.ClientOnQueue, "room1")
	assert.Equal(t, []string{"5", "X", "0"}, p1.recv(t))
	assert.Equal(t, []string{"5", "O", "0"}, p2.recv(t))
	assert.Equal(t, []string{"6", "E"}, p1.recv(t))

	p1.send(events, protocol.ClientSurrender)
	assert.Equal(t, []string{"8"}, p2.recv(t)) // YouWin
	p1.expectSilence(t)

	// The room is gone; a further move from either player goes nowhere.
	p2.send(events, protocol.ClientMyMove, "X........")
	p1.expectSilence(t)
}

func TestPlayerWinNotifiesLoserOnly(t *testing.T) {
	events, _ := startBroker(t, 0)
	p1 := newTestClient(t, events)
	p2 := newTestClient(t, events)

	p1.send(events, protocol.ClientOnQueue, "room1")
	assert.Equal(t, []string{"4"}, p1.recv(t))
	p2.send(events, protocol.ClientOnQueue, "room1")
	assert.Equal(t, []string{"5", "X", "0"}, p1.recv(t))
	assert.Equal(t, []string{"5", "O", "0"}, p2.recv(t))
	assert.Equal(t, []string{"6", "E"}, p1.recv(t))

	p1.send(events, protocol.ClientPlayerWin, "XXXOO....")
	assert.Equal(t, []string{"9", "XXXOO...."}, p2.recv(t)) // YouLose(board)
	p1.expectSilence(t)
}

func TestChatWheelSkipsSpectators(t *testing.T) {
	events, _ := startBroker(t, 0)
	p1 := newTestClient(t, events)
	viewer := newTestClient(t, events)
	p2 := newTestClient(t, events)

	p1.send(events, protocol.ClientOnQueue, "room1")
	assert.Equal(t, []string{"4"}, p1.recv(t))
	viewer.send(events, protocol.ClientOnQueueViewer, "room1")
	p2.send(events, protocol.ClientOnQueue, "room1")
	assert.Equal(t, []string{"5", "X", "1"}, p1.recv(t))
	assert.Equal(t, []string{"5", "O", "1"}, p2.recv(t))
	assert.Equal(t, []string{"5", "V", "1"}, viewer.recv(t))
	assert.Equal(t, []string{"6", "E"}, p1.recv(t))

	p1.send(events, protocol.ClientUseChatWheel, "3")
	assert.Equal(t, []string{"10", "3"}, p2.recv(t))
	viewer.expectSilence(t)
}

func TestLeaveQueueDeletesWaitingRoom(t *testing.T) {
	events, _ := startBroker(t, 0)
	p1 := newTestClient(t, events)

	p1.send(events, protocol.ClientOnQueue, "room1")
	assert.Equal(t, []string{"4"}, p1.recv(t))

	p1.send(events, protocol.ClientLeaveQueue)

	// The name is free again: re-queueing creates a fresh waiting room
	// rather than matching against the old one.
	p1.send(events, protocol.ClientOnQueue, "room1")
	assert.Equal(t, []string{"4"}, p1.recv(t))
}

func TestThirdQueueAttemptIsIgnored(t *testing.T) {
	events, _ := startBroker(t, 0)
	p1 := newTestClient(t, events)
	p2 := newTestClient(t, events)
	p3 := newTestClient(t, events)

	p1.send(events, protocol.ClientOnQueue, "room1")
	assert.Equal(t, []string{"4"}, p1.recv(t))
	p2.send(events, protocol.ClientOnQueue, "room1")
	assert.Equal(t, []string{"5", "X", "0"}, p1.recv(t))
	assert.Equal(t, []string{"5", "O", "0"}, p2.recv(t))
	assert.Equal(t, []string{"6", "E"}, p1.recv(t))

	p3.send(events, protocol.ClientOnQueue, "room1")
	p3.expectSilence(t)
}

func TestSpectatorAfterStartIsRejected(t *testing.T) {
	events, _ := startBroker(t, 0)
	p1 := newTestClient(t, events)
	p2 := newTestClient(t, events)
	late := newTestClient(t, events)

	p1.send(events, protocol.ClientOnQueue, "room1")
	assert.Equal(t, []string{"4"}, p1.recv(t))
	p2.send(events, protocol.ClientOnQueue, "room1")
	assert.Equal(t, []string{"5", "X", "0"}, p1.recv(t))
	assert.Equal(t, []string{"5", "O", "0"}, p2.recv(t))
	assert.Equal(t, []string{"6", "E"}, p1.recv(t))

	late.send(events, protocol.ClientOnQueueViewer, "room1")
	late.expectSilence(t)

	// The late spectator is in no room, so moves are not mirrored to it.
	p1.send(events, protocol.ClientMyMove, "X........")
	assert.Equal(t, []string{"6", "X........"}, p2.recv(t))
	late.expectSilence(t)
}

func TestDisconnectForfeitsActiveMatch(t *testing.T) {
	events, _ := startBroker(t, 0)
	p1 := newTestClient(t, events)
	p2 := newTestClient(t, events)

	p1.send(events, protocol.ClientOnQueue, "room1")
	assert.Equal(t, []string{"4"}, p1.recv(t))
	p2.send(events, protocol.ClientOnQueue, "room1")
	assert.Equal(t, []string{"5", "X", "0"}, p1.recv(t))
	assert.Equal(t, []string{"5", "O", "0"}, p2.recv(t))
	assert.Equal(t, []string{"6", "E"}, p1.recv(t))

	p1.disconnect(events)
	assert.Equal(t, []string{"8"}, p2.recv(t)) // YouWin by forfeit
}

func TestDisconnectOfQueuedPlayerFreesRoomName(t *testing.T) {
	events, _ := startBroker(t, 0)
	p1 := newTestClient(t, events)
	p2 := newTestClient(t, events)

	p1.send(events, protocol.ClientOnQueue, "room1")
	assert.Equal(t, []string{"4"}, p1.recv(t))
	p1.disconnect(events)

	p2.send(events, protocol.ClientOnQueue, "room1")
	assert.Equal(t, []string{"4"}, p2.recv(t))
}

func TestMalformedMessagesAreDropped(t *testing.T) {
	events, _ := startBroker(t)
	client := newTestClient(t, events)

	client.send(events, 99, "junk")
	events <- transport.Event{Type: transport.EventMessage, Conn: client.conn, Fields: []string{"not-a-number"}}
	client.send(events, protocol.ClientOnQueue) // missing room name
	client.expectSilence(t)

	// The connection is still serviceable afterwards.
	client.send(events, protocol.ClientOnQueue, "room1")
	assert.Equal(t, []string{"4"}, client.recv(t))
}

func TestSendToDisconnectedOpponentIsDropped(t *testing.T) {
	events, _ := startBroker(t, 0)
	p1 := newTestClient(t, events)
	p2 := newTestClient(t, events)

	p1.send(events, protocol.ClientOnQueue, "room1")
	assert.Equal(t, []string{"4"}, p1.recv(t))
	p2.send(events, protocol.ClientOnQueue, "room1")
	assert.Equal(t, []string{"5", "X", "0"}, p1.recv(t))
	assert.Equal(t, []string{"5", "O", "0"}, p2.recv(t))
	assert.Equal(t, []string{"6", "E"}, p1.recv(t))

	// The forfeit removes the room, so a surrender arriving after the
	// opponent's disconnect is a no-op rather than a send to a stale
	// connection.
	p2.disconnect(events)
	assert.Equal(t, []string{"8"}, p1.recv(t))

	p1.send(events, protocol.ClientSurrender)
	p2.expectSilence(t)
}

func TestSpectatorCountInRoomCreated(t *testing.T) {
	events, _ := startBroker(t, 0)
	p1 := newTestClient(t, events)
	s1 := newTestClient(t, events)
	s2 := newTestClient(t, events)
	p2 := newTestClient(t, events)

	p1.send(events, protocol.ClientOnQueue, "arena")
	assert.Equal(t, []string{"4"}, p1.recv(t))
	s1.send(events, protocol.ClientOnQueueViewer, "arena")
	s2.send(events, protocol.ClientOnQueueViewer, "arena")
	p2.send(events, protocol.ClientOnQueue, "arena")

	want := []string{"5", "X", strconv.Itoa(2)}
	assert.Equal(t, want, p1.recv(t))
	assert.Equal(t, []string{"5", "O", "2"}, p2.recv(t))
	assert.Equal(t, []string{"5", "V", "2"}, s1.recv(t))
	assert.Equal(t, []string{"5", "V", "2"}, s2.recv(t))
}
