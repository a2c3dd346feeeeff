// Package rooms implements the game-room state machine: queueing,
// matchmaking, spectating, relay routing, and termination.
package rooms

import (
	"errors"

	"github.com/google/uuid"

	"github.com/GiulianoVenturo/TicTacToeServer/internal/game/rng"
)

// ConnID identifies a client connection. The registry treats it as an opaque
// handle; matchmaking is by connection, not by account identity.
type ConnID = uuid.UUID

// Role is the role label sent to a participant when a match starts.
type Role string

// Role labels on the wire.
const (
	RoleX      Role = "X" // player1
	RoleO      Role = "O" // player2
	RoleViewer Role = "V"
)

// PlayerTag identifies which player produced a move in a spectator update.
type PlayerTag string

// Player tags on the wire.
const (
	TagPlayer1 PlayerTag = "p1"
	TagPlayer2 PlayerTag = "p2"
)

// ErrRoomNotFound is returned when an operation names a room that does not exist.
var ErrRoomNotFound = errors.New("room not found")

// ErrRoomStarted is returned when a join is attempted on a room whose match
// has already started.
var ErrRoomStarted = errors.New("room already started")

// ErrAlreadyInRoom is returned when a connection that already occupies a
// player or spectator slot attempts to join again.
var ErrAlreadyInRoom = errors.New("connection already in a room")

// Room is one game room. A room waits with only player1 set, becomes active
// when player2 queues under the same name, and is removed from the registry
// when the game concludes.
type Room struct {
	Name       string
	Player1    ConnID
	Player2    ConnID
	Started    bool
	Spectators []ConnID // join order
}

// isActivePlayer reports whether c occupies a player slot of a started room.
func (r *Room) isActivePlayer(c ConnID) bool {
	return r.Started && (c == r.Player1 || c == r.Player2)
}

// opponent returns the other player slot.
//
// Precondition: c must be Player1 or Player2.
func (r *Room) opponent(c ConnID) ConnID {
	if c == r.Player1 {
		return r.Player2
	}
	return r.Player1
}

// tagOf returns the player tag for c.
//
// Precondition: c must be Player1 or Player2.
func (r *Room) tagOf(c ConnID) PlayerTag {
	if c == r.Player1 {
		return TagPlayer1
	}
	return TagPlayer2
}

// removeSpectator deletes c from the spectator set, preserving join order.
func (r *Room) removeSpectator(c ConnID) {
	for i, s := range r.Spectators {
		if s == c {
			r.Spectators = append(r.Spectators[:i], r.Spectators[i+1:]...)
			return
		}
	}
}

// Registry owns all live rooms. It is not safe for concurrent use: the
// broker goroutine is its single owner, which is what maintains the
// cross-room invariant that a connection occupies at most one slot.
type Registry struct {
	src    rng.Source
	byName map[string]*Room
	byConn map[ConnID]*Room
}

// NewRegistry creates an empty Registry using src for the first-mover pick.
//
// Precondition: src must be non-nil.
func NewRegistry(src rng.Source) *Registry {
	return &Registry{
		src:    src,
		byName: make(map[string]*Room),
		byConn: make(map[ConnID]*Room),
	}
}

// EnqueueResult describes the outcome of a successful Enqueue.
type EnqueueResult struct {
	// Matched is false when the connection created a new room and is waiting
	// for an opponent, true when it filled the second player slot.
	Matched bool
	// Room is the room joined. For a matched result its Started flag is
	// already true and Spectators holds everyone attached while waiting.
	Room *Room
	// FirstMover is the player chosen uniformly at random to move first.
	// Only meaningful when Matched is true; the choice is made exactly once
	// per room.
	FirstMover ConnID
}

// Enqueue queues conn under roomName. If no room with that name exists, a new
// room is created with conn as player1. If one exists and is still waiting,
// conn becomes player2 and the match starts.
//
// Postcondition: Returns ErrRoomStarted when the named room is already
// active (a third player must not silently join), or ErrAlreadyInRoom when
// conn already occupies a slot somewhere. Neither error mutates any room.
func (g *Registry) Enqueue(roomName string, conn ConnID) (EnqueueResult, error) {
	if _, taken := g.byConn[conn]; taken {
		return EnqueueResult{}, ErrAlreadyInRoom
	}

	room, ok := g.byName[roomName]
	if !ok {
		room = &Room{Name: roomName, Player1: conn}
		g.byName[roomName] = room
		g.byConn[conn] = room
		return EnqueueResult{Room: room}, nil
	}

	if room.Started {
		return EnqueueResult{}, ErrRoomStarted
	}

	room.Player2 = conn
	room.Started = true
	g.byConn[conn] = room

	first := room.Player1
	if g.src.Intn(2) == 1 {
		first = room.Player2
	}

	return EnqueueResult{Matched: true, Room: room, FirstMover: first}, nil
}

// JoinAsSpectator attaches conn to roomName as a spectator.
//
// Postcondition: Returns ErrRoomNotFound or ErrRoomStarted on rejection;
// spectators may attach only while the room is waiting for an opponent.
func (g *Registry) JoinAsSpectator(roomName string, conn ConnID) error {
	if _, taken := g.byConn[conn]; taken {
		return ErrAlreadyInRoom
	}

	room, ok := g.byName[roomName]
	if !ok {
		return ErrRoomNotFound
	}
	if room.Started {
		return ErrRoomStarted
	}

	room.Spectators = append(room.Spectators, conn)
	g.byConn[conn] = room
	return nil
}

// LeaveKind classifies the outcome of Leave.
type LeaveKind int

// Leave outcomes.
const (
	LeaveQueuedPlayer LeaveKind = iota // room deleted before it matched
	LeaveSpectator                     // removed from a room's spectator set
)

// LeaveResult describes a successful Leave.
type LeaveResult struct {
	Kind     LeaveKind
	RoomName string
}

// Leave removes conn from its room when conn is a not-yet-matched queueing
// player (the room is deleted) or a spectator (removed from the set).
//
// An active player leaving via this path does not end the match; only
// Surrender, ReportWin, or a disconnect do. In that case, and when conn is in
// no room at all, Leave reports not found with no side effects.
func (g *Registry) Leave(conn ConnID) (LeaveResult, bool) {
	room, ok := g.byConn[conn]
	if !ok {
		return LeaveResult{}, false
	}

	if conn == room.Player1 && !room.Started {
		g.deleteRoom(room)
		return LeaveResult{Kind: LeaveQueuedPlayer, RoomName: room.Name}, true
	}

	if !room.isActivePlayer(conn) {
		room.removeSpectator(conn)
		delete(g.byConn, conn)
		return LeaveResult{Kind: LeaveSpectator, RoomName: room.Name}, true
	}

	return LeaveResult{}, false
}

// EndResult describes a concluded match.
type EndResult struct {
	RoomName string
	Winner   ConnID
	Loser    ConnID
}

// Surrender ends the match containing conn, declaring the opponent the
// winner and deleting the room.
//
// Postcondition: On success the room is unreachable from every index.
func (g *Registry) Surrender(conn ConnID) (EndResult, bool) {
	room, ok := g.byConn[conn]
	if !ok || !room.isActivePlayer(conn) {
		return EndResult{}, false
	}

	g.deleteRoom(room)
	return EndResult{RoomName: room.Name, Winner: room.opponent(conn), Loser: conn}, true
}

// ReportWin ends the match containing conn, declaring conn the winner. The
// caller forwards the reported payload (e.g. final board state) to the loser
// only; the winner is not echoed its own payload.
func (g *Registry) ReportWin(conn ConnID) (EndResult, bool) {
	room, ok := g.byConn[conn]
	if !ok || !room.isActivePlayer(conn) {
		return EndResult{}, false
	}

	g.deleteRoom(room)
	return EndResult{RoomName: room.Name, Winner: conn, Loser: room.opponent(conn)}, true
}

// MoveResult describes where a relayed move must be delivered.
type MoveResult struct {
	// Opponent receives the move as "your turn".
	Opponent ConnID
	// Spectators each receive a copy tagged with the moving player.
	Spectators []ConnID
	// Tag identifies which player moved.
	Tag PlayerTag
}

// RelayMove resolves delivery targets for a move made by conn.
func (g *Registry) RelayMove(conn ConnID) (MoveResult, bool) {
	room, ok := g.byConn[conn]
	if !ok || !room.isActivePlayer(conn) {
		return MoveResult{}, false
	}

	return MoveResult{
		Opponent:   room.opponent(conn),
		Spectators: room.Spectators,
		Tag:        room.tagOf(conn),
	}, true
}

// RelayChat resolves the opponent of conn for a chat-wheel payload.
// Spectators are not notified.
func (g *Registry) RelayChat(conn ConnID) (ConnID, bool) {
	room, ok := g.byConn[conn]
	if !ok || !room.isActivePlayer(conn) {
		return uuid.Nil, false
	}
	return room.opponent(conn), true
}

// DropKind classifies the cleanup performed for a disconnected connection.
type DropKind int

// DropConnection outcomes.
const (
	DropNone      DropKind = iota // connection was in no room
	DropQueued                    // queued player gone, room deleted
	DropSpectator                 // spectator removed
	DropForfeit                   // active player gone, opponent wins
)

// DropResult describes the cleanup performed by DropConnection.
type DropResult struct {
	Kind     DropKind
	RoomName string
	// Opponent is the forfeit winner; set only for DropForfeit.
	Opponent ConnID
}

// DropConnection cleans up after a transport-level disconnect. A queued
// player's room is deleted, a spectator is removed, and an active player
// forfeits: the opponent is declared the winner and the room is deleted.
func (g *Registry) DropConnection(conn ConnID) DropResult {
	room, ok := g.byConn[conn]
	if !ok {
		return DropResult{Kind: DropNone}
	}

	if room.isActivePlayer(conn) {
		g.deleteRoom(room)
		return DropResult{Kind: DropForfeit, RoomName: room.Name, Opponent: room.opponent(conn)}
	}

	if conn == room.Player1 {
		g.deleteRoom(room)
		return DropResult{Kind: DropQueued, RoomName: room.Name}
	}

	room.removeSpectator(conn)
	delete(g.byConn, conn)
	return DropResult{Kind: DropSpectator, RoomName: room.Name}
}

// Get returns the live room with the given name.
func (g *Registry) Get(roomName string) (*Room, bool) {
	room, ok := g.byName[roomName]
	return room, ok
}

// Len returns the number of live rooms.
func (g *Registry) Len() int {
	return len(g.byName)
}

// deleteRoom removes room and all of its member connections from every index.
func (g *Registry) deleteRoom(room *Room) {
	delete(g.byName, room.Name)
	delete(g.byConn, room.Player1)
	if room.Player2 != uuid.Nil {
		delete(g.byConn, room.Player2)
	}
	for _, s := range room.Spectators {
		delete(g.byConn, s)
	}
}
