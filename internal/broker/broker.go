package broker

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GiulianoVenturo/TicTacToeServer/internal/game/rooms"
	"github.com/GiulianoVenturo/TicTacToeServer/internal/protocol"
	"github.com/GiulianoVenturo/TicTacToeServer/internal/storage/accounts"
	"github.com/GiulianoVenturo/TicTacToeServer/internal/transport"
)

// Broker consumes transport events on a single goroutine and dispatches each
// message to the account store or the room registry. Because the broker is
// the exclusive owner of the connection table and the registry, every
// cross-connection invariant is maintained without locks.
type Broker struct {
	events   <-chan transport.Event
	table    *Table
	registry *rooms.Registry
	store    accounts.Store
	logger   *zap.Logger

	quit chan struct{}
	done chan struct{}
}

// New creates a Broker consuming events.
//
// Precondition: events, registry, store, and logger must be non-nil.
func New(events <-chan transport.Event, registry *rooms.Registry, store accounts.Store, logger *zap.Logger) *Broker {
	return &Broker{
		events:   events,
		table:    NewTable(),
		registry: registry,
		store:    store,
		logger:   logger,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the dispatch loop. It blocks until Stop is called.
func (b *Broker) Start() error {
	defer close(b.done)
	for {
		select {
		case ev := <-b.events:
			b.handleEvent(ev)
		case <-b.quit:
			return nil
		}
	}
}

// Stop terminates the dispatch loop and waits for it to drain.
func (b *Broker) Stop() {
	close(b.quit)
	<-b.done
}

func (b *Broker) handleEvent(ev transport.Event) {
	switch ev.Type {
	case transport.EventConnect:
		b.table.Add(ev.Conn)
		b.logger.Debug("connection registered",
			zap.String("conn_id", ev.Conn.ID().String()),
			zap.Int("connections", b.table.Len()),
		)
	case transport.EventMessage:
		b.dispatch(ev.Conn, ev.Fields)
	case transport.EventDisconnect:
		b.handleDisconnect(ev.Conn)
	}
}

// dispatch routes one decoded message. Malformed messages are logged and
// dropped; they are never fatal to the server.
func (b *Broker) dispatch(conn *transport.Conn, fields []string) {
	sig, err := protocol.Signifier(fields)
	if err != nil {
		b.logger.Warn("dropping malformed message",
			zap.String("conn_id", conn.ID().String()),
			zap.Error(err),
		)
		return
	}

	switch sig {
	case protocol.ClientCreateAccount:
		b.handleCreateAccount(conn, fields)
	case protocol.ClientLogin:
		b.handleLogin(conn, fields)
	case protocol.ClientOnQueue:
		b.handleQueue(conn, fields)
	case protocol.ClientOnQueueViewer:
		b.handleQueueViewer(conn, fields)
	case protocol.ClientLeaveQueue:
		b.handleLeave(conn)
	case protocol.ClientSurrender:
		b.handleSurrender(conn)
	case protocol.ClientMyMove:
		b.handleMove(conn, fields)
	case protocol.ClientPlayerWin:
		b.handlePlayerWin(conn, fields)
	case protocol.ClientUseChatWheel:
		b.handleChatWheel(conn, fields)
	default:
		b.logger.Warn("dropping message with unknown signifier",
			zap.String("conn_id", conn.ID().String()),
			zap.Int("signifier", sig),
		)
	}
}

func (b *Broker) handleCreateAccount(conn *transport.Conn, fields []string) {
	if len(fields) < 3 {
		b.logger.Warn("create account message missing credentials",
			zap.String("conn_id", conn.ID().String()),
		)
		return
	}
	username, password := fields[1], fields[2]

	err := b.store.Register(context.Background(), username, password)
	switch {
	case err == nil:
		b.logger.Info("account created", zap.String("username", username))
		b.send(conn.ID(), protocol.Message(protocol.ServerAccountCreationComplete))
	case errors.Is(err, accounts.ErrAccountExists):
		b.send(conn.ID(), protocol.Message(protocol.ServerAccountCreationFailed))
	default:
		b.logger.Error("account store register failed",
			zap.String("username", username),
			zap.Error(err),
		)
		b.send(conn.ID(), protocol.Message(protocol.ServerAccountCreationFailed))
	}
}

func (b *Broker) handleLogin(conn *transport.Conn, fields []string) {
	if len(fields) < 3 {
		b.logger.Warn("login message missing credentials",
			zap.String("conn_id", conn.ID().String()),
		)
		return
	}
	username, password := fields[1], fields[2]

	err := b.store.Authenticate(context.Background(), username, password)
	switch {
	case err == nil:
		b.logger.Info("login complete", zap.String("username", username))
		b.send(conn.ID(), protocol.Message(protocol.ServerLoginComplete))
	case errors.Is(err, accounts.ErrAccountNotFound), errors.Is(err, accounts.ErrInvalidCredentials):
		b.send(conn.ID(), protocol.Message(protocol.ServerLoginFailed))
	default:
		b.logger.Error("account store authenticate failed",
			zap.String("username", username),
			zap.Error(err),
		)
		b.send(conn.ID(), protocol.Message(protocol.ServerLoginFailed))
	}
}

func (b *Broker) handleQueue(conn *transport.Conn, fields []string) {
	if len(fields) < 2 {
		b.logger.Warn("queue message missing room name",
			zap.String("conn_id", conn.ID().String()),
		)
		return
	}
	roomName := fields[1]

	result, err := b.registry.Enqueue(roomName, conn.ID())
	if err != nil {
		// No rejection signifier exists on the wire for a failed queue
		// attempt; the client is left waiting.
		b.logger.Warn("queue attempt rejected",
			zap.String("conn_id", conn.ID().String()),
			zap.String("room", roomName),
			zap.Error(err),
		)
		return
	}

	if !result.Matched {
		b.logger.Info("room waiting for opponent", zap.String("room", roomName))
		b.send(conn.ID(), protocol.Message(protocol.ServerWaitForOpponent))
		return
	}

	b.startMatch(result)
}

// startMatch fans out the room-created notifications and hands the first
// move to the randomly chosen player.
func (b *Broker) startMatch(result rooms.EnqueueResult) {
	room := result.Room
	count := strconv.Itoa(len(room.Spectators))

	b.logger.Info("match started",
		zap.String("room", room.Name),
		zap.Int("spectators", len(room.Spectators)),
	)

	b.send(room.Player1, protocol.Message(protocol.ServerGameRoomCreated, string(rooms.RoleX), count))
	b.send(room.Player2, protocol.Message(protocol.ServerGameRoomCreated, string(rooms.RoleO), count))
	for _, spectator := range room.Spectators {
		b.send(spectator, protocol.Message(protocol.ServerGameRoomCreated, string(rooms.RoleViewer), count))
	}

	b.send(result.FirstMover, protocol.Message(protocol.ServerYourTurn, protocol.InitialTurnPayload))
}

func (b *Broker) handleQueueViewer(conn *transport.Conn, fields []string) {
	if len(fields) < 2 {
		b.logger.Warn("spectate message missing room name",
			zap.String("conn_id", conn.ID().String()),
		)
		return
	}
	roomName := fields[1]

	// Spectators get no acknowledgement on the wire until the match starts
	// and GameRoomCreated fans out.
	if err := b.registry.JoinAsSpectator(roomName, conn.ID()); err != nil {
		b.logger.Warn("spectate attempt rejected",
			zap.String("conn_id", conn.ID().String()),
			zap.String("room", roomName),
			zap.Error(err),
		)
	}
}

func (b *Broker) handleLeave(conn *transport.Conn) {
	result, ok := b.registry.Leave(conn.ID())
	if !ok {
		b.logger.Debug("leave from connection in no leavable slot",
			zap.String("conn_id", conn.ID().String()),
		)
		return
	}
	b.logger.Info("left room",
		zap.String("conn_id", conn.ID().String()),
		zap.String("room", result.RoomName),
		zap.Bool("deleted", result.Kind == rooms.LeaveQueuedPlayer),
	)
}

func (b *Broker) handleSurrender(conn *transport.Conn) {
	result, ok := b.registry.Surrender(conn.ID())
	if !ok {
		return
	}
	b.logger.Info("surrender",
		zap.String("room", result.RoomName),
		zap.String("conn_id", conn.ID().String()),
	)
	b.send(result.Winner, protocol.Message(protocol.ServerYouWin))
}

func (b *Broker) handleMove(conn *transport.Conn, fields []string) {
	result, ok := b.registry.RelayMove(conn.ID())
	if !ok {
		return
	}
	payload := messagePayload(fields)
	b.send(result.Opponent, protocol.Message(protocol.ServerYourTurn, payload))
	for _, spectator := range result.Spectators {
		b.send(spectator, protocol.Message(protocol.ServerUpdateForViewers, payload, string(result.Tag)))
	}
}

func (b *Broker) handlePlayerWin(conn *transport.Conn, fields []string) {
	result, ok := b.registry.ReportWin(conn.ID())
	if !ok {
		return
	}
	b.logger.Info("win reported",
		zap.String("room", result.RoomName),
		zap.String("conn_id", conn.ID().String()),
	)
	// The reported payload goes to the loser only; the winner's client
	// already holds the final state.
	b.send(result.Loser, protocol.Message(protocol.ServerYouLose, messagePayload(fields)))
}

func (b *Broker) handleChatWheel(conn *transport.Conn, fields []string) {
	opponent, ok := b.registry.RelayChat(conn.ID())
	if !ok {
		return
	}
	b.send(opponent, protocol.Message(protocol.ServerOpponentChatWheel, messagePayload(fields)))
}

func (b *Broker) handleDisconnect(conn *transport.Conn) {
	b.table.Remove(conn.ID())

	result := b.registry.DropConnection(conn.ID())
	switch result.Kind {
	case rooms.DropNone:
	case rooms.DropQueued:
		b.logger.Info("queued player disconnected, room deleted",
			zap.String("room", result.RoomName),
		)
	case rooms.DropSpectator:
		b.logger.Info("spectator disconnected",
			zap.String("room", result.RoomName),
		)
	case rooms.DropForfeit:
		b.logger.Info("active player disconnected, opponent wins by forfeit",
			zap.String("room", result.RoomName),
		)
		b.send(result.Opponent, protocol.Message(protocol.ServerYouWin))
	}

	b.logger.Debug("connection dropped",
		zap.String("conn_id", conn.ID().String()),
		zap.Int("connections", b.table.Len()),
	)
}

// send routes an outbound message through the connection table. Sends to
// connections that have already been removed, and transport write failures,
// are logged and dropped; the reader goroutine's disconnect event performs
// the actual cleanup.
func (b *Broker) send(id uuid.UUID, fields []string) {
	conn, err := b.table.Get(id)
	if err != nil {
		b.logger.Debug("dropping message for stale connection",
			zap.String("conn_id", id.String()),
		)
		return
	}
	if err := conn.Send(fields); err != nil {
		b.logger.Warn("send failed",
			zap.String("conn_id", id.String()),
			zap.Error(err),
		)
	}
}

// messagePayload rejoins everything after the signifier. Payloads are opaque
// and unescaped, so one containing the delimiter arrives split across
// fields; rejoining preserves it byte for byte.
func messagePayload(fields []string) string {
	if len(fields) < 2 {
		return ""
	}
	return strings.Join(fields[1:], protocol.Delimiter)
}
