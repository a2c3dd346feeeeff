// Package protocol implements the wire format shared with the game client:
// length-prefixed, comma-delimited UTF-16LE text frames whose first field is
// an integer signifier identifying the message type.
package protocol

// Client-to-server signifiers.
const (
	ClientCreateAccount = 0 // CreateAccount(username, password)
	ClientLogin         = 1 // Login(username, password)
	ClientOnQueue       = 2 // OnQueue(roomName)
	ClientOnQueueViewer = 3 // OnQueueAsViewer(roomName)
	ClientLeaveQueue    = 4 // LeaveQueue()
	ClientSurrender     = 5 // Surrender()
	ClientMyMove        = 6 // MyMove(payload)
	ClientPlayerWin     = 7 // PlayerWin(payload)
	ClientUseChatWheel  = 8 // UseChatWheel(payload)
)

// Server-to-client signifiers.
const (
	ServerLoginComplete           = 0
	ServerLoginFailed             = 1
	ServerAccountCreationComplete = 2
	ServerAccountCreationFailed   = 3
	ServerWaitForOpponent         = 4
	ServerGameRoomCreated         = 5 // GameRoomCreated(role, spectatorCount), role in {X, O, V}
	ServerYourTurn                = 6 // YourTurn(payload)
	ServerUpdateForViewers        = 7 // UpdateForViewers(payload, playerTag), tag in {p1, p2}
	ServerYouWin                  = 8
	ServerYouLose                 = 9 // YouLose(payload)
	ServerOpponentChatWheel       = 10
)

// InitialTurnPayload is the payload of the YourTurn message sent to the
// randomly chosen first mover at match start. The client treats it as an
// empty board.
const InitialTurnPayload = "E"
