// Package transport binds the TCP listener and turns each client socket into
// a stream of decoded wire events consumed by the broker.
package transport

// EventType classifies a transport event.
type EventType int

// Transport event types.
const (
	// EventConnect reports a newly accepted connection.
	EventConnect EventType = iota
	// EventMessage carries one complete decoded frame.
	EventMessage
	// EventDisconnect reports that the connection is no longer usable.
	EventDisconnect
)

// Channel identifies the delivery channel an event originated on. TCP gives
// a single reliable ordered stream; the label exists for event classification
// in logs, and all outbound traffic uses the reliable channel.
const ChannelReliableOrdered = "reliable-ordered"

// Event is one connection lifecycle or message event. Events for a given
// connection are delivered in order: Connect, zero or more Messages, then
// exactly one Disconnect.
type Event struct {
	Type EventType
	Conn *Conn
	// Fields is the decoded message; set only for EventMessage.
	Fields []string
}
