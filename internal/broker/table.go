// Package broker implements the event dispatch loop that multiplexes all
// client connections over the account store and the room registry.
package broker

import (
	"errors"

	"github.com/google/uuid"

	"github.com/GiulianoVenturo/TicTacToeServer/internal/transport"
)

// ErrStaleConnection is returned by Get when the connection has already been
// removed from the table. Messages routed to a stale connection are dropped.
var ErrStaleConnection = errors.New("connection no longer tracked")

// Table is the connection table: the single source of truth for which
// connections are usable for sending. Like the room registry it is not safe
// for concurrent use; the broker goroutine is its only owner.
type Table struct {
	conns map[uuid.UUID]*transport.Conn
}

// NewTable creates an empty connection table.
func NewTable() *Table {
	return &Table{conns: make(map[uuid.UUID]*transport.Conn)}
}

// Add registers conn. Re-adding the same ID replaces the entry.
func (t *Table) Add(conn *transport.Conn) {
	t.conns[conn.ID()] = conn
}

// Remove deletes the entry for id and returns it, or false when the
// connection was not tracked.
func (t *Table) Remove(id uuid.UUID) (*transport.Conn, bool) {
	conn, ok := t.conns[id]
	if ok {
		delete(t.conns, id)
	}
	return conn, ok
}

// Get returns the live connection for id.
//
// Postcondition: Returns ErrStaleConnection when id is not tracked.
func (t *Table) Get(id uuid.UUID) (*transport.Conn, error) {
	conn, ok := t.conns[id]
	if !ok {
		return nil, ErrStaleConnection
	}
	return conn, nil
}

// Len returns the number of tracked connections.
func (t *Table) Len() int {
	return len(t.conns)
}

// ForEach calls fn for every tracked connection.
func (t *Table) ForEach(fn func(conn *transport.Conn)) {
	for _, conn := range t.conns {
		fn(conn)
	}
}
