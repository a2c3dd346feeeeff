package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/GiulianoVenturo/TicTacToeServer/internal/protocol"
)

// Conn wraps a client socket with frame encoding and decoding. Reads happen
// only from the connection's reader goroutine; Send may be called from any
// goroutine and serializes writes internally.
type Conn struct {
	id  uuid.UUID
	raw net.Conn

	readTimeout  time.Duration
	writeTimeout time.Duration
	maxFrame     int

	// pending holds bytes read from the socket that do not yet form a
	// complete frame. Owned by the reader goroutine.
	pending []byte

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewConn wraps raw with framing.
//
// Precondition: raw is an open connection.
func NewConn(raw net.Conn, readTimeout, writeTimeout time.Duration, maxFrame int) *Conn {
	return &Conn{
		id:           uuid.New(),
		raw:          raw,
		readTimeout:  readTimeout,
		writeTimeout: writeTimeout,
		maxFrame:     maxFrame,
	}
}

// ID returns the connection's unique identifier.
func (c *Conn) ID() uuid.UUID {
	return c.id
}

// RemoteAddr returns the peer address.
func (c *Conn) RemoteAddr() net.Addr {
	return c.raw.RemoteAddr()
}

// Send encodes fields as one frame and writes it to the socket.
func (c *Conn) Send(fields []string) error {
	frame, err := protocol.Encode(fields)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.writeTimeout > 0 {
		if err = c.raw.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}
	if _, err = c.raw.Write(frame); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// ReadMessage blocks until one complete frame has arrived and returns its
// decoded fields. A partial frame is never an error; ReadMessage keeps
// reading until the frame completes. A frame larger than the configured
// maximum returns protocol.ErrFrameTooLarge and the connection must be torn
// down, since the stream can no longer be re-synchronized.
//
// An idle connection carries no deadline: a queued player or an
// authenticated-but-silent client may sit for any length of time without
// being disconnected. The read timeout arms only while a partial frame is
// buffered, guarding against a peer that stalls mid-frame.
func (c *Conn) ReadMessage() ([]string, error) {
	buf := make([]byte, 4096)
	for {
		fields, consumed, err := protocol.Decode(c.pending, c.maxFrame)
		if err != nil {
			return nil, err
		}
		if consumed > 0 {
			c.pending = c.pending[consumed:]
			return fields, nil
		}
		if c.readTimeout > 0 {
			var deadline time.Time
			if len(c.pending) > 0 {
				deadline = time.Now().Add(c.readTimeout)
			}
			if err = c.raw.SetReadDeadline(deadline); err != nil {
				return nil, fmt.Errorf("set read deadline: %w", err)
			}
		}
		n, err := c.raw.Read(buf)
		if n > 0 {
			c.pending = append(c.pending, buf[:n]...)
		}
		if err != nil {
			return nil, err
		}
	}
}

// Close closes the underlying socket. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.raw.Close()
	})
	return c.closeErr
}
