package testutil

import (
	"net"
	"testing"
	"time"

	"github.com/GiulianoVenturo/TicTacToeServer/internal/protocol"
)

// FrameClient is a frame-speaking test client for integration testing the
// server end to end over a real socket.
type FrameClient struct {
	conn    net.Conn
	pending []byte
	t       *testing.T
}

// NewFrameClient dials the given address and returns a test client.
//
// Precondition: addr must be a valid "host:port" string with a listening server.
// Postcondition: Returns a connected FrameClient or fails the test.
func NewFrameClient(t *testing.T, addr string) *FrameClient {
	t.Helper()
	start := time.Now()

	conn, err := net.DialTimeout("tcp", addr, 5*time.Second)
	if err != nil {
		t.Fatalf("connecting to %s: %v [%s]", addr, err, time.Since(start))
	}

	t.Cleanup(func() {
		conn.Close()
	})

	t.Logf("frame client connected to %s [%s]", addr, time.Since(start))
	return &FrameClient{conn: conn, t: t}
}

// Send encodes and writes one frame with the given signifier and arguments.
func (c *FrameClient) Send(signifier int, args ...string) {
	c.t.Helper()
	frame, err := protocol.Encode(protocol.Message(signifier, args...))
	if err != nil {
		c.t.Fatalf("encoding frame: %v", err)
	}
	_ = c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	if _, err := c.conn.Write(frame); err != nil {
		c.t.Fatalf("sending frame: %v", err)
	}
}

// Recv blocks until one complete frame arrives and returns its decoded
// fields, or fails the test after timeout.
func (c *FrameClient) Recv(timeout time.Duration) []string {
	c.t.Helper()
	_ = c.conn.SetReadDeadline(time.Now().Add(timeout))

	tmp := make([]byte, 4096)
	for {
		fields, consumed, err := protocol.Decode(c.pending, 0)
		if err != nil {
			c.t.Fatalf("decoding frame: %v", err)
		}
		if consumed > 0 {
			c.pending = c.pending[consumed:]
			return fields
		}

		n, err := c.conn.Read(tmp)
		if n > 0 {
			c.pending = append(c.pending, tmp[:n]...)
		}
		if err != nil {
			c.t.Fatalf("reading frame: %v", err)
		}
	}
}

// ExpectSilence fails the test if any frame arrives within the window.
func (c *FrameClient) ExpectSilence(window time.Duration) {
	c.t.Helper()
	if _, consumed, _ := protocol.Decode(c.pending, 0); consumed > 0 {
		c.t.Fatalf("unexpected buffered frame")
	}

	_ = c.conn.SetReadDeadline(time.Now().Add(window))
	tmp := make([]byte, 4096)
	n, err := c.conn.Read(tmp)
	if err == nil || n > 0 {
		c.pending = append(c.pending, tmp[:n]...)
		if fields, consumed, _ := protocol.Decode(c.pending, 0); consumed > 0 {
			c.t.Fatalf("unexpected frame: %v", fields)
		}
		return
	}
	if ne, ok := err.(net.Error); !ok || !ne.Timeout() {
		c.t.Fatalf("reading during silence window: %v", err)
	}
}

// Close closes the client's socket immediately, simulating an abrupt
// disconnect.
func (c *FrameClient) Close() {
	_ = c.conn.Close()
}
