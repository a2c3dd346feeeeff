package transport

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/GiulianoVenturo/TicTacToeServer/internal/config"
)

// Acceptor listens for client connections on a TCP port and runs one reader
// goroutine per connection. Every accepted connection, decoded frame, and
// disconnect is posted as an Event on the channel given at construction, so
// all game state stays on the consumer's goroutine.
type Acceptor struct {
	cfg    config.ServerConfig
	events chan<- Event
	logger *zap.Logger

	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
	mu       sync.Mutex
	running  bool
	conns    map[uuid.UUID]*Conn
}

// NewAcceptor creates an acceptor with the given configuration.
//
// Precondition: cfg must have a valid port; events and logger must be non-nil.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.ServerConfig, events chan<- Event, logger *zap.Logger) *Acceptor {
	return &Acceptor{
		cfg:    cfg,
		events: events,
		logger: logger,
		quit:   make(chan struct{}),
		conns:  make(map[uuid.UUID]*Conn),
	}
}

// ListenAndServe starts the TCP listener and accepts connections until Stop
// is called. This method blocks until the acceptor is stopped.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	a.mu.Lock()
	a.listener = listener
	a.running = true
	a.mu.Unlock()

	a.logger.Info("acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	for {
		raw, err := listener.Accept()
		if err != nil {
			select {
			case <-a.quit:
				return nil
			default:
				a.logger.Error("accepting connection", zap.Error(err))
				continue
			}
		}

		a.wg.Add(1)
		go a.handleConn(raw)
	}
}

// handleConn runs the read loop for a single connection.
func (a *Acceptor) handleConn(raw net.Conn) {
	defer a.wg.Done()
	start := time.Now()
	addr := raw.RemoteAddr().String()

	conn := NewConn(raw, a.cfg.ReadTimeout, a.cfg.WriteTimeout, a.cfg.MaxFrameBytes)
	defer conn.Close()

	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.conns[conn.ID()] = conn
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		delete(a.conns, conn.ID())
		a.mu.Unlock()
	}()

	a.logger.Info("client connected",
		zap.String("remote_addr", addr),
		zap.String("conn_id", conn.ID().String()),
	)

	if !a.post(Event{Type: EventConnect, Conn: conn}) {
		return
	}

	for {
		fields, err := conn.ReadMessage()
		if err != nil {
			a.logger.Debug("connection closed",
				zap.String("remote_addr", addr),
				zap.String("conn_id", conn.ID().String()),
				zap.Error(err),
				zap.Duration("duration", time.Since(start)),
			)
			a.post(Event{Type: EventDisconnect, Conn: conn})
			return
		}

		a.logger.Debug("frame received",
			zap.String("conn_id", conn.ID().String()),
			zap.String("channel", ChannelReliableOrdered),
			zap.Int("fields", len(fields)),
		)
		if !a.post(Event{Type: EventMessage, Conn: conn, Fields: fields}) {
			return
		}
	}
}

// post delivers an event to the consumer, abandoning it if the acceptor is
// stopping. Returns false when the acceptor has been stopped.
func (a *Acceptor) post(ev Event) bool {
	select {
	case a.events <- ev:
		return true
	case <-a.quit:
		return false
	}
}

// Stop gracefully stops the acceptor, closing the listener and all live
// connections and waiting for the reader goroutines to finish.
//
// Postcondition: All connections are closed and goroutines have exited.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false

	close(a.quit)
	if a.listener != nil {
		a.listener.Close()
	}
	for _, conn := range a.conns {
		conn.Close()
	}
	a.mu.Unlock()

	a.wg.Wait()
	a.logger.Info("acceptor stopped")
}

// Addr returns the actual listening address, or empty string if not yet listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the acceptor is currently accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}
