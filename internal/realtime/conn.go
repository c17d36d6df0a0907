package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	// ErrClosed is returned by Send on a closed connection.
	ErrClosed = errors.New("connection closed")
	// ErrOutboxFull is returned when an event could not be queued in time.
	ErrOutboxFull = errors.New("outbox full")
)

// Conn is one live client connection.
type Conn interface {
	// Send queues ev for delivery. It must not block past ctx.
	Send(ctx context.Context, ev Event) error
	// Close is idempotent.
	Close() error
	// Done is closed once the connection is closed.
	Done() <-chan struct{}
}

// ConnState is the lifecycle of a StreamConn: Connecting → Open → Closed.
type ConnState int

const (
	StateConnecting ConnState = iota
	StateOpen
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	}
	return "closed"
}

// Sink writes one event to the underlying transport.
type Sink func(Event) error

// StreamConn is a Conn backed by a bounded outbox drained by a single writer
// goroutine. A failed or stuck write closes the connection.
type StreamConn struct {
	userID       string
	sink         Sink
	outbox       chan Event
	writeTimeout time.Duration
	log          *zap.Logger

	mu    sync.Mutex
	state ConnState
	done  chan struct{}
}

// NewStreamConn returns a connection in the Connecting state. Events sent
// before Open are queued.
func NewStreamConn(userID string, sink Sink, outboxSize int, writeTimeout time.Duration, log *zap.Logger) *StreamConn {
	if outboxSize <= 0 {
		outboxSize = 64
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &StreamConn{
		userID:       userID,
		sink:         sink,
		outbox:       make(chan Event, outboxSize),
		writeTimeout: writeTimeout,
		log:          log.With(zap.String("user_id", userID)),
		done:         make(chan struct{}),
	}
}

// Open starts the writer. It has no effect unless the connection is
// Connecting.
func (c *StreamConn) Open() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnecting {
		return
	}
	c.state = StateOpen
	go c.writeLoop()
}

func (c *StreamConn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *StreamConn) Send(ctx context.Context, ev Event) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}
	select {
	case c.outbox <- ev:
		return nil
	case <-c.done:
		return ErrClosed
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrOutboxFull, ctx.Err())
	}
}

func (c *StreamConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return nil
	}
	c.state = StateClosed
	close(c.done)
	return nil
}

func (c *StreamConn) Done() <-chan struct{} { return c.done }

func (c *StreamConn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case ev := <-c.outbox:
			if err := c.write(ev); err != nil {
				c.log.Warn("stream write failed, closing connection",
					zap.String("event", string(ev.Type)), zap.Error(err))
				_ = c.Close()
				return
			}
		}
	}
}

func (c *StreamConn) write(ev Event) error {
	if c.writeTimeout > 0 {
		// a sink stuck on a slow client is abandoned by closing the
		// connection; the stream handler then returns and cancels it
		t := time.AfterFunc(c.writeTimeout, func() { _ = c.Close() })
		defer t.Stop()
	}
	return c.sink(ev)
}
