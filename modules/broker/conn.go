package broker

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	domain "github.com/example/chat-broker/domain/chat"
	"github.com/gofiber/contrib/websocket"
	"github.com/google/uuid"
)

const (
	// SendQueueSize is the number of outbound frames buffered per connection.
	SendQueueSize = 64
	// WriteWait bounds a single socket write.
	WriteWait = 10 * time.Second
)

var (
	// ErrConnClosed is returned when sending to a connection that already left its group.
	ErrConnClosed = errors.New("connection closed")
	// ErrSendQueueFull is returned when a connection's outbound queue is full.
	ErrSendQueueFull = errors.New("send queue full")
)

// Socket is the frame-level transport behind a connection.
// *websocket.Conn satisfies it.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// writeDeadliner is implemented by sockets that support write deadlines.
type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// WriteFailureFunc is called from a connection's writer when a write fails.
type WriteFailureFunc func(c *Conn, err error)

// Conn is a live client connection with the identity resolved at handshake.
// Outbound frames go through a bounded queue drained by one writer goroutine,
// so a slow client never blocks the sender.
type Conn struct {
	ID       string
	Identity domain.Identity
	Endpoint Endpoint
	// RoomID is the room a room or history connection was opened for.
	RoomID string

	socket    Socket
	send      chan []byte
	done      chan struct{}
	writer    sync.WaitGroup
	startOnce sync.Once
	left      atomic.Bool
	closeOnce sync.Once

	// guarded by Registry.mu
	joined bool
	key    GroupKey
}

// NewConn wraps socket in a Conn with a fresh id.
func NewConn(socket Socket, ep Endpoint, id domain.Identity) *Conn {
	return &Conn{
		ID:       uuid.NewString(),
		Identity: id,
		Endpoint: ep,
		socket:   socket,
		send:     make(chan []byte, SendQueueSize),
		done:     make(chan struct{}),
	}
}

// Start launches the writer goroutine. Frames queued earlier are written
// first. onFailure may be nil; the connection is closed after a failed
// write either way.
func (c *Conn) Start(onFailure WriteFailureFunc) {
	c.startOnce.Do(func() {
		c.writer.Add(1)
		go c.writePump(onFailure)
	})
}

func (c *Conn) writePump(onFailure WriteFailureFunc) {
	defer c.writer.Done()
	for {
		select {
		case data := <-c.send:
			if err := c.write(data); err != nil {
				if onFailure != nil {
					onFailure(c, err)
				}
				c.Close()
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) write(data []byte) error {
	if d, ok := c.socket.(writeDeadliner); ok {
		if err := d.SetWriteDeadline(time.Now().Add(WriteWait)); err != nil {
			return err
		}
	}
	return c.socket.WriteMessage(websocket.TextMessage, data)
}

// Send queues one text frame for the group. It is refused once the
// connection has left its group and never blocks.
func (c *Conn) Send(data []byte) error {
	if c.left.Load() {
		return ErrConnClosed
	}
	return c.enqueue(data)
}

// Reply queues a frame for the client regardless of group membership.
// Used for in-band errors and singleton responses.
func (c *Conn) Reply(data []byte) error {
	return c.enqueue(data)
}

func (c *Conn) enqueue(data []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendQueueFull
	}
}

// Read blocks for the next frame from the client.
func (c *Conn) Read() ([]byte, error) {
	_, data, err := c.socket.ReadMessage()
	return data, err
}

// Close stops the writer and closes the underlying socket once. Frames
// still queued are dropped.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.socket.Close()
	})
	return err
}

// Wait blocks until the writer goroutine has returned. It returns at once
// when the writer was never started.
func (c *Conn) Wait() {
	c.writer.Wait()
}

// Left reports whether the connection has left its group.
func (c *Conn) Left() bool {
	return c.left.Load()
}

// Key returns the group the connection joined. Only the connection's own
// goroutine reads it after Join.
func (c *Conn) Key() GroupKey {
	return c.key
}
