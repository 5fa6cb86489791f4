package relay

import (
	"sync"

	"github.com/gorilla/websocket"

	"github.com/eldtechnologies/chatrelay/internal/metrics"
	"github.com/eldtechnologies/chatrelay/internal/models"
)

// DefaultQueueSize is the outbound queue length of a connection.
const DefaultQueueSize = 256

// Conn is one live participant connection. Outbound messages go through a
// bounded queue drained by the write pump; when the queue is full the
// oldest pending message is dropped so a slow reader never stalls fan-out.
type Conn struct {
	identity models.Identity
	ws       *websocket.Conn

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// NewConn creates a connection with no socket attached. ServeWS attaches
// one; tests use the queue directly.
func NewConn(identity models.Identity, queueSize int) *Conn {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Conn{
		identity: identity,
		send:     make(chan []byte, queueSize),
	}
}

// Identity returns the identity attached at handshake.
func (c *Conn) Identity() models.Identity {
	return c.identity
}

// Outbound returns the queue of encoded messages awaiting delivery.
// It is closed when the connection closes.
func (c *Conn) Outbound() <-chan []byte {
	return c.send
}

// Send enqueues an encoded message without blocking.
// It reports false when the connection is already closed.
func (c *Conn) Send(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}

	select {
	case c.send <- data:
		return true
	default:
	}

	// Queue full: evict the oldest message. Producers are serialized by
	// c.mu, so the slot freed here is still free below.
	select {
	case <-c.send:
		metrics.MessagesDropped.WithLabelValues("queue_full").Inc()
	default:
	}
	select {
	case c.send <- data:
	default:
	}
	return true
}

// Close marks the connection closed and ends its outbound queue.
// Safe to call more than once.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
