// internal/realtime/client.go
package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// DefaultBuffer is the outbound queue length per connection.
const DefaultBuffer = 32

// Client is one live connection's outbound side. The transport drains
// OutChan; producers never block on it.
type Client struct {
	ID      uuid.UUID
	OutChan chan []byte

	closed    atomic.Bool
	closeOnce sync.Once
	done      chan struct{}
}

func NewClient(buffer int) *Client {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Client{
		ID:      uuid.New(),
		OutChan: make(chan []byte, buffer),
		done:    make(chan struct{}),
	}
}

// Send queues data without blocking. It reports false when the client is
// closed or its queue is full.
func (c *Client) Send(data []byte) bool {
	if c.closed.Load() {
		return false
	}
	select {
	case c.OutChan <- data:
		return true
	default:
		return false
	}
}

// Close marks the client closed. OutChan is left open so a concurrent Send
// can never panic; writers stop on Done instead.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
}

func (c *Client) Closed() bool { return c.closed.Load() }

// Done is closed when the client is closed.
func (c *Client) Done() <-chan struct{} { return c.done }
