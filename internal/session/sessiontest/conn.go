// Package sessiontest provides an in-memory session.Conn for tests.
package sessiontest

import (
	"sync"

	"github.com/a783925458/phantom-acceptor/internal/session"
)

// Conn records every frame sent to it.
type Conn struct {
	id   string
	addr string

	mu     sync.Mutex
	sent   [][]byte
	closed bool
}

// NewConn returns a recording connection with the given id.
func NewConn(id string) *Conn {
	return &Conn{id: id, addr: "test/" + id}
}

func (c *Conn) ID() string         { return c.id }
func (c *Conn) RemoteAddr() string { return c.addr }

// Send records a copy of data.
func (c *Conn) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return session.ErrClosed
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

// Close marks the connection closed. It is idempotent.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

// Sent returns copies of every frame sent so far.
func (c *Conn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// Closed reports whether Close was called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}
