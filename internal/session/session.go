package session

import (
	"errors"
	"time"
)

// ErrClosed is returned by Conn.Send after the connection is closed.
var ErrClosed = errors.New("connection closed")

// ErrQueueFull is returned by Conn.Send when the outbound queue is saturated.
var ErrQueueFull = errors.New("send queue full")

// Conn is a live, writable client connection.
type Conn interface {
	// ID is unique for the lifetime of the process.
	ID() string
	RemoteAddr() string
	// Send enqueues data for asynchronous delivery and never blocks.
	Send(data []byte) error
	Close() error
}

// Directory maps user identities to live connections in both directions.
type Directory interface {
	IdentityOf(conn Conn) (uid string, ok bool)
	ConnectionOf(uid string) (conn Conn, ok bool)
}

// Session is the association between a uid and its connection.
type Session struct {
	UID       string
	Conn      Conn
	Transport string
	CreatedAt time.Time
}

// Info is a read-only view of a session for the admin API.
type Info struct {
	UID        string    `json:"uid"`
	ConnID     string    `json:"connId"`
	RemoteAddr string    `json:"remoteAddr"`
	Transport  string    `json:"transport,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

func (s *Session) info() Info {
	return Info{
		UID:        s.UID,
		ConnID:     s.Conn.ID(),
		RemoteAddr: s.Conn.RemoteAddr(),
		Transport:  s.Transport,
		CreatedAt:  s.CreatedAt,
	}
}
