// Package transport adapts raw client connections (TCP and WebSocket) to
// session.Conn. Each connection owns a writer goroutine draining a bounded
// outbound queue, so Send never blocks the routing workers.
package transport

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/a783925458/phantom-acceptor/internal/metrics"
	"github.com/a783925458/phantom-acceptor/internal/protocol"
	"github.com/a783925458/phantom-acceptor/internal/session"
)

// Conn is a client connection the gateway reads envelopes from.
type Conn interface {
	session.Conn
	// ReadEnvelope blocks until the next envelope arrives. It returns an
	// error once the connection is unusable.
	ReadEnvelope() (protocol.Envelope, error)
	Transport() string
}

// Options tunes a connection.
type Options struct {
	SendQueue    int
	MaxFrame     int
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
	// PingInterval applies to WebSocket connections only.
	PingInterval time.Duration
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		SendQueue:    256,
		MaxFrame:     1 << 20,
		IdleTimeout:  5 * time.Minute,
		WriteTimeout: 10 * time.Second,
		PingInterval: 30 * time.Second,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.SendQueue < 1 {
		o.SendQueue = d.SendQueue
	}
	if o.MaxFrame < 1 {
		o.MaxFrame = d.MaxFrame
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	return o
}

// outbox is the queue and lifecycle shared by every transport.
type outbox struct {
	id        string
	remote    string
	transport string
	logger    *zap.Logger

	queue     chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newOutbox(transport, remote string, size int, logger *zap.Logger) *outbox {
	id := uuid.NewString()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &outbox{
		id:        id,
		remote:    remote,
		transport: transport,
		logger:    logger.With(zap.String("conn", id), zap.String("remote", remote)),
		queue:     make(chan []byte, size),
		done:      make(chan struct{}),
	}
}

func (o *outbox) ID() string         { return o.id }
func (o *outbox) RemoteAddr() string { return o.remote }
func (o *outbox) Transport() string  { return o.transport }

// Send enqueues data for the writer. Frames are dropped when the queue is
// full.
func (o *outbox) Send(data []byte) error {
	select {
	case <-o.done:
		return session.ErrClosed
	default:
	}
	select {
	case o.queue <- data:
		return nil
	default:
		metrics.ConnSendDroppedTotal.WithLabelValues(o.transport).Inc()
		o.logger.Debug("send queue full, frame dropped", zap.Int("bytes", len(data)))
		return session.ErrQueueFull
	}
}

// shutdown marks the outbox closed and reports whether this call did it.
func (o *outbox) shutdown() bool {
	first := false
	o.closeOnce.Do(func() {
		close(o.done)
		first = true
	})
	return first
}
