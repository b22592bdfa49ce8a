package transport

import (
	"bufio"
	"net"
	"time"

	"go.uber.org/zap"

	"github.com/a783925458/phantom-acceptor/internal/protocol"
)

const TransportTCP = "tcp"

// TCPConn carries length-prefixed frames over a stream connection.
type TCPConn struct {
	*outbox
	nc   net.Conn
	r    *bufio.Reader
	opts Options
}

// NewTCPConn wraps nc and starts its writer.
func NewTCPConn(nc net.Conn, opts Options, logger *zap.Logger) *TCPConn {
	opts = opts.withDefaults()
	c := &TCPConn{
		outbox: newOutbox(TransportTCP, nc.RemoteAddr().String(), opts.SendQueue, logger),
		nc:     nc,
		r:      bufio.NewReader(nc),
		opts:   opts,
	}
	go c.writeLoop()
	return c
}

// ReadEnvelope reads the next frame. A malformed frame is fatal for a
// stream connection since the next frame boundary is unknown.
func (c *TCPConn) ReadEnvelope() (protocol.Envelope, error) {
	if c.opts.IdleTimeout > 0 {
		c.nc.SetReadDeadline(time.Now().Add(c.opts.IdleTimeout))
	}
	return protocol.ReadEnvelope(c.r, c.opts.MaxFrame)
}

// Close stops the writer and closes the socket. Queued frames are dropped.
func (c *TCPConn) Close() error {
	if !c.shutdown() {
		return nil
	}
	return c.nc.Close()
}

func (c *TCPConn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case data := <-c.queue:
			c.nc.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if _, err := c.nc.Write(data); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				c.Close()
				return
			}
		}
	}
}
