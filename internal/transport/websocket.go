package transport

import (
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/a783925458/phantom-acceptor/internal/metrics"
	"github.com/a783925458/phantom-acceptor/internal/protocol"
)

const TransportWebSocket = "ws"

var errTextMessage = errors.New("text message")

// WSConn carries one frame per binary WebSocket message.
type WSConn struct {
	*outbox
	ws   *websocket.Conn
	opts Options
}

// NewWSConn wraps an upgraded connection and starts its writer.
func NewWSConn(ws *websocket.Conn, opts Options, logger *zap.Logger) *WSConn {
	opts = opts.withDefaults()
	c := &WSConn{
		outbox: newOutbox(TransportWebSocket, ws.RemoteAddr().String(), opts.SendQueue, logger),
		ws:     ws,
		opts:   opts,
	}
	ws.SetReadLimit(int64(protocol.HeaderSize + opts.MaxFrame))
	ws.SetPongHandler(func(string) error {
		c.extendDeadline()
		return nil
	})
	go c.writeLoop()
	return c
}

// ReadEnvelope returns the next well-formed envelope. Messages are
// self-delimiting, so a malformed one is logged and skipped.
func (c *WSConn) ReadEnvelope() (protocol.Envelope, error) {
	for {
		c.extendDeadline()
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return protocol.Envelope{}, err
		}
		if mt != websocket.BinaryMessage {
			err = &protocol.DecodeError{Op: "websocket message", Err: errTextMessage}
		} else {
			var env protocol.Envelope
			if env, err = protocol.ParseEnvelope(data, c.opts.MaxFrame); err == nil {
				return env, nil
			}
		}
		metrics.DecodeErrorsTotal.WithLabelValues("frame").Inc()
		c.logger.Warn("dropping malformed message", zap.Error(err))
	}
}

// Close sends a close frame and closes the socket.
func (c *WSConn) Close() error {
	if !c.shutdown() {
		return nil
	}
	c.ws.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.ws.Close()
}

func (c *WSConn) extendDeadline() {
	if c.opts.IdleTimeout > 0 {
		c.ws.SetReadDeadline(time.Now().Add(c.opts.IdleTimeout))
	}
}

func (c *WSConn) writeLoop() {
	var ping <-chan time.Time
	if c.opts.PingInterval > 0 {
		ticker := time.NewTicker(c.opts.PingInterval)
		defer ticker.Stop()
		ping = ticker.C
	}

	for {
		select {
		case <-c.done:
			return
		case data := <-c.queue:
			c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				c.Close()
				return
			}
		case <-ping:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.opts.WriteTimeout)); err != nil {
				c.logger.Debug("ping failed", zap.Error(err))
				c.Close()
				return
			}
		}
	}
}
