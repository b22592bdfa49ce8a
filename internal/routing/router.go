// Package routing classifies inbound envelopes and moves them between
// client connections and the dispatcher cluster.
//
// Every envelope becomes one task on an executor. A request is decoded,
// its sender resolved and its recipient's dispatcher selected; the raw
// frame is forwarded unchanged. A response is delivered unchanged to the
// connection of the uid it names. Failures are terminal for the one
// envelope: they are logged, counted and, where the client is owed an
// answer, turned into an error response on the sender's connection.
package routing

import (
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/a783925458/phantom-acceptor/internal/dispatcher"
	"github.com/a783925458/phantom-acceptor/internal/metrics"
	"github.com/a783925458/phantom-acceptor/internal/protocol"
	"github.com/a783925458/phantom-acceptor/internal/session"
)

var (
	// ErrNoSession means the request arrived on a connection with no bound uid.
	ErrNoSession = errors.New("no session")
	// ErrNoBackend means no ready dispatcher serves the recipient.
	ErrNoBackend = errors.New("no dispatcher available")
)

// Codec understands the bodies of one message family.
type Codec[T any] interface {
	// Decode parses and validates a request body.
	Decode(env protocol.Envelope) (T, error)
	// RecipientOf names the uid whose dispatcher must receive msg.
	RecipientOf(msg T) string
	// ResponseTargetOf extracts the uid a response must be delivered to.
	ResponseTargetOf(env protocol.Envelope) (string, error)
	// ErrorResponseFor builds the routing-failure response for msg.
	ErrorResponseFor(msg T) protocol.Envelope
}

// Executor runs tasks asynchronously. Submit must not block.
type Executor interface {
	Submit(task func()) error
}

// Handler accepts an envelope read from conn. conn is nil for envelopes
// pushed by a dispatcher.
type Handler interface {
	Handle(env protocol.Envelope, conn session.Conn)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(env protocol.Envelope, conn session.Conn)

func (f HandlerFunc) Handle(env protocol.Envelope, conn session.Conn) { f(env, conn) }

const (
	outcomeIgnored      = "ignored"
	outcomeDecodeError  = "decode_error"
	outcomeNoSession    = "no_session"
	outcomeNoBackend    = "no_backend"
	outcomeForwarded    = "forwarded"
	outcomeNoConnection = "no_connection"
	outcomeDelivered    = "delivered"
	outcomeSendFailed   = "send_failed"
)

// Router routes one message family.
type Router[T any] struct {
	family   string
	codec    Codec[T]
	sessions session.Directory
	backends dispatcher.Selector
	exec     Executor
	logger   *zap.Logger
}

// NewRouter creates a router for family. The collaborators are only read.
func NewRouter[T any](family string, codec Codec[T], sessions session.Directory, backends dispatcher.Selector, exec Executor, logger *zap.Logger) *Router[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router[T]{
		family:   family,
		codec:    codec,
		sessions: sessions,
		backends: backends,
		exec:     exec,
		logger:   logger.With(zap.String("family", family)),
	}
}

// Handle schedules env for routing and returns immediately.
func (r *Router[T]) Handle(env protocol.Envelope, conn session.Conn) {
	start := time.Now()
	err := r.exec.Submit(func() {
		outcome := r.route(env, conn)
		metrics.RoutedTotal.WithLabelValues(r.family, outcome).Inc()
		metrics.RouteLatency.WithLabelValues(env.Kind().String()).Observe(time.Since(start).Seconds())
	})
	if err != nil {
		r.logger.Warn("routing task rejected",
			zap.Stringer("kind", env.Kind()),
			zap.Stringer("type", env.RequestType()),
			zap.Error(err))
	}
}

func (r *Router[T]) route(env protocol.Envelope, conn session.Conn) string {
	switch env.Kind() {
	case protocol.KindRequest:
		return r.routeRequest(env, conn)
	case protocol.KindResponse:
		return r.routeResponse(env)
	default:
		return outcomeIgnored
	}
}

func (r *Router[T]) routeRequest(env protocol.Envelope, conn session.Conn) string {
	msg, err := r.codec.Decode(env)
	if err != nil {
		metrics.DecodeErrorsTotal.WithLabelValues("request").Inc()
		r.logger.Warn("failed to decode request", zap.Stringer("type", env.RequestType()), zap.Error(err))
		return outcomeDecodeError
	}

	sender, ok := r.sessions.IdentityOf(conn)
	if !ok {
		r.replyError(conn, msg, ErrNoSession)
		return outcomeNoSession
	}

	recipient := r.codec.RecipientOf(msg)
	backend, ok := r.backends.Select(recipient)
	if !ok {
		r.replyError(conn, msg, ErrNoBackend)
		return outcomeNoBackend
	}

	if err := backend.Send(env.Payload()); err != nil {
		r.logger.Warn("failed to forward request",
			zap.String("dispatcher", backend.Addr()),
			zap.String("uid", sender),
			zap.Error(err))
		return outcomeSendFailed
	}
	r.logger.Debug("request forwarded",
		zap.String("dispatcher", backend.Addr()),
		zap.String("sender", sender),
		zap.String("recipient", recipient))
	return outcomeForwarded
}

// replyError writes the error response for msg to the connection the
// request arrived on.
func (r *Router[T]) replyError(conn session.Conn, msg T, cause error) {
	if conn == nil {
		r.logger.Info("cannot reply, request has no connection", zap.Error(cause))
		return
	}
	reply := r.codec.ErrorResponseFor(msg)
	if err := conn.Send(reply.Payload()); err != nil {
		r.logger.Debug("failed to send error response", zap.String("conn", conn.ID()), zap.Error(err))
		return
	}
	r.logger.Info("request rejected", zap.String("conn", conn.ID()), zap.Error(cause))
}

func (r *Router[T]) routeResponse(env protocol.Envelope) string {
	uid, err := r.codec.ResponseTargetOf(env)
	if err != nil {
		metrics.DecodeErrorsTotal.WithLabelValues("response").Inc()
		r.logger.Warn("failed to decode response target", zap.Stringer("type", env.RequestType()), zap.Error(err))
		return outcomeDecodeError
	}

	target, ok := r.sessions.ConnectionOf(uid)
	if !ok {
		r.logger.Info("response target not connected", zap.String("uid", uid))
		return outcomeNoConnection
	}

	if err := target.Send(env.Payload()); err != nil {
		r.logger.Debug("failed to deliver response", zap.String("uid", uid), zap.Error(err))
		return outcomeSendFailed
	}
	return outcomeDelivered
}
