package gateway

import (
	"go.uber.org/zap"

	"github.com/a783925458/phantom-acceptor/internal/codec"
	"github.com/a783925458/phantom-acceptor/internal/metrics"
	"github.com/a783925458/phantom-acceptor/internal/protocol"
	"github.com/a783925458/phantom-acceptor/internal/session"
)

// handleAuthenticate binds the token subject to conn. It runs on the
// routing pool like every other request.
func (gw *Gateway) handleAuthenticate(env protocol.Envelope, conn session.Conn) {
	if env.Kind() != protocol.KindRequest || conn == nil {
		gw.logger.Warn("ignoring authenticate envelope", zap.Stringer("kind", env.Kind()))
		return
	}
	if err := gw.pool.Submit(func() { gw.authenticate(env, conn) }); err != nil {
		gw.logger.Warn("authenticate task rejected", zap.String("conn", conn.ID()), zap.Error(err))
	}
}

func (gw *Gateway) authenticate(env protocol.Envelope, conn session.Conn) {
	logger := gw.logger.With(zap.String("conn", conn.ID()))

	req, err := protocol.UnmarshalAuthenticateRequest(env.Body())
	if err != nil {
		metrics.DecodeErrorsTotal.WithLabelValues("request").Inc()
		metrics.AuthTotal.WithLabelValues("malformed").Inc()
		logger.Warn("failed to decode authenticate request", zap.Error(err))
		gw.reply(conn, codec.Reply(env.RequestType(), "", "", protocol.CodeBadRequest, "malformed request"))
		return
	}

	uid, err := gw.verifier.Verify(req.Token)
	if err != nil {
		metrics.AuthTotal.WithLabelValues("rejected").Inc()
		logger.Info("authentication rejected", zap.Error(err))
		gw.reply(conn, codec.Reply(env.RequestType(), req.RequestID, "", protocol.CodeUnauthorized, "unauthorized"))
		return
	}

	prev, open := gw.bind(uid, conn)
	if !open {
		metrics.AuthTotal.WithLabelValues("closed").Inc()
		logger.Debug("connection closed before authentication completed", zap.String("uid", uid))
		return
	}
	if prev != nil {
		logger.Info("closing previous connection", zap.String("uid", uid), zap.String("previous", prev.ID()))
		prev.Close()
	}
	metrics.AuthTotal.WithLabelValues("ok").Inc()
	gw.reply(conn, codec.Reply(env.RequestType(), req.RequestID, uid, protocol.CodeOK, "ok"))
}

// bind attaches uid to conn while conn is still admitted. release drops
// conn from the admitted set before unbinding it, so a bind that loses the
// race finds conn gone and leaves the directory untouched.
func (gw *Gateway) bind(uid string, conn session.Conn) (prev session.Conn, open bool) {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	tc, ok := gw.conns[conn.ID()]
	if !ok {
		return nil, false
	}
	return gw.sessions.Bind(uid, conn, tc.Transport()), true
}

func (gw *Gateway) reply(conn session.Conn, env protocol.Envelope) {
	if err := conn.Send(env.Payload()); err != nil {
		gw.logger.Debug("failed to send reply", zap.String("conn", conn.ID()), zap.Error(err))
	}
}
