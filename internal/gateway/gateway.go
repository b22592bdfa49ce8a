package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/a783925458/phantom-acceptor/internal/auth"
	"github.com/a783925458/phantom-acceptor/internal/codec"
	"github.com/a783925458/phantom-acceptor/internal/config"
	"github.com/a783925458/phantom-acceptor/internal/dispatcher"
	"github.com/a783925458/phantom-acceptor/internal/metrics"
	"github.com/a783925458/phantom-acceptor/internal/protocol"
	"github.com/a783925458/phantom-acceptor/internal/routing"
	"github.com/a783925458/phantom-acceptor/internal/session"
	"github.com/a783925458/phantom-acceptor/internal/transport"
	"github.com/a783925458/phantom-acceptor/internal/workerpool"
)

// Dispatchers is the dispatcher cluster as seen by the gateway.
type Dispatchers interface {
	dispatcher.Selector
	Run(ctx context.Context, src dispatcher.Source) error
	Snapshot() []dispatcher.Status
	ReadyCount() int
	Close()
}

// Gateway accepts client connections, authenticates them and routes their
// envelopes to and from the dispatcher cluster.
type Gateway struct {
	cfg         *config.Config
	logger      *zap.Logger
	sessions    *session.Manager
	dispatchers Dispatchers
	verifier    *auth.Verifier
	pool        *workerpool.Pool
	registry    *routing.Registry
	upgrader    websocket.Upgrader

	draining atomic.Bool
	wg       sync.WaitGroup

	mu    sync.Mutex
	conns map[string]transport.Conn
}

// New creates a Gateway whose dispatcher set is populated later via
// RunDiscovery.
func New(cfg *config.Config, logger *zap.Logger) (*Gateway, error) {
	verifier, err := auth.NewVerifier(auth.Config{
		Secret: []byte(cfg.AuthJWTSecret),
		Issuer: cfg.AuthJWTIssuer,
	})
	if err != nil {
		return nil, fmt.Errorf("create verifier: %w", err)
	}

	gw := newGateway(cfg, logger, verifier)
	gw.dispatchers = dispatcher.NewManager(dispatcher.InstanceConfig{
		SendQueueSize: cfg.DispatcherSendQueue,
		ReconnectBase: cfg.DispatcherReconnectBase,
		ReconnectMax:  cfg.DispatcherReconnectMax,
	}, gw.HandleDispatcherFrame, logger.Named("dispatcher"))
	gw.registerHandlers()
	return gw, nil
}

// NewForTest creates a Gateway with an injected dispatcher set.
func NewForTest(cfg *config.Config, logger *zap.Logger, verifier *auth.Verifier, dispatchers Dispatchers) *Gateway {
	gw := newGateway(cfg, logger, verifier)
	gw.dispatchers = dispatchers
	gw.registerHandlers()
	return gw
}

func newGateway(cfg *config.Config, logger *zap.Logger, verifier *auth.Verifier) *Gateway {
	return &Gateway{
		cfg:      cfg,
		logger:   logger,
		sessions: session.NewManager(logger.Named("session")),
		verifier: verifier,
		pool:     workerpool.New(cfg.RouterWorkers, cfg.RouterQueueSize, logger.Named("pool")),
		registry: routing.NewRegistry(logger.Named("registry")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		conns: make(map[string]transport.Conn),
	}
}

func (gw *Gateway) registerHandlers() {
	routeLogger := gw.logger.Named("routing")
	user := routing.NewRouter[codec.UserMessage](codec.FamilyUser, codec.UserCodec{}, gw.sessions, gw.dispatchers, gw.pool, routeLogger)
	chat := routing.NewRouter[codec.ChatMessage](codec.FamilyChat, codec.ChatCodec{}, gw.sessions, gw.dispatchers, gw.pool, routeLogger)

	gw.registry.Register(protocol.RequestTypeAuthenticate, routing.HandlerFunc(gw.handleAuthenticate))
	gw.registry.Register(protocol.RequestTypeLogin, user)
	gw.registry.Register(protocol.RequestTypeLogout, user)
	gw.registry.Register(protocol.RequestTypeSendMessage, chat)
	gw.registry.Register(protocol.RequestTypeFetchMessage, chat)
	gw.registry.Register(protocol.RequestTypeNotify, chat)
}

// Sessions returns the session directory.
func (gw *Gateway) Sessions() *session.Manager { return gw.sessions }

// ConnectionCount returns the number of open client connections.
func (gw *Gateway) ConnectionCount() int {
	gw.mu.Lock()
	defer gw.mu.Unlock()
	return len(gw.conns)
}

// RunDiscovery keeps the dispatcher set in sync with src until ctx ends.
func (gw *Gateway) RunDiscovery(ctx context.Context, src dispatcher.Source) error {
	return gw.dispatchers.Run(ctx, src)
}

// ServeTCP accepts raw frame connections on ln until ctx is cancelled.
func (gw *Gateway) ServeTCP(ctx context.Context, ln net.Listener) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			gw.logger.Warn("accept failed", zap.Error(err))
			time.Sleep(50 * time.Millisecond)
			continue
		}
		gw.serve(transport.NewTCPConn(nc, gw.connOptions(), gw.logger))
	}
}

// WebSocketHandler upgrades requests and serves them as client connections.
func (gw *Gateway) WebSocketHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gw.draining.Load() {
			http.Error(w, "draining", http.StatusServiceUnavailable)
			return
		}
		ws, err := gw.upgrader.Upgrade(w, r, nil)
		if err != nil {
			gw.logger.Debug("websocket upgrade failed", zap.Error(err))
			return
		}
		gw.serve(transport.NewWSConn(ws, gw.connOptions(), gw.logger))
	})
}

func (gw *Gateway) connOptions() transport.Options {
	opts := transport.DefaultOptions()
	opts.SendQueue = gw.cfg.ConnSendQueue
	opts.MaxFrame = gw.cfg.MaxFrameBytes
	opts.IdleTimeout = gw.cfg.ConnIdleTimeout
	return opts
}

// serve admits conn and starts its read loop.
func (gw *Gateway) serve(conn transport.Conn) {
	if !gw.admit(conn) {
		conn.Close()
		return
	}
	gw.wg.Add(1)
	go gw.readLoop(conn)
}

func (gw *Gateway) admit(conn transport.Conn) bool {
	gw.mu.Lock()
	defer gw.mu.Unlock()

	if gw.draining.Load() {
		return false
	}
	// Enforce connection cap
	if count := len(gw.conns); count >= gw.cfg.MaxSessions {
		gw.logger.Warn("connection cap reached", zap.Int("current", count), zap.Int("max", gw.cfg.MaxSessions))
		metrics.ConnectionsRejectedTotal.Inc()
		return false
	}
	gw.conns[conn.ID()] = conn
	metrics.ConnectionsTotal.WithLabelValues(conn.Transport()).Inc()
	metrics.ActiveConnections.Inc()
	return true
}

func (gw *Gateway) readLoop(conn transport.Conn) {
	defer gw.wg.Done()
	defer gw.release(conn)

	logger := gw.logger.With(zap.String("conn", conn.ID()), zap.String("transport", conn.Transport()))
	logger.Debug("connection open", zap.String("remote", conn.RemoteAddr()))

	for {
		env, err := conn.ReadEnvelope()
		if err != nil {
			var de *protocol.DecodeError
			switch {
			case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed), websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway):
				logger.Debug("connection closed")
			case errors.As(err, &de), errors.Is(err, protocol.ErrFrameTooLarge):
				metrics.DecodeErrorsTotal.WithLabelValues("frame").Inc()
				logger.Warn("malformed frame, closing connection", zap.Error(err))
			default:
				logger.Debug("read failed", zap.Error(err))
			}
			return
		}

		metrics.EnvelopesTotal.WithLabelValues("client", env.Kind().String()).Inc()
		gw.registry.Handle(env, conn)
	}
}

func (gw *Gateway) release(conn transport.Conn) {
	conn.Close()

	gw.mu.Lock()
	if _, ok := gw.conns[conn.ID()]; ok {
		delete(gw.conns, conn.ID())
		metrics.ActiveConnections.Dec()
	}
	gw.mu.Unlock()

	gw.sessions.Unbind(conn)
}

// HandleDispatcherFrame routes a frame pushed by a dispatcher. Only
// responses are accepted from the cluster.
func (gw *Gateway) HandleDispatcherFrame(frame []byte) {
	env, err := protocol.ParseEnvelope(frame, gw.cfg.MaxFrameBytes)
	if err != nil {
		metrics.DecodeErrorsTotal.WithLabelValues("frame").Inc()
		gw.logger.Warn("malformed frame from dispatcher", zap.Error(err))
		return
	}
	metrics.EnvelopesTotal.WithLabelValues("dispatcher", env.Kind().String()).Inc()
	if env.Kind() != protocol.KindResponse {
		gw.logger.Warn("ignoring non-response frame from dispatcher",
			zap.Stringer("kind", env.Kind()),
			zap.Stringer("type", env.RequestType()))
		return
	}
	gw.registry.Handle(env, nil)
}

// Shutdown stops admitting connections, closes the open ones, drains the
// routing pool and disconnects from the dispatchers.
func (gw *Gateway) Shutdown(ctx context.Context) error {
	gw.mu.Lock()
	gw.draining.Store(true)
	conns := make([]transport.Conn, 0, len(gw.conns))
	for _, c := range gw.conns {
		conns = append(conns, c)
	}
	gw.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		gw.wg.Wait()
		close(done)
	}()
	var err error
	select {
	case <-done:
	case <-ctx.Done():
		err = fmt.Errorf("wait for connections: %w", ctx.Err())
	}

	gw.pool.Close()
	gw.dispatchers.Close()
	gw.sessions.CloseAll()

	gw.logger.Info("gateway shutdown complete")
	return err
}
