package routing

import (
	"go.uber.org/zap"

	"github.com/a783925458/phantom-acceptor/internal/metrics"
	"github.com/a783925458/phantom-acceptor/internal/protocol"
	"github.com/a783925458/phantom-acceptor/internal/session"
)

// Registry dispatches envelopes to handlers by request type.
type Registry struct {
	handlers map[protocol.RequestType]Handler
	logger   *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		handlers: make(map[protocol.RequestType]Handler),
		logger:   logger,
	}
}

// Register adds a handler for a request type. Registration must finish
// before the first call to Handle.
func (r *Registry) Register(t protocol.RequestType, h Handler) {
	r.handlers[t] = h
}

// Handle routes env to its handler. Unknown request types are dropped.
func (r *Registry) Handle(env protocol.Envelope, conn session.Conn) {
	h, ok := r.handlers[env.RequestType()]
	if !ok {
		metrics.UnknownRequestTypesTotal.Inc()
		r.logger.Warn("unknown request type", zap.Stringer("type", env.RequestType()), zap.Stringer("kind", env.Kind()))
		return
	}
	h.Handle(env, conn)
}
