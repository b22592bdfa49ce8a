package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/a783925458/phantom-acceptor/internal/metrics"
)

var (
	ErrQueueFull = errors.New("dispatcher send queue full")
	ErrClosed    = errors.New("dispatcher instance closed")
)

// Backend is a handle to one dispatcher node.
type Backend interface {
	Addr() string
	// Send enqueues a frame for the dispatcher and never blocks.
	Send(data []byte) error
}

// Selector picks the dispatcher responsible for a uid.
type Selector interface {
	Select(uid string) (Backend, bool)
}

// InstanceConfig configures the stream to a single dispatcher.
type InstanceConfig struct {
	SendQueueSize int
	ReconnectBase time.Duration
	ReconnectMax  time.Duration
	DialOptions   []grpc.DialOption
}

// DefaultInstanceConfig returns sensible defaults.
func DefaultInstanceConfig() InstanceConfig {
	return InstanceConfig{
		SendQueueSize: 1024,
		ReconnectBase: time.Second,
		ReconnectMax:  30 * time.Second,
	}
}

// Instance keeps one Route stream open to a dispatcher and reconnects with
// exponential backoff when it breaks.
type Instance struct {
	addr      string
	cfg       InstanceConfig
	logger    *zap.Logger
	onMessage func(frame []byte)

	conn  *grpc.ClientConn
	queue chan []byte
	ready atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	closeOnce sync.Once
}

// NewInstance creates the client connection. Call Start to open the stream.
func NewInstance(addr string, cfg InstanceConfig, onMessage func(frame []byte), logger *zap.Logger) (*Instance, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.SendQueueSize < 1 {
		cfg.SendQueueSize = DefaultInstanceConfig().SendQueueSize
	}
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = DefaultInstanceConfig().ReconnectBase
	}
	if cfg.ReconnectMax < cfg.ReconnectBase {
		cfg.ReconnectMax = cfg.ReconnectBase
	}

	opts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, cfg.DialOptions...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial dispatcher %s: %w", addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Instance{
		addr:      addr,
		cfg:       cfg,
		logger:    logger.With(zap.String("dispatcher", addr)),
		onMessage: onMessage,
		conn:      conn,
		queue:     make(chan []byte, cfg.SendQueueSize),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}, nil
}

// Addr returns the dispatcher address.
func (i *Instance) Addr() string { return i.addr }

// Ready reports whether the Route stream is open.
func (i *Instance) Ready() bool { return i.ready.Load() }

// Start runs the stream loop in the background.
func (i *Instance) Start() {
	go i.run()
}

// Send enqueues data. The frame is dropped when the queue is full.
func (i *Instance) Send(data []byte) error {
	if i.ctx.Err() != nil {
		metrics.DispatcherSendDroppedTotal.Inc()
		return ErrClosed
	}
	select {
	case i.queue <- data:
		return nil
	default:
		metrics.DispatcherSendDroppedTotal.Inc()
		return ErrQueueFull
	}
}

// Close stops the stream loop and closes the client connection.
func (i *Instance) Close() error {
	var err error
	i.closeOnce.Do(func() {
		i.cancel()
		<-i.done
		err = i.conn.Close()
	})
	return err
}

func (i *Instance) run() {
	defer close(i.done)

	wait := i.cfg.ReconnectBase
	for {
		opened, err := i.stream()
		if i.ctx.Err() != nil {
			return
		}
		if opened {
			wait = i.cfg.ReconnectBase
		}
		i.logger.Warn("dispatcher stream ended", zap.Error(err), zap.Duration("retryIn", wait))
		metrics.DispatcherReconnectsTotal.Inc()

		select {
		case <-i.ctx.Done():
			return
		case <-time.After(wait):
		}

		wait *= 2
		if wait > i.cfg.ReconnectMax {
			wait = i.cfg.ReconnectMax
		}
	}
}

// stream opens one Route stream and pumps frames until it fails.
func (i *Instance) stream() (opened bool, err error) {
	ctx, cancel := context.WithCancel(i.ctx)
	defer cancel()

	s, err := i.conn.NewStream(ctx, &RouteStreamDesc, RouteMethod, grpc.CallContentSubtype(CodecName))
	if err != nil {
		return false, fmt.Errorf("open route stream: %w", err)
	}

	i.ready.Store(true)
	metrics.DispatchersReady.Inc()
	i.logger.Info("dispatcher stream open")
	defer func() {
		i.ready.Store(false)
		metrics.DispatchersReady.Dec()
	}()

	recvErr := make(chan error, 1)
	go func() {
		for {
			var frame []byte
			if err := s.RecvMsg(&frame); err != nil {
				recvErr <- err
				return
			}
			if i.onMessage != nil {
				i.onMessage(frame)
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.CloseSend()
			return true, ctx.Err()
		case err := <-recvErr:
			return true, fmt.Errorf("recv: %w", err)
		case data := <-i.queue:
			if err := s.SendMsg(&data); err != nil {
				return true, fmt.Errorf("send: %w", err)
			}
		}
	}
}
