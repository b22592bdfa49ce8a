// Package workerpool runs submitted tasks on a fixed set of goroutines.
//
// Submit never blocks. Tasks are executed in no particular order and the
// submitter receives no completion signal.
package workerpool

import (
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/a783925458/phantom-acceptor/internal/metrics"
)

var (
	ErrQueueFull = errors.New("worker pool queue full")
	ErrClosed    = errors.New("worker pool closed")
)

// Pool is a bounded worker pool.
type Pool struct {
	logger *zap.Logger
	tasks  chan func()
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// New starts workers goroutines consuming a queue of queueSize tasks.
func New(workers, queueSize int, logger *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 0 {
		queueSize = 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	p := &Pool{
		logger: logger,
		tasks:  make(chan func(), queueSize),
	}
	p.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go p.worker()
	}
	return p
}

// Submit enqueues task without blocking.
func (p *Pool) Submit(task func()) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		metrics.PoolRejectedTotal.Inc()
		return ErrClosed
	}

	select {
	case p.tasks <- task:
		metrics.PoolQueueDepth.Set(float64(len(p.tasks)))
		return nil
	default:
		metrics.PoolRejectedTotal.Inc()
		return ErrQueueFull
	}
}

// Close stops accepting tasks, runs everything already queued and waits
// for the workers to exit. It is idempotent.
func (p *Pool) Close() {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	p.wg.Wait()
	metrics.PoolQueueDepth.Set(0)
}

// Pending returns the number of queued tasks.
func (p *Pool) Pending() int {
	return len(p.tasks)
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for task := range p.tasks {
		p.run(task)
	}
}

// run executes one task; a panic is fatal to that task only.
func (p *Pool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			metrics.PoolPanicsTotal.Inc()
			p.logger.Error("task panicked", zap.String("panic", fmt.Sprint(r)), zap.Stack("stack"))
		}
	}()
	task()
}
