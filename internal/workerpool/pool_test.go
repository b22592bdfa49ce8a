package workerpool

import (
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/a783925458/phantom-acceptor/internal/testutil"
)

func TestPool_RunsAllTasks(t *testing.T) {
	p := New(4, 100, zap.NewNop())

	var n atomic.Int64
	for i := 0; i < 100; i++ {
		if err := p.Submit(func() { n.Add(1) }); err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
	}
	p.Close()

	if got := n.Load(); got != 100 {
		t.Errorf("ran %d tasks, want 100", got)
	}
}

func TestPool_SubmitNeverBlocks(t *testing.T) {
	p := New(1, 1, zap.NewNop())
	release := make(chan struct{})
	started := make(chan struct{})

	// occupy the only worker
	if err := p.Submit(func() { close(started); <-release }); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	<-started

	// fill the queue
	if err := p.Submit(func() {}); err != nil {
		t.Fatalf("Submit to empty queue failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- p.Submit(func() {}) }()

	select {
	case err := <-done:
		if !errors.Is(err, ErrQueueFull) {
			t.Errorf("Submit on full queue = %v, want ErrQueueFull", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Submit blocked on a full queue")
	}

	close(release)
	p.Close()
}

func TestPool_SubmitAfterClose(t *testing.T) {
	p := New(2, 4, zap.NewNop())
	p.Close()
	p.Close()

	if err := p.Submit(func() {}); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Close = %v, want ErrClosed", err)
	}
}

func TestPool_PanicIsolated(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	p := New(1, 10, zap.New(core))

	var ran atomic.Bool
	p.Submit(func() { panic("boom") })
	p.Submit(func() { ran.Store(true) })
	p.Close()

	if !ran.Load() {
		t.Error("task after a panic did not run")
	}
	if logs.FilterMessage("task panicked").Len() != 1 {
		t.Errorf("expected one panic log, got %d", logs.FilterMessage("task panicked").Len())
	}
}

func TestPool_NoGoroutineLeak(t *testing.T) {
	runtime.GC()
	baseline := runtime.NumGoroutine()

	p := New(16, 64, zap.NewNop())
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		p.Submit(func() { wg.Done() })
	}
	wg.Wait()
	p.Close()

	testutil.AssertNoGoroutineLeaks(t, baseline, 2)
}
