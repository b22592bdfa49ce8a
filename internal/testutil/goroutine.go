package testutil

import (
	"runtime"
	"testing"
	"time"
)

// AssertNoGoroutineLeaks fails t unless the goroutine count settles at or
// below baseline+margin within five seconds.
func AssertNoGoroutineLeaks(t *testing.T, baseline int, margin int) {
	t.Helper()
	limit := baseline + margin
	if !poll(5*time.Second, 50*time.Millisecond, func() bool { return runtime.NumGoroutine() <= limit }) {
		t.Errorf("goroutine leak: baseline=%d, current=%d, margin=%d", baseline, runtime.NumGoroutine(), margin)
	}
}

// Eventually polls cond until it returns true or the timeout elapses.
func Eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	if !poll(timeout, 10*time.Millisecond, cond) {
		t.Fatalf("condition not met within %v: %s", timeout, msg)
	}
}

func poll(timeout, interval time.Duration, cond func() bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if cond() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(interval)
	}
}
