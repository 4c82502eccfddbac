package peripheral

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestEventLoopRunsTasks(t *testing.T) {
	loop := newEventLoop()
	loop.start()
	defer loop.stop()

	var n atomic.Int32
	for i := 0; i < 10; i++ {
		if !loop.submit(func() { n.Add(1) }) {
			t.Fatalf("submit %d rejected", i)
		}
	}
	waitFor(t, func() bool { return n.Load() == 10 }, "tasks to run")
}

func TestEventLoopStopDrains(t *testing.T) {
	loop := newEventLoop()
	loop.start()

	var n atomic.Int32
	for i := 0; i < 5; i++ {
		loop.submit(func() { n.Add(1) })
	}
	loop.stop()
	if got := n.Load(); got != 5 {
		t.Errorf("ran %d tasks, want 5", got)
	}
}

func TestEventLoopSubmitAfterStop(t *testing.T) {
	loop := newEventLoop()
	loop.start()
	loop.stop()

	if loop.submit(func() {}) {
		t.Error("submit must fail after stop")
	}
}

func TestEventLoopFullQueueDrops(t *testing.T) {
	loop := newEventLoop()
	// Not started: nothing consumes, so the queue fills.
	loop.mu.Lock()
	loop.running = true
	loop.mu.Unlock()

	accepted := 0
	for i := 0; i < taskQueueSize+10; i++ {
		if loop.submit(func() {}) {
			accepted++
		}
	}
	if accepted != taskQueueSize {
		t.Errorf("accepted %d tasks, want %d", accepted, taskQueueSize)
	}
}

func TestEventLoopStopIdempotent(t *testing.T) {
	loop := newEventLoop()
	loop.start()
	loop.stop()
	// Second stop must not panic or block.
	done := make(chan struct{})
	go func() {
		loop.stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("second stop blocked")
	}
}
