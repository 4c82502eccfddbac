package peripheral

import (
	"log/slog"
	"sync"
	"time"
)

const (
	taskQueueSize = 64
	joinTimeout   = 2 * time.Second
)

// eventLoop is a single goroutine that owns cross-component effects such as
// pushing telemetry into the GATT layer. Producers hand work over through a
// bounded queue and never block: a full queue drops the task. An eventLoop is
// single-use; the engine builds a fresh one on every start.
type eventLoop struct {
	mu      sync.Mutex
	running bool
	tasks   chan func()
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func newEventLoop() *eventLoop {
	return &eventLoop{
		tasks:  make(chan func(), taskQueueSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

func (l *eventLoop) start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.running {
		slog.Warn("[LOOP] already running")
		return
	}
	l.running = true
	go l.run()
	slog.Debug("[LOOP] event loop started")
}

func (l *eventLoop) run() {
	defer close(l.doneCh)
	for {
		select {
		case task := <-l.tasks:
			task()
		case <-l.stopCh:
			// Drain what was queued before the stop.
			for {
				select {
				case task := <-l.tasks:
					task()
				default:
					return
				}
			}
		}
	}
}

// submit enqueues a task. Returns false when the loop is stopped or the
// queue is full.
func (l *eventLoop) submit(task func()) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.running {
		slog.Debug("[LOOP] task dropped, loop not running")
		return false
	}
	select {
	case l.tasks <- task:
		return true
	default:
		slog.Warn("[LOOP] task queue full, dropping task")
		return false
	}
}

// stop signals the loop and waits for it to drain, bounded by joinTimeout.
func (l *eventLoop) stop() {
	l.mu.Lock()
	if !l.running {
		l.mu.Unlock()
		return
	}
	l.running = false
	l.mu.Unlock()

	close(l.stopCh)
	select {
	case <-l.doneCh:
		slog.Debug("[LOOP] event loop stopped")
	case <-time.After(joinTimeout):
		slog.Error("[LOOP] event loop did not stop within timeout")
	}
}
