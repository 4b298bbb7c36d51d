package overlay

import (
	"context"
	"sync"
	"time"
)

// Timer is a handle to a pending callback.
type Timer interface {
	// Stop prevents the callback from running and reports whether it was still pending.
	Stop() bool
}

// Scheduler serializes work for a session. Every callback it runs, timers
// included, runs on the same goroutine as the session's event handlers.
type Scheduler interface {
	AfterFunc(d time.Duration, f func()) Timer
	Post(f func())
}

// Loop is a single goroutine draining a queue of funcs.
type Loop struct {
	ctx   context.Context
	queue chan func()
}

func NewLoop(ctx context.Context, size int) *Loop {
	return &Loop{ctx: ctx, queue: make(chan func(), size)}
}

// Run executes posted funcs in order until the context is done.
func (l *Loop) Run() {
	for {
		select {
		case f := <-l.queue:
			f()
		case <-l.ctx.Done():
			return
		}
	}
}

// Post queues f. It is dropped once the loop has stopped.
func (l *Loop) Post(f func()) {
	select {
	case l.queue <- f:
	case <-l.ctx.Done():
	}
}

func (l *Loop) AfterFunc(d time.Duration, f func()) Timer {
	t := &loopTimer{}
	t.timer = time.AfterFunc(d, func() {
		l.Post(func() {
			if t.fire() {
				f()
			}
		})
	})
	return t
}

// loopTimer guards against the race where the runtime timer has already
// queued the callback when Stop is called: the queued func checks the flag.
type loopTimer struct {
	mu      sync.Mutex
	timer   *time.Timer
	stopped bool
	fired   bool
}

func (t *loopTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	t.timer.Stop()
	return true
}

func (t *loopTimer) fire() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stopped {
		return false
	}
	t.fired = true
	return true
}
