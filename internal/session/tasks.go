package session

import (
	"context"
	"sync"
	"time"
)

// TaskSet supervises the short-lived tasks spawned for one session.
// Tasks receive the session context and are awaited on teardown.
type TaskSet struct {
	ctx    context.Context
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// NewTaskSet creates a task set bound to ctx
func NewTaskSet(ctx context.Context) *TaskSet {
	return &TaskSet{ctx: ctx}
}

// Go starts fn in a new goroutine. It returns false once the set is closed.
func (t *TaskSet) Go(fn func(ctx context.Context)) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		fn(t.ctx)
	}()
	return true
}

// Close stops new tasks from being accepted
func (t *TaskSet) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// Wait blocks until all tasks finish or timeout elapses; it reports
// whether every task finished.
func (t *TaskSet) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
