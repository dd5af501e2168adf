// Package dispatch provides the serialized execution context that owns all
// request bookkeeping on the client side of a command queue.
//
// Listener callbacks arrive on the queue's router goroutine and must Post
// onto the Executor before touching any pending-request table.
package dispatch

import (
	"errors"
	"sync"
)

// ErrStopped is returned by Sync once the executor has been closed.
var ErrStopped = errors.New("dispatch: executor stopped")

// Executor runs submitted functions one at a time, in submission order, on a
// single goroutine. The queue is unbounded so Post never blocks.
type Executor struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []func()
	closed bool
	done   chan struct{}
}

// New starts an executor.
func New() *Executor {
	e := &Executor{
		done: make(chan struct{}),
	}
	e.cond = sync.NewCond(&e.mu)
	go e.run()
	return e
}

// Post schedules fn to run on the executor. It reports false if the executor
// is closed, in which case fn is dropped.
func (e *Executor) Post(fn func()) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return false
	}
	e.tasks = append(e.tasks, fn)
	e.cond.Signal()
	return true
}

// Sync runs fn on the executor and waits for it to return. It must not be
// called from a function already running on the executor.
func (e *Executor) Sync(fn func()) error {
	done := make(chan struct{})
	if !e.Post(func() {
		defer close(done)
		fn()
	}) {
		return ErrStopped
	}

	select {
	case <-done:
		return nil
	case <-e.done:
		// The task may have been the last one drained before exit.
		select {
		case <-done:
			return nil
		default:
			return ErrStopped
		}
	}
}

// Close stops accepting work, runs what is already queued and waits for the
// executor goroutine to exit. Close is idempotent.
func (e *Executor) Close() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		e.cond.Signal()
	}
	e.mu.Unlock()
	<-e.done
}

// Done is closed once the executor goroutine has exited.
func (e *Executor) Done() <-chan struct{} {
	return e.done
}

func (e *Executor) run() {
	defer close(e.done)

	for {
		e.mu.Lock()
		for len(e.tasks) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.tasks) == 0 && e.closed {
			e.mu.Unlock()
			return
		}
		batch := e.tasks
		e.tasks = nil
		e.mu.Unlock()

		for _, fn := range batch {
			fn()
		}
	}
}
