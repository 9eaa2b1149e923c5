package task

import (
	"fmt"
	"runtime"
)

// TaskContext is one kernel thread of control. Each runs on its own
// goroutine, and Switch passes a single run token between them, so exactly
// one is ever executing.
type TaskContext struct {
	run     chan struct{}
	dead    chan struct{}
	entry   func()
	started bool
	killed  bool
}

func newTaskContext(entry func()) *TaskContext {
	return &TaskContext{
		run:   make(chan struct{}),
		dead:  make(chan struct{}),
		entry: entry,
	}
}

// newIdleContext wraps the goroutine that is already running.
func newIdleContext() *TaskContext {
	cx := newTaskContext(nil)
	cx.started = true
	return cx
}

func (c *TaskContext) park() {
	select {
	case <-c.run:
	case <-c.dead:
		runtime.Goexit()
	}
}

func (c *TaskContext) resume() {
	if c.killed {
		panic("resume of dead context")
	}
	if !c.started {
		c.started = true
		go func() {
			c.park()
			c.entry()
		}()
	}
	c.run <- struct{}{}
}

// kill ends the context's goroutine the next time it is parked.
func (c *TaskContext) kill() {
	if !c.killed {
		c.killed = true
		close(c.dead)
	}
}

// Switch runs next and parks cur until something switches back to it.
func Switch(cur, next *TaskContext) {
	next.resume()
	cur.park()
}

// switchExit runs next and ends the calling goroutine.
func switchExit(cur, next *TaskContext) {
	cur.kill()
	next.resume()
	runtime.Goexit()
}

// PanicError is a kernel panic raised on a task.
type PanicError struct {
	Value interface{}
	Stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("kernel panic: %v", e.Value)
}
