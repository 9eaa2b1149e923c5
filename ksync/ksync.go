// Package ksync implements the blocking primitives user threads see:
// mutexes, counting semaphores and condition variables. Waiters queue in
// FIFO order and are handed to the scheduler for wakeup.
package ksync

// Waiter is a blocked thread as the scheduler knows it.
type Waiter interface{}

// Scheduler is what a primitive needs from the task layer. Block parks the
// current thread until some Wakeup names it. Wakeup reports false for a
// thread that has been torn down; the wakeup is then not consumed.
type Scheduler interface {
	Current() Waiter
	Block()
	Wakeup(w Waiter) bool
}

type waitQueue struct {
	q []Waiter
}

func (wq *waitQueue) push(w Waiter) {
	wq.q = append(wq.q, w)
}

func (wq *waitQueue) pop() (Waiter, bool) {
	if len(wq.q) == 0 {
		return nil, false
	}
	w := wq.q[0]
	wq.q = wq.q[1:]
	return w, true
}

// wakeOne wakes the oldest waiter still alive, dropping dead ones.
func (wq *waitQueue) wakeOne(s Scheduler) bool {
	for {
		w, ok := wq.pop()
		if !ok {
			return false
		}
		if s.Wakeup(w) {
			return true
		}
	}
}

func (wq *waitQueue) len() int {
	return len(wq.q)
}

// blockOn queues the current thread and blocks it.
func blockOn(s Scheduler, wq *waitQueue) {
	cur := s.Current()
	if cur == nil {
		panic("ksync: block with no current thread")
	}
	wq.push(cur)
	s.Block()
}
