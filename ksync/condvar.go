package ksync

import "sync"

type Condvar struct {
	sched Scheduler
	wq    waitQueue
}

func NewCondvar(s Scheduler) *Condvar {
	return &Condvar{sched: s}
}

func (c *Condvar) Signal() {
	c.wq.wakeOne(c.sched)
}

func (c *Condvar) Broadcast() {
	for c.wq.wakeOne(c.sched) {
	}
}

// Wait releases m, sleeps until signalled, and reacquires m.
func (c *Condvar) Wait(m sync.Locker) {
	m.Unlock()
	blockOn(c.sched, &c.wq)
	m.Lock()
}

// WaitNoLock sleeps until signalled. The caller arranges exclusion by
// other means, typically by running with interrupts masked.
func (c *Condvar) WaitNoLock() {
	blockOn(c.sched, &c.wq)
}

func (c *Condvar) Waiters() int {
	return c.wq.len()
}
