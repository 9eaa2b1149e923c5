package ksync

// Mutex is a sleeping lock. Unlock hands ownership straight to the oldest
// live waiter. It implements sync.Locker; an uncontended Lock never consults the
// scheduler.
type Mutex struct {
	sched  Scheduler
	locked bool
	wq     waitQueue
}

func NewMutex(s Scheduler) *Mutex {
	return &Mutex{sched: s}
}

func (m *Mutex) Lock() {
	if !m.locked {
		m.locked = true
		return
	}
	blockOn(m.sched, &m.wq)
}

func (m *Mutex) Unlock() {
	if !m.locked {
		panic("ksync: unlock of unlocked mutex")
	}
	if m.wq.wakeOne(m.sched) {
		return
	}
	m.locked = false
}

func (m *Mutex) Locked() bool {
	return m.locked
}

func (m *Mutex) Waiters() int {
	return m.wq.len()
}
