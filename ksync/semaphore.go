package ksync

type Semaphore struct {
	sched Scheduler
	count int64
	wq    waitQueue
}

func NewSemaphore(s Scheduler, count int64) *Semaphore {
	return &Semaphore{sched: s, count: count}
}

// Up releases one unit, waking the oldest waiter if the count was negative.
// A dead waiter gives back the unit it was waiting for.
func (sem *Semaphore) Up() {
	sem.count++
	for sem.count <= 0 {
		w, ok := sem.wq.pop()
		if !ok || sem.sched.Wakeup(w) {
			return
		}
		sem.count++
	}
}

// Down takes one unit, blocking when none is left.
func (sem *Semaphore) Down() {
	sem.count--
	if sem.count < 0 {
		blockOn(sem.sched, &sem.wq)
	}
}

func (sem *Semaphore) Count() int64 {
	return sem.count
}
