package syscall

import (
	"github.com/mit-pdos/ezos/ksync"
)

func (d *Dispatcher) mutexCreate() int64 {
	return int64(d.sys.CurrentProcess().AddMutex(ksync.NewMutex(d.sys.Interruptible())))
}

func (d *Dispatcher) mutexLock(id uint64) int64 {
	m, ok := d.sys.CurrentProcess().Mutex(index(id))
	if !ok {
		return EFail
	}
	m.Lock()
	return 0
}

func (d *Dispatcher) mutexUnlock(id uint64) int64 {
	m, ok := d.sys.CurrentProcess().Mutex(index(id))
	if !ok || !m.Locked() {
		return EFail
	}
	m.Unlock()
	return 0
}

func (d *Dispatcher) semCreate(count uint64) int64 {
	return int64(d.sys.CurrentProcess().AddSemaphore(ksync.NewSemaphore(d.sys.Interruptible(), int64(count))))
}

func (d *Dispatcher) semUp(id uint64) int64 {
	sem, ok := d.sys.CurrentProcess().Semaphore(index(id))
	if !ok {
		return EFail
	}
	sem.Up()
	return 0
}

func (d *Dispatcher) semDown(id uint64) int64 {
	sem, ok := d.sys.CurrentProcess().Semaphore(index(id))
	if !ok {
		return EFail
	}
	sem.Down()
	return 0
}

func (d *Dispatcher) condvarCreate() int64 {
	return int64(d.sys.CurrentProcess().AddCondvar(ksync.NewCondvar(d.sys.Interruptible())))
}

func (d *Dispatcher) condvarSignal(id uint64) int64 {
	c, ok := d.sys.CurrentProcess().Condvar(index(id))
	if !ok {
		return EFail
	}
	c.Signal()
	return 0
}

func (d *Dispatcher) condvarWait(id uint64, mutexID uint64) int64 {
	p := d.sys.CurrentProcess()
	c, ok := p.Condvar(index(id))
	if !ok {
		return EFail
	}
	m, ok := p.Mutex(index(mutexID))
	if !ok {
		return EFail
	}
	c.Wait(m)
	return 0
}
