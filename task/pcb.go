package task

import (
	"github.com/mit-pdos/ezos/file"
	"github.com/mit-pdos/ezos/kcell"
	"github.com/mit-pdos/ezos/ksync"
	"github.com/mit-pdos/ezos/mm"
)

// ProcessControlBlock owns an address space, descriptor table, child list,
// sync object tables and its threads. The parent is held by pid.
type ProcessControlBlock struct {
	sys   *System
	pid   uint64
	inner *kcell.Cell[pcbInner]
}

type pcbInner struct {
	zombie     bool
	exiting    bool
	lingering  int
	memset     *mm.MemorySet
	parent     uint64
	hasParent  bool
	children   []*ProcessControlBlock
	exitCode   int
	fdTable    []file.File
	signals    SignalFlags
	tasks      []*TaskControlBlock
	tids       RecycleAllocator
	mutexes    []*ksync.Mutex
	semaphores []*ksync.Semaphore
	condvars   []*ksync.Condvar
}

func (pi *pcbInner) threadCount() int {
	n := 0
	for _, t := range pi.tasks {
		if t != nil {
			n++
		}
	}
	return n
}

func (p *ProcessControlBlock) Pid() uint64 {
	return p.pid
}

func (p *ProcessControlBlock) Token() uint64 {
	defer p.inner.Release()
	return p.inner.Borrow().memset.Token()
}

func (p *ProcessControlBlock) IsZombie() bool {
	defer p.inner.Release()
	return p.inner.Borrow().zombie
}

func (p *ProcessControlBlock) ExitCode() int {
	defer p.inner.Release()
	return p.inner.Borrow().exitCode
}

func (p *ProcessControlBlock) Parent() (uint64, bool) {
	defer p.inner.Release()
	pi := p.inner.Borrow()
	return pi.parent, pi.hasParent
}

func (p *ProcessControlBlock) Children() []uint64 {
	defer p.inner.Release()
	var pids []uint64
	for _, c := range p.inner.Borrow().children {
		pids = append(pids, c.pid)
	}
	return pids
}

func (p *ProcessControlBlock) ThreadCount() int {
	defer p.inner.Release()
	return p.inner.Borrow().threadCount()
}

// Task returns the thread with the given tid.
func (p *ProcessControlBlock) Task(tid uint64) (*TaskControlBlock, bool) {
	defer p.inner.Release()
	pi := p.inner.Borrow()
	if tid >= uint64(len(pi.tasks)) || pi.tasks[tid] == nil {
		return nil, false
	}
	return pi.tasks[tid], true
}

func (p *ProcessControlBlock) Signals() SignalFlags {
	defer p.inner.Release()
	return p.inner.Borrow().signals
}

// AddSignal marks sig pending; it reports false if it already was.
func (p *ProcessControlBlock) AddSignal(sig int) bool {
	defer p.inner.Release()
	pi := p.inner.Borrow()
	if pi.signals.Has(sig) {
		return false
	}
	pi.signals |= signalBit(sig)
	return true
}

// allocSlot returns the first free index of a table, growing it if full.
func allocSlot[T any](table *[]T, isFree func(T) bool) int {
	for i, v := range *table {
		if isFree(v) {
			return i
		}
	}
	var zero T
	*table = append(*table, zero)
	return len(*table) - 1
}

// AllocFd installs f in the lowest free descriptor. The table takes over
// the caller's reference.
func (p *ProcessControlBlock) AllocFd(f file.File) int {
	defer p.inner.Release()
	pi := p.inner.Borrow()
	fd := allocSlot(&pi.fdTable, func(f file.File) bool { return f == nil })
	pi.fdTable[fd] = f
	return fd
}

func (p *ProcessControlBlock) Fd(fd int) (file.File, bool) {
	defer p.inner.Release()
	pi := p.inner.Borrow()
	if fd < 0 || fd >= len(pi.fdTable) || pi.fdTable[fd] == nil {
		return nil, false
	}
	return pi.fdTable[fd], true
}

func (p *ProcessControlBlock) CloseFd(fd int) bool {
	pi := p.inner.Borrow()
	if fd < 0 || fd >= len(pi.fdTable) || pi.fdTable[fd] == nil {
		p.inner.Release()
		return false
	}
	f := pi.fdTable[fd]
	pi.fdTable[fd] = nil
	p.inner.Release()
	file.Release(f)
	return true
}

// DupFd makes a new descriptor sharing fd's file.
func (p *ProcessControlBlock) DupFd(fd int) (int, bool) {
	f, ok := p.Fd(fd)
	if !ok {
		return 0, false
	}
	file.Retain(f)
	return p.AllocFd(f), true
}

func (p *ProcessControlBlock) AddMutex(m *ksync.Mutex) int {
	defer p.inner.Release()
	pi := p.inner.Borrow()
	id := allocSlot(&pi.mutexes, func(m *ksync.Mutex) bool { return m == nil })
	pi.mutexes[id] = m
	return id
}

func (p *ProcessControlBlock) Mutex(id int) (*ksync.Mutex, bool) {
	defer p.inner.Release()
	pi := p.inner.Borrow()
	if id < 0 || id >= len(pi.mutexes) || pi.mutexes[id] == nil {
		return nil, false
	}
	return pi.mutexes[id], true
}

func (p *ProcessControlBlock) AddSemaphore(sem *ksync.Semaphore) int {
	defer p.inner.Release()
	pi := p.inner.Borrow()
	id := allocSlot(&pi.semaphores, func(s *ksync.Semaphore) bool { return s == nil })
	pi.semaphores[id] = sem
	return id
}

func (p *ProcessControlBlock) Semaphore(id int) (*ksync.Semaphore, bool) {
	defer p.inner.Release()
	pi := p.inner.Borrow()
	if id < 0 || id >= len(pi.semaphores) || pi.semaphores[id] == nil {
		return nil, false
	}
	return pi.semaphores[id], true
}

func (p *ProcessControlBlock) AddCondvar(c *ksync.Condvar) int {
	defer p.inner.Release()
	pi := p.inner.Borrow()
	id := allocSlot(&pi.condvars, func(c *ksync.Condvar) bool { return c == nil })
	pi.condvars[id] = c
	return id
}

func (p *ProcessControlBlock) Condvar(id int) (*ksync.Condvar, bool) {
	defer p.inner.Release()
	pi := p.inner.Borrow()
	if id < 0 || id >= len(pi.condvars) || pi.condvars[id] == nil {
		return nil, false
	}
	return pi.condvars[id], true
}
