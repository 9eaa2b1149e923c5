package task

import (
	"github.com/mit-pdos/ezos/kcell"
	"github.com/mit-pdos/ezos/mm"
	"github.com/mit-pdos/ezos/riscv"
)

type TaskStatus int

const (
	Ready TaskStatus = iota
	Running
	Blocked
)

func (st TaskStatus) String() string {
	switch st {
	case Ready:
		return "Ready"
	case Running:
		return "Running"
	}
	return "Blocked"
}

// TaskControlBlock is one thread. It refers to its process without owning
// it; the process's task table is the owner.
type TaskControlBlock struct {
	sys     *System
	process *ProcessControlBlock
	kstack  *KernelStack
	inner   *kcell.Cell[tcbInner]
}

type tcbInner struct {
	res       *TaskUserRes
	tid       uint64
	trapCxPPN mm.PhysPageNum
	cx        *TaskContext
	status    TaskStatus
	exited    bool
	exitCode  int
	// blocked in a wait that holds no kernel resource
	interruptible bool
	// the process exited; leave at the next return to user mode
	killed bool
}

func (t *TaskControlBlock) Process() *ProcessControlBlock {
	return t.process
}

func (t *TaskControlBlock) Tid() uint64 {
	defer t.inner.Release()
	return t.inner.Borrow().tid
}

func (t *TaskControlBlock) Status() TaskStatus {
	defer t.inner.Release()
	return t.inner.Borrow().status
}

func (t *TaskControlBlock) setStatus(st TaskStatus) {
	t.inner.Borrow().status = st
	t.inner.Release()
}

// ExitCode reports the thread's exit code once it has exited.
func (t *TaskControlBlock) ExitCode() (int, bool) {
	defer t.inner.Release()
	ti := t.inner.Borrow()
	return ti.exitCode, ti.exited
}

func (t *TaskControlBlock) context() *TaskContext {
	defer t.inner.Release()
	return t.inner.Borrow().cx
}

func (t *TaskControlBlock) KernelStackTop() uint64 {
	return t.kstack.Top()
}

// UstackTop is the initial user stack pointer for this thread.
func (t *TaskControlBlock) UstackTop() uint64 {
	defer t.inner.Release()
	return t.inner.Borrow().res.UstackTop()
}

func (t *TaskControlBlock) TrapCxUserVA() uint64 {
	defer t.inner.Release()
	ti := t.inner.Borrow()
	return (&TaskUserRes{tid: ti.tid}).TrapCxUserVA()
}

func (t *TaskControlBlock) trapCxPage() []byte {
	ti := t.inner.Borrow()
	ppn := ti.trapCxPPN
	t.inner.Release()
	return t.sys.mem.Page(ppn)[:riscv.TrapContextSize]
}

// TrapContext reads the thread's saved user state.
func (t *TaskControlBlock) TrapContext() *riscv.TrapContext {
	return riscv.DecodeTrapContext(t.trapCxPage())
}

func (t *TaskControlBlock) SetTrapContext(cx *riscv.TrapContext) {
	cx.Encode(t.trapCxPage())
}
