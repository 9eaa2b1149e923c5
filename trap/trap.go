// Package trap connects user code to the kernel: the trampoline that saves
// and restores user state, the trap handler, and the fetch-decode step
// that starts user code at a fresh pc.
package trap

import (
	"fmt"

	"github.com/mit-pdos/ezos/drivers"
	"github.com/mit-pdos/ezos/mm"
	"github.com/mit-pdos/ezos/riscv"
	"github.com/mit-pdos/ezos/task"
	"github.com/mit-pdos/ezos/util"
)

// kernel text addresses
const (
	HandlerAddr  uint64 = uint64(mm.MemoryBase) + 0x1000
	KernelVector uint64 = uint64(mm.MemoryBase) + 0x1400
)

// Text resolves the function named by an entry stub.
type Text interface {
	Lookup(name string) (func(*Machine), bool)
}

// Syscaller executes system call id. Calls that end the thread do not
// return.
type Syscaller interface {
	Syscall(id uint64, args [3]uint64) int64
}

type Config struct {
	Hart     *riscv.Hart
	Mem      *mm.Memory
	Sys      *task.System
	Plic     *drivers.Plic
	Text     Text
	Syscalls Syscaller
}

type Machine struct {
	hart     *riscv.Hart
	mem      *mm.Memory
	sys      *task.System
	plic     *drivers.Plic
	text     Text
	syscalls Syscaller
}

func New(cfg Config) *Machine {
	return &Machine{
		hart:     cfg.Hart,
		mem:      cfg.Mem,
		sys:      cfg.Sys,
		plic:     cfg.Plic,
		text:     cfg.Text,
		syscalls: cfg.Syscalls,
	}
}

// Init points stvec at the kernel vector, enables the timer and external
// interrupt sources, arms the first tick and installs the machine's entry
// points in the task system.
func (m *Machine) Init() {
	m.hart.Stvec = KernelVector
	m.hart.Sie |= riscv.SieSTIE | riscv.SieSEIE
	m.sys.Timer().SetTrigger()
	m.sys.SetHooks(m.userEntry, m.KernelTrap)
}

func (m *Machine) Hart() *riscv.Hart {
	return m.hart
}

func (m *Machine) Memory() *mm.Memory {
	return m.mem
}

func (m *Machine) Sys() *task.System {
	return m.sys
}

// userEntry is the first thing a fresh thread runs: return to user mode
// and start whatever sits at sepc.
func (m *Machine) userEntry() {
	m.TrapReturn()
	m.Start(m.hart.PC)
}

// Trap takes a trap from user mode at the current pc. It returns when the
// thread resumes after the trapping instruction (or at it, for an
// interrupt). If the kernel moved sepc elsewhere, the hart starts the code
// there instead and Trap never returns.
func (m *Machine) Trap(cause riscv.Cause, tval uint64) {
	h := m.hart
	if h.Mode != riscv.User {
		panic("trap: not in user mode")
	}
	expected := h.PC
	if cause == riscv.UserEnvCall {
		expected += 4
	}
	h.EnterTrap(cause, tval)
	if h.PC != mm.Trampoline {
		panic(fmt.Sprintf("trap: stvec %#x is not the trampoline", h.PC))
	}
	m.alltraps()
	m.trapHandler()
	if h.PC != expected {
		m.Start(h.PC)
	}
}

// Poll takes a pending interrupt, as the hart does between instructions.
func (m *Machine) Poll() bool {
	c, ok := m.hart.PendingInterrupt()
	if !ok {
		return false
	}
	m.Trap(c, 0)
	return true
}

// contextPage returns the trap context at va under the current satp. The
// page is a supervisor page: no U bit.
func (m *Machine) contextPage(va uint64) []byte {
	pt := mm.FromToken(m.mem, m.hart.Satp)
	pa, ok := pt.Lookup(mm.VirtAddr(va), mm.PTE_R|mm.PTE_W)
	if !ok {
		panic(fmt.Sprintf("trap: no trap context at %#x", va))
	}
	return m.mem.Page(pa.Floor())[pa.PageOffset():][:riscv.TrapContextSize]
}

// alltraps saves the user registers into the trap context that sscratch
// points at, then switches to the kernel page table and stack.
func (m *Machine) alltraps() {
	h := m.hart
	page := m.contextPage(h.Sscratch)
	cx := riscv.DecodeTrapContext(page)
	cx.X = h.X
	cx.Sstatus = h.Sstatus
	cx.Sepc = h.Sepc
	cx.Encode(page)

	h.WriteSatp(cx.KernelSatp)
	h.X[riscv.SP] = cx.KernelSp
	if cx.TrapHandler != HandlerAddr {
		panic(fmt.Sprintf("trap: bad handler address %#x", cx.TrapHandler))
	}
	h.PC = cx.TrapHandler
}

// restore loads the user registers from the trap context at cxVA under
// userSatp and returns to user mode.
func (m *Machine) restore(cxVA uint64, userSatp uint64) {
	h := m.hart
	h.WriteSatp(userSatp)
	h.Sscratch = cxVA
	cx := riscv.DecodeTrapContext(m.contextPage(cxVA))
	h.Sstatus = cx.Sstatus
	h.Sepc = cx.Sepc
	h.X = cx.X
	h.Sret()
}

// TrapReturn goes back to user mode as the current thread.
func (m *Machine) TrapReturn() {
	m.hart.Stvec = mm.Trampoline
	t := m.sys.CurrentTask()
	m.restore(t.TrapCxUserVA(), t.Process().Token())
}

func (m *Machine) trapHandler() {
	h := m.hart
	h.Stvec = KernelVector
	cause := riscv.Cause(h.Scause)
	switch cause {
	case riscv.UserEnvCall:
		t := m.sys.CurrentTask()
		cx := t.TrapContext()
		cx.Sepc += 4
		t.SetTrapContext(cx)
		ret := m.syscalls.Syscall(cx.X[riscv.A7],
			[3]uint64{cx.X[riscv.A0], cx.X[riscv.A1], cx.X[riscv.A2]})
		// exec may have replaced the context
		cx = t.TrapContext()
		cx.X[riscv.A0] = uint64(ret)
		t.SetTrapContext(cx)
	case riscv.StoreFault, riscv.StorePageFault, riscv.InstructionFault,
		riscv.InstructionPageFault, riscv.LoadFault, riscv.LoadPageFault:
		util.DPrintf(1, "%v in application, bad addr = %#x, bad instruction = %#x\n",
			cause, h.Stval, h.Sepc)
		m.sys.CurrentProcess().AddSignal(task.SIGSEGV)
	case riscv.IllegalInstruction:
		util.DPrintf(1, "IllegalInstruction in application at %#x\n", h.Sepc)
		m.sys.CurrentProcess().AddSignal(task.SIGILL)
	case riscv.SupervisorTimer:
		m.sys.Timer().SetTrigger()
		m.sys.CheckSleepers()
		m.sys.SuspendCurrentAndRunNext()
	case riscv.SupervisorExternal:
		m.plic.Dispatch()
	default:
		panic(fmt.Sprintf("unsupported trap %v, stval = %#x", cause, h.Stval))
	}
	if m.sys.Interrupted() {
		m.sys.ExitCurrentAndRunNext(m.sys.CurrentProcess().ExitCode())
	}
	if code, msg, ok := m.sys.CurrentProcess().Signals().Fatal(); ok {
		util.DPrintf(0, "%s\n", msg)
		m.sys.ExitCurrentAndRunNext(code)
	}
	m.TrapReturn()
}

// KernelTrap handles an interrupt taken in supervisor mode, from the idle
// loop.
func (m *Machine) KernelTrap(cause riscv.Cause) {
	h := m.hart
	if h.Stvec != KernelVector {
		panic("trap: kernel trap through the user vector")
	}
	h.EnterTrap(cause, 0)
	switch cause {
	case riscv.SupervisorTimer:
		m.sys.Timer().SetTrigger()
		m.sys.CheckSleepers()
	case riscv.SupervisorExternal:
		m.plic.Dispatch()
	default:
		panic(fmt.Sprintf("a trap %v from kernel", cause))
	}
	h.Sret()
}

// fetch decodes the entry stub at pc.
func (m *Machine) fetch(pc uint64) (func(*Machine), riscv.Cause, bool) {
	pt := mm.FromToken(m.mem, m.hart.Satp)
	pa, ok := pt.Lookup(mm.VirtAddr(pc), mm.PTE_V|mm.PTE_U|mm.PTE_X)
	if !ok {
		return nil, riscv.InstructionPageFault, false
	}
	name, ok := riscv.DecodeStub(m.mem.Page(pa.Floor())[pa.PageOffset():])
	if !ok {
		return nil, riscv.IllegalInstruction, false
	}
	fn, ok := m.text.Lookup(name)
	if !ok {
		return nil, riscv.IllegalInstruction, false
	}
	return fn, 0, true
}

// Start runs user code from pc. User code ends in an exit call, so Start
// never returns.
func (m *Machine) Start(pc uint64) {
	m.hart.PC = pc
	fn, cause, ok := m.fetch(pc)
	if !ok {
		m.Trap(cause, pc)
		panic(fmt.Sprintf("trap: resumed at faulting pc %#x", pc))
	}
	util.DPrintf(5, "start %#x\n", pc)
	fn(m)
	panic(fmt.Sprintf("trap: user code at %#x returned", pc))
}
