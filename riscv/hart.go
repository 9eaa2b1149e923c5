// riscv models the supervisor-visible state of one RISC-V hart: the
// register file, the privilege mode, and the CSRs a kernel touches.
package riscv

import "fmt"

type Mode int

const (
	User Mode = iota
	Supervisor
)

func (m Mode) String() string {
	if m == User {
		return "U"
	}
	return "S"
}

// register numbers
const (
	RA = 1
	SP = 2
	A0 = 10
	A1 = 11
	A2 = 12
	A7 = 17
)

// sstatus bits
const (
	SstatusSIE  uint64 = 1 << 1
	SstatusSPIE uint64 = 1 << 5
	SstatusSPP  uint64 = 1 << 8
)

// sie bits
const (
	SieSTIE uint64 = 1 << 5
	SieSEIE uint64 = 1 << 9
)

const interruptBit uint64 = 1 << 63

// Cause is an scause value.
type Cause uint64

const (
	InstructionMisaligned Cause = 0
	InstructionFault      Cause = 1
	IllegalInstruction    Cause = 2
	Breakpoint            Cause = 3
	LoadFault             Cause = 5
	StoreFault            Cause = 7
	UserEnvCall           Cause = 8
	InstructionPageFault  Cause = 12
	LoadPageFault         Cause = 13
	StorePageFault        Cause = 15

	SupervisorTimer    Cause = Cause(interruptBit | 5)
	SupervisorExternal Cause = Cause(interruptBit | 9)
)

func (c Cause) IsInterrupt() bool {
	return uint64(c)&interruptBit != 0
}

func (c Cause) String() string {
	switch c {
	case IllegalInstruction:
		return "IllegalInstruction"
	case LoadFault:
		return "LoadFault"
	case StoreFault:
		return "StoreFault"
	case UserEnvCall:
		return "UserEnvCall"
	case InstructionPageFault:
		return "InstructionPageFault"
	case LoadPageFault:
		return "LoadPageFault"
	case StorePageFault:
		return "StorePageFault"
	case SupervisorTimer:
		return "SupervisorTimer"
	case SupervisorExternal:
		return "SupervisorExternal"
	}
	if c.IsInterrupt() {
		return fmt.Sprintf("Interrupt(%d)", uint64(c)&^interruptBit)
	}
	return fmt.Sprintf("Exception(%d)", uint64(c))
}

// InterruptLine is a level-triggered interrupt source.
type InterruptLine interface {
	Pending() bool
}

type Hart struct {
	X    [32]uint64
	PC   uint64
	Mode Mode

	Satp     uint64
	Sstatus  uint64
	Sepc     uint64
	Scause   uint64
	Stval    uint64
	Stvec    uint64
	Sscratch uint64
	Sie      uint64

	Timer    InterruptLine
	External InterruptLine

	// TLB flushes issued
	Fences uint64
}

func NewHart() *Hart {
	return &Hart{Mode: Supervisor}
}

func (h *Hart) SIE() bool {
	return h.Sstatus&SstatusSIE != 0
}

func (h *Hart) SetSIE(on bool) {
	if on {
		h.Sstatus |= SstatusSIE
	} else {
		h.Sstatus &^= SstatusSIE
	}
}

// WriteSatp installs a new page table root and fences the TLB.
func (h *Hart) WriteSatp(token uint64) {
	h.Satp = token
	h.Fences++
}

// PendingInterrupt reports the highest-priority interrupt the hart would
// take now. In user mode supervisor interrupts are always globally enabled;
// in supervisor mode only when SIE is set.
func (h *Hart) PendingInterrupt() (Cause, bool) {
	if h.Mode == Supervisor && !h.SIE() {
		return 0, false
	}
	if h.Sie&SieSEIE != 0 && h.External != nil && h.External.Pending() {
		return SupervisorExternal, true
	}
	if h.Sie&SieSTIE != 0 && h.Timer != nil && h.Timer.Pending() {
		return SupervisorTimer, true
	}
	return 0, false
}

// EnterTrap records a trap the way hardware does on entry to S-mode.
func (h *Hart) EnterTrap(cause Cause, tval uint64) {
	h.Sepc = h.PC
	h.Scause = uint64(cause)
	h.Stval = tval
	if h.Mode == User {
		h.Sstatus &^= SstatusSPP
	} else {
		h.Sstatus |= SstatusSPP
	}
	if h.SIE() {
		h.Sstatus |= SstatusSPIE
	} else {
		h.Sstatus &^= SstatusSPIE
	}
	h.SetSIE(false)
	h.Mode = Supervisor
	h.PC = h.Stvec
}

// Sret returns to the mode in SPP at sepc.
func (h *Hart) Sret() {
	if h.Sstatus&SstatusSPP != 0 {
		h.Mode = Supervisor
	} else {
		h.Mode = User
	}
	h.SetSIE(h.Sstatus&SstatusSPIE != 0)
	h.Sstatus |= SstatusSPIE
	h.PC = h.Sepc
}
