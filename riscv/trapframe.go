package riscv

import (
	"github.com/tchajed/marshal"
)

const (
	TrapContextWords uint64 = 37
	TrapContextSize  uint64 = TrapContextWords * 8
)

// TrapContext is the per-thread save area the trampoline fills on trap
// entry: the 32 general registers, sstatus, sepc, and the kernel values
// needed to get into the kernel (page table, stack, handler address).
type TrapContext struct {
	X           [32]uint64
	Sstatus     uint64
	Sepc        uint64
	KernelSatp  uint64
	KernelSp    uint64
	TrapHandler uint64
}

// AppInitContext makes a context that enters user mode at entry with the
// stack pointer at sp.
func AppInitContext(entry, sp, kernelSatp, kernelSp, handler uint64) *TrapContext {
	cx := &TrapContext{
		Sstatus:     SstatusSPIE,
		Sepc:        entry,
		KernelSatp:  kernelSatp,
		KernelSp:    kernelSp,
		TrapHandler: handler,
	}
	cx.X[SP] = sp
	return cx
}

func (cx *TrapContext) Encode(b []byte) {
	enc := marshal.NewEnc(TrapContextSize)
	enc.PutInts(cx.X[:])
	enc.PutInts([]uint64{cx.Sstatus, cx.Sepc, cx.KernelSatp, cx.KernelSp, cx.TrapHandler})
	copy(b, enc.Finish())
}

func DecodeTrapContext(b []byte) *TrapContext {
	dec := marshal.NewDec(b[:TrapContextSize])
	cx := &TrapContext{}
	copy(cx.X[:], dec.GetInts(32))
	rest := dec.GetInts(5)
	cx.Sstatus = rest[0]
	cx.Sepc = rest[1]
	cx.KernelSatp = rest[2]
	cx.KernelSp = rest[3]
	cx.TrapHandler = rest[4]
	return cx
}
