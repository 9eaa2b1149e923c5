package user

import (
	"github.com/tchajed/marshal"

	"github.com/mit-pdos/ezos/mm"
	"github.com/mit-pdos/ezos/riscv"
	"github.com/mit-pdos/ezos/trap"
)

// Env is one user thread's view of the machine. Memory accesses go through
// the thread's page table and fault like the hardware would.
type Env struct {
	m    *trap.Machine
	prog *Program
	// stub address of the running function
	pc uint64
	a0 uint64
	a1 uint64
}

func newEnv(m *trap.Machine, p *Program, pc uint64) *Env {
	h := m.Hart()
	return &Env{m: m, prog: p, pc: pc, a0: h.X[riscv.A0], a1: h.X[riscv.A1]}
}

func (e *Env) Program() *Program {
	return e.prog
}

// Arg is a0 at entry: argc for main, the argument for a thread, 0 for a
// forked child.
func (e *Env) Arg() uint64 {
	return e.a0
}

// Argv is a1 at entry: main's argv array.
func (e *Env) Argv() uint64 {
	return e.a1
}

// Args reads main's argv.
func (e *Env) Args() []string {
	return e.LoadArgs(e.a0, e.a1)
}

func (e *Env) LoadArgs(argc, argv uint64) []string {
	args := make([]string, argc)
	for i := range args {
		args[i] = e.LoadString(e.LoadU64(argv + uint64(i)*8))
	}
	return args
}

func (e *Env) FuncAddr(name string) uint64 {
	return e.prog.FuncAddr(name)
}

func (e *Env) DataAddr() uint64 {
	return e.prog.DataAddr()
}

func (e *Env) SP() uint64 {
	return e.m.Hart().X[riscv.SP]
}

func (e *Env) SetSP(sp uint64) {
	e.m.Hart().X[riscv.SP] = sp
}

// Alloc reserves n bytes on the user stack.
func (e *Env) Alloc(n uint64) uint64 {
	sp := (e.SP() - n) &^ 7
	e.SetSP(sp)
	return sp
}

// Push copies data onto the user stack and returns its address.
func (e *Env) Push(data []byte) uint64 {
	sp := e.Alloc(uint64(len(data)))
	e.Store(sp, data)
	return sp
}

func (e *Env) PushString(s string) uint64 {
	return e.Push(append([]byte(s), 0))
}

func (e *Env) fault(cause riscv.Cause, va uint64) {
	e.m.Hart().PC = e.pc
	e.m.Trap(cause, va)
	panic("user: resumed after a fault")
}

func (e *Env) Load(va uint64, n uint64) []byte {
	bufs, ok := mm.TranslatedByteBuffer(e.m.Memory(), e.m.Hart().Satp, va, n, false)
	if !ok {
		e.fault(riscv.LoadPageFault, va)
	}
	b := make([]byte, 0, n)
	for _, buf := range bufs {
		b = append(b, buf...)
	}
	return b
}

func (e *Env) Store(va uint64, data []byte) {
	bufs, ok := mm.TranslatedByteBuffer(e.m.Memory(), e.m.Hart().Satp, va, uint64(len(data)), true)
	if !ok {
		e.fault(riscv.StorePageFault, va)
	}
	for _, buf := range bufs {
		data = data[copy(buf, data):]
	}
}

func (e *Env) LoadU64(va uint64) uint64 {
	return marshal.NewDec(e.Load(va, 8)).GetInt()
}

func (e *Env) StoreU64(va uint64, v uint64) {
	enc := marshal.NewEnc(8)
	enc.PutInt(v)
	e.Store(va, enc.Finish())
}

func (e *Env) LoadString(va uint64) string {
	var s []byte
	for {
		c := e.Load(va, 1)[0]
		if c == 0 {
			return string(s)
		}
		s = append(s, c)
		va++
	}
}

// Spin takes a pending interrupt, if any.
func (e *Env) Spin() bool {
	return e.m.Poll()
}

// Jump transfers control to the code at pc, as a computed jump would.
func (e *Env) Jump(pc uint64) {
	e.m.Start(pc)
}

func (e *Env) ecall(pc uint64, id uint64, a0, a1, a2 uint64) int64 {
	e.m.Poll()
	h := e.m.Hart()
	h.PC = pc
	h.X[riscv.A0] = a0
	h.X[riscv.A1] = a1
	h.X[riscv.A2] = a2
	h.X[riscv.A7] = id
	e.m.Trap(riscv.UserEnvCall, 0)
	return int64(h.X[riscv.A0])
}

// Syscall issues system call id.
func (e *Env) Syscall(id uint64, a0, a1, a2 uint64) int64 {
	return e.ecall(e.pc, id, a0, a1, a2)
}
