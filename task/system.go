// Package task manages threads and processes on the single hart: their
// control blocks, the ready queue, sleep timers and the idle loop.
package task

import (
	"errors"
	"runtime/debug"

	"github.com/mit-pdos/ezos/file"
	"github.com/mit-pdos/ezos/kcell"
	"github.com/mit-pdos/ezos/ksync"
	"github.com/mit-pdos/ezos/mm"
	"github.com/mit-pdos/ezos/riscv"
	"github.com/mit-pdos/ezos/timer"
	"github.com/mit-pdos/ezos/util"
)

var (
	ErrDeadlock    = errors.New("task: nothing runnable and nothing to wait for")
	ErrArgsTooLong = errors.New("task: arguments do not fit on the user stack")
)

const (
	WaitNoChild = -1
	WaitNotYet  = -2
)

type Config struct {
	Hart        *riscv.Hart
	Intr        *kcell.IntrState
	Mem         *mm.Memory
	KernelSpace *mm.MemorySet
	Timer       *timer.Timer
	Console     file.Console
	// address of the kernel trap handler, stored in every trap context
	TrapHandler uint64
}

// System is the task subsystem.
type System struct {
	hart        *riscv.Hart
	intr        *kcell.IntrState
	mem         *mm.Memory
	kspace      *mm.MemorySet
	timer       *timer.Timer
	stdin       *file.Stdin
	stdout      *file.Stdout
	trapHandler uint64

	pids     *kcell.Cell[RecycleAllocator]
	kstacks  *kcell.Cell[RecycleAllocator]
	manager  *kcell.Cell[Manager]
	proc     *kcell.Cell[Processor]
	sleepers *kcell.Cell[SleepQueue]

	idle     *TaskContext
	contexts map[*TaskContext]struct{}
	initProc *ProcessControlBlock
	halted   bool
	exitCode int
	failure  *PanicError

	userEntry func()
	interrupt func(riscv.Cause)
}

func New(cfg Config) *System {
	return &System{
		hart:        cfg.Hart,
		intr:        cfg.Intr,
		mem:         cfg.Mem,
		kspace:      cfg.KernelSpace,
		timer:       cfg.Timer,
		stdin:       file.NewStdin(cfg.Console),
		stdout:      file.NewStdout(cfg.Console),
		trapHandler: cfg.TrapHandler,
		pids:        kcell.New(cfg.Intr, RecycleAllocator{}),
		kstacks:     kcell.New(cfg.Intr, RecycleAllocator{}),
		manager:     kcell.New(cfg.Intr, newManager()),
		proc:        kcell.New(cfg.Intr, Processor{}),
		sleepers:    kcell.New(cfg.Intr, SleepQueue{}),
		idle:        newIdleContext(),
		contexts:    make(map[*TaskContext]struct{}),
	}
}

// SetHooks installs the trap layer: entry runs first on every fresh
// context (it returns to user mode and never comes back), and interrupt
// handles an interrupt taken by the idle loop.
func (s *System) SetHooks(entry func(), interrupt func(riscv.Cause)) {
	s.userEntry = entry
	s.interrupt = interrupt
}

func (s *System) Timer() *timer.Timer {
	return s.timer
}

func (s *System) Memory() *mm.Memory {
	return s.mem
}

func (s *System) KernelToken() uint64 {
	return s.kspace.Token()
}

func (s *System) InitProcess() *ProcessControlBlock {
	return s.initProc
}

func (s *System) newContext() *TaskContext {
	var cx *TaskContext
	cx = newTaskContext(func() {
		defer func() {
			if r := recover(); r != nil {
				s.failure = &PanicError{Value: r, Stack: debug.Stack()}
				cx.killed = true
				s.idle.resume()
			}
		}()
		s.userEntry()
		panic("task: user entry returned")
	})
	s.contexts[cx] = struct{}{}
	return cx
}

// killContext ends cx and forgets it.
func (s *System) killContext(cx *TaskContext) {
	cx.kill()
	delete(s.contexts, cx)
}

// newTask builds a thread of p; pi is p's borrowed state.
func (s *System) newTask(p *ProcessControlBlock, pi *pcbInner, ustackBase uint64, allocRes bool) *TaskControlBlock {
	res := &TaskUserRes{tid: pi.tids.Alloc(), ustackBase: ustackBase}
	if allocRes {
		res.alloc(pi.memset)
	}
	t := &TaskControlBlock{sys: s, process: p, kstack: s.allocKernelStack()}
	t.inner = kcell.New(s.intr, tcbInner{
		res:       res,
		tid:       res.tid,
		trapCxPPN: res.trapCxPPN(pi.memset),
		cx:        s.newContext(),
		status:    Ready,
	})
	return t
}

func (s *System) newProcess(ms *mm.MemorySet) *ProcessControlBlock {
	pid := s.pids.Borrow().Alloc()
	s.pids.Release()
	p := &ProcessControlBlock{sys: s, pid: pid}
	p.inner = kcell.New(s.intr, pcbInner{memset: ms})
	return p
}

func (s *System) insertProcess(p *ProcessControlBlock) {
	s.manager.Borrow().procs[p.pid] = p
	s.manager.Release()
}

// Process looks up a live process by pid.
func (s *System) Process(pid uint64) (*ProcessControlBlock, bool) {
	defer s.manager.Release()
	p, ok := s.manager.Borrow().procs[pid]
	return p, ok
}

func (s *System) addTask(t *TaskControlBlock) {
	s.manager.Borrow().Add(t)
	s.manager.Release()
}

func (s *System) fetchTask() *TaskControlBlock {
	defer s.manager.Release()
	return s.manager.Borrow().Fetch()
}

// argsSize is the most stack pushArgs takes for args, alignment included.
func argsSize(args []string) uint64 {
	n := uint64(len(args)+1) * 8
	for _, a := range args {
		n += uint64(len(a)) + 1
	}
	return n + 7
}

// pushArgs lays out argv on the user stack below sp: the pointer array
// (zero-terminated) first, the strings beneath it. It returns the new sp
// and the address of argv.
func (s *System) pushArgs(token uint64, sp uint64, args []string) (uint64, uint64) {
	sp -= uint64(len(args)+1) * 8
	argv := sp
	for i, a := range args {
		sp -= uint64(len(a)) + 1
		if !mm.WriteBytes(s.mem, token, sp, append([]byte(a), 0)) ||
			!mm.WriteU64(s.mem, token, argv+uint64(i)*8, sp) {
			panic("pushArgs: user stack overflow")
		}
	}
	mm.WriteU64(s.mem, token, argv+uint64(len(args))*8, 0)
	sp -= sp % 8
	return sp, argv
}

// Spawn creates a process from an ELF image with stdio on descriptors 0-2
// and queues its main thread. The first process spawned is init.
func (s *System) Spawn(elf []byte, args []string) (*ProcessControlBlock, error) {
	if argsSize(args) > mm.UserStackSize {
		return nil, ErrArgsTooLong
	}
	ms, ustackBase, entry, err := mm.FromELF(s.mem, elf)
	if err != nil {
		return nil, err
	}
	p := s.newProcess(ms)
	pi := p.inner.Borrow()
	pi.fdTable = []file.File{s.stdin, s.stdout, s.stdout}
	t := s.newTask(p, pi, ustackBase, true)
	pi.tasks = []*TaskControlBlock{t}
	p.inner.Release()

	sp, argv := s.pushArgs(ms.Token(), t.UstackTop(), args)
	cx := riscv.AppInitContext(entry, sp, s.kspace.Token(), t.KernelStackTop(), s.trapHandler)
	cx.X[riscv.A0] = uint64(len(args))
	cx.X[riscv.A1] = argv
	t.SetTrapContext(cx)

	if s.initProc == nil {
		s.initProc = p
	}
	s.insertProcess(p)
	s.addTask(t)
	util.DPrintf(1, "spawn pid %d entry %#x\n", p.pid, entry)
	return p, nil
}

// Fork copies a single-threaded process. The child's main thread resumes
// from the same trap context.
func (s *System) Fork(p *ProcessControlBlock) *ProcessControlBlock {
	pi := p.inner.Borrow()
	if pi.threadCount() != 1 {
		p.inner.Release()
		panic("fork: process has more than one thread")
	}
	ms := pi.memset.Clone()
	fds := make([]file.File, len(pi.fdTable))
	for i, f := range pi.fdTable {
		if f != nil {
			fds[i] = file.Inherit(f)
		}
	}
	main := pi.tasks[0]
	p.inner.Release()
	mi := main.inner.Borrow()
	ustackBase := mi.res.ustackBase
	main.inner.Release()

	child := s.newProcess(ms)
	ci := child.inner.Borrow()
	ci.parent = p.pid
	ci.hasParent = true
	ci.fdTable = fds
	t := s.newTask(child, ci, ustackBase, false)
	ci.tasks = []*TaskControlBlock{t}
	child.inner.Release()

	cx := t.TrapContext()
	cx.KernelSp = t.KernelStackTop()
	t.SetTrapContext(cx)

	pi = p.inner.Borrow()
	pi.children = append(pi.children, child)
	p.inner.Release()
	s.insertProcess(child)
	s.addTask(t)
	util.DPrintf(1, "fork pid %d -> %d\n", p.pid, child.pid)
	return child
}

// Exec replaces p's image. It returns argc, which the caller places in a0.
func (s *System) Exec(p *ProcessControlBlock, elf []byte, args []string) (int, error) {
	if argsSize(args) > mm.UserStackSize {
		return 0, ErrArgsTooLong
	}
	ms, ustackBase, entry, err := mm.FromELF(s.mem, elf)
	if err != nil {
		return 0, err
	}
	pi := p.inner.Borrow()
	if pi.threadCount() != 1 {
		p.inner.Release()
		panic("exec: process has more than one thread")
	}
	old := pi.memset
	pi.memset = ms
	t := pi.tasks[0]
	ti := t.inner.Borrow()
	ti.res.ustackBase = ustackBase
	ti.res.alloc(ms)
	ti.trapCxPPN = ti.res.trapCxPPN(ms)
	t.inner.Release()
	p.inner.Release()
	old.Release()

	sp, argv := s.pushArgs(ms.Token(), t.UstackTop(), args)
	cx := riscv.AppInitContext(entry, sp, s.kspace.Token(), t.KernelStackTop(), s.trapHandler)
	cx.X[riscv.A0] = uint64(len(args))
	cx.X[riscv.A1] = argv
	t.SetTrapContext(cx)
	util.DPrintf(1, "exec pid %d entry %#x argc %d\n", p.pid, entry, len(args))
	return len(args), nil
}

// ThreadCreate starts a thread of p at entry with arg in a0 and returns
// its tid.
func (s *System) ThreadCreate(p *ProcessControlBlock, entry uint64, arg uint64) uint64 {
	pi := p.inner.Borrow()
	main := pi.tasks[0]
	mi := main.inner.Borrow()
	ustackBase := mi.res.ustackBase
	main.inner.Release()
	t := s.newTask(p, pi, ustackBase, true)
	ti := t.inner.Borrow()
	tid := ti.tid
	t.inner.Release()
	for uint64(len(pi.tasks)) <= tid {
		pi.tasks = append(pi.tasks, nil)
	}
	pi.tasks[tid] = t
	p.inner.Release()

	cx := riscv.AppInitContext(entry, t.UstackTop(), s.kspace.Token(), t.KernelStackTop(), s.trapHandler)
	cx.X[riscv.A0] = arg
	t.SetTrapContext(cx)
	s.addTask(t)
	util.DPrintf(3, "pid %d thread %d at %#x\n", p.pid, tid, entry)
	return tid
}

// CurrentTask returns the running thread, or nil in the idle loop.
func (s *System) CurrentTask() *TaskControlBlock {
	defer s.proc.Release()
	return s.proc.Borrow().current
}

func (s *System) CurrentProcess() *ProcessControlBlock {
	t := s.CurrentTask()
	if t == nil {
		return nil
	}
	return t.process
}

func (s *System) CurrentUserToken() uint64 {
	return s.CurrentProcess().Token()
}

func (s *System) takeCurrent() *TaskControlBlock {
	defer s.proc.Release()
	pr := s.proc.Borrow()
	t := pr.current
	pr.current = nil
	if t == nil {
		panic("no current task")
	}
	return t
}

func (s *System) schedule(cx *TaskContext) {
	Switch(cx, s.idle)
}

// SuspendCurrentAndRunNext requeues the running thread and switches away.
func (s *System) SuspendCurrentAndRunNext() {
	t := s.takeCurrent()
	t.setStatus(Ready)
	s.addTask(t)
	s.schedule(t.context())
}

// BlockCurrentAndRunNext switches away without requeueing; a Wakeup
// brings the thread back.
func (s *System) BlockCurrentAndRunNext() {
	s.blockCurrent(false)
}

func (s *System) blockCurrent(interruptible bool) {
	t := s.takeCurrent()
	ti := t.inner.Borrow()
	ti.status = Blocked
	ti.interruptible = interruptible
	cx := ti.cx
	t.inner.Release()
	s.schedule(cx)
}

// WakeupTask makes t runnable. It reports false if t has exited.
func (s *System) WakeupTask(t *TaskControlBlock) bool {
	ti := t.inner.Borrow()
	if ti.exited {
		t.inner.Release()
		return false
	}
	ti.status = Ready
	ti.interruptible = false
	t.inner.Release()
	s.addTask(t)
	return true
}

func (s *System) Current() ksync.Waiter {
	if t := s.CurrentTask(); t != nil {
		return t
	}
	return nil
}

func (s *System) Block() {
	s.BlockCurrentAndRunNext()
}

func (s *System) Wakeup(w ksync.Waiter) bool {
	return s.WakeupTask(w.(*TaskControlBlock))
}

// Interrupted reports whether the running thread's process has exited
// while the thread was in the kernel.
func (s *System) Interrupted() bool {
	t := s.CurrentTask()
	if t == nil {
		return false
	}
	defer t.inner.Release()
	return t.inner.Borrow().killed
}

// Interruptible schedules waits on objects a dying process may abandon:
// user sync objects, event counters and sleep. A thread blocked through
// it is torn down at once when its process exits. Threads blocked any
// other way keep running until they next return to user mode.
type Interruptible struct {
	*System
}

func (s *System) Interruptible() Interruptible {
	return Interruptible{s}
}

func (i Interruptible) Block() {
	i.blockCurrent(true)
}

func (s *System) Yield() {
	s.SuspendCurrentAndRunNext()
}

// Sleep blocks the running thread for at least ms milliseconds.
func (s *System) Sleep(ms uint64) {
	t := s.CurrentTask()
	s.sleepers.Borrow().Add(s.timer.TimeMS()+ms, t)
	s.sleepers.Release()
	s.blockCurrent(true)
}

// CheckSleepers wakes every thread whose sleep has expired.
func (s *System) CheckSleepers() {
	now := s.timer.TimeMS()
	ts := s.sleepers.Borrow().Expired(now)
	s.sleepers.Release()
	for _, t := range ts {
		s.WakeupTask(t)
	}
}

func (s *System) removeSleeper(t *TaskControlBlock) {
	s.sleepers.Borrow().Remove(t)
	s.sleepers.Release()
}

// ExitCurrentAndRunNext ends the running thread. When it is the main
// thread the whole process exits; it becomes a zombie once the last of
// its threads still inside the kernel has left.
func (s *System) ExitCurrentAndRunNext(code int) {
	t := s.takeCurrent()
	p := t.process
	ti := t.inner.Borrow()
	tid := ti.tid
	ti.exited = true
	ti.exitCode = code
	killed := ti.killed
	res := ti.res
	ti.res = nil
	cx := ti.cx
	t.inner.Release()

	pi := p.inner.Borrow()
	res.dealloc(pi.memset)
	p.inner.Release()
	util.DPrintf(1, "pid %d tid %d exit %d\n", p.pid, tid, code)

	if tid == 0 {
		s.exitProcess(p, code)
	} else if killed {
		pi = p.inner.Borrow()
		pi.tasks[tid] = nil
		p.inner.Release()
		s.freeKernelStack(t.kstack)
		s.leaveExiting(p)
	}
	delete(s.contexts, cx)
	switchExit(cx, s.idle)
}

// exitProcess ends p's other threads. Those parked where they hold nothing
// of the kernel's go at once; the rest are marked killed and counted.
func (s *System) exitProcess(p *ProcessControlBlock, code int) {
	m := s.manager.Borrow()
	delete(m.procs, p.pid)
	s.manager.Release()

	pi := p.inner.Borrow()
	pi.exiting = true
	pi.exitCode = code
	others := append([]*TaskControlBlock(nil), pi.tasks[1:]...)
	ms := pi.memset
	p.inner.Release()

	lingering := 0
	for _, o := range others {
		if o == nil {
			continue
		}
		oi := o.inner.Borrow()
		if oi.exited {
			o.inner.Release()
			s.freeKernelStack(o.kstack)
			continue
		}
		if oi.status == Ready && oi.cx.started || oi.status == Blocked && !oi.interruptible {
			oi.killed = true
			o.inner.Release()
			lingering++
			continue
		}
		if oi.res != nil {
			oi.res.dealloc(ms)
			oi.res = nil
		}
		oi.exited = true
		oi.exitCode = code
		ocx := oi.cx
		o.inner.Release()
		s.manager.Borrow().Remove(o)
		s.manager.Release()
		s.removeSleeper(o)
		s.killContext(ocx)
		s.freeKernelStack(o.kstack)
	}

	pi = p.inner.Borrow()
	pi.lingering = lingering
	p.inner.Release()
	if lingering == 0 {
		s.finishExit(p)
	}
}

// leaveExiting counts off a killed thread of p.
func (s *System) leaveExiting(p *ProcessControlBlock) {
	pi := p.inner.Borrow()
	pi.lingering--
	done := pi.lingering == 0
	p.inner.Release()
	if done {
		s.finishExit(p)
	}
}

// finishExit turns p into a zombie: its children go to init, its
// descriptors are closed and its user pages freed.
func (s *System) finishExit(p *ProcessControlBlock) {
	pi := p.inner.Borrow()
	pi.zombie = true
	code := pi.exitCode
	children := pi.children
	pi.children = nil
	pi.tasks = pi.tasks[:1]
	fds := pi.fdTable
	pi.fdTable = nil
	ms := pi.memset
	p.inner.Release()

	if p == s.initProc {
		s.halted = true
		s.exitCode = code
	}
	if p != s.initProc && s.initProc != nil {
		ii := s.initProc.inner.Borrow()
		for _, c := range children {
			c.inner.Borrow().parent = s.initProc.pid
			c.inner.Release()
			ii.children = append(ii.children, c)
		}
		s.initProc.inner.Release()
	}
	for _, f := range fds {
		if f != nil {
			file.Release(f)
		}
	}
	ms.RecycleDataPages()
	util.DPrintf(3, "pid %d is a zombie\n", p.pid)
}

// WaitPid reaps a zombie child (any child when pid is -1) and returns its
// pid and exit code; WaitNoChild if no child matches, WaitNotYet if none
// has exited.
func (s *System) WaitPid(p *ProcessControlBlock, pid int64) (int64, int) {
	pi := p.inner.Borrow()
	match := func(c *ProcessControlBlock) bool {
		return pid == -1 || uint64(pid) == c.pid
	}
	found := false
	for i, c := range pi.children {
		if !match(c) {
			continue
		}
		found = true
		if c.IsZombie() {
			pi.children = append(pi.children[:i], pi.children[i+1:]...)
			p.inner.Release()
			code := c.ExitCode()
			s.reap(c)
			return int64(c.pid), code
		}
	}
	p.inner.Release()
	if !found {
		return WaitNoChild, 0
	}
	return WaitNotYet, 0
}

// reap frees what a zombie kept: its main thread's kernel stack, its page
// table and its pid.
func (s *System) reap(c *ProcessControlBlock) {
	ci := c.inner.Borrow()
	main := ci.tasks[0]
	ci.tasks = nil
	ms := ci.memset
	c.inner.Release()
	s.freeKernelStack(main.kstack)
	ms.Release()
	s.pids.Borrow().Dealloc(c.pid)
	s.pids.Release()
	util.DPrintf(3, "reaped pid %d\n", c.pid)
}

// WaitTid joins thread tid of t's process. It returns the exit code, or
// WaitNoChild for t itself or a missing thread, or WaitNotYet.
func (s *System) WaitTid(t *TaskControlBlock, tid uint64) int {
	if t.Tid() == tid {
		return WaitNoChild
	}
	p := t.process
	pi := p.inner.Borrow()
	if tid >= uint64(len(pi.tasks)) || pi.tasks[tid] == nil {
		p.inner.Release()
		return WaitNoChild
	}
	o := pi.tasks[tid]
	code, exited := o.ExitCode()
	if !exited {
		p.inner.Release()
		return WaitNotYet
	}
	pi.tasks[tid] = nil
	pi.tids.Dealloc(tid)
	p.inner.Release()
	s.freeKernelStack(o.kstack)
	return code
}

// Kill marks sig pending on process pid. It fails for an unknown process,
// an invalid signal or one already pending.
func (s *System) Kill(pid uint64, sig int) bool {
	p, ok := s.Process(pid)
	if !ok || !ValidSignal(sig) {
		return false
	}
	return p.AddSignal(sig)
}

// Run is the idle loop. It returns init's exit code once init exits, or an
// error on a kernel panic or when nothing can ever run again.
func (s *System) Run() (int, error) {
	defer s.shutdown()
	for {
		if s.failure != nil {
			return 0, s.failure
		}
		if s.halted {
			return s.exitCode, nil
		}
		if t := s.fetchTask(); t != nil {
			t.setStatus(Running)
			s.proc.Borrow().current = t
			s.proc.Release()
			Switch(s.idle, t.context())
			continue
		}
		if s.takeInterrupt() {
			continue
		}
		expire, ok := s.earliestSleeper()
		if !ok {
			return 0, ErrDeadlock
		}
		s.timer.Clock().WaitUntil(timer.MsToDuration(expire))
		s.CheckSleepers()
	}
}

func (s *System) earliestSleeper() (uint64, bool) {
	defer s.sleepers.Release()
	return s.sleepers.Borrow().Earliest()
}

// takeInterrupt opens the interrupt window of the idle loop and handles
// at most one pending interrupt.
func (s *System) takeInterrupt() bool {
	s.hart.SetSIE(true)
	c, ok := s.hart.PendingInterrupt()
	s.hart.SetSIE(false)
	if !ok {
		return false
	}
	s.interrupt(c)
	return true
}

// shutdown ends every parked task goroutine.
func (s *System) shutdown() {
	for cx := range s.contexts {
		s.killContext(cx)
	}
}
